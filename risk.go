package sessiond

import (
	"context"
	"time"
)

// RiskLevel buckets an overall risk score for reporting.
type RiskLevel string

const (
	// RiskLow is an overall score below 40.
	RiskLow RiskLevel = "low"
	// RiskMedium is an overall score from 40 to 70.
	RiskMedium RiskLevel = "medium"
	// RiskHigh is an overall score above 70.
	RiskHigh RiskLevel = "high"
)

// RiskLevelForScore maps a 0-100 score to its reporting bucket.
func RiskLevelForScore(score int) RiskLevel {
	switch {
	case score < 40:
		return RiskLow
	case score <= 70:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// SecurityContext is the ephemeral input to a risk assessment. It is never
// persisted independently of the session it describes.
type SecurityContext struct {
	UserID             string
	SessionID          string // empty at creation time
	DeviceFingerprint  string
	IPAddress          string
	UserAgent          string
	Timestamp          time.Time
	AccountAge         time.Duration
	RecentFailedLogins int
}

// RiskFactor is a single typed contribution to an assessment.
type RiskFactor struct {
	Type        string `json:"type"`
	Score       int    `json:"score"`
	Description string `json:"description"`
}

// RiskAssessment is the ephemeral output of the risk collaborator. It is
// consumed immediately; the only durable trace is the resulting session's
// risk score.
type RiskAssessment struct {
	OverallScore    int          `json:"overall_score"`
	Level           RiskLevel    `json:"level"`
	Factors         []RiskFactor `json:"factors,omitempty"`
	Recommendations []string     `json:"recommendations,omitempty"`
	RequiresMFA     bool         `json:"requires_mfa"`
	AllowAccess     bool         `json:"allow_access"`
}

// RiskAssessor is the capability interface for the external risk
// collaborator: one method, one failure mode. The lifecycle manager can be
// tested with a deterministic stub.
type RiskAssessor interface {
	AssessRisk(ctx context.Context, sc SecurityContext) (*RiskAssessment, error)
}

// Conservative fallback scores substituted when the collaborator fails.
// Risk assessment degrades gracefully rather than becoming a single point
// of failure for authentication.
const (
	fallbackCreateScore  = 50
	fallbackRefreshScore = 60
)

func fallbackAssessment(score int) *RiskAssessment {
	return &RiskAssessment{
		OverallScore: score,
		Level:        RiskMedium,
		Factors: []RiskFactor{{
			Type:        "assessor_unavailable",
			Score:       score,
			Description: "risk collaborator failed; conservative default applied",
		}},
		Recommendations: []string{"monitor session activity"},
		AllowAccess:     true,
	}
}

// Synthetic factor penalties applied on refresh when the caller's context
// no longer matches the stored session.
const (
	ipChangePenalty     = 15
	deviceChangePenalty = 25
)

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
