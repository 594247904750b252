package sessiond

import (
	"context"

	"github.com/sentracore/sessiond/session"
)

// GetSessionAnalytics aggregates the user's live sessions into a summary
// view. A user with no sessions yields a zero-valued report, not an error.
func (m *Manager) GetSessionAnalytics(ctx context.Context, userID string) (*SessionAnalytics, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}

	sessions, err := m.tiers.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &SessionAnalytics{
		UserID:  userID,
		Devices: map[string]int{},
	}
	if len(sessions) == 0 {
		return report, nil
	}

	now := m.now()
	scoreSum := 0
	for _, s := range sessions {
		report.TotalSessions++
		if s.ValidForUse(now) {
			report.ActiveSessions++
		}
		scoreSum += s.RiskScore
		if RiskLevelForScore(s.RiskScore) == RiskHigh {
			report.HighRiskSessions++
		}
		report.Devices[s.Fingerprint]++

		if report.OldestCreatedAt.IsZero() || s.CreatedAt.Before(report.OldestCreatedAt) {
			report.OldestCreatedAt = s.CreatedAt
		}
		if s.CreatedAt.After(report.NewestCreatedAt) {
			report.NewestCreatedAt = s.CreatedAt
		}
	}
	report.AverageRiskScore = float64(scoreSum) / float64(len(sessions))

	return report, nil
}

// securityStatus summarizes a validated session's standing for the caller.
func securityStatus(s *session.Session) *SecurityStatus {
	status := &SecurityStatus{
		RiskLevel: RiskLevelForScore(s.RiskScore),
	}
	if s.Suspicious() {
		status.Issues = append(status.Issues, "elevated risk score")
		status.Recommendations = append(status.Recommendations, "require re-authentication for sensitive operations")
	}
	return status
}
