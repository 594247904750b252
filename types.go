package sessiond

import (
	"io"
	"time"

	internalaudit "github.com/sentracore/sessiond/internal/audit"
	"github.com/sentracore/sessiond/internal/token"
	"github.com/sentracore/sessiond/session"
)

// DeviceInfo is re-exported from the session package for caller convenience.
type DeviceInfo = session.DeviceInfo

// CreateSessionInput carries everything the lifecycle manager needs to
// admit and construct a session for an already-authenticated identity.
type CreateSessionInput struct {
	UserID    string     `validate:"required"`
	Device    DeviceInfo `validate:"required"`
	IPAddress string
	UserAgent string

	// RiskScoreOverride, when non-nil, replaces the collaborator's overall
	// score on the new session.
	RiskScoreOverride *int `validate:"omitempty"`

	// AccountAge and RecentFailedLogins feed the risk collaborator's
	// security context; both are optional.
	AccountAge         time.Duration
	RecentFailedLogins int

	Metadata map[string]string
}

// RefreshInput carries the caller's current device context for a refresh.
type RefreshInput struct {
	Device    DeviceInfo
	IPAddress string
	UserAgent string

	// ValidateDevice enables the device-consistency check. A mismatch is a
	// hard security response: the session is terminated.
	ValidateDevice bool
}

// TokenPair holds freshly issued bearer secrets.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// SecurityStatus summarizes a validated session's standing.
type SecurityStatus struct {
	RiskLevel       RiskLevel
	Issues          []string
	Recommendations []string
}

// ValidationResult is returned by Manager.ValidateSession. Not-found and
// expired are expected outcomes reported via Valid=false plus Reason.
type ValidationResult struct {
	Valid           bool
	Session         *session.Session
	Reason          string
	RequiresRefresh bool
	Security        *SecurityStatus
}

// RefreshResult is returned by Manager.RefreshSession. Expected failures
// (not refreshable, device mismatch, underlying validation failure) are
// reported via Success=false plus Reason.
type RefreshResult struct {
	Success    bool
	Session    *session.Session
	Tokens     *TokenPair
	Assessment *RiskAssessment
	Reason     string
}

// SessionAnalytics is an aggregate view over a user's sessions.
type SessionAnalytics struct {
	UserID           string
	TotalSessions    int
	ActiveSessions   int
	AverageRiskScore float64
	HighRiskSessions int
	Devices          map[string]int
	OldestCreatedAt  time.Time
	NewestCreatedAt  time.Time
}

// TokenSource supplies the opaque session id and bearer secrets. Entropy
// and format are an external contract; the default source uses UUIDs for
// ids and crypto/rand secrets for tokens.
type TokenSource interface {
	NewSessionID() (string, error)
	NewAccessToken() (string, error)
	NewRefreshToken() (string, error)
}

type standardTokenSource struct{}

func (standardTokenSource) NewSessionID() (string, error)    { return token.NewSessionID() }
func (standardTokenSource) NewAccessToken() (string, error)  { return token.NewAccessToken() }
func (standardTokenSource) NewRefreshToken() (string, error) { return token.NewRefreshToken() }

// AuditEvent is a structured audit record emitted by the manager.
type AuditEvent = internalaudit.Event

// AuditSink receives AuditEvent values from the manager's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an AuditSink that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based AuditSink.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an AuditSink that writes JSON-encoded events to an
// io.Writer, one per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
