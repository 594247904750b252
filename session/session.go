// Package session defines the session entity, its construction invariants,
// and the derived state queries used by the lifecycle manager and both
// storage tiers.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSession is returned when construction inputs violate an entity
// invariant. It indicates an integration bug upstream, not a runtime
// condition.
var ErrInvalidSession = errors.New("invalid session")

// Risk score bounds and the threshold above which a session is considered
// suspicious.
const (
	MinRiskScore        = 0
	MaxRiskScore        = 100
	SuspiciousRiskScore = 70
)

// DeviceInfo is the full device descriptor bound to a session. Fingerprint
// is required; the remaining fields are advisory and used only for
// consistency checks.
type DeviceInfo struct {
	Fingerprint string `json:"fingerprint"`
	UserAgent   string `json:"user_agent,omitempty"`
	Platform    string `json:"platform,omitempty"`
	Browser     string `json:"browser,omitempty"`
	IsMobile    bool   `json:"is_mobile,omitempty"`
	ScreenInfo  string `json:"screen_info,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
}

// Session is the central entity of the lifecycle core. Access and refresh
// tokens are bearer secrets: they are persisted with the session but must
// never appear in logs or diagnostic output (see Redacted and String).
//
// Session instances are created once by the lifecycle manager at
// authentication time. LastActivity and RiskScore mutate in place on
// validation and refresh; Active flips to false exactly once, on
// termination, and is never reset to true.
type Session struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`

	CreatedAt        time.Time `json:"created_at"`
	LastActivity     time.Time `json:"last_activity"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`

	Fingerprint string     `json:"fingerprint"`
	UserAgent   string     `json:"user_agent,omitempty"`
	IPAddress   string     `json:"ip_address,omitempty"`
	Device      DeviceInfo `json:"device"`

	RiskScore int  `json:"risk_score"`
	Active    bool `json:"active"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// New constructs a Session and enforces every entity invariant. It returns
// ErrInvalidSession (wrapped with the violated constraint) on bad input.
func New(s Session) (*Session, error) {
	if s.ID == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrInvalidSession)
	}
	if s.UserID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidSession)
	}
	if s.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrInvalidSession)
	}
	if s.RefreshToken == "" {
		return nil, fmt.Errorf("%w: empty refresh token", ErrInvalidSession)
	}
	if s.CreatedAt.IsZero() {
		return nil, fmt.Errorf("%w: zero created-at", ErrInvalidSession)
	}
	if !s.ExpiresAt.After(s.CreatedAt) {
		return nil, fmt.Errorf("%w: expires-at must be after created-at", ErrInvalidSession)
	}
	if !s.RefreshExpiresAt.After(s.ExpiresAt) {
		return nil, fmt.Errorf("%w: refresh-expires-at must be after expires-at", ErrInvalidSession)
	}
	if s.LastActivity.IsZero() {
		s.LastActivity = s.CreatedAt
	}
	if s.LastActivity.Before(s.CreatedAt) {
		return nil, fmt.Errorf("%w: last-activity before created-at", ErrInvalidSession)
	}
	if s.RiskScore < MinRiskScore || s.RiskScore > MaxRiskScore {
		return nil, fmt.Errorf("%w: risk score out of range", ErrInvalidSession)
	}
	return &s, nil
}

// Expired reports whether the access-token lifetime has elapsed.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// RefreshExpired reports whether the refresh window has elapsed.
func (s *Session) RefreshExpired(now time.Time) bool {
	return now.After(s.RefreshExpiresAt)
}

// Refreshable reports whether the session may still be refreshed: it must be
// active and within its refresh window. An access-token expiry alone does
// not make a session unrefreshable.
func (s *Session) Refreshable(now time.Time) bool {
	return s.Active && !s.RefreshExpired(now)
}

// ValidForUse reports whether the session is usable as-is: active and not
// past its access expiry.
func (s *Session) ValidForUse(now time.Time) bool {
	return s.Active && !s.Expired(now)
}

// ExpiresWithin reports whether the access expiry falls inside the given
// window from now.
func (s *Session) ExpiresWithin(now time.Time, window time.Duration) bool {
	return !s.Expired(now) && !now.Add(window).Before(s.ExpiresAt)
}

// Suspicious reports whether the stored risk score crosses the suspicious
// threshold.
func (s *Session) Suspicious() bool {
	return s.RiskScore > SuspiciousRiskScore
}

// Touch advances LastActivity. Timestamps before the current LastActivity
// are ignored so out-of-order touches cannot move activity backwards.
func (s *Session) Touch(now time.Time) {
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
}

// Terminate flips the session inactive. The flag is one-way.
func (s *Session) Terminate() {
	s.Active = false
}

// Clone returns a deep copy. Stores hand out clones so callers cannot
// mutate tier-cached state in place.
func (s *Session) Clone() *Session {
	cp := *s
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Redacted returns a copy with both bearer tokens blanked, safe for
// diagnostics and audit metadata.
func (s *Session) Redacted() *Session {
	cp := s.Clone()
	cp.AccessToken = ""
	cp.RefreshToken = ""
	return cp
}

// String implements fmt.Stringer without exposing bearer tokens.
func (s *Session) String() string {
	return fmt.Sprintf("session{id=%s user=%s active=%t risk=%d expires=%s}",
		s.ID, s.UserID, s.Active, s.RiskScore, s.ExpiresAt.UTC().Format(time.RFC3339))
}

// Encode serializes a session to the JSON payload shared by both storage
// tiers.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil session", ErrInvalidSession)
	}
	return json.Marshal(s)
}

// Decode parses a tier payload back into a session.
func Decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	return &s, nil
}
