package sessiond

import "errors"

var (
	// ErrManagerClosed is returned by operations invoked after Close.
	ErrManagerClosed = errors.New("session manager closed")
	// ErrInvalidInput is returned when creation or refresh inputs fail
	// validation. It indicates an integration bug upstream, not a runtime
	// condition.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEvictionFailed is returned when the concurrent-session policy
	// selected sessions to evict but could not terminate them.
	ErrEvictionFailed = errors.New("session eviction failed")
	// ErrSessionCreationFailed wraps persistence failures during creation.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrSessionRefreshFailed wraps persistence failures during refresh.
	ErrSessionRefreshFailed = errors.New("session refresh failed")
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Structured-result reason strings. Expected outcomes (not found, expired,
// not refreshable, device mismatch) are reported through these rather than
// through error returns, because callers branch on them routinely.
const (
	ReasonNotFound       = "Session not found"
	ReasonExpired        = "Session expired"
	ReasonInactive       = "Session inactive"
	ReasonNotRefreshable = "Session cannot be refreshed"
	ReasonDeviceMismatch = "Device validation failed - session terminated for security"
)
