package sessiond

import (
	"fmt"
	"time"
)

// Config defines every tunable of the lifecycle core. Instances are
// configured during initialization and then treated as immutable.
type Config struct {
	Session  SessionConfig
	Limits   LimitsConfig
	Risk     RiskConfig
	Detector DetectorConfig
	Cleanup  CleanupConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session timing and the fast-tier namespace.
type SessionConfig struct {
	// AccessTTL is the access-token lifetime (expiresAt = now + AccessTTL).
	AccessTTL time.Duration
	// RefreshTTL is the refresh window (refreshExpiresAt = now + RefreshTTL).
	// Must be strictly greater than AccessTTL.
	RefreshTTL time.Duration
	// RefreshSoonWindow is the window before access expiry in which
	// validation flags RequiresRefresh.
	RefreshSoonWindow time.Duration
	// RedisPrefix namespaces fast-tier keys.
	RedisPrefix string
}

/*
====================================
LIMITS CONFIG
====================================
*/

// EvictionStrategy selects which sessions the concurrent-session policy
// terminates when a limit is exceeded.
type EvictionStrategy string

const (
	// EvictOldestFirst terminates sessions with the earliest createdAt.
	EvictOldestFirst EvictionStrategy = "oldest_first"
	// EvictLowestActivity terminates sessions with the earliest lastActivity.
	EvictLowestActivity EvictionStrategy = "lowest_activity"
	// EvictHighestRisk terminates sessions with the highest riskScore.
	EvictHighestRisk EvictionStrategy = "highest_risk"
)

// LimitsConfig controls concurrent-session admission.
type LimitsConfig struct {
	// MaxSessionsPerUser caps live sessions per user. Zero disables.
	MaxSessionsPerUser int
	// MaxSessionsPerDevice caps live sessions per device fingerprint.
	// Zero disables the device limit.
	MaxSessionsPerDevice int
	// UserEvictionStrategy selects user-level eviction victims.
	// Device-level eviction always uses oldest_first.
	UserEvictionStrategy EvictionStrategy
}

/*
====================================
RISK CONFIG
====================================
*/

// RiskConfig controls device-consistency heuristics. The collaborator's
// scoring internals are external; only the refresh-time synthetic factors
// and the user-agent similarity cutoff live here.
type RiskConfig struct {
	// AgentSimilarityThreshold is the minimum Jaccard word similarity
	// between stored and presented user agents before the pair counts as
	// inconsistent. Defaults to 0.8.
	AgentSimilarityThreshold float64
}

/*
====================================
DETECTOR CONFIG
====================================
*/

// DetectorConfig controls the suspicious-activity detector. The detector is
// observational: alerts never cancel or invalidate sessions.
type DetectorConfig struct {
	Enabled bool
	// RapidWindow and RapidThreshold flag more than RapidThreshold
	// creations for one user inside the window.
	RapidWindow    time.Duration
	RapidThreshold int
	// DeviceChangeWindow flags a creation from a different fingerprint
	// within the window.
	DeviceChangeWindow time.Duration
}

/*
====================================
CLEANUP CONFIG
====================================
*/

// CleanupConfig controls the periodic expiry sweep owned by the manager.
type CleanupConfig struct {
	Enabled  bool
	Interval time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process metrics collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline preset: 1h access tokens, 7d refresh
// window, 5-minute refresh-soon window, 5 sessions per user with
// oldest-first eviction, detector on, cleanup every 5 minutes.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			AccessTTL:         time.Hour,
			RefreshTTL:        7 * 24 * time.Hour,
			RefreshSoonWindow: 5 * time.Minute,
			RedisPrefix:       "sd",
		},
		Limits: LimitsConfig{
			MaxSessionsPerUser:   5,
			MaxSessionsPerDevice: 0,
			UserEvictionStrategy: EvictOldestFirst,
		},
		Risk: RiskConfig{
			AgentSimilarityThreshold: 0.8,
		},
		Detector: DetectorConfig{
			Enabled:            true,
			RapidWindow:        time.Minute,
			RapidThreshold:     3,
			DeviceChangeWindow: 5 * time.Minute,
		},
		Cleanup: CleanupConfig{
			Enabled:  true,
			Interval: 5 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// HighSecurityConfig returns a hardened preset: shorter token lifetimes,
// tighter limits, device caps, lowest-activity eviction, latency
// histograms on.
func HighSecurityConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.AccessTTL = 15 * time.Minute
	cfg.Session.RefreshTTL = 24 * time.Hour
	cfg.Session.RefreshSoonWindow = 2 * time.Minute
	cfg.Limits.MaxSessionsPerUser = 3
	cfg.Limits.MaxSessionsPerDevice = 1
	cfg.Limits.UserEvictionStrategy = EvictHighestRisk
	cfg.Cleanup.Interval = time.Minute
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

// Validate checks cross-field constraints. It returns ErrInvalidConfig
// wrapped with the violated constraint.
func (c Config) Validate() error {
	if c.Session.AccessTTL <= 0 {
		return fmt.Errorf("%w: access TTL must be positive", ErrInvalidConfig)
	}
	if c.Session.RefreshTTL <= c.Session.AccessTTL {
		return fmt.Errorf("%w: refresh TTL must exceed access TTL", ErrInvalidConfig)
	}
	if c.Session.RefreshSoonWindow < 0 || c.Session.RefreshSoonWindow >= c.Session.AccessTTL {
		return fmt.Errorf("%w: refresh-soon window must be within the access TTL", ErrInvalidConfig)
	}
	if c.Limits.MaxSessionsPerUser < 0 || c.Limits.MaxSessionsPerDevice < 0 {
		return fmt.Errorf("%w: session limits cannot be negative", ErrInvalidConfig)
	}
	switch c.Limits.UserEvictionStrategy {
	case EvictOldestFirst, EvictLowestActivity, EvictHighestRisk:
	default:
		return fmt.Errorf("%w: unknown eviction strategy %q", ErrInvalidConfig, c.Limits.UserEvictionStrategy)
	}
	if c.Risk.AgentSimilarityThreshold < 0 || c.Risk.AgentSimilarityThreshold > 1 {
		return fmt.Errorf("%w: agent similarity threshold must be in [0, 1]", ErrInvalidConfig)
	}
	if c.Detector.Enabled {
		if c.Detector.RapidWindow <= 0 || c.Detector.DeviceChangeWindow <= 0 {
			return fmt.Errorf("%w: detector windows must be positive", ErrInvalidConfig)
		}
		if c.Detector.RapidThreshold <= 0 {
			return fmt.Errorf("%w: detector rapid threshold must be positive", ErrInvalidConfig)
		}
	}
	if c.Cleanup.Enabled && c.Cleanup.Interval <= 0 {
		return fmt.Errorf("%w: cleanup interval must be positive", ErrInvalidConfig)
	}
	return nil
}
