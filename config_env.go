package sessiond

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

type envConfig struct {
	AccessTTL         time.Duration `env:"SESSIOND_ACCESS_TTL,default=1h"`
	RefreshTTL        time.Duration `env:"SESSIOND_REFRESH_TTL,default=168h"`
	RefreshSoonWindow time.Duration `env:"SESSIOND_REFRESH_SOON_WINDOW,default=5m"`
	RedisPrefix       string        `env:"SESSIOND_REDIS_PREFIX,default=sd"`

	MaxSessionsPerUser   int    `env:"SESSIOND_MAX_SESSIONS_PER_USER,default=5"`
	MaxSessionsPerDevice int    `env:"SESSIOND_MAX_SESSIONS_PER_DEVICE,default=0"`
	EvictionStrategy     string `env:"SESSIOND_EVICTION_STRATEGY,default=oldest_first"`

	AgentSimilarityThreshold float64 `env:"SESSIOND_AGENT_SIMILARITY_THRESHOLD,default=0.8"`

	DetectorEnabled    bool          `env:"SESSIOND_DETECTOR_ENABLED,default=true"`
	RapidWindow        time.Duration `env:"SESSIOND_DETECTOR_RAPID_WINDOW,default=1m"`
	RapidThreshold     int           `env:"SESSIOND_DETECTOR_RAPID_THRESHOLD,default=3"`
	DeviceChangeWindow time.Duration `env:"SESSIOND_DETECTOR_DEVICE_WINDOW,default=5m"`

	CleanupEnabled  bool          `env:"SESSIOND_CLEANUP_ENABLED,default=true"`
	CleanupInterval time.Duration `env:"SESSIOND_CLEANUP_INTERVAL,default=5m"`

	AuditEnabled    bool `env:"SESSIOND_AUDIT_ENABLED,default=true"`
	AuditBufferSize int  `env:"SESSIOND_AUDIT_BUFFER,default=256"`
	AuditDropIfFull bool `env:"SESSIOND_AUDIT_DROP_IF_FULL,default=true"`

	MetricsEnabled   bool `env:"SESSIOND_METRICS_ENABLED,default=true"`
	LatencyHistogram bool `env:"SESSIOND_METRICS_LATENCY,default=false"`
}

// ConfigFromEnv builds a Config from SESSIOND_* environment variables,
// falling back to the DefaultConfig values, and validates the result.
func ConfigFromEnv() (Config, error) {
	var ec envConfig
	if err := envdecode.Decode(&ec); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg := Config{
		Session: SessionConfig{
			AccessTTL:         ec.AccessTTL,
			RefreshTTL:        ec.RefreshTTL,
			RefreshSoonWindow: ec.RefreshSoonWindow,
			RedisPrefix:       ec.RedisPrefix,
		},
		Limits: LimitsConfig{
			MaxSessionsPerUser:   ec.MaxSessionsPerUser,
			MaxSessionsPerDevice: ec.MaxSessionsPerDevice,
			UserEvictionStrategy: EvictionStrategy(ec.EvictionStrategy),
		},
		Risk: RiskConfig{
			AgentSimilarityThreshold: ec.AgentSimilarityThreshold,
		},
		Detector: DetectorConfig{
			Enabled:            ec.DetectorEnabled,
			RapidWindow:        ec.RapidWindow,
			RapidThreshold:     ec.RapidThreshold,
			DeviceChangeWindow: ec.DeviceChangeWindow,
		},
		Cleanup: CleanupConfig{
			Enabled:  ec.CleanupEnabled,
			Interval: ec.CleanupInterval,
		},
		Audit: AuditConfig{
			Enabled:    ec.AuditEnabled,
			BufferSize: ec.AuditBufferSize,
			DropIfFull: ec.AuditDropIfFull,
		},
		Metrics: MetricsConfig{
			Enabled:                 ec.MetricsEnabled,
			EnableLatencyHistograms: ec.LatencyHistogram,
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
