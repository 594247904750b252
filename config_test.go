package sessiond

import (
	"errors"
	"testing"
	"time"
)

func TestPresetsValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig must validate: %v", err)
	}
	if err := HighSecurityConfig().Validate(); err != nil {
		t.Fatalf("HighSecurityConfig must validate: %v", err)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero access ttl", mutate: func(c *Config) { c.Session.AccessTTL = 0 }},
		{name: "refresh not beyond access", mutate: func(c *Config) { c.Session.RefreshTTL = c.Session.AccessTTL }},
		{name: "refresh-soon beyond access", mutate: func(c *Config) { c.Session.RefreshSoonWindow = 2 * time.Hour }},
		{name: "negative user limit", mutate: func(c *Config) { c.Limits.MaxSessionsPerUser = -1 }},
		{name: "unknown strategy", mutate: func(c *Config) { c.Limits.UserEvictionStrategy = "newest_first" }},
		{name: "similarity above one", mutate: func(c *Config) { c.Risk.AgentSimilarityThreshold = 1.5 }},
		{name: "zero rapid window", mutate: func(c *Config) { c.Detector.RapidWindow = 0 }},
		{name: "zero rapid threshold", mutate: func(c *Config) { c.Detector.RapidThreshold = 0 }},
		{name: "zero cleanup interval", mutate: func(c *Config) { c.Cleanup.Interval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestDisabledSubsystemsSkipValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detector.Enabled = false
	cfg.Detector.RapidWindow = 0
	cfg.Cleanup.Enabled = false
	cfg.Cleanup.Interval = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled subsystems must not be validated: %v", err)
	}
}

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv failed: %v", err)
	}
	if cfg.Session.AccessTTL != time.Hour {
		t.Fatalf("expected default access TTL, got %v", cfg.Session.AccessTTL)
	}
	if cfg.Limits.MaxSessionsPerUser != 5 {
		t.Fatalf("expected default user limit, got %d", cfg.Limits.MaxSessionsPerUser)
	}
}

func TestConfigFromEnvOverride(t *testing.T) {
	t.Setenv("SESSIOND_ACCESS_TTL", "15m")
	t.Setenv("SESSIOND_MAX_SESSIONS_PER_USER", "3")
	t.Setenv("SESSIOND_EVICTION_STRATEGY", "highest_risk")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv failed: %v", err)
	}
	if cfg.Session.AccessTTL != 15*time.Minute {
		t.Fatalf("expected 15m access TTL, got %v", cfg.Session.AccessTTL)
	}
	if cfg.Limits.MaxSessionsPerUser != 3 {
		t.Fatalf("expected user limit 3, got %d", cfg.Limits.MaxSessionsPerUser)
	}
	if cfg.Limits.UserEvictionStrategy != EvictHighestRisk {
		t.Fatalf("expected highest_risk strategy, got %q", cfg.Limits.UserEvictionStrategy)
	}
}

func TestConfigFromEnvRejectsInvalid(t *testing.T) {
	t.Setenv("SESSIOND_EVICTION_STRATEGY", "random")
	if _, err := ConfigFromEnv(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
