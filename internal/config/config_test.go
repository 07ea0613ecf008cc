package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name  string
		check func(*Config) bool
	}{
		{"default mode is all", func(c *Config) bool { return c.Mode == "all" }},
		{"default host is 0.0.0.0", func(c *Config) bool { return c.Host == "0.0.0.0" }},
		{"default port is 8080", func(c *Config) bool { return c.Port == 8080 }},
		{"default log level is info", func(c *Config) bool { return c.LogLevel == "info" }},
		{"default update step", func(c *Config) bool { return c.UpdateStep == 50 }},
		{"default reservation timeout minutes", func(c *Config) bool { return c.ReservationTimeoutMinutes == 60 }},
		{"default audit horizon is 24h", func(c *Config) bool { return c.AuditHorizon == 24*time.Hour }},
		{"listen addr format", func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" }},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("default check failed for %s", tt.name)
			}
		})
	}
}

func TestDerivedDurations(t *testing.T) {
	cfg := &Config{
		ReservationTimeoutMinutes: 10,
		UpdateTimeoutSeconds:      5,
		CheckExpireTimeoutSeconds: 15,
	}

	if got := cfg.ReservationTimeout(); got != 10*time.Minute {
		t.Errorf("ReservationTimeout() = %v, want 10m", got)
	}
	if got := cfg.UpdateTimeout(); got != 5*time.Second {
		t.Errorf("UpdateTimeout() = %v, want 5s", got)
	}
	if got := cfg.CheckExpireTimeout(); got != 15*time.Second {
		t.Errorf("CheckExpireTimeout() = %v, want 15s", got)
	}
}
