package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout = %v, want 30s", cfg.ReadTimeout)
	}
	if cfg.ConfidenceGate != 0.5 {
		t.Errorf("ConfidenceGate = %v, want 0.5", cfg.ConfidenceGate)
	}
	if cfg.BatchSize != 450 {
		t.Errorf("BatchSize = %d, want 450", cfg.BatchSize)
	}
	if cfg.EnableMCP {
		t.Error("EnableMCP should default to false")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MERIDIAN_PORT", "9999")
	t.Setenv("MERIDIAN_CONFIDENCE_GATE", "0.7")
	t.Setenv("MERIDIAN_BATCH_SIZE", "100")
	t.Setenv("MERIDIAN_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.ConfidenceGate != 0.7 {
		t.Errorf("ConfidenceGate = %v, want 0.7", cfg.ConfidenceGate)
	}
	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.BatchSize)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database url", func(c *Config) { c.DatabaseURL = "" }},
		{"gate above one", func(c *Config) { c.ConfidenceGate = 1.5 }},
		{"gate negative", func(c *Config) { c.ConfidenceGate = -0.1 }},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
		{"zero batch workers", func(c *Config) { c.BatchWorkers = 0 }},
		{"zero max body", func(c *Config) { c.MaxRequestBodyBytes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted invalid config")
			}
		})
	}
}
