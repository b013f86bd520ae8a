package cliconfig

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ListenAddr != ":8787" {
		t.Errorf("ListenAddr = %v, want :8787", cfg.ListenAddr)
	}
	if cfg.Path != "/v1/events" {
		t.Errorf("Path = %v, want /v1/events", cfg.Path)
	}
	if cfg.AckTimeout != 30*time.Second {
		t.Errorf("AckTimeout = %v, want 30s", cfg.AckTimeout)
	}
	if cfg.WriteTimeout != 10*time.Second {
		t.Errorf("WriteTimeout = %v, want 10s", cfg.WriteTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"missing listen addr", func(c *Config) { c.ListenAddr = "" }, true},
		{"path without leading slash", func(c *Config) { c.Path = "events" }, true},
		{"zero ack timeout", func(c *Config) { c.AckTimeout = 0 }, true},
		{"negative heartbeat", func(c *Config) { c.HeartbeatInterval = -time.Second }, true},
		{"zero heartbeat allowed", func(c *Config) { c.HeartbeatInterval = 0 }, false},
		{"negative max message size", func(c *Config) { c.MaxMessageSize = -1 }, true},
		{"negative rate limit", func(c *Config) { c.RateLimit = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() expected error but got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestConfigValidate_DerivesRateInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 50
	cfg.RateInterval = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if cfg.RateInterval != time.Second {
		t.Errorf("RateInterval = %v, want %v", cfg.RateInterval, time.Second)
	}
}

func TestConfigPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AckTimeout = 15 * time.Second
	cfg.HeartbeatInterval = 45 * time.Second
	cfg.MaxMessageSize = 2048
	cfg.RateLimit = 100
	cfg.RateInterval = time.Minute

	p := cfg.Policy()
	if p.AckTimeout != 15*time.Second {
		t.Errorf("AckTimeout = %v, want 15s", p.AckTimeout)
	}
	if p.HeartbeatInterval != 45*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 45s", p.HeartbeatInterval)
	}
	if p.MaxMessageSize != 2048 {
		t.Errorf("MaxMessageSize = %v, want 2048", p.MaxMessageSize)
	}
	if p.MessageRateLimit != 100 {
		t.Errorf("MessageRateLimit = %v, want 100", p.MessageRateLimit)
	}
	if p.MessageRateInterval != time.Minute {
		t.Errorf("MessageRateInterval = %v, want 1m", p.MessageRateInterval)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("derived policy invalid: %v", err)
	}
}
