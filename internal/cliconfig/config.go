// Package cliconfig holds configuration for the evlink command line
// tools, merged from defaults, a TOML file, EVLINK_* environment
// variables and command line flags, in that order of precedence.
package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/evlink-labs/evlink/internal/domain"
)

// Config holds CLI configuration for evlink.
type Config struct {
	// ListenAddr is the address the serve command binds.
	ListenAddr string
	// Path is the HTTP path serving the WebSocket endpoint.
	Path string

	// URL is the endpoint the ping command dials.
	URL string

	// Policy fields declared to connecting clients.
	AckTimeout        time.Duration
	HeartbeatInterval time.Duration
	MaxMessageSize    int64
	RateLimit         int
	RateInterval      time.Duration

	// WriteTimeout bounds a single frame write on the wire.
	WriteTimeout time.Duration

	LogLevel string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ListenAddr:        ":8787",
		Path:              "/v1/events",
		URL:               "ws://127.0.0.1:8787/v1/events",
		AckTimeout:        30 * time.Second,
		HeartbeatInterval: 20 * time.Second,
		MaxMessageSize:    1 << 20, // 1MB
		RateInterval:      time.Second,
		WriteTimeout:      10 * time.Second,
		LogLevel:          "info",
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("path must start with /")
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("ack timeout must be positive")
	}
	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("heartbeat interval must not be negative")
	}
	if c.MaxMessageSize < 0 {
		return fmt.Errorf("max message size must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.RateLimit > 0 && c.RateInterval <= 0 {
		c.RateInterval = time.Second
	}
	return nil
}

// Policy maps the configuration onto the session policy the serve
// command declares.
func (c *Config) Policy() domain.Policy {
	return domain.Policy{
		AckTimeout:          c.AckTimeout,
		HeartbeatInterval:   c.HeartbeatInterval,
		MaxMessageSize:      c.MaxMessageSize,
		MessageRateLimit:    c.RateLimit,
		MessageRateInterval: c.RateInterval,
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt64 sets an int64 value if positive and flag not changed.
func (s *configSetter) setInt64(flag string, value int64, dst *int64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setInt64FromString parses a string to int64 and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}
