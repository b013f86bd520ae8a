package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (EVLINK_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("listen", os.Getenv("EVLINK_LISTEN_ADDR"), &cfg.ListenAddr)
	s.setString("path", os.Getenv("EVLINK_PATH"), &cfg.Path)
	s.setString("url", os.Getenv("EVLINK_URL"), &cfg.URL)
	s.setString("log-level", os.Getenv("EVLINK_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("ack-timeout", os.Getenv("EVLINK_ACK_TIMEOUT"), &cfg.AckTimeout); err != nil {
		return err
	}
	if err := s.setDuration("heartbeat", os.Getenv("EVLINK_HEARTBEAT_INTERVAL"), &cfg.HeartbeatInterval); err != nil {
		return err
	}
	if err := s.setDuration("rate-interval", os.Getenv("EVLINK_RATE_INTERVAL"), &cfg.RateInterval); err != nil {
		return err
	}
	if err := s.setDuration("write-timeout", os.Getenv("EVLINK_WRITE_TIMEOUT"), &cfg.WriteTimeout); err != nil {
		return err
	}

	if err := s.setInt64FromString("max-message-size", os.Getenv("EVLINK_MAX_MESSAGE_SIZE"), &cfg.MaxMessageSize); err != nil {
		return err
	}
	if err := s.setIntFromString("rate-limit", os.Getenv("EVLINK_RATE_LIMIT"), &cfg.RateLimit); err != nil {
		return err
	}

	return nil
}
