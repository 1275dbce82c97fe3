package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the merged configuration. It stops at the first error.
func (c *Config) Validate() error {
	if err := c.validateRelay(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	if err := c.validateSession(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	if err := c.validateMisc(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	return nil
}

func (c *Config) validateRelay() error {
	r := c.Relay
	if r == nil {
		return NewValidationError("relay", "", ErrMissingRequiredField)
	}
	if r.WSURL == "" {
		return NewValidationError("relay", "ws_url", ErrMissingRequiredField)
	}
	u, err := url.Parse(r.WSURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return NewValidationError("relay", "ws_url", fmt.Errorf("%w: %q must be a ws:// or wss:// URL", ErrInvalidValue, r.WSURL))
	}
	if r.HealthURL == "" && r.HealthGRPCAddr == "" {
		return NewValidationError("relay", "health_url", fmt.Errorf("%w: health_url or health_grpc_addr required", ErrMissingRequiredField))
	}
	if r.HealthURL != "" {
		hu, err := url.Parse(r.HealthURL)
		if err != nil || (hu.Scheme != "http" && hu.Scheme != "https") || hu.Host == "" {
			return NewValidationError("relay", "health_url", fmt.Errorf("%w: %q must be an http(s) URL", ErrInvalidValue, r.HealthURL))
		}
	}
	if r.DialAttempts < 1 {
		return NewValidationError("relay", "dial_attempts", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if r.DialTimeout <= 0 {
		return NewValidationError("relay", "dial_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if r.Backoff != nil && r.Backoff.Multiplier < 1.0 {
		return NewValidationError("relay", "backoff.multiplier", fmt.Errorf("%w: must be >= 1.0", ErrInvalidValue))
	}
	return nil
}

func (c *Config) validateSession() error {
	s := c.Session
	if s == nil {
		return NewValidationError("session", "", ErrMissingRequiredField)
	}
	if s.ReadyDelay < 0 {
		return NewValidationError("session", "ready_delay", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if s.ProbeTimeout <= 0 {
		return NewValidationError("session", "probe_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if s.OutagePollInterval <= 0 {
		return NewValidationError("session", "outage_poll_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if s.OutageThreshold < s.OutagePollInterval {
		return NewValidationError("session", "outage_threshold",
			fmt.Errorf("%w: must be at least outage_poll_interval (%s)", ErrInvalidValue, s.OutagePollInterval))
	}
	return nil
}

func (c *Config) validateMisc() error {
	if c.Notices != nil && c.Notices.TransientTTL <= 0 {
		return NewValidationError("notices", "transient_ttl", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if c.Ledger != nil && c.Ledger.QueueSize <= 0 {
		return NewValidationError("ledger", "queue_size", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if r := c.Retention; r != nil {
		if r.CommandTTL <= 0 {
			return NewValidationError("retention", "command_ttl", fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
		if r.TransitionTTL <= 0 {
			return NewValidationError("retention", "transition_ttl", fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
		if r.CleanupInterval <= 0 {
			return NewValidationError("retention", "cleanup_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
	}
	if c.Logging != nil {
		switch strings.ToLower(c.Logging.Level) {
		case "debug", "info", "warn", "error":
		default:
			return NewValidationError("logging", "level", fmt.Errorf("%w: %q", ErrInvalidValue, c.Logging.Level))
		}
		switch strings.ToLower(c.Logging.Format) {
		case "text", "json":
		default:
			return NewValidationError("logging", "format", fmt.Errorf("%w: %q", ErrInvalidValue, c.Logging.Format))
		}
	}
	return nil
}
