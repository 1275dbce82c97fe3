package config

import "time"

// Built-in defaults. The outage threshold is the five-minute window after
// which a continuously unreachable backend triggers a hard session reset.
const (
	DefaultReadyDelay         = 500 * time.Millisecond
	DefaultProbeTimeout       = 5 * time.Second
	DefaultOutageThreshold    = 5 * time.Minute
	DefaultOutagePollInterval = 15 * time.Second
	DefaultTransientNoticeTTL = 8 * time.Second
)

// Default returns the built-in configuration. User YAML is merged on top.
func Default() *Config {
	return &Config{
		Relay: &RelayConfig{
			WSURL:        "ws://localhost:8000/ws",
			HealthURL:    "http://localhost:8000/health",
			DialTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			DialAttempts: 2,
			ReadLimit:    1 << 20,
			Backoff: &BackoffConfig{
				Initial:    500 * time.Millisecond,
				Multiplier: 2.0,
				Max:        5 * time.Second,
				Jitter:     true,
			},
		},
		Session: &SessionConfig{
			Source:             "relaylink",
			ReadyDelay:         DefaultReadyDelay,
			ProbeTimeout:       DefaultProbeTimeout,
			OutageThreshold:    DefaultOutageThreshold,
			OutagePollInterval: DefaultOutagePollInterval,
		},
		Notices: &NoticesConfig{
			TransientTTL: DefaultTransientNoticeTTL,
			Max:          100,
		},
		Ledger: &LedgerConfig{
			Enabled:   false,
			QueueSize: 256,
		},
		Retention: DefaultRetentionConfig(),
		API: &APIConfig{
			ListenAddr: "127.0.0.1:8090",
		},
		Logging: &LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
