package config

import "time"

// Config is the umbrella configuration object returned by Initialize and
// passed to every component at startup.
type Config struct {
	configDir string // Configuration directory path (for reference)

	Relay     *RelayConfig     `yaml:"relay"`
	Session   *SessionConfig   `yaml:"session"`
	Notices   *NoticesConfig   `yaml:"notices"`
	Ledger    *LedgerConfig    `yaml:"ledger"`
	Retention *RetentionConfig `yaml:"retention"`
	API       *APIConfig       `yaml:"api"`
	Logging   *LoggingConfig   `yaml:"logging"`
}

// RelayConfig describes how to reach the relay server.
type RelayConfig struct {
	// WSURL is the realtime endpoint, e.g. ws://localhost:8000/ws.
	WSURL string `yaml:"ws_url"`

	// HealthURL is the plain HTTP liveness endpoint. Any 2xx is healthy.
	HealthURL string `yaml:"health_url"`

	// HealthGRPCAddr optionally adds a grpc.health.v1 probe (host:port).
	// When both are set the relay counts as healthy only if both pass.
	HealthGRPCAddr string `yaml:"health_grpc_addr"`

	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// DialAttempts bounds a single connect call. The default of 2 means one
	// retry; further attempts need a fresh healthy probe.
	DialAttempts int `yaml:"dial_attempts"`

	// ReadLimit is the maximum inbound frame size in bytes.
	ReadLimit int64 `yaml:"read_limit"`

	Backoff *BackoffConfig `yaml:"backoff"`
}

// BackoffConfig defines the delay between dial attempts.
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial"`
	Multiplier float64       `yaml:"multiplier"`
	Max        time.Duration `yaml:"max"`
	Jitter     bool          `yaml:"jitter"`
}

// SessionConfig holds the connection state machine timings.
type SessionConfig struct {
	// Source is stamped into every outbound envelope's metadata.
	Source string `yaml:"source"`

	// ReadyDelay defers the client-ready signal after a session is created.
	ReadyDelay time.Duration `yaml:"ready_delay"`

	// ProbeTimeout bounds a single health probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// OutageThreshold is how long the backend must be continuously
	// unreachable before the session is hard-reset.
	OutageThreshold time.Duration `yaml:"outage_threshold"`

	// OutagePollInterval is how often the outage watch probes.
	OutagePollInterval time.Duration `yaml:"outage_poll_interval"`
}

// NoticesConfig controls user-facing notices.
type NoticesConfig struct {
	TransientTTL time.Duration `yaml:"transient_ttl"`
	Max          int           `yaml:"max"`
}

// LedgerConfig controls the command/transition ledger.
type LedgerConfig struct {
	// Enabled switches the ledger from memory to PostgreSQL (DB_* env vars).
	Enabled   bool `yaml:"enabled"`
	QueueSize int  `yaml:"queue_size"`
}

// APIConfig controls the local control API.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	// CORSOrigins lists browser origins allowed to call the API. Empty
	// disables CORS handling.
	CORSOrigins []string `yaml:"cors_origins"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}
