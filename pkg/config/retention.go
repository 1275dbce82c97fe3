package config

import "time"

// RetentionConfig controls how long ledger entries are kept.
type RetentionConfig struct {
	// CommandTTL is the maximum age of a command (and its outcome) before
	// deletion, measured from when it was sent.
	CommandTTL time.Duration `yaml:"command_ttl"`

	// TransitionTTL is the maximum age of a recorded state transition.
	TransitionTTL time.Duration `yaml:"transition_ttl"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		CommandTTL:      7 * 24 * time.Hour,
		TransitionTTL:   30 * 24 * time.Hour,
		CleanupInterval: 1 * time.Hour,
	}
}
