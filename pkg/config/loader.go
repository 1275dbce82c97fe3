package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up inside the config directory.
const FileName = "relaylink.yaml"

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load relaylink.yaml from configDir (missing file means built-in defaults)
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user values over the built-in defaults
//  5. Validate
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"ws_url", cfg.Relay.WSURL,
		"health_url", cfg.Relay.HealthURL,
		"outage_threshold", cfg.Session.OutageThreshold,
		"ledger_enabled", cfg.Ledger.Enabled)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	user, err := loader.loadRelaylinkYAML()
	if err != nil {
		if !errors.Is(err, ErrConfigNotFound) {
			return nil, NewLoadError(FileName, err)
		}
		slog.Warn("No configuration file found, using built-in defaults",
			"path", filepath.Join(configDir, FileName))
		user = &Config{}
	}

	cfg, err := Merge(Default(), user)
	if err != nil {
		return nil, NewLoadError(FileName, err)
	}
	cfg.configDir = configDir
	return cfg, nil
}

// Merge overlays the non-zero values of user onto base, section by section.
// base is modified and returned. Like any mergo merge, a zero value in user
// (false, 0, "") cannot override a non-zero default.
func Merge(base, user *Config) (*Config, error) {
	if user == nil {
		return base, nil
	}
	if user.Relay != nil {
		backoff := base.Relay.Backoff
		if err := mergo.Merge(base.Relay, user.Relay, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge relay config: %w", err)
		}
		if user.Relay.Backoff != nil {
			if err := mergo.Merge(backoff, user.Relay.Backoff, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("failed to merge backoff config: %w", err)
			}
		}
		base.Relay.Backoff = backoff
	}
	if user.Session != nil {
		if err := mergo.Merge(base.Session, user.Session, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge session config: %w", err)
		}
	}
	if user.Notices != nil {
		if err := mergo.Merge(base.Notices, user.Notices, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge notices config: %w", err)
		}
	}
	if user.Ledger != nil {
		if err := mergo.Merge(base.Ledger, user.Ledger, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge ledger config: %w", err)
		}
	}
	if user.Retention != nil {
		if err := mergo.Merge(base.Retention, user.Retention, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge retention config: %w", err)
		}
	}
	if user.API != nil {
		if err := mergo.Merge(base.API, user.API, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge api config: %w", err)
		}
	}
	if user.Logging != nil {
		if err := mergo.Merge(base.Logging, user.Logging, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge logging config: %w", err)
		}
	}
	return base, nil
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadRelaylinkYAML() (*Config, error) {
	var cfg Config
	if err := l.loadYAML(FileName, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
