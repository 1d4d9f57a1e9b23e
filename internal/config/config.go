// Package config loads Foreman configuration from a YAML file with sane
// defaults for every field.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HistoryConfig configures the execution-history database.
type HistoryConfig struct {
	// Enabled turns on step execution recording
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the history database
	DBPath string `yaml:"db_path"`

	// KeepDays is how many days of history to retain (0 = forever)
	KeepDays int `yaml:"keep_days"`
}

// Config represents foreman configuration options.
type Config struct {
	// MaxRecoveryAttempts bounds the per-phase recovery loop
	MaxRecoveryAttempts int `yaml:"max_recovery_attempts"`

	// MaxPlanSteps caps the number of steps accepted into a plan
	MaxPlanSteps int `yaml:"max_plan_steps"`

	// MaxReplans bounds context-request planning rounds
	MaxReplans int `yaml:"max_replans"`

	// SnapshotDir is where pre-mutation snapshots are persisted
	SnapshotDir string `yaml:"snapshot_dir"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs are written
	LogDir string `yaml:"log_dir"`

	// History contains execution-history configuration
	History HistoryConfig `yaml:"history"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		MaxRecoveryAttempts: 3,
		MaxPlanSteps:        20,
		MaxReplans:          2,
		SnapshotDir:         ".foreman/snapshots",
		LogLevel:            "info",
		LogDir:              ".foreman/logs",
		History: HistoryConfig{
			Enabled: true,
			DBPath:  ".foreman/history.db",
		},
	}
}

// Load reads configuration from path. A missing file yields the defaults;
// a present file is merged over them.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for out-of-range values.
func (c *Config) Validate() error {
	if c.MaxRecoveryAttempts < 0 {
		return fmt.Errorf("max_recovery_attempts cannot be negative")
	}
	if c.MaxPlanSteps <= 0 {
		return fmt.Errorf("max_plan_steps must be positive")
	}
	if c.MaxReplans < 0 {
		return fmt.Errorf("max_replans cannot be negative")
	}
	if c.SnapshotDir == "" {
		return fmt.Errorf("snapshot_dir is required")
	}
	switch c.LogLevel {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("history.db_path is required when history is enabled")
	}
	if c.History.KeepDays < 0 {
		return fmt.Errorf("history.keep_days cannot be negative")
	}
	return nil
}
