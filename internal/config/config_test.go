package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRecoveryAttempts != 3 {
		t.Errorf("MaxRecoveryAttempts = %d, want 3", cfg.MaxRecoveryAttempts)
	}
	if cfg.MaxPlanSteps != 20 {
		t.Errorf("MaxPlanSteps = %d, want 20", cfg.MaxPlanSteps)
	}
	if cfg.MaxReplans != 2 {
		t.Errorf("MaxReplans = %d, want 2", cfg.MaxReplans)
	}
	if cfg.SnapshotDir == "" || cfg.LogDir == "" {
		t.Error("default directories must be set")
	}
	if !cfg.History.Enabled || cfg.History.DBPath == "" {
		t.Errorf("history defaults = %+v", cfg.History)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxRecoveryAttempts != 3 {
		t.Errorf("missing file should yield defaults, got %+v", cfg)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
max_recovery_attempts: 5
log_level: debug
history:
  enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxRecoveryAttempts != 5 {
		t.Errorf("MaxRecoveryAttempts = %d, want 5", cfg.MaxRecoveryAttempts)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.History.Enabled {
		t.Error("history should be disabled by the file")
	}
	// Untouched fields keep their defaults.
	if cfg.MaxPlanSteps != 20 {
		t.Errorf("MaxPlanSteps = %d, want default 20", cfg.MaxPlanSteps)
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("max_plan_steps: [oops"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"negative recovery attempts", func(c *Config) { c.MaxRecoveryAttempts = -1 }, true},
		{"zero plan steps", func(c *Config) { c.MaxPlanSteps = 0 }, true},
		{"negative replans", func(c *Config) { c.MaxReplans = -1 }, true},
		{"empty snapshot dir", func(c *Config) { c.SnapshotDir = "" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"empty log level allowed", func(c *Config) { c.LogLevel = "" }, false},
		{"history enabled without path", func(c *Config) { c.History.DBPath = "" }, true},
		{"history disabled without path", func(c *Config) { c.History.Enabled = false; c.History.DBPath = "" }, false},
		{"negative keep days", func(c *Config) { c.History.KeepDays = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
