package util

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfiguration(t *testing.T) {
	cfg := DefaultConfiguration()
	if cfg.MaxSteps != 0 {
		t.Errorf("default MaxSteps = %d, want 0 (unlimited)", cfg.MaxSteps)
	}
	if cfg.MaxCallDepth != 200 {
		t.Errorf("default MaxCallDepth = %d, want 200", cfg.MaxCallDepth)
	}
}

func TestLoadConfiguration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.toml")
	content := []byte("max_steps = 5000\nlog_level = \"debug\"\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.MaxSteps != 5000 {
		t.Errorf("MaxSteps = %d, want 5000", cfg.MaxSteps)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want \"debug\"", cfg.LogLevel)
	}
	// keys absent from the file keep their defaults
	if cfg.MaxCallDepth != 200 {
		t.Errorf("MaxCallDepth = %d, want the default 200", cfg.MaxCallDepth)
	}
}

func TestLoadConfigurationMissingFile(t *testing.T) {
	if _, err := LoadConfiguration(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Errorf("loading a missing file should fail")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"trace", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"none", slog.LevelError},
		{"", slog.LevelError},
	}
	for _, tt := range tests {
		cfg := Configuration{LogLevel: tt.level}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
