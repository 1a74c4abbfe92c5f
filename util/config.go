// Package util holds host-side configuration for the runtime.
package util

import (
	"log/slog"
	"strings"

	"github.com/BurntSushi/toml"
)

// Configuration bounds one interpreter instance. Zero limits disable the
// corresponding check.
type Configuration struct {
	// MaxSteps caps the number of statements a program may execute.
	MaxSteps int64 `toml:"max_steps"`
	// MaxCallDepth caps call nesting, counting native re-entry.
	MaxCallDepth int `toml:"max_call_depth"`
	// LogLevel is one of trace, debug, info, warn, error, none.
	LogLevel string `toml:"log_level"`
}

func DefaultConfiguration() Configuration {
	return Configuration{
		MaxSteps:     0,
		MaxCallDepth: 200,
		LogLevel:     "none",
	}
}

// LoadConfiguration reads a TOML file over the defaults. Keys absent from
// the file keep their default values.
func LoadConfiguration(path string) (Configuration, error) {
	cfg := DefaultConfiguration()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// SlogLevel maps the configured level name onto log/slog. Unknown names and
// "none" log errors only.
func (c Configuration) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
