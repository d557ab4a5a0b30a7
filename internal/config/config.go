// Package config loads process configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config carries the runtime settings for the demo binary.
type Config struct {
	// Driver selects the persistence adapter: "memory" or "sqlite".
	Driver string `env:"UNITCORE_DRIVER" envDefault:"memory"`
	// SQLitePath is the entity database path when Driver is "sqlite".
	SQLitePath string `env:"UNITCORE_SQLITE_PATH" envDefault:"unitcore.db"`
	// EventLogPath is the SQLite event journal path. Empty disables the
	// journal and events are kept in memory only.
	EventLogPath string `env:"UNITCORE_EVENTLOG_PATH" envDefault:"unitcore-events.db"`
	// ArchiveBackend selects the post-commit batch archive: "fs", "s3" or
	// empty to disable archiving.
	ArchiveBackend string `env:"UNITCORE_ARCHIVE_BACKEND" envDefault:"fs"`
	// ArchiveDir is the filesystem archive root when ArchiveBackend is "fs".
	ArchiveDir string `env:"UNITCORE_ARCHIVE_DIR" envDefault:"./archivedata"`
	// MetricsAddr is the Prometheus listen address. Empty disables the
	// metrics endpoint.
	MetricsAddr string `env:"UNITCORE_METRICS_ADDR" envDefault:":9153"`
	// LogLevel is the minimum slog level: debug, info, warn, error.
	LogLevel string `env:"UNITCORE_LOG_LEVEL" envDefault:"info"`
}

// Load parses configuration from the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.Driver {
	case "memory", "sqlite":
	default:
		return Config{}, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
	switch cfg.ArchiveBackend {
	case "", "fs", "s3":
	default:
		return Config{}, fmt.Errorf("unknown archive backend %q", cfg.ArchiveBackend)
	}
	return cfg, nil
}

// SlogLevel maps the configured level string to a slog.Level.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
