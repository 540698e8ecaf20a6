// Package config reads process configuration from the environment. Command
// line flags are layered on top by the cli package.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"arborescence/internal/drag"
)

type Config struct {
	// Port is where `arbo serve` listens.
	Port string

	// DB is a SQLite file path or a postgres:// DSN.
	DB string

	// ServerURL switches the client commands and the TUI to a remote service.
	ServerURL string
	APIKey    string

	// Redis snapshot cache for `arbo serve`; empty disables it.
	RedisURL string
	CacheTTL time.Duration

	Format   string
	LogLevel string
	LogFile  string
	NoColor  bool

	// MinDragDistance is in terminal cells.
	MinDragDistance float64

	ClientTimeout   time.Duration
	ShutdownTimeout time.Duration
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8091"),

		DB: envOr("ARBO_DB", defaultDBPath()),

		ServerURL: os.Getenv("ARBO_SERVER"),
		APIKey:    os.Getenv("ARBO_API_KEY"),

		RedisURL: os.Getenv("REDIS_URL"),
		CacheTTL: envDuration("ARBO_CACHE_TTL", 10*time.Minute),

		Format:   envOr("ARBO_FORMAT", "json"),
		LogLevel: envOr("ARBO_LOG_LEVEL", "info"),
		LogFile:  os.Getenv("ARBO_LOG_FILE"),
		NoColor:  os.Getenv("NO_COLOR") != "" || envBool("ARBO_NO_COLOR", false),

		MinDragDistance: envFloat("ARBO_DRAG_DISTANCE", drag.DefaultMinDistance),

		ClientTimeout:   envDuration("ARBO_CLIENT_TIMEOUT", 30*time.Second),
		ShutdownTimeout: envDuration("ARBO_SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.MinDragDistance <= 0 {
		cfg.MinDragDistance = drag.DefaultMinDistance
	}
	if cfg.ClientTimeout <= 0 {
		cfg.ClientTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	return cfg
}

func (c Config) Validate() error {
	switch c.Format {
	case "json", "outline":
	default:
		return fmt.Errorf("unknown format: %q (want json or outline)", c.Format)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if strings.TrimSpace(c.ServerURL) == "" && strings.TrimSpace(c.DB) == "" {
		return fmt.Errorf("either a server URL or a database is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port: %q", c.Port)
	}
	return nil
}

// Postgres reports whether DB names a postgres database rather than a file.
func (c Config) Postgres() bool {
	return strings.HasPrefix(c.DB, "postgres://") || strings.HasPrefix(c.DB, "postgresql://")
}

func ParseLogLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level: %q", s)
	}
	return lvl, nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "arbo.sqlite"
	}
	return filepath.Join(home, ".arbo", "arbo.sqlite")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
