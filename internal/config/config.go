// Package config loads host configuration from YAML with environment
// variable overrides. Engine inputs stay plain arguments; only the hosts
// (server and CLIs) are configured here.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the strategy-lab hosts.
type Config struct {
	Server     Server     `yaml:"server"`
	Storage    Storage    `yaml:"storage"`
	Logging    Logging    `yaml:"logging"`
	Simulation Simulation `yaml:"simulation"`
}

// Server holds network listener configuration.
type Server struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Storage selects the store backends. With UseMemory set, both DSNs are
// ignored and in-memory stores are used.
type Storage struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
	UseMemory     bool   `yaml:"use_memory"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// Simulation holds host-side batch limits and defaults.
type Simulation struct {
	Workers       int   `yaml:"workers"`        // 0 means one per CPU
	DefaultSeed   int64 `yaml:"default_seed"`   // used when a request omits the seed
	MaxIterations int   `yaml:"max_iterations"` // 0 means unlimited
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:        ":8080",
			MetricsAddr: ":9090",
		},
		Storage: Storage{UseMemory: true},
		Logging: Logging{Level: "info", Format: "json"},
		Simulation: Simulation{
			DefaultSeed:   42,
			MaxIterations: 100000,
		},
	}
}

// Load reads the YAML configuration file at the given path over the
// defaults, then applies environment variable overrides. An empty path skips
// the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
		cfg.Storage.UseMemory = false
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.Storage.ClickhouseDSN = v
		cfg.Storage.UseMemory = false
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// NewLogger builds a slog logger from the logging configuration.
func (l Logging) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.slogLevel()}
	if strings.EqualFold(l.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func (l Logging) slogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
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
