// Package config loads the engine configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Duration decodes YAML strings like "2s" or "24h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Money decodes YAML scalars into an exact decimal.
type Money struct {
	decimal.Decimal
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *Money) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := decimal.NewFromString(value.Value)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", value.Value, err)
	}
	m.Decimal = parsed
	return nil
}

// Config is the top-level configuration for the trade engine.
type Config struct {
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
	Trading Trading `yaml:"trading"`
	Feed    Feed    `yaml:"feed"`
	Logging Logging `yaml:"logging"`
}

// Server holds network listener configuration.
type Server struct {
	Port int `yaml:"port"`
}

// Storage selects the persistence backend. With an empty DatabaseURL the
// engine runs on the in-memory store; RedisURL adds the read-through
// cache in front of PostgreSQL.
type Storage struct {
	DatabaseURL string   `yaml:"database_url"`
	RedisURL    string   `yaml:"redis_url"`
	CacheTTL    Duration `yaml:"cache_ttl"`
}

// Trading defines simulation parameters. A zero OrderTTL disables order
// expiry.
type Trading struct {
	StartingCash Money    `yaml:"starting_cash"`
	OrderTTL     Duration `yaml:"order_ttl"`
	EvalInterval Duration `yaml:"eval_interval"`
	HistoryBars  int      `yaml:"history_bars"`
}

// Feed configures the synthetic price source.
type Feed struct {
	Symbols []string `yaml:"symbols"`
	Seed    int64    `yaml:"seed"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: Server{Port: 8080},
		Storage: Storage{
			CacheTTL: Duration(30 * time.Second),
		},
		Trading: Trading{
			StartingCash: Money{decimal.NewFromInt(10000)},
			EvalInterval: Duration(2 * time.Second),
			HistoryBars:  60,
		},
		Feed: Feed{
			Symbols: []string{"INFY", "TCS", "WIPRO", "HDFC", "RELIANCE"},
			Seed:    1,
		},
		Logging: Logging{Level: "info"},
	}
}

// Load reads the YAML configuration file at the given path, parses it on
// top of the defaults, and applies environment variable overrides. An
// empty path skips the file and uses defaults plus environment.
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

	if cfg.Trading.StartingCash.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("starting_cash must be positive, got %s", cfg.Trading.StartingCash)
	}
	if cfg.Trading.EvalInterval.Std() <= 0 {
		return nil, fmt.Errorf("eval_interval must be positive, got %s", cfg.Trading.EvalInterval.Std())
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Storage.RedisURL = v
	}

	if v := os.Getenv("STARTING_CASH"); v != "" {
		if cash, err := decimal.NewFromString(v); err == nil {
			cfg.Trading.StartingCash = Money{cash}
		}
	}
	if v := os.Getenv("ORDER_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			cfg.Trading.OrderTTL = Duration(ttl)
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
