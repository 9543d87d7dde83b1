package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tickersim/trade-engine/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port %d, want 8080", cfg.Server.Port)
	}
	if !cfg.Trading.StartingCash.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("starting cash %s, want 10000", cfg.Trading.StartingCash)
	}
	if cfg.Trading.OrderTTL.Std() != 0 {
		t.Errorf("order ttl %s, want disabled", cfg.Trading.OrderTTL.Std())
	}
	if len(cfg.Feed.Symbols) == 0 {
		t.Error("expected default symbols")
	}
}

func TestLoadFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  port: 9090
trading:
  starting_cash: "250000.50"
  order_ttl: 24h
  eval_interval: 5s
feed:
  symbols: [AAA, BBB]
  seed: 7
logging:
  level: debug
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port %d, want 9090", cfg.Server.Port)
	}
	want, _ := decimal.NewFromString("250000.50")
	if !cfg.Trading.StartingCash.Equal(want) {
		t.Errorf("starting cash %s, want 250000.50", cfg.Trading.StartingCash)
	}
	if cfg.Trading.OrderTTL.Std() != 24*time.Hour {
		t.Errorf("ttl %s, want 24h", cfg.Trading.OrderTTL.Std())
	}
	if len(cfg.Feed.Symbols) != 2 || cfg.Feed.Symbols[0] != "AAA" {
		t.Errorf("symbols %v", cfg.Feed.Symbols)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level %s, want debug", cfg.Logging.Level)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("STARTING_CASH", "555")
	t.Setenv("ORDER_TTL", "1h")
	t.Setenv("DATABASE_URL", "postgres://localhost/sim")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port %d, want 7070", cfg.Server.Port)
	}
	if !cfg.Trading.StartingCash.Equal(decimal.NewFromInt(555)) {
		t.Errorf("starting cash %s, want 555", cfg.Trading.StartingCash)
	}
	if cfg.Trading.OrderTTL.Std() != time.Hour {
		t.Errorf("ttl %s, want 1h", cfg.Trading.OrderTTL.Std())
	}
	if cfg.Storage.DatabaseURL == "" {
		t.Error("database url not applied")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("trading:\n  starting_cash: \"-5\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected error for negative starting cash")
	}
}
