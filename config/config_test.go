package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/evdnx/tradecore/order"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tradecore.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func noEnv() envconfig.Lookuper { return envconfig.MapLookuper(map[string]string{}) }

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := load(context.Background(), "", noEnv())
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if cfg.Engine.Strategy != "scalping" || len(cfg.Engine.Symbols) != 1 {
		t.Fatalf("unexpected engine defaults %+v", cfg.Engine)
	}
	if cfg.Gate.MinInterval != time.Minute || !cfg.Gate.RetryWithoutStops {
		t.Fatalf("gate defaults not applied: %+v", cfg.Gate)
	}
	if cfg.Notify.Backend != "log" || cfg.API.Addr != ":8080" {
		t.Fatalf("notify/api defaults not applied")
	}
	if !cfg.TradeLog.File.Enabled || cfg.TradeLog.Kafka.Enabled {
		t.Fatalf("only the file trade log should be on by default")
	}
	if cfg.Params.MaxPositions != 5 || cfg.Params.Strategies.Scalping.SL.Unit != order.Pips {
		t.Fatalf("params defaults not applied: %+v", cfg.Params)
	}
}

func TestFileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
engine:
  strategy: intraday
  symbols: [EURUSD, GBPUSD]
  liquidate_on_stop: true
gate:
  retry_without_stops: false
risk:
  max_drawdown: 0.08
params:
  max_positions: 2
`)
	cfg, err := load(context.Background(), path, noEnv())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.Strategy != "intraday" || len(cfg.Engine.Symbols) != 2 || !cfg.Engine.LiquidateOnStop {
		t.Fatalf("engine section not applied: %+v", cfg.Engine)
	}
	if cfg.Gate.RetryWithoutStops {
		t.Fatalf("explicit false must survive defaults")
	}
	if cfg.Risk.MaxDrawdown != 0.08 || cfg.Risk.MaxDailyLoss != 0.05 {
		t.Fatalf("risk merge wrong: %+v", cfg.Risk)
	}
	if cfg.Params.MaxPositions != 2 || cfg.Params.Strategies.HFT.Lot != 0.01 {
		t.Fatalf("params merge wrong: %+v", cfg.Params)
	}
	if cfg.Engine.CallTimeout != 5*time.Second {
		t.Fatalf("unset fields must keep defaults, got %v", cfg.Engine.CallTimeout)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "engine:\n  strategy: intraday\n")
	env := envconfig.MapLookuper(map[string]string{
		"TRADECORE_ENGINE_STRATEGY":        "hft",
		"TRADECORE_ENGINE_SYMBOLS":         "XAUUSD,BTCUSD",
		"TRADECORE_LOG_LEVEL":              "debug",
		"TRADECORE_API_ADDR":               ":9090",
		"TRADECORE_TRADELOG_KAFKA_ENABLED": "true",
		"TRADECORE_TRADELOG_KAFKA_BROKERS": "k1:9092,k2:9092",
		"TRADECORE_SNAPSHOT_REDIS_ADDR":    "redis:6379",
		"TRADECORE_NOTIFY_BACKEND":         "nats",
		"TRADECORE_NOTIFY_NATS_URL":        "nats://nats:4222",
		"TRADECORE_PAPER_BALANCE":          "2500",
	})
	cfg, err := load(context.Background(), path, env)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.Strategy != "hft" {
		t.Fatalf("env must win over file, got %q", cfg.Engine.Strategy)
	}
	if strings.Join(cfg.Engine.Symbols, ",") != "XAUUSD,BTCUSD" {
		t.Fatalf("symbols = %v", cfg.Engine.Symbols)
	}
	if cfg.Log.Level != "debug" || cfg.API.Addr != ":9090" || cfg.Paper.Balance != 2500 {
		t.Fatalf("env not applied: log=%+v api=%q balance=%v", cfg.Log, cfg.API.Addr, cfg.Paper.Balance)
	}
	if !cfg.TradeLog.Kafka.Enabled || len(cfg.TradeLog.Kafka.Brokers) != 2 {
		t.Fatalf("kafka env not applied: %+v", cfg.TradeLog.Kafka)
	}
	if cfg.Snapshot.Redis.Addr != "redis:6379" || cfg.Notify.NATS.URL != "nats://nats:4222" {
		t.Fatalf("nested prefixes not applied")
	}
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := load(ctx, filepath.Join(t.TempDir(), "missing.yaml"), noEnv()); err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("expected read error, got %v", err)
	}
	if _, err := load(ctx, writeFile(t, "engine: [broken"), noEnv()); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
	if _, err := load(ctx, writeFile(t, "engine:\n  strategy: martingale\n"), noEnv()); err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCrossFieldValidation(t *testing.T) {
	cases := map[string]func(c *Config){
		"kafka":      func(c *Config) { c.TradeLog.Kafka.Enabled = true },
		"nats":       func(c *Config) { c.Notify.Backend = "nats"; c.Notify.NATS.URL = "" },
		"simulator":  func(c *Config) { c.Engine.Bars = 400 },
		"lot":        func(c *Config) { c.Params.Strategies.Intraday.Lot = 0 },
		"clickhouse": func(c *Config) { c.TradeLog.ClickHouse.Enabled = true; c.TradeLog.ClickHouse.DSN = "" },
	}
	for name, mutate := range cases {
		cfg, err := Default()
		if err != nil {
			t.Fatalf("default: %v", err)
		}
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
