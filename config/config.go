// Package config loads the full tradecore configuration: defaults, then an
// optional YAML file, then TRADECORE_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/evdnx/tradecore/api"
	"github.com/evdnx/tradecore/decision"
	"github.com/evdnx/tradecore/engine"
	"github.com/evdnx/tradecore/notify"
	"github.com/evdnx/tradecore/order"
	"github.com/evdnx/tradecore/params"
	"github.com/evdnx/tradecore/quality"
	"github.com/evdnx/tradecore/risk"
	"github.com/evdnx/tradecore/session"
	"github.com/evdnx/tradecore/snapshot"
	"github.com/evdnx/tradecore/strategy"
	"github.com/evdnx/tradecore/structure"
	"github.com/evdnx/tradecore/tradelog"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "TRADECORE_"

// Log selects the logger level and encoding.
type Log struct {
	Level    string `yaml:"level" env:"LEVEL, overwrite" default:"info" validate:"oneof=debug info warn error"`
	Encoding string `yaml:"encoding" env:"ENCODING, overwrite" default:"json" validate:"oneof=json console"`
}

// Paper configures the simulated market and the paper account.
type Paper struct {
	Seed     int64   `yaml:"seed" env:"SEED, overwrite" default:"1"`
	History  int     `yaml:"history" default:"300" validate:"gte=50"`
	Balance  float64 `yaml:"balance" env:"BALANCE, overwrite" default:"10000" validate:"gt=0"`
	Currency string  `yaml:"currency" env:"CURRENCY, overwrite" default:"USD" validate:"len=3"`
	Leverage float64 `yaml:"leverage" default:"100" validate:"gt=0"`
}

// Config is the root configuration.
type Config struct {
	Log       Log              `yaml:"log" env:", prefix=LOG_"`
	Engine    engine.Config    `yaml:"engine" env:", prefix=ENGINE_"`
	Risk      risk.Config      `yaml:"risk"`
	Gate      order.GateConfig `yaml:"gate"`
	Decision  decision.Config  `yaml:"decision"`
	Sessions  session.Config   `yaml:"sessions"`
	Strategy  strategy.Config  `yaml:"strategy"`
	Quality   quality.Config   `yaml:"quality"`
	Structure structure.Config `yaml:"structure"`

	// Params seeds the parameter source. When ParamsFile is set the file
	// is re-read on change and Params is the fallback.
	Params     params.Params `yaml:"params"`
	ParamsFile string        `yaml:"params_file" env:"PARAMS_FILE, overwrite"`

	Paper    Paper           `yaml:"paper" env:", prefix=PAPER_"`
	Notify   notify.Config   `yaml:"notify" env:", prefix=NOTIFY_"`
	TradeLog tradelog.Config `yaml:"tradelog" env:", prefix=TRADELOG_"`
	Snapshot snapshot.Config `yaml:"snapshot" env:", prefix=SNAPSHOT_"`
	API      api.Config      `yaml:"api" env:", prefix=API_"`
}

// Default returns the configuration with every default applied.
func Default() (*Config, error) {
	cfg := &Config{
		Engine:    engine.DefaultConfig("EURUSD"),
		Risk:      risk.DefaultConfig(),
		Decision:  decision.DefaultConfig(),
		Sessions:  session.DefaultConfig(),
		Strategy:  strategy.DefaultConfig(),
		Quality:   quality.DefaultConfig(),
		Structure: structure.DefaultConfig(),
		Params:    params.Default(),
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return cfg, nil
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(ctx context.Context, path string) (*Config, error) {
	return load(ctx, path, envconfig.OsLookuper())
}

func load(ctx context.Context, path string, env envconfig.Lookuper) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: envconfig.PrefixLookuper(EnvPrefix, env),
	}); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate runs the struct tag rules and the cross-field checks they
// cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	if err := c.Params.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("params: %w", err))
	}
	if c.Notify.Backend == "nats" && c.Notify.NATS.URL == "" {
		errs = append(errs, errors.New("notify: nats backend needs a url"))
	}
	if c.TradeLog.Kafka.Enabled && len(c.TradeLog.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("tradelog: kafka needs at least one broker"))
	}
	if c.TradeLog.ClickHouse.Enabled && c.TradeLog.ClickHouse.DSN == "" {
		errs = append(errs, errors.New("tradelog: clickhouse needs a dsn"))
	}
	if c.TradeLog.File.Enabled && c.TradeLog.File.Path == "" {
		errs = append(errs, errors.New("tradelog: file sink needs a path"))
	}
	if c.Snapshot.Redis.Enabled && c.Snapshot.Redis.Addr == "" {
		errs = append(errs, errors.New("snapshot: redis needs an address"))
	}
	if c.Engine.Bars > c.Paper.History {
		errs = append(errs, fmt.Errorf("engine: %d bars requested but the simulator keeps %d", c.Engine.Bars, c.Paper.History))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
