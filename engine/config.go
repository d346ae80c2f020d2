package engine

import (
	"time"

	"github.com/evdnx/tradecore/types"
)

// Intervals is the wake period of each strategy.
type Intervals struct {
	Scalping  time.Duration `yaml:"scalping" default:"5s" validate:"gt=0"`
	HFT       time.Duration `yaml:"hft" default:"1s" validate:"gt=0"`
	Intraday  time.Duration `yaml:"intraday" default:"60s" validate:"gt=0"`
	Arbitrage time.Duration `yaml:"arbitrage" default:"15s" validate:"gt=0"`
}

func (iv Intervals) For(id types.StrategyID) time.Duration {
	switch id {
	case types.Scalping:
		return iv.Scalping
	case types.HFT:
		return iv.HFT
	case types.Intraday:
		return iv.Intraday
	case types.Arbitrage:
		return iv.Arbitrage
	}
	return time.Minute
}

// Config tunes the control loop.
type Config struct {
	Strategy  string        `yaml:"strategy" env:"STRATEGY, overwrite" default:"scalping" validate:"oneof=scalping hft intraday arbitrage"`
	Symbols   []string      `yaml:"symbols" env:"SYMBOLS, overwrite" validate:"min=1,dive,required"`
	Timeframe time.Duration `yaml:"timeframe" default:"1m" validate:"gt=0"`
	Bars      int           `yaml:"bars" default:"250" validate:"gte=50"`
	Intervals Intervals     `yaml:"intervals"`

	CallTimeout time.Duration `yaml:"call_timeout" default:"5s" validate:"gt=0"`
	MaxQuoteAge time.Duration `yaml:"max_quote_age" default:"30s" validate:"gte=0"`

	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" default:"10" validate:"gte=1"`
	BackoffBase            time.Duration `yaml:"backoff_base" default:"1s" validate:"gt=0"`
	BackoffMax             time.Duration `yaml:"backoff_max" default:"60s" validate:"gtefield=BackoffBase"`

	HealthInterval time.Duration `yaml:"health_interval" default:"10s" validate:"gt=0"`
	ReconnectBase  time.Duration `yaml:"reconnect_base" default:"1s" validate:"gt=0"`
	ReconnectMax   time.Duration `yaml:"reconnect_max" default:"30s" validate:"gtefield=ReconnectBase"`

	LiquidateOnStop bool          `yaml:"liquidate_on_stop" env:"LIQUIDATE_ON_STOP, overwrite"`
	StopTimeout     time.Duration `yaml:"stop_timeout" default:"15s" validate:"gt=0"`
}

// DefaultConfig is the configuration with every default applied and the
// given symbols.
func DefaultConfig(symbols ...string) Config {
	return Config{
		Strategy:  types.Scalping.String(),
		Symbols:   symbols,
		Timeframe: time.Minute,
		Bars:      250,
		Intervals: Intervals{
			Scalping: 5 * time.Second, HFT: time.Second,
			Intraday: time.Minute, Arbitrage: 15 * time.Second,
		},
		CallTimeout:            5 * time.Second,
		MaxQuoteAge:            30 * time.Second,
		MaxConsecutiveFailures: 10,
		BackoffBase:            time.Second,
		BackoffMax:             time.Minute,
		HealthInterval:         10 * time.Second,
		ReconnectBase:          time.Second,
		ReconnectMax:           30 * time.Second,
		StopTimeout:            15 * time.Second,
	}
}
