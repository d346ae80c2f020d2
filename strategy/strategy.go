package strategy

import (
	"fmt"

	"github.com/evdnx/tradecore/indicator"
	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/session"
	"github.com/evdnx/tradecore/types"
)

// Input is everything an evaluator sees in one cycle.
type Input struct {
	Instrument types.Instrument
	Snapshot   indicator.Snapshot
	Quote      types.Quote
	Adjustment session.Adjustment
	Spread     SpreadRating
}

// Evaluator scores one indicator snapshot for one strategy. Implementations
// are safe for concurrent use.
type Evaluator interface {
	ID() types.StrategyID
	Evaluate(in Input) types.Signal
}

// Config holds the rule weights of every evaluator.
type Config struct {
	Scalping  ScalpingConfig  `yaml:"scalping"`
	HFT       HFTConfig       `yaml:"hft"`
	Intraday  IntradayConfig  `yaml:"intraday"`
	Arbitrage ArbitrageConfig `yaml:"arbitrage"`
	Spread    SpreadTable     `yaml:"spread"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		Scalping:  DefaultScalpingConfig(),
		HFT:       DefaultHFTConfig(),
		Intraday:  DefaultIntradayConfig(),
		Arbitrage: DefaultArbitrageConfig(),
		Spread:    DefaultSpreadTable(),
	}
}

// New builds the evaluator for id.
func New(id types.StrategyID, cfg Config, log logger.Logger) (Evaluator, error) {
	if log == nil {
		log = logger.NewNop()
	}
	base := newBase(id, log)
	switch id {
	case types.Scalping:
		return &Scalping{base: base, cfg: cfg.Scalping}, nil
	case types.HFT:
		return newHFT(base, cfg.HFT), nil
	case types.Intraday:
		return &Intraday{base: base, cfg: cfg.Intraday}, nil
	case types.Arbitrage:
		return &Arbitrage{base: base, cfg: cfg.Arbitrage}, nil
	}
	return nil, fmt.Errorf("strategy: unknown id %d", int(id))
}

// NewAll builds one evaluator per strategy.
func NewAll(cfg Config, log logger.Logger) (map[types.StrategyID]Evaluator, error) {
	out := make(map[types.StrategyID]Evaluator, 4)
	for _, id := range types.AllStrategies() {
		ev, err := New(id, cfg, log)
		if err != nil {
			return nil, err
		}
		out[id] = ev
	}
	return out, nil
}
