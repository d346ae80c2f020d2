package strategy

import (
	"fmt"

	"github.com/evdnx/tradecore/indicator"
	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/order"
	"github.com/evdnx/tradecore/types"
)

// base bundles what every evaluator shares.
type base struct {
	id  types.StrategyID
	log logger.Logger
}

func newBase(id types.StrategyID, log logger.Logger) base {
	return base{id: id, log: logger.With(log, logger.String("strategy", id.String()))}
}

func (b base) ID() types.StrategyID { return b.id }

// prepare returns an empty signal for the evaluator and a snapshot with
// every missing value replaced by its neutral default.
func (b base) prepare(in Input) (types.Signal, indicator.Snapshot, float64) {
	sig := types.Signal{Strategy: b.id}
	snap := in.Snapshot.Neutral()
	pip := order.PipSize(in.Instrument)
	if pip <= 0 {
		pip = snap.Point
	}
	return sig, snap, pip
}

// finish logs the outcome at debug level.
func (b base) finish(in Input, sig types.Signal) types.Signal {
	b.log.Debug("signal_evaluated",
		logger.String("symbol", in.Instrument.Symbol),
		logger.Float64("buy_score", sig.BuyScore),
		logger.Float64("sell_score", sig.SellScore),
		logger.String("spread", in.Spread.String()),
		logger.Strings("reasons", sig.Reasons),
	)
	return sig
}

// candleDir is +1 for a bullish bar, -1 for a bearish one and 0 for a doji.
func candleDir(s indicator.Snapshot) int {
	switch {
	case s.Close > s.Open:
		return 1
	case s.Close < s.Open:
		return -1
	}
	return 0
}

func pips(v float64) string { return fmt.Sprintf("%.1f", v) }
