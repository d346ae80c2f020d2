package engine

import (
	"fmt"
	"math"

	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/risk"
)

// Report summarises a finished session.
type Report struct {
	Reason       string
	Trades       int
	Wins         int
	Losses       int
	WinRate      float64 // percent
	ProfitFactor float64 // +Inf without losing trades
	RealisedPL   float64
	MaxDrawdown  float64
	FinalEquity  float64
	Halted       bool
	HaltReason   string
}

func NewReport(s risk.State, reason string) Report {
	r := Report{
		Reason:      reason,
		Trades:      s.Trades,
		Wins:        s.Wins,
		Losses:      s.Losses,
		RealisedPL:  s.RealisedPL,
		MaxDrawdown: s.MaxDrawdown,
		FinalEquity: s.Equity,
		Halted:      s.Halted,
		HaltReason:  string(s.HaltReason),
	}
	if s.Trades > 0 {
		r.WinRate = float64(s.Wins) / float64(s.Trades) * 100
	}
	switch {
	case s.GrossLoss > 0:
		r.ProfitFactor = s.GrossProfit / s.GrossLoss
	case s.GrossProfit > 0:
		r.ProfitFactor = math.Inf(1)
	}
	return r
}

func (r Report) String() string {
	pf := fmt.Sprintf("%.2f", r.ProfitFactor)
	if math.IsInf(r.ProfitFactor, 1) {
		pf = "inf"
	}
	return fmt.Sprintf("session ended (%s): %d trades, win rate %.1f%%, profit factor %s, realised %.2f, max drawdown %.2f%%",
		r.Reason, r.Trades, r.WinRate, pf, r.RealisedPL, r.MaxDrawdown*100)
}

func (r Report) fields() []logger.Field {
	return []logger.Field{
		logger.String("reason", r.Reason),
		logger.Int("trades", r.Trades),
		logger.Int("wins", r.Wins),
		logger.Int("losses", r.Losses),
		logger.Float64("win_rate", r.WinRate),
		logger.String("profit_factor", fmt.Sprintf("%.4g", r.ProfitFactor)),
		logger.Float64("realised_pl", r.RealisedPL),
		logger.Float64("max_drawdown", r.MaxDrawdown),
		logger.Float64("final_equity", r.FinalEquity),
		logger.Bool("halted", r.Halted),
	}
}
