package strategy

import (
	"github.com/evdnx/tradecore/types"
)

// ArbitrageConfig holds the rule weights of the mean reversion evaluator.
type ArbitrageConfig struct {
	BandExtreme    float64 `yaml:"band_extreme" default:"0.1" validate:"gte=0,lte=0.5"`
	BandNear       float64 `yaml:"band_near" default:"0.2" validate:"gtefield=BandExtreme,lte=0.5"`
	ExtremeWeight  float64 `yaml:"extreme_weight" default:"2" validate:"gte=0"`
	NearWeight     float64 `yaml:"near_weight" default:"1" validate:"gte=0"`
	RSIOversold    float64 `yaml:"rsi_oversold" default:"30" validate:"gte=0,lte=100"`
	RSIOverbought  float64 `yaml:"rsi_overbought" default:"70" validate:"gte=0,lte=100"`
	RSIWeight      float64 `yaml:"rsi_weight" default:"2" validate:"gte=0"`
	StochLow       float64 `yaml:"stoch_low" default:"20" validate:"gte=0,lte=100"`
	StochHigh      float64 `yaml:"stoch_high" default:"80" validate:"gte=0,lte=100"`
	StochWeight    float64 `yaml:"stoch_weight" default:"1" validate:"gte=0"`
	ReversalWeight float64 `yaml:"reversal_weight" default:"1" validate:"gte=0"`
}

func DefaultArbitrageConfig() ArbitrageConfig {
	return ArbitrageConfig{
		BandExtreme: 0.1, BandNear: 0.2, ExtremeWeight: 2, NearWeight: 1,
		RSIOversold: 30, RSIOverbought: 70, RSIWeight: 2,
		StochLow: 20, StochHigh: 80, StochWeight: 1, ReversalWeight: 1,
	}
}

// Arbitrage fades band extremes confirmed by oscillators and a reversal
// against the prior two closes.
type Arbitrage struct {
	base
	cfg ArbitrageConfig
}

func (a *Arbitrage) Evaluate(in Input) types.Signal {
	sig, snap, _ := a.prepare(in)
	c := a.cfg
	pos := snap.BBPosition

	// 1️⃣ Band position. A poor spread downgrades an extreme to near.
	extremeW := c.ExtremeWeight
	if in.Spread == SpreadPoor {
		extremeW = c.NearWeight
	}
	switch {
	case pos <= c.BandExtreme:
		sig.Buy(extremeW, "price at lower band")
	case pos >= 1-c.BandExtreme:
		sig.Sell(extremeW, "price at upper band")
	case pos <= c.BandNear:
		sig.Buy(c.NearWeight, "price near lower band")
	case pos >= 1-c.BandNear:
		sig.Sell(c.NearWeight, "price near upper band")
	}

	// 2️⃣ RSI(14) extremes.
	switch {
	case snap.RSI14 < c.RSIOversold:
		sig.Buy(c.RSIWeight, "rsi14 oversold")
	case snap.RSI14 > c.RSIOverbought:
		sig.Sell(c.RSIWeight, "rsi14 overbought")
	}

	// 3️⃣ Stochastic agreement.
	switch {
	case snap.StochK < c.StochLow && snap.StochD < c.StochLow:
		sig.Buy(c.StochWeight, "stochastic oversold")
	case snap.StochK > c.StochHigh && snap.StochD > c.StochHigh:
		sig.Sell(c.StochWeight, "stochastic overbought")
	}

	// 4️⃣ Reversal versus the prior two closes.
	switch {
	case snap.PrevClose < snap.Close2 && snap.Close > snap.PrevClose:
		sig.Buy(c.ReversalWeight, "bullish reversal")
	case snap.PrevClose > snap.Close2 && snap.Close < snap.PrevClose:
		sig.Sell(c.ReversalWeight, "bearish reversal")
	}
	return a.finish(in, sig)
}
