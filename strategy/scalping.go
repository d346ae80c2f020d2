package strategy

import (
	"math"

	"github.com/evdnx/tradecore/types"
)

// ScalpingConfig holds the rule weights of the scalping evaluator.
type ScalpingConfig struct {
	CrossMinPips    float64 `yaml:"cross_min_pips" default:"0.5" validate:"gte=0"`
	CrossWeight     float64 `yaml:"cross_weight" default:"3" validate:"gte=0"`
	CrossWeakWeight float64 `yaml:"cross_weak_weight" default:"1" validate:"gte=0"`
	AlignWeight     float64 `yaml:"align_weight" default:"2" validate:"gte=0"`
	RSIOversold     float64 `yaml:"rsi_oversold" default:"30" validate:"gte=0,lte=100"`
	RSIOverbought   float64 `yaml:"rsi_overbought" default:"70" validate:"gte=0,lte=100"`
	RSIWeight       float64 `yaml:"rsi_weight" default:"2" validate:"gte=0"`
	MACDWeight      float64 `yaml:"macd_weight" default:"1" validate:"gte=0"`
	CandleWeight    float64 `yaml:"candle_weight" default:"1" validate:"gte=0"`
	EngulfWeight    float64 `yaml:"engulf_weight" default:"2" validate:"gte=0"`
}

func DefaultScalpingConfig() ScalpingConfig {
	return ScalpingConfig{
		CrossMinPips: 0.5, CrossWeight: 3, CrossWeakWeight: 1, AlignWeight: 2,
		RSIOversold: 30, RSIOverbought: 70, RSIWeight: 2,
		MACDWeight: 1, CandleWeight: 1, EngulfWeight: 2,
	}
}

// Scalping trades short EMA crossovers confirmed by RSI(9), MACD momentum
// and candle shape.
type Scalping struct {
	base
	cfg ScalpingConfig
}

func (s *Scalping) Evaluate(in Input) types.Signal {
	sig, snap, pip := s.prepare(in)
	c := s.cfg

	// 1️⃣ EMA5/13 crossover, filtered by a minimum separation.
	minDist := c.CrossMinPips * pip
	crossW := c.CrossWeight
	if !in.Spread.AtLeast(SpreadGood) {
		crossW = c.CrossWeakWeight
	}
	gap := snap.EMA5 - snap.EMA13
	if math.Abs(gap) >= minDist {
		switch {
		case snap.EMA5Prev <= snap.EMA13Prev && gap > 0:
			sig.Buy(crossW, "ema5 crossed above ema13 by "+pips(gap/pip)+" pips")
		case snap.EMA5Prev >= snap.EMA13Prev && gap < 0:
			sig.Sell(crossW, "ema5 crossed below ema13 by "+pips(-gap/pip)+" pips")
		}
	}

	// 2️⃣ Stacked alignment.
	switch {
	case snap.EMA5 > snap.EMA13 && snap.EMA13 > snap.EMA50:
		sig.Buy(c.AlignWeight, "ema 5>13>50 aligned up")
	case snap.EMA5 < snap.EMA13 && snap.EMA13 < snap.EMA50:
		sig.Sell(c.AlignWeight, "ema 5<13<50 aligned down")
	}

	// 3️⃣ RSI(9) extremes.
	switch {
	case snap.RSI9 < c.RSIOversold:
		sig.Buy(c.RSIWeight, "rsi9 oversold")
	case snap.RSI9 > c.RSIOverbought:
		sig.Sell(c.RSIWeight, "rsi9 overbought")
	}

	// 4️⃣ Histogram growing in its own direction.
	switch {
	case snap.MACDHist > 0 && snap.MACDHist > snap.MACDHistPrev:
		sig.Buy(c.MACDWeight, "macd histogram rising")
	case snap.MACDHist < 0 && snap.MACDHist < snap.MACDHistPrev:
		sig.Sell(c.MACDWeight, "macd histogram falling")
	}

	// 5️⃣ Candle strength.
	if snap.StrongBullCandle {
		sig.Buy(c.CandleWeight, "strong bullish candle")
	}
	if snap.StrongBearCandle {
		sig.Sell(c.CandleWeight, "strong bearish candle")
	}

	// 6️⃣ Engulfing patterns need a tight spread.
	if in.Spread.AtLeast(SpreadGood) {
		if snap.BullishEngulfing {
			sig.Buy(c.EngulfWeight, "bullish engulfing")
		}
		if snap.BearishEngulfing {
			sig.Sell(c.EngulfWeight, "bearish engulfing")
		}
	}
	return s.finish(in, sig)
}
