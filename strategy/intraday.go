package strategy

import (
	"github.com/evdnx/tradecore/types"
)

// IntradayConfig holds the rule weights of the intraday evaluator.
type IntradayConfig struct {
	MinSeparationPips float64 `yaml:"min_separation_pips" default:"2" validate:"gte=0"`
	AlignWeight       float64 `yaml:"align_weight" default:"3" validate:"gte=0"`
	RSIWeight         float64 `yaml:"rsi_weight" default:"1" validate:"gte=0"`
	MACDWeight        float64 `yaml:"macd_weight" default:"2" validate:"gte=0"`
	VolumeWeight      float64 `yaml:"volume_weight" default:"1" validate:"gte=0"`
	BreakoutWeight    float64 `yaml:"breakout_weight" default:"2" validate:"gte=0"`
}

func DefaultIntradayConfig() IntradayConfig {
	return IntradayConfig{
		MinSeparationPips: 2, AlignWeight: 3, RSIWeight: 1,
		MACDWeight: 2, VolumeWeight: 1, BreakoutWeight: 2,
	}
}

// Intraday follows the 20/50/200 trend and confirms with RSI(14)
// momentum, MACD signal crosses, volume and breakouts.
type Intraday struct {
	base
	cfg IntradayConfig
}

func (d *Intraday) Evaluate(in Input) types.Signal {
	sig, snap, pip := d.prepare(in)
	c := d.cfg
	sep := c.MinSeparationPips * pip

	// 1️⃣ Trend alignment with separation.
	switch {
	case snap.EMA20-snap.EMA50 >= sep && snap.EMA50-snap.EMA200 >= sep && snap.EMA20 > snap.EMA50:
		sig.Buy(c.AlignWeight, "ema 20>50>200 separated")
	case snap.EMA50-snap.EMA20 >= sep && snap.EMA200-snap.EMA50 >= sep && snap.EMA20 < snap.EMA50:
		sig.Sell(c.AlignWeight, "ema 20<50<200 separated")
	}

	// 2️⃣ RSI(14) momentum direction.
	switch {
	case snap.RSI14 > 50 && snap.RSI14 > snap.RSI14Prev:
		sig.Buy(c.RSIWeight, "rsi14 above 50 and rising")
	case snap.RSI14 < 50 && snap.RSI14 < snap.RSI14Prev:
		sig.Sell(c.RSIWeight, "rsi14 below 50 and falling")
	}

	// 3️⃣ MACD signal-line crossover.
	switch {
	case snap.MACDPrev <= snap.MACDSignalPrev && snap.MACD > snap.MACDSignal:
		sig.Buy(c.MACDWeight, "macd crossed above signal")
	case snap.MACDPrev >= snap.MACDSignalPrev && snap.MACD < snap.MACDSignal:
		sig.Sell(c.MACDWeight, "macd crossed below signal")
	}

	// 4️⃣ Volume above both rolling averages.
	if snap.VolumeSMA10 > 0 && snap.Volume > snap.VolumeSMA10 && snap.Volume > snap.VolumeSMA20 {
		switch candleDir(snap) {
		case 1:
			sig.Buy(c.VolumeWeight, "volume confirms bullish bar")
		case -1:
			sig.Sell(c.VolumeWeight, "volume confirms bearish bar")
		}
	}

	// 5️⃣ Breakouts need a tight spread.
	if in.Spread.AtLeast(SpreadGood) {
		if snap.BreakoutUp {
			sig.Buy(c.BreakoutWeight, "breakout above 20 bar high")
		}
		if snap.BreakoutDown {
			sig.Sell(c.BreakoutWeight, "breakout below 20 bar low")
		}
	}
	return d.finish(in, sig)
}
