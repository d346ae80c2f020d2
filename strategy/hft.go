package strategy

import (
	"math"
	"sync"

	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/types"
)

// HFTConfig holds the rule weights of the tick evaluator.
type HFTConfig struct {
	MinTickPips       float64 `yaml:"min_tick_pips" default:"0.5" validate:"gt=0"`
	TickWeight        float64 `yaml:"tick_weight" default:"2" validate:"gte=0"`
	AccelRatio        float64 `yaml:"accel_ratio" default:"1.5" validate:"gt=0"`
	AccelWeight       float64 `yaml:"accel_weight" default:"2" validate:"gte=0"`
	VolumeSurge       float64 `yaml:"volume_surge" default:"1.5" validate:"gt=0"`
	VolumeWeight      float64 `yaml:"volume_weight" default:"1" validate:"gte=0"`
	SpreadCompression float64 `yaml:"spread_compression" default:"0.8" validate:"gt=0"`
	SpreadWeight      float64 `yaml:"spread_weight" default:"1" validate:"gte=0"`
	SpreadWindow      int     `yaml:"spread_window" default:"32" validate:"gte=3"`
}

func DefaultHFTConfig() HFTConfig {
	return HFTConfig{
		MinTickPips: 0.5, TickWeight: 2, AccelRatio: 1.5, AccelWeight: 2,
		VolumeSurge: 1.5, VolumeWeight: 1,
		SpreadCompression: 0.8, SpreadWeight: 1, SpreadWindow: 32,
	}
}

// tickMemory is the per-symbol state the tick rules compare against.
type tickMemory struct {
	deltas  *priceBuffer
	spreads *priceBuffer
}

// HFT scores sub-bar tick movement. It is the only evaluator that keeps
// state between cycles: the previous tick delta and recent spreads per
// symbol.
type HFT struct {
	base
	cfg HFTConfig

	mu  sync.Mutex
	mem map[string]*tickMemory
}

func newHFT(b base, cfg HFTConfig) *HFT {
	if cfg.SpreadWindow < 3 {
		cfg.SpreadWindow = 3
	}
	return &HFT{base: b, cfg: cfg, mem: make(map[string]*tickMemory)}
}

func (h *HFT) memory(symbol string) *tickMemory {
	m, ok := h.mem[symbol]
	if !ok {
		m = &tickMemory{deltas: newPriceBuffer(2), spreads: newPriceBuffer(h.cfg.SpreadWindow)}
		h.mem[symbol] = m
	}
	return m
}

func (h *HFT) Evaluate(in Input) types.Signal {
	sig, snap, pip := h.prepare(in)
	c := h.cfg

	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.memory(in.Instrument.Symbol)

	delta := 0.0
	if pip > 0 && in.Quote.Bid > 0 && in.Quote.Ask > 0 {
		delta = (in.Quote.Mid() - snap.Close) / pip
	}
	prevDelta := m.deltas.Last()
	hadPrev := m.deltas.Len() > 0
	m.deltas.Add(delta)

	spreadPips := SpreadPips(in.Instrument, in.Quote)
	meanSpread := m.spreads.Mean()
	enoughSpreads := m.spreads.Len() >= 3
	m.spreads.Add(spreadPips)

	if in.Spread != SpreadExcellent {
		sig.Note("spread " + in.Spread.String() + ", tick rules disabled")
		return h.finish(in, sig)
	}

	// 1️⃣ Tick movement away from the last close.
	switch {
	case delta >= c.MinTickPips:
		sig.Buy(c.TickWeight, "tick up "+pips(delta)+" pips")
	case delta <= -c.MinTickPips:
		sig.Sell(c.TickWeight, "tick down "+pips(-delta)+" pips")
	}

	// 2️⃣ Acceleration against the previous tick delta. The previous move
	// must itself clear the tick floor for the ratio to mean anything.
	if hadPrev && math.Abs(prevDelta) >= c.MinTickPips && delta != 0 && math.Signbit(delta) == math.Signbit(prevDelta) {
		if ratio := delta / prevDelta; ratio >= c.AccelRatio {
			if delta > 0 {
				sig.Buy(c.AccelWeight, "upward acceleration x"+pips(ratio))
			} else {
				sig.Sell(c.AccelWeight, "downward acceleration x"+pips(ratio))
			}
		}
	}

	// 3️⃣ Tick-volume surge in the candle direction.
	if snap.VolumeSMA20 > 0 && snap.Volume >= c.VolumeSurge*snap.VolumeSMA20 {
		switch candleDir(snap) {
		case 1:
			sig.Buy(c.VolumeWeight, "volume surge on bullish bar")
		case -1:
			sig.Sell(c.VolumeWeight, "volume surge on bearish bar")
		}
	}

	// 4️⃣ Spread compression in the tick direction.
	if enoughSpreads && meanSpread > 0 && spreadPips < c.SpreadCompression*meanSpread {
		switch {
		case delta > 0:
			sig.Buy(c.SpreadWeight, "spread compressed")
		case delta < 0:
			sig.Sell(c.SpreadWeight, "spread compressed")
		}
	}

	h.log.Debug("hft_tick",
		logger.String("symbol", in.Instrument.Symbol),
		logger.Float64("delta_pips", delta),
		logger.Float64("prev_delta_pips", prevDelta),
		logger.Float64("spread_pips", spreadPips),
	)
	return h.finish(in, sig)
}

// Forget drops the tick memory for symbol.
func (h *HFT) Forget(symbol string) {
	h.mu.Lock()
	delete(h.mem, symbol)
	h.mu.Unlock()
}
