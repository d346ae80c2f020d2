// Package decision turns a scored signal into BUY, SELL or WAIT. Every
// cycle is resolved independently; the engine keeps no state between
// calls.
package decision

import (
	"fmt"
	"math"
	"time"

	"github.com/evdnx/tradecore/indicator"
	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/metrics"
	"github.com/evdnx/tradecore/session"
	"github.com/evdnx/tradecore/structure"
	"github.com/evdnx/tradecore/types"
)

// Thresholds are the base approval scores per strategy.
type Thresholds struct {
	Scalping  float64 `yaml:"scalping" default:"3" validate:"gte=1"`
	HFT       float64 `yaml:"hft" default:"4" validate:"gte=1"`
	Intraday  float64 `yaml:"intraday" default:"4" validate:"gte=1"`
	Arbitrage float64 `yaml:"arbitrage" default:"3" validate:"gte=1"`
}

// For returns the base threshold of id.
func (t Thresholds) For(id types.StrategyID) float64 {
	switch id {
	case types.Scalping:
		return t.Scalping
	case types.HFT:
		return t.HFT
	case types.Intraday:
		return t.Intraday
	case types.Arbitrage:
		return t.Arbitrage
	}
	return math.Max(t.Scalping, math.Max(t.HFT, math.Max(t.Intraday, t.Arbitrage)))
}

// Config holds every tuned constant of the decision pipeline.
type Config struct {
	Thresholds         Thresholds `yaml:"thresholds"`
	QualityFloor       int        `yaml:"quality_floor" default:"60" validate:"gte=0,lte=100"`
	QualityHigh        int        `yaml:"quality_high" default:"80" validate:"gte=0,lte=100"`
	QualityBoost       float64    `yaml:"quality_boost" default:"1" validate:"gte=0"`
	QualityBoostMax    float64    `yaml:"quality_boost_max" default:"2" validate:"gtefield=QualityBoost"`
	StructureFloor     float64    `yaml:"structure_floor" default:"25" validate:"gte=0,lte=100"`
	StructureBoost     float64    `yaml:"structure_boost" default:"1.5" validate:"gte=0"`
	OpportunityLow     float64    `yaml:"opportunity_low" default:"35" validate:"gte=0,lte=100"`
	OpportunityHigh    float64    `yaml:"opportunity_high" default:"65" validate:"gte=0,lte=100"`
	RescueLow          float64    `yaml:"rescue_low" default:"25" validate:"gte=0,lte=100"`
	RescueHigh         float64    `yaml:"rescue_high" default:"75" validate:"gte=0,lte=100"`
	RescueMaxGap       float64    `yaml:"rescue_max_gap" default:"2" validate:"gte=0"`
	OverrideEnabled    bool       `yaml:"override_enabled" default:"true"`
	OverrideConfidence float64    `yaml:"override_confidence" default:"80" validate:"gte=0,lte=100"`
}

func DefaultConfig() Config {
	return Config{
		Thresholds:   Thresholds{Scalping: 3, HFT: 4, Intraday: 4, Arbitrage: 3},
		QualityFloor: 60, QualityHigh: 80, QualityBoost: 1, QualityBoostMax: 2,
		StructureFloor: 25, StructureBoost: 1.5, OpportunityLow: 35, OpportunityHigh: 65,
		RescueLow: 25, RescueHigh: 75, RescueMaxGap: 2,
		OverrideEnabled: true, OverrideConfidence: 80,
	}
}

// Input is one decision cycle for one symbol.
type Input struct {
	Strategy   types.StrategyID
	Symbol     string
	Signal     types.Signal
	Snapshot   indicator.Snapshot
	Quality    int
	Adjustment session.Adjustment
	Series     types.BarSeries // given to the structure analyzer
	RiskHalted bool
	Time       time.Time
}

// Engine applies the decision rules. A nil analyzer disables the
// structure steps.
type Engine struct {
	cfg      Config
	analyzer structure.Analyzer
	log      logger.Logger
}

func NewEngine(cfg Config, analyzer structure.Analyzer, log logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{cfg: cfg, analyzer: analyzer, log: log}
}

// Threshold is the effective approval score after the session delta.
func (e *Engine) Threshold(id types.StrategyID, adj session.Adjustment) float64 {
	return math.Max(1, e.cfg.Thresholds.For(id)+adj.ThresholdDelta)
}

// lazyStructure runs the analyzer at most once per decision.
type lazyStructure struct {
	e      *Engine
	in     *Input
	done   bool
	result structure.Assessment
}

func (l *lazyStructure) get() structure.Assessment {
	if l.done {
		return l.result
	}
	l.done = true
	if l.e.analyzer == nil {
		return l.result
	}
	a, err := l.e.analyzer.Analyze(l.in.Series)
	if err != nil {
		l.e.log.Warn("structure_failed",
			logger.String("symbol", l.in.Symbol),
			logger.String("strategy", l.in.Strategy.String()),
			logger.Err(err),
		)
		return l.result
	}
	l.result = a
	return a
}

func (e *Engine) Decide(in Input) types.Decision {
	c := e.cfg
	snap := in.Snapshot.Neutral()
	threshold := e.Threshold(in.Strategy, in.Adjustment)

	d := types.Decision{
		Strategy:  in.Strategy,
		Symbol:    in.Symbol,
		Action:    types.ActionWait,
		Threshold: threshold,
		BuyScore:  in.Signal.BuyScore,
		SellScore: in.Signal.SellScore,
		Quality:   in.Quality,
		Reasons:   append([]string(nil), in.Signal.Reasons...),
		Time:      in.Time,
	}
	if in.RiskHalted {
		d.RiskHalt = true
		d.Reasons = append(d.Reasons, "risk manager halted trading")
		return e.record(d)
	}

	best := func() float64 { return math.Max(d.BuyScore, d.SellScore) }
	st := &lazyStructure{e: e, in: &in}

	// 1️⃣ Quality boost for a strong setup that is just short.
	if best() < threshold && in.Quality >= c.QualityFloor && d.BuyScore != d.SellScore {
		boost := c.QualityBoost
		if in.Quality >= c.QualityHigh {
			boost += 1
		}
		boost = math.Min(boost, c.QualityBoostMax)
		if d.BuyScore > d.SellScore {
			d.BuyScore += boost
		} else {
			d.SellScore += boost
		}
		d.Reasons = append(d.Reasons, fmt.Sprintf("quality %d boost +%.1f", in.Quality, boost))
	}

	// 2️⃣ Structure agrees with an oversold or overbought opportunity.
	if best() < threshold && e.analyzer != nil {
		a := st.get()
		if a.Confidence > c.StructureFloor {
			switch {
			case a.Bias == structure.Bullish && snap.RSI14 <= c.OpportunityLow:
				d.BuyScore += c.StructureBoost
				d.Reasons = append(d.Reasons, fmt.Sprintf("bullish structure %.0f%% on oversold rsi", a.Confidence))
			case a.Bias == structure.Bearish && snap.RSI14 >= c.OpportunityHigh:
				d.SellScore += c.StructureBoost
				d.Reasons = append(d.Reasons, fmt.Sprintf("bearish structure %.0f%% on overbought rsi", a.Confidence))
			}
		}
	}

	// 3️⃣ RSI extreme rescue, topping the indicated side up to exactly
	// the threshold when it is within reach.
	if best() < threshold {
		switch {
		case snap.RSI14 <= c.RescueLow && threshold-d.BuyScore <= c.RescueMaxGap:
			d.BuyScore = threshold
			d.Reasons = append(d.Reasons, fmt.Sprintf("rsi %.1f extreme oversold rescue", snap.RSI14))
		case snap.RSI14 >= c.RescueHigh && threshold-d.SellScore <= c.RescueMaxGap:
			d.SellScore = threshold
			d.Reasons = append(d.Reasons, fmt.Sprintf("rsi %.1f extreme overbought rescue", snap.RSI14))
		}
	}

	// 4️⃣ Strictly higher side at or above threshold wins.
	switch {
	case d.BuyScore > d.SellScore && d.BuyScore >= threshold:
		d.Action = types.ActionBuy
	case d.SellScore > d.BuyScore && d.SellScore >= threshold:
		d.Action = types.ActionSell
	}
	if d.Action != types.ActionWait {
		d.Confidence = math.Max(d.BuyScore, d.SellScore) / (d.BuyScore + d.SellScore) * 100
		return e.record(d)
	}

	// 5️⃣ Strong structure may override a WAIT.
	if c.OverrideEnabled && e.analyzer != nil {
		a := st.get()
		if a.Confidence >= c.OverrideConfidence && a.Bias != structure.Sideways {
			if a.Bias == structure.Bullish {
				d.Action = types.ActionBuy
			} else {
				d.Action = types.ActionSell
			}
			d.Override = true
			d.Confidence = a.Confidence
			d.Reasons = append(d.Reasons, fmt.Sprintf("structure override %s %.0f%%", a.Bias, a.Confidence))
			e.log.Info("decision_override",
				logger.String("symbol", in.Symbol),
				logger.String("strategy", in.Strategy.String()),
				logger.String("bias", a.Bias.String()),
				logger.Float64("confidence", a.Confidence),
				logger.Float64("buy_score", d.BuyScore),
				logger.Float64("sell_score", d.SellScore),
			)
		}
	}
	return e.record(d)
}

func (e *Engine) record(d types.Decision) types.Decision {
	metrics.Decisions.WithLabelValues(d.Strategy.String(), string(d.Action)).Inc()
	e.log.Debug("decision",
		logger.String("symbol", d.Symbol),
		logger.String("strategy", d.Strategy.String()),
		logger.String("action", string(d.Action)),
		logger.Float64("confidence", d.Confidence),
		logger.Float64("threshold", d.Threshold),
		logger.Float64("buy_score", d.BuyScore),
		logger.Float64("sell_score", d.SellScore),
		logger.Int("quality", d.Quality),
		logger.Bool("risk_halt", d.RiskHalt),
	)
	return d
}
