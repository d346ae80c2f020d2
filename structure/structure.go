// Package structure synthesises an independent market view (trend,
// momentum, volume and support/resistance) into a single bias with a
// confidence. The decision engine consults it for borderline signals.
package structure

import (
	"fmt"
	"math"

	"github.com/evdnx/goti"

	"github.com/evdnx/tradecore/indicator"
	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/types"
)

// Bias is the analyzer's directional call.
type Bias int

const (
	Sideways Bias = iota
	Bullish
	Bearish
)

func (b Bias) String() string {
	switch b {
	case Bullish:
		return "BULLISH"
	case Bearish:
		return "BEARISH"
	}
	return "SIDEWAYS"
}

// Direction maps the bias onto a trade direction.
func (b Bias) Direction() types.Direction {
	switch b {
	case Bullish:
		return types.DirBuy
	case Bearish:
		return types.DirSell
	}
	return types.DirNone
}

// Assessment is the analyzer output.
type Assessment struct {
	Bias       Bias
	Confidence float64 // 0-100
	Reasons    []string
}

// Analyzer produces an Assessment from a bar series.
type Analyzer interface {
	Analyze(series types.BarSeries) (Assessment, error)
}

// AnalyzerFunc adapts a plain function.
type AnalyzerFunc func(series types.BarSeries) (Assessment, error)

func (f AnalyzerFunc) Analyze(series types.BarSeries) (Assessment, error) { return f(series) }

// Config tunes the synthesis.
type Config struct {
	SwingWindow    int     `yaml:"swing_window" default:"5" validate:"gte=1"`
	LevelProximity float64 `yaml:"level_proximity" default:"0.5" validate:"gt=0"` // in ATRs
	MinEdge        float64 `yaml:"min_edge" default:"10" validate:"gte=0,lte=100"`
	RSIBull        float64 `yaml:"rsi_bull" default:"55" validate:"gte=0,lte=100"`
	RSIBear        float64 `yaml:"rsi_bear" default:"45" validate:"gte=0,lte=100"`
	MFIBull        float64 `yaml:"mfi_bull" default:"60" validate:"gte=0,lte=100"`
	MFIBear        float64 `yaml:"mfi_bear" default:"40" validate:"gte=0,lte=100"`
}

func DefaultConfig() Config {
	return Config{SwingWindow: 5, LevelProximity: 0.5, MinEdge: 10, RSIBull: 55, RSIBear: 45, MFIBull: 60, MFIBear: 40}
}

// Point weights of each reading. Together they sum to 100 per side.
const (
	hmaPoints    = 15
	slopePoints  = 15
	atsoPoints   = 10
	rsiPoints    = 20
	mfiPoints    = 20
	levelPoints  = 20
	minSuiteBars = 30
)

// GotiAnalyzer runs a fresh goti indicator suite over the series on every
// call, so it holds no state between calls and is safe for concurrent use.
type GotiAnalyzer struct {
	cfg          Config
	log          logger.Logger
	suiteFactory func() (*goti.IndicatorSuite, error)
}

func NewGotiAnalyzer(cfg Config, log logger.Logger) (*GotiAnalyzer, error) {
	if cfg.SwingWindow < 1 {
		return nil, fmt.Errorf("structure: swing window must be >= 1")
	}
	if cfg.RSIBull <= cfg.RSIBear || cfg.MFIBull <= cfg.MFIBear {
		return nil, fmt.Errorf("structure: bull bands must sit above bear bands")
	}
	if log == nil {
		log = logger.NewNop()
	}
	suiteFactory := func() (*goti.IndicatorSuite, error) {
		ic := goti.DefaultConfig()
		ic.RSIOverbought = 70
		ic.RSIOversold = 30
		ic.MFIOverbought = 80
		ic.MFIOversold = 20
		return goti.NewIndicatorSuiteWithConfig(ic)
	}
	if _, err := suiteFactory(); err != nil {
		return nil, fmt.Errorf("structure: build indicator suite: %w", err)
	}
	return &GotiAnalyzer{cfg: cfg, log: log, suiteFactory: suiteFactory}, nil
}

// Readings are the raw inputs of the synthesis.
type Readings struct {
	HMABull, HMABear bool
	EMASlope         float64 // EMA20 change over the last five bars
	ATSO             float64
	RSI, MFI         float64
	Close, ATR       float64
	Support          float64 // 0 when none found
	Resistance       float64 // 0 when none found
}

func (a *GotiAnalyzer) Analyze(series types.BarSeries) (Assessment, error) {
	if series.Len() < minSuiteBars {
		return Assessment{}, fmt.Errorf("%w: structure needs %d bars, have %d", types.ErrDataInsufficient, minSuiteBars, series.Len())
	}
	suite, err := a.suiteFactory()
	if err != nil {
		return Assessment{}, err
	}
	added := 0
	for _, b := range series.Bars {
		if err := suite.Add(b.High, b.Low, b.Close, b.Volume); err != nil {
			a.log.Warn("suite_add_error", logger.String("symbol", series.Symbol), logger.Err(err))
			continue
		}
		added++
	}
	if added < minSuiteBars {
		return Assessment{}, fmt.Errorf("%w: only %d usable bars for %s", types.ErrInvalidSeries, added, series.Symbol)
	}

	r := Readings{RSI: 50, MFI: 50, Close: series.Last().Close}
	if ok, err := suite.GetHMA().IsBullishCrossover(); err == nil {
		r.HMABull = ok
	}
	if ok, err := suite.GetHMA().IsBearishCrossover(); err == nil {
		r.HMABear = ok
	}
	if v, err := suite.GetATSO().Calculate(); err == nil && !math.IsNaN(v) {
		r.ATSO = v
	}
	if v, err := suite.GetRSI().Calculate(); err == nil && !math.IsNaN(v) {
		r.RSI = v
	}
	if v, err := suite.GetMFI().Calculate(); err == nil && !math.IsNaN(v) {
		r.MFI = v
	}

	closes := series.Closes()
	ema := indicator.EMA(closes, 20)
	if n := len(ema); n > 5 && !math.IsNaN(ema[n-6]) {
		r.EMASlope = ema[n-1] - ema[n-6]
	}
	atr := indicator.ATR(series.Highs(), series.Lows(), closes, 14)
	if v := atr[len(atr)-1]; !math.IsNaN(v) {
		r.ATR = v
	}
	r.Support, r.Resistance = NearestLevels(series, a.cfg.SwingWindow)

	out := Synthesize(r, a.cfg)
	a.log.Debug("structure_assessed",
		logger.String("symbol", series.Symbol),
		logger.String("bias", out.Bias.String()),
		logger.Float64("confidence", out.Confidence),
	)
	return out, nil
}

// Synthesize scores the readings. Each side collects up to 100 points and
// the bias goes to the side ahead by at least MinEdge; the confidence is
// the size of that lead.
func Synthesize(r Readings, cfg Config) Assessment {
	var bull, bear float64
	var reasons []string
	add := func(side *float64, pts float64, why string) {
		*side += pts
		reasons = append(reasons, why)
	}

	// trend
	if r.HMABull {
		add(&bull, hmaPoints, "hma bullish crossover")
	}
	if r.HMABear {
		add(&bear, hmaPoints, "hma bearish crossover")
	}
	switch {
	case r.EMASlope > 0:
		add(&bull, slopePoints, "ema20 rising")
	case r.EMASlope < 0:
		add(&bear, slopePoints, "ema20 falling")
	}
	switch {
	case r.ATSO > 0:
		add(&bull, atsoPoints, "atso positive")
	case r.ATSO < 0:
		add(&bear, atsoPoints, "atso negative")
	}

	// momentum
	switch {
	case r.RSI >= cfg.RSIBull:
		add(&bull, rsiPoints, fmt.Sprintf("rsi %.1f bullish", r.RSI))
	case r.RSI <= cfg.RSIBear:
		add(&bear, rsiPoints, fmt.Sprintf("rsi %.1f bearish", r.RSI))
	}

	// volume
	switch {
	case r.MFI >= cfg.MFIBull:
		add(&bull, mfiPoints, fmt.Sprintf("mfi %.1f inflow", r.MFI))
	case r.MFI <= cfg.MFIBear:
		add(&bear, mfiPoints, fmt.Sprintf("mfi %.1f outflow", r.MFI))
	}

	// support and resistance
	if r.ATR > 0 {
		near := cfg.LevelProximity * r.ATR
		if r.Support > 0 && r.Close-r.Support <= near && r.Close >= r.Support {
			add(&bull, levelPoints, "holding support")
		}
		if r.Resistance > 0 && r.Resistance-r.Close <= near && r.Close <= r.Resistance {
			add(&bear, levelPoints, "capped by resistance")
		}
	}

	edge := math.Min(100, math.Abs(bull-bear))
	out := Assessment{Reasons: reasons}
	switch {
	case bull-bear >= cfg.MinEdge:
		out.Bias, out.Confidence = Bullish, edge
	case bear-bull >= cfg.MinEdge:
		out.Bias, out.Confidence = Bearish, edge
	default:
		out.Bias, out.Confidence = Sideways, 100-edge
	}
	return out
}

// NearestLevels returns the closest swing low below and swing high above
// the last close. A swing point is a bar whose low (high) is the extreme
// of the window bars on each side. Zero means no level was found.
func NearestLevels(series types.BarSeries, window int) (support, resistance float64) {
	bars := series.Bars
	if len(bars) < 2*window+1 {
		return 0, 0
	}
	last := bars[len(bars)-1].Close
	for i := window; i < len(bars)-window; i++ {
		isLow, isHigh := true, true
		for j := i - window; j <= i+window; j++ {
			if j == i {
				continue
			}
			if bars[j].Low <= bars[i].Low {
				isLow = false
			}
			if bars[j].High >= bars[i].High {
				isHigh = false
			}
		}
		if isLow && bars[i].Low <= last && bars[i].Low > support {
			support = bars[i].Low
		}
		if isHigh && bars[i].High >= last && (resistance == 0 || bars[i].High < resistance) {
			resistance = bars[i].High
		}
	}
	return support, resistance
}
