package session

import (
	"fmt"
	"time"

	"github.com/evdnx/tradecore/types"
)

// Profile is the adjustment applied for one volatility class before
// strategy sensitivity is taken into account.
type Profile struct {
	Lot            float64 `yaml:"lot" validate:"gt=0"`
	TP             float64 `yaml:"tp" validate:"gt=0"`
	SL             float64 `yaml:"sl" validate:"gt=0"`
	ThresholdDelta float64 `yaml:"threshold_delta"`
}

// Config drives the Adjuster.
type Config struct {
	Windows []Window     `yaml:"windows" validate:"dive"`
	News    []NewsWindow `yaml:"news" validate:"dive"`
	// NewsPenalty is added to the approval threshold inside a news window.
	NewsPenalty float64 `yaml:"news_penalty" default:"2" validate:"gte=0"`
	Low         Profile `yaml:"low"`
	Medium      Profile `yaml:"medium"`
	High        Profile `yaml:"high"`
	VeryHigh    Profile `yaml:"very_high"`
	// Sensitivity scales how far each strategy's multipliers move away
	// from 1. Missing strategies use 1.
	Sensitivity map[string]float64 `yaml:"sensitivity"`
}

// DefaultConfig returns the standard session table and volatility profiles.
func DefaultConfig() Config {
	return Config{
		Windows:     DefaultWindows(),
		News:        DefaultNews(),
		NewsPenalty: 2,
		Low:         Profile{Lot: 0.7, TP: 0.8, SL: 1.2, ThresholdDelta: 1},
		Medium:      Profile{Lot: 1, TP: 1, SL: 1, ThresholdDelta: 0},
		High:        Profile{Lot: 1.2, TP: 1.2, SL: 0.9, ThresholdDelta: -1},
		VeryHigh:    Profile{Lot: 1.4, TP: 1.4, SL: 0.8, ThresholdDelta: -2},
		Sensitivity: map[string]float64{
			types.Scalping.String():  1,
			types.HFT.String():       1,
			types.Intraday.String():  0.5,
			types.Arbitrage.String(): 0.5,
		},
	}
}

// Adjuster maps wall-clock time to a session Context and a Context plus
// strategy to an Adjustment. It holds no mutable state.
type Adjuster struct {
	windows     []span
	news        []newsSpan
	profiles    [4]Profile
	sensitivity map[types.StrategyID]float64
	newsPenalty float64
}

// NewAdjuster compiles the configuration. Profiles whose threshold delta
// rises with volatility are rejected.
func NewAdjuster(cfg Config) (*Adjuster, error) {
	ws, err := compileWindows(cfg.Windows)
	if err != nil {
		return nil, err
	}
	ns, err := compileNews(cfg.News)
	if err != nil {
		return nil, err
	}
	a := &Adjuster{
		windows:     ws,
		news:        ns,
		profiles:    [4]Profile{cfg.Low, cfg.Medium, cfg.High, cfg.VeryHigh},
		sensitivity: make(map[types.StrategyID]float64, len(cfg.Sensitivity)),
		newsPenalty: cfg.NewsPenalty,
	}
	for v := Medium; v <= VeryHigh; v++ {
		if a.profiles[v].ThresholdDelta > a.profiles[v-1].ThresholdDelta {
			return nil, fmt.Errorf("threshold delta for %s (%v) exceeds %s (%v)",
				v, a.profiles[v].ThresholdDelta, v-1, a.profiles[v-1].ThresholdDelta)
		}
	}
	for name, s := range cfg.Sensitivity {
		id, err := types.ParseStrategyID(name)
		if err != nil {
			return nil, fmt.Errorf("sensitivity: %w", err)
		}
		if s < 0 {
			return nil, fmt.Errorf("sensitivity for %s must not be negative", name)
		}
		a.sensitivity[id] = s
	}
	return a, nil
}

// Context resolves the session in effect at now (converted to UTC).
func (a *Adjuster) Context(now time.Time) Context {
	now = now.UTC()
	min := now.Hour()*60 + now.Minute()
	ctx := Context{Name: FallbackName, Volatility: Medium}
	for _, w := range a.windows {
		if w.contains(min) {
			ctx.Name = w.name
			ctx.Volatility = w.vol
			ctx.Progress = (float64(w.elapsed(min)) + float64(now.Second())/60) / float64(w.length())
			break
		}
	}
	ctx.HighImpact = a.highImpact(now, min)
	return ctx
}

func (a *Adjuster) highImpact(now time.Time, min int) bool {
	for _, n := range a.news {
		if n.active(now.Weekday(), min) {
			return true
		}
	}
	return false
}

// Adjust derives the Adjustment for a strategy in the given session.
func (a *Adjuster) Adjust(ctx Context, strategy types.StrategyID) Adjustment {
	v := ctx.Volatility
	if v < Low || v > VeryHigh {
		v = Medium
	}
	p := a.profiles[v]
	sens, ok := a.sensitivity[strategy]
	if !ok {
		sens = 1
	}
	adj := Adjustment{
		LotMultiplier:  scale(p.Lot, sens),
		TPMultiplier:   scale(p.TP, sens),
		SLMultiplier:   scale(p.SL, sens),
		ThresholdDelta: p.ThresholdDelta,
	}
	if ctx.HighImpact {
		adj.ThresholdDelta += a.newsPenalty
	}
	return adj
}

// At is Context followed by Adjust.
func (a *Adjuster) At(now time.Time, strategy types.StrategyID) (Context, Adjustment) {
	ctx := a.Context(now)
	return ctx, a.Adjust(ctx, strategy)
}

func scale(mult, sens float64) float64 {
	return 1 + (mult-1)*sens
}
