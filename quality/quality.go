// Package quality rates indicator confluence on a 0-100 scale. The score
// never changes a signal's buy or sell totals; the decision engine uses it
// to decide whether a sub-threshold signal deserves a boost.
package quality

import (
	"math"

	"github.com/evdnx/tradecore/indicator"
	"github.com/evdnx/tradecore/session"
)

// Config holds the point buckets.
type Config struct {
	FullAlignment    int     `yaml:"full_alignment" default:"25" validate:"gte=0,lte=100"`
	PartialAlignment int     `yaml:"partial_alignment" default:"15" validate:"gte=0,lte=100"`
	RSIOptimal       int     `yaml:"rsi_optimal" default:"20" validate:"gte=0,lte=100"`
	RSIAcceptable    int     `yaml:"rsi_acceptable" default:"15" validate:"gte=0,lte=100"`
	RSIExtreme       int     `yaml:"rsi_extreme" default:"5" validate:"gte=0,lte=100"`
	SessionVeryHigh  int     `yaml:"session_very_high" default:"20" validate:"gte=0,lte=100"`
	SessionHigh      int     `yaml:"session_high" default:"18" validate:"gte=0,lte=100"`
	SessionMedium    int     `yaml:"session_medium" default:"15" validate:"gte=0,lte=100"`
	SessionLow       int     `yaml:"session_low" default:"0" validate:"gte=0,lte=100"`
	MACDMomentum     int     `yaml:"macd_momentum" default:"15" validate:"gte=0,lte=100"`
	Volume           int     `yaml:"volume" default:"10" validate:"gte=0,lte=100"`
	VolumeFactor     float64 `yaml:"volume_factor" default:"1.3" validate:"gt=0"`
}

func DefaultConfig() Config {
	return Config{
		FullAlignment: 25, PartialAlignment: 15,
		RSIOptimal: 20, RSIAcceptable: 15, RSIExtreme: 5,
		SessionVeryHigh: 20, SessionHigh: 18, SessionMedium: 15, SessionLow: 0,
		MACDMomentum: 15, Volume: 10, VolumeFactor: 1.3,
	}
}

// Scorer is stateless and safe for concurrent use.
type Scorer struct {
	cfg Config
}

func NewScorer(cfg Config) *Scorer { return &Scorer{cfg: cfg} }

// Breakdown lists the points each bucket contributed.
type Breakdown struct {
	Alignment, RSI, Session, Momentum, Volume int
}

func (b Breakdown) Total() int {
	t := b.Alignment + b.RSI + b.Session + b.Momentum + b.Volume
	if t < 0 {
		return 0
	}
	if t > 100 {
		return 100
	}
	return t
}

// Score returns the clamped total.
func (s *Scorer) Score(snap indicator.Snapshot, sess session.Context) int {
	return s.Explain(snap, sess).Total()
}

// Explain scores each bucket separately.
func (s *Scorer) Explain(snap indicator.Snapshot, sess session.Context) Breakdown {
	c := s.cfg
	snap = snap.Neutral()
	var b Breakdown

	switch {
	case snap.EMA20 > snap.EMA50 && snap.EMA50 > snap.EMA200,
		snap.EMA20 < snap.EMA50 && snap.EMA50 < snap.EMA200:
		b.Alignment = c.FullAlignment
	case snap.EMA20 > snap.EMA50 && snap.Close > snap.EMA20,
		snap.EMA20 < snap.EMA50 && snap.Close < snap.EMA20:
		b.Alignment = c.PartialAlignment
	}

	switch rsi := snap.RSI14; {
	case rsi >= 40 && rsi <= 60:
		b.RSI = c.RSIOptimal
	case rsi >= 30 && rsi <= 70:
		b.RSI = c.RSIAcceptable
	default:
		b.RSI = c.RSIExtreme
	}

	switch sess.Volatility {
	case session.VeryHigh:
		b.Session = c.SessionVeryHigh
	case session.High:
		b.Session = c.SessionHigh
	case session.Medium:
		b.Session = c.SessionMedium
	default:
		b.Session = c.SessionLow
	}

	if math.Abs(snap.MACDHist) > math.Abs(snap.MACDHistPrev) {
		b.Momentum = c.MACDMomentum
	}

	if snap.VolumeSMA20 > 0 && snap.Volume > c.VolumeFactor*snap.VolumeSMA20 {
		b.Volume = c.Volume
	}
	return b
}
