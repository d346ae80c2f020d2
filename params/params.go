package params

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/order"
	"github.com/evdnx/tradecore/types"
)

// Strategies holds the order specification of each strategy.
type Strategies struct {
	Scalping  order.Params `yaml:"scalping"`
	HFT       order.Params `yaml:"hft"`
	Intraday  order.Params `yaml:"intraday"`
	Arbitrage order.Params `yaml:"arbitrage"`
}

// Params is the operator-tunable trading surface, read once per cycle.
// Percentages are whole numbers (5 means 5%).
type Params struct {
	Strategies      Strategies `yaml:"strategies"`
	MaxPositions    int        `yaml:"max_positions" validate:"gte=0"`
	MaxDrawdownPct  float64    `yaml:"max_drawdown_pct" validate:"gte=0,lt=100"`
	ProfitTargetPct float64    `yaml:"profit_target_pct" validate:"gte=0"`
	AutoLot         bool       `yaml:"auto_lot"`
	RiskPct         float64    `yaml:"risk_pct" validate:"gte=0,lte=100"`
}

// Default returns conservative paper-trading values.
func Default() Params {
	pips := func(v float64) order.Level { return order.Level{Value: v, Unit: order.Pips} }
	return Params{
		Strategies: Strategies{
			Scalping:  order.Params{Lot: 0.01, TP: pips(10), SL: pips(8)},
			HFT:       order.Params{Lot: 0.01, TP: pips(5), SL: pips(5)},
			Intraday:  order.Params{Lot: 0.01, TP: pips(100), SL: pips(50)},
			Arbitrage: order.Params{Lot: 0.01, TP: pips(20), SL: pips(15)},
		},
		MaxPositions:    5,
		MaxDrawdownPct:  5,
		ProfitTargetPct: 10,
		RiskPct:         1,
	}
}

// For returns the order specification of id.
func (p Params) For(id types.StrategyID) order.Params {
	switch id {
	case types.Scalping:
		return p.Strategies.Scalping
	case types.HFT:
		return p.Strategies.HFT
	case types.Intraday:
		return p.Strategies.Intraday
	case types.Arbitrage:
		return p.Strategies.Arbitrage
	}
	return order.Params{}
}

func (p Params) Sizing() order.Sizing {
	return order.Sizing{AutoLot: p.AutoLot, RiskPct: p.RiskPct}
}

var validate = validator.New()

// Validate checks field bounds and that every strategy trades a lot.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	for _, id := range types.AllStrategies() {
		sp := p.For(id)
		if sp.Lot <= 0 {
			return fmt.Errorf("%s: lot must be positive", id)
		}
		if sp.TP.Value < 0 || sp.SL.Value < 0 {
			return fmt.Errorf("%s: levels cannot be negative", id)
		}
	}
	return nil
}

// Source supplies the parameters for one cycle.
type Source interface {
	Params(ctx context.Context) (Params, error)
}

// StaticSource serves a fixed set of parameters that tests and operators
// may replace at any time.
type StaticSource struct {
	mu sync.RWMutex
	p  Params
}

func NewStaticSource(p Params) *StaticSource { return &StaticSource{p: p} }

func (s *StaticSource) Params(context.Context) (Params, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p, nil
}

func (s *StaticSource) Set(p Params) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

// FileSource re-reads a YAML file whenever its modification time
// changes. Fields missing from the file keep the values of base. A file
// that fails to read, parse or validate leaves the last good parameters
// in place.
type FileSource struct {
	path string
	base Params
	log  logger.Logger

	mu      sync.Mutex
	modTime time.Time
	current Params
	loaded  bool
}

func NewFileSource(path string, base Params, log logger.Logger) *FileSource {
	if log == nil {
		log = logger.NewNop()
	}
	return &FileSource{path: path, base: base, current: base, log: log}
}

func (f *FileSource) Params(ctx context.Context) (Params, error) {
	if err := ctx.Err(); err != nil {
		return Params{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := os.Stat(f.path)
	if err != nil {
		return f.fallback(fmt.Errorf("stat params: %w", err))
	}
	if f.loaded && st.ModTime().Equal(f.modTime) {
		return f.current, nil
	}
	p, err := f.read()
	if err != nil {
		// Retry on the next change only.
		f.modTime = st.ModTime()
		return f.fallback(err)
	}
	f.current, f.modTime, f.loaded = p, st.ModTime(), true
	f.log.Info("params_loaded",
		logger.String("path", f.path),
		logger.Int("max_positions", p.MaxPositions),
		logger.Bool("auto_lot", p.AutoLot),
	)
	return p, nil
}

func (f *FileSource) read() (Params, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return Params{}, fmt.Errorf("read params: %w", err)
	}
	p := f.base
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Params{}, fmt.Errorf("parse params: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, fmt.Errorf("validate params: %w", err)
	}
	return p, nil
}

// fallback serves the last good parameters, or the base set before any
// file was read, and logs err.
func (f *FileSource) fallback(err error) (Params, error) {
	f.log.Warn("params_reload_failed", logger.String("path", f.path), logger.Bool("have_last", f.loaded), logger.Err(err))
	return f.current, nil
}
