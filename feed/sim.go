package feed

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/types"
)

// simSpec describes how one simulated symbol moves.
type simSpec struct {
	inst       types.Instrument
	start      float64
	volatility float64 // per-bar std of log returns
	spread     float64 // in points
}

var simSpecs = map[string]simSpec{
	"EURUSD": {types.Instrument{Symbol: "EURUSD", Digits: 5, Point: 0.00001, ContractSize: 100_000, MinLot: 0.01, MaxLot: 100, LotStep: 0.01, StopsLevel: 10, BaseCurrency: "EUR", QuoteCurrency: "USD"}, 1.0850, 0.0004, 8},
	"GBPUSD": {types.Instrument{Symbol: "GBPUSD", Digits: 5, Point: 0.00001, ContractSize: 100_000, MinLot: 0.01, MaxLot: 100, LotStep: 0.01, StopsLevel: 10, BaseCurrency: "GBP", QuoteCurrency: "USD"}, 1.2650, 0.0005, 12},
	"USDJPY": {types.Instrument{Symbol: "USDJPY", Digits: 3, Point: 0.001, ContractSize: 100_000, MinLot: 0.01, MaxLot: 100, LotStep: 0.01, StopsLevel: 10, BaseCurrency: "USD", QuoteCurrency: "JPY"}, 150.20, 0.0004, 10},
	"XAUUSD": {types.Instrument{Symbol: "XAUUSD", Digits: 2, Point: 0.01, ContractSize: 100, MinLot: 0.01, MaxLot: 50, LotStep: 0.01, StopsLevel: 20, BaseCurrency: "XAU", QuoteCurrency: "USD"}, 2030.0, 0.0008, 25},
	"BTCUSD": {types.Instrument{Symbol: "BTCUSD", Digits: 2, Point: 0.01, ContractSize: 1, MinLot: 0.01, MaxLot: 10, LotStep: 0.01, StopsLevel: 100, BaseCurrency: "BTC", QuoteCurrency: "USD"}, 43000, 0.002, 1500},
	"US30":   {types.Instrument{Symbol: "US30", Digits: 1, Point: 0.1, ContractSize: 1, MinLot: 0.1, MaxLot: 100, LotStep: 0.1, StopsLevel: 50, BaseCurrency: "USD", QuoteCurrency: "USD"}, 38500, 0.0006, 20},
}

// SimSymbols lists the symbols the simulator knows.
func SimSymbols() []string {
	out := make([]string, 0, len(simSpecs))
	for s := range simSpecs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

type simSeries struct {
	spec simSpec
	rng  *rand.Rand
	bars []types.Bar
	last types.Quote
}

// SimProvider is a deterministic random walk market for paper trading.
// Every symbol has its own generator seeded from the provider seed, so a
// given seed always produces the same bars.
type SimProvider struct {
	mu        sync.RWMutex
	timeframe time.Duration
	history   int
	series    map[string]*simSeries
	now       func() time.Time
	notify    chan string
	down      bool
	log       logger.Logger
}

// SimOption customises a SimProvider.
type SimOption func(*SimProvider)

func WithSimClock(now func() time.Time) SimOption { return func(s *SimProvider) { s.now = now } }

// WithHistory sets how many bars are pre-generated per symbol.
func WithHistory(n int) SimOption { return func(s *SimProvider) { s.history = n } }

func NewSimProvider(seed int64, timeframe time.Duration, symbols []string, log logger.Logger, opts ...SimOption) (*SimProvider, error) {
	if timeframe <= 0 {
		return nil, fmt.Errorf("feed: timeframe must be positive")
	}
	if log == nil {
		log = logger.NewNop()
	}
	s := &SimProvider{
		timeframe: timeframe,
		history:   300,
		series:    make(map[string]*simSeries, len(symbols)),
		now:       time.Now,
		notify:    make(chan string, 64),
		log:       log,
	}
	for _, o := range opts {
		o(s)
	}
	end := s.now().UTC().Truncate(timeframe)
	for i, sym := range symbols {
		spec, ok := simSpecs[sym]
		if !ok {
			return nil, fmt.Errorf("feed: no simulation profile for %q", sym)
		}
		ser := &simSeries{spec: spec, rng: rand.New(rand.NewSource(seed + int64(i)*7919))}
		price := spec.start
		for j := s.history; j > 0; j-- {
			price = ser.appendBar(end.Add(-time.Duration(j)*timeframe), price)
		}
		ser.quote(end)
		s.series[sym] = ser
	}
	return s, nil
}

// appendBar adds one bar opening at open and returns its close.
func (ser *simSeries) appendBar(t time.Time, open float64) float64 {
	sp := ser.spec
	ret := ser.rng.NormFloat64() * sp.volatility
	cl := open * math.Exp(ret)
	high := math.Max(open, cl) + math.Abs(ser.rng.NormFloat64())*sp.volatility*open*0.5
	low := math.Min(open, cl) - math.Abs(ser.rng.NormFloat64())*sp.volatility*open*0.5
	r := func(v float64) float64 {
		p := math.Pow(10, float64(sp.inst.Digits))
		return math.Round(v*p) / p
	}
	ser.bars = append(ser.bars, types.Bar{
		Time:   t,
		Open:   r(open),
		High:   r(high),
		Low:    r(low),
		Close:  r(cl),
		Volume: math.Round(500 + ser.rng.ExpFloat64()*500),
	})
	return cl
}

func (ser *simSeries) quote(now time.Time) types.Quote {
	last := ser.bars[len(ser.bars)-1].Close
	pt := ser.spec.inst.Point
	jitter := math.Round(ser.rng.NormFloat64()*3) * pt
	spread := ser.spec.spread * pt * (0.7 + 0.6*ser.rng.Float64())
	mid := last + jitter
	p := math.Pow(10, float64(ser.spec.inst.Digits))
	q := types.Quote{
		Symbol: ser.spec.inst.Symbol,
		Bid:    math.Round((mid-spread/2)*p) / p,
		Ask:    math.Round((mid+spread/2)*p) / p,
		Time:   now,
	}
	if q.Ask <= q.Bid {
		q.Ask = q.Bid + pt
	}
	ser.last = q
	return q
}

func (s *SimProvider) get(symbol string) (*simSeries, error) {
	if s.down {
		return nil, fmt.Errorf("%w: simulated feed offline", types.ErrConnectivityLost)
	}
	ser, ok := s.series[symbol]
	if !ok {
		return nil, fmt.Errorf("feed: unknown symbol %q", symbol)
	}
	return ser, nil
}

func (s *SimProvider) GetBars(ctx context.Context, symbol string, timeframe time.Duration, count int) (types.BarSeries, error) {
	if err := ctx.Err(); err != nil {
		return types.BarSeries{}, err
	}
	if timeframe != s.timeframe {
		return types.BarSeries{}, fmt.Errorf("feed: simulator serves %s bars, not %s", s.timeframe, timeframe)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ser, err := s.get(symbol)
	if err != nil {
		return types.BarSeries{}, err
	}
	bars := ser.bars
	if count > 0 && count < len(bars) {
		bars = bars[len(bars)-count:]
	}
	out := make([]types.Bar, len(bars))
	copy(out, bars)
	return types.BarSeries{Symbol: symbol, Digits: ser.spec.inst.Digits, Point: ser.spec.inst.Point, Bars: out}, nil
}

// GetQuote returns a fresh tick around the last close.
func (s *SimProvider) GetQuote(ctx context.Context, symbol string) (types.Quote, error) {
	if err := ctx.Err(); err != nil {
		return types.Quote{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ser, err := s.get(symbol)
	if err != nil {
		return types.Quote{}, err
	}
	return ser.quote(s.now()), nil
}

func (s *SimProvider) Instrument(ctx context.Context, symbol string) (types.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ser, err := s.get(symbol)
	if err != nil {
		return types.Instrument{}, err
	}
	return ser.spec.inst, nil
}

// Rate serves currency pair rates from the last quotes, for the order
// package's converter.
func (s *SimProvider) Rate(pair string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ser, ok := s.series[pair]
	if !ok || ser.last.Bid <= 0 {
		return 0, false
	}
	return ser.last.Mid(), true
}

func (s *SimProvider) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.down {
		return fmt.Errorf("%w: simulated feed offline", types.ErrConnectivityLost)
	}
	return nil
}

// SetOnline toggles simulated connectivity.
func (s *SimProvider) SetOnline(ok bool) {
	s.mu.Lock()
	s.down = !ok
	s.mu.Unlock()
}

// Reconnect brings the simulated feed back.
func (s *SimProvider) Reconnect(ctx context.Context) error {
	s.SetOnline(true)
	s.log.Info("feed_reconnected")
	return ctx.Err()
}

func (s *SimProvider) NewBars() <-chan string { return s.notify }

// Advance closes one new bar on every symbol and announces it. Slow
// readers miss notifications rather than block the simulator.
func (s *SimProvider) Advance() {
	s.mu.Lock()
	syms := make([]string, 0, len(s.series))
	for sym, ser := range s.series {
		last := ser.bars[len(ser.bars)-1]
		ser.appendBar(last.Time.Add(s.timeframe), last.Close)
		if len(ser.bars) > 2*s.history {
			ser.bars = append([]types.Bar(nil), ser.bars[len(ser.bars)-s.history:]...)
		}
		ser.quote(s.now())
		syms = append(syms, sym)
	}
	s.mu.Unlock()
	sort.Strings(syms)
	for _, sym := range syms {
		select {
		case s.notify <- sym:
		default:
			s.log.Debug("bar_notification_dropped", logger.String("symbol", sym))
		}
	}
}

// Run advances the market every timeframe until ctx is done.
func (s *SimProvider) Run(ctx context.Context) error {
	t := time.NewTicker(s.timeframe)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Advance()
		}
	}
}
