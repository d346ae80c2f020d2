package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/tradecore/decision"
	"github.com/evdnx/tradecore/feed"
	"github.com/evdnx/tradecore/notify"
	"github.com/evdnx/tradecore/order"
	"github.com/evdnx/tradecore/params"
	"github.com/evdnx/tradecore/quality"
	"github.com/evdnx/tradecore/risk"
	"github.com/evdnx/tradecore/session"
	"github.com/evdnx/tradecore/snapshot"
	"github.com/evdnx/tradecore/strategy"
	"github.com/evdnx/tradecore/testutils"
	"github.com/evdnx/tradecore/tradelog"
	"github.com/evdnx/tradecore/types"
)

var t0 = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

type stubEvaluator struct {
	id        types.StrategyID
	buy, sell float64
}

func (s stubEvaluator) ID() types.StrategyID { return s.id }

func (s stubEvaluator) Evaluate(strategy.Input) types.Signal {
	return types.Signal{Strategy: s.id, BuyScore: s.buy, SellScore: s.sell, Reasons: []string{"stub"}}
}

type recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recorder) Send(_ context.Context, m notify.Message) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
	return nil
}

func (r *recorder) kinds(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

type memorySink struct {
	mu      sync.Mutex
	records []tradelog.Record
	closed  bool
}

func (s *memorySink) Append(_ context.Context, r tradelog.Record) error {
	s.mu.Lock()
	s.records = append(s.records, r)
	s.mu.Unlock()
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *memorySink) all() []tradelog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tradelog.Record(nil), s.records...)
}

type countingPublisher struct {
	mu   sync.Mutex
	last []snapshot.Status
}

func (p *countingPublisher) Publish(_ context.Context, s snapshot.Status) error {
	p.mu.Lock()
	p.last = append(p.last, s)
	p.mu.Unlock()
	return nil
}

type harness struct {
	loop   *Loop
	gw     *testutils.MockGateway
	sim    *feed.SimProvider
	gate   *order.Gate
	risk   *risk.Manager
	params *params.StaticSource
	log    *testutils.MockLogger
	notes  *recorder
	trades *memorySink
	store  *snapshot.Store
	pub    *countingPublisher
}

type setup struct {
	eval    *stubEvaluator
	history int
	clock   func() time.Time
	mutate  func(*Config)
	params  func(*params.Params)
}

func newHarness(t *testing.T, s setup) *harness {
	t.Helper()
	if s.eval == nil {
		s.eval = &stubEvaluator{id: types.Scalping, buy: 10}
	}
	if s.clock == nil {
		s.clock = func() time.Time { return t0 }
	}
	log := testutils.NewMockLogger()
	opts := []feed.SimOption{feed.WithSimClock(func() time.Time { return t0 })}
	if s.history > 0 {
		opts = append(opts, feed.WithHistory(s.history))
	}
	sim, err := feed.NewSimProvider(7, time.Minute, []string{"EURUSD"}, log, opts...)
	require.NoError(t, err)

	gw := testutils.NewMockGateway(10_000)
	rm, err := risk.NewManager(risk.DefaultConfig(), gw, log)
	require.NoError(t, err)
	gate := order.NewGate(gw, order.NewConverter(sim), order.GateConfig{
		MinInterval:       time.Minute,
		StopSafety:        order.DefaultStopSafety,
		SubmitTimeout:     time.Second,
		RetryWithoutStops: true,
	}, log)
	gate.SetClock(func() time.Time { return t0 })

	adj, err := session.NewAdjuster(session.DefaultConfig())
	require.NoError(t, err)
	dcfg := decision.DefaultConfig()
	dcfg.RescueMaxGap = 0

	p := params.Default()
	if s.params != nil {
		s.params(&p)
	}
	src := params.NewStaticSource(p)

	cfg := DefaultConfig("EURUSD")
	cfg.Strategy = s.eval.id.String()
	if s.mutate != nil {
		s.mutate(&cfg)
	}

	h := &harness{
		gw: gw, sim: sim, gate: gate, risk: rm, params: src, log: log,
		notes: &recorder{}, trades: &memorySink{}, store: snapshot.NewStore(), pub: &countingPublisher{},
	}
	h.loop, err = New(cfg, Deps{
		Provider:  sim,
		Gateway:   gw,
		Evaluator: *s.eval,
		Scorer:    quality.NewScorer(quality.DefaultConfig()),
		Adjuster:  adj,
		Decider:   decision.NewEngine(dcfg, nil, log),
		Risk:      rm,
		Gate:      gate,
		Params:    src,
		Notifier:  h.notes,
		TradeLog:  h.trades,
		Store:     h.store,
		Publisher: h.pub,
		Log:       log,
		Clock:     s.clock,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) started(t *testing.T) *harness {
	t.Helper()
	require.NoError(t, h.loop.start(context.Background()))
	return h
}

func TestNewRejectsMismatchedEvaluator(t *testing.T) {
	_, err := New(DefaultConfig("EURUSD"), Deps{})
	require.Error(t, err)

	h := newHarness(t, setup{})
	d := h.loop.d
	d.Evaluator = stubEvaluator{id: types.HFT}
	_, err = New(DefaultConfig("EURUSD"), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")

	cfg := DefaultConfig()
	_, err = New(cfg, h.loop.d)
	require.Error(t, err)
}

func TestCycleSubmitsApprovedOrder(t *testing.T) {
	h := newHarness(t, setup{}).started(t)
	ctx := context.Background()

	require.NoError(t, h.loop.runCycle(ctx))

	orders := h.gw.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, types.Buy, orders[0].Side)
	assert.Equal(t, "EURUSD", orders[0].Symbol)
	assert.Greater(t, orders[0].StopLoss, 0.0)
	assert.Less(t, orders[0].StopLoss, orders[0].Entry)

	d := h.loop.decisions["EURUSD"]
	assert.Equal(t, types.ActionBuy, d.Action)
	assert.Contains(t, h.loop.known, int64(1))

	recs := h.trades.all()
	require.Len(t, recs, 1)
	assert.Equal(t, tradelog.Open, recs[0].Event)
	assert.Equal(t, "scalping", recs[0].Strategy)
	assert.Equal(t, 1, h.notes.kinds(notify.KindOrder))

	h.loop.publish(ctx)
	st, ok := h.store.Get()
	require.True(t, ok)
	assert.Equal(t, int64(1), st.Cycle)
	assert.Len(t, st.Positions, 1)
	assert.Equal(t, types.ActionBuy, st.Decisions["EURUSD"].Action)
	assert.True(t, st.Connected)
	assert.Len(t, h.pub.last, 1)
}

func TestCycleWaitSubmitsNothing(t *testing.T) {
	h := newHarness(t, setup{eval: &stubEvaluator{id: types.Scalping}}).started(t)

	require.NoError(t, h.loop.cycle(context.Background()))
	assert.Empty(t, h.gw.Orders())
	assert.Equal(t, types.ActionWait, h.loop.decisions["EURUSD"].Action)
}

func TestCycleRespectsMaxPositions(t *testing.T) {
	h := newHarness(t, setup{params: func(p *params.Params) { p.MaxPositions = 1 }})
	h.gw.AddPosition(types.Position{Symbol: "GBPUSD", Side: types.Sell, Lot: 0.01, OpenPrice: 1.26})
	h.started(t)

	require.NoError(t, h.loop.cycle(context.Background()))
	assert.Empty(t, h.gw.Orders())
	assert.True(t, h.log.Has("max_positions_reached"))
}

func TestCycleSkipsRateLimitedSymbol(t *testing.T) {
	h := newHarness(t, setup{}).started(t)
	ctx := context.Background()

	require.NoError(t, h.loop.cycle(ctx))
	require.NoError(t, h.loop.cycle(ctx))
	assert.Len(t, h.gw.Orders(), 1)
}

func TestClosedTradeIsRecorded(t *testing.T) {
	h := newHarness(t, setup{}).started(t)
	ctx := context.Background()

	require.NoError(t, h.loop.cycle(ctx))
	h.gw.SetProfit(1, -25)
	require.NoError(t, h.loop.cycle(ctx))
	h.gw.Drop(1)
	require.NoError(t, h.loop.cycle(ctx))

	st := h.risk.Snapshot()
	assert.Equal(t, 1, st.Trades)
	assert.Equal(t, 1, st.Losses)
	assert.Equal(t, 1, st.LossStreak)
	assert.InDelta(t, -25, st.RealisedPL, 1e-9)
	assert.NotContains(t, h.loop.known, int64(1))

	recs := h.trades.all()
	require.Len(t, recs, 2)
	assert.Equal(t, tradelog.Close, recs[1].Event)
	assert.Equal(t, int64(1), recs[1].Ticket)
	assert.InDelta(t, -25, recs[1].Profit, 1e-9)
	assert.Equal(t, "scalping", recs[1].Strategy)
	assert.Equal(t, 1, h.notes.kinds(notify.KindTradeClosed))
}

func TestRiskHaltRecordsHaltDecisions(t *testing.T) {
	h := newHarness(t, setup{}).started(t)
	ctx := context.Background()
	h.gw.SetAccount(types.Account{Balance: 10_000, Equity: 9_000, FreeMargin: 9_000, Currency: "USD"})

	require.NoError(t, h.loop.cycle(ctx))
	require.NoError(t, h.loop.cycle(ctx))

	d := h.loop.decisions["EURUSD"]
	assert.True(t, d.RiskHalt)
	assert.Equal(t, types.ActionWait, d.Action)
	assert.Empty(t, h.gw.Orders())
	assert.True(t, h.risk.Snapshot().Halted)
	assert.Equal(t, 1, h.notes.kinds(notify.KindRiskHalt))
}

func TestParamsTightenDrawdownLimit(t *testing.T) {
	h := newHarness(t, setup{params: func(p *params.Params) { p.MaxDrawdownPct = 2 }}).started(t)
	h.gw.SetAccount(types.Account{Balance: 10_000, Equity: 9_700, FreeMargin: 9_700, Currency: "USD"})

	require.NoError(t, h.loop.cycle(context.Background()))
	assert.True(t, h.risk.Snapshot().Halted)
	assert.Equal(t, risk.ReasonDrawdown, h.risk.Snapshot().HaltReason)
}

func TestStaleQuoteFailsCycle(t *testing.T) {
	h := newHarness(t, setup{clock: func() time.Time { return t0.Add(time.Minute) }}).started(t)

	err := h.loop.cycle(context.Background())
	require.ErrorIs(t, err, types.ErrQuoteUnavailable)
	assert.Empty(t, h.gw.Orders())
	assert.True(t, h.log.Has("cycle_step_failed"))
}

func TestShortHistoryFailsCycle(t *testing.T) {
	h := newHarness(t, setup{history: 20}).started(t)

	err := h.loop.cycle(context.Background())
	require.ErrorIs(t, err, types.ErrDataInsufficient)
	assert.Equal(t, "data_insufficient", errorKind(err))
}

func TestStartFailsWithoutAccount(t *testing.T) {
	h := newHarness(t, setup{})
	h.gw.AccountErr = errors.New("login failed")
	err := h.loop.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine start")
}

func TestRunStopsAfterFailureCeiling(t *testing.T) {
	h := newHarness(t, setup{mutate: func(c *Config) {
		c.MaxConsecutiveFailures = 2
		c.BackoffBase = time.Millisecond
		c.BackoffMax = 4 * time.Millisecond
		c.HealthInterval = time.Hour
	}})
	h.sim.SetOnline(false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := h.loop.Run(ctx)
	require.ErrorIs(t, err, types.ErrSessionFatal)
	assert.Equal(t, 3, h.log.Count("cycle_failed"))

	st, ok := h.store.Get()
	require.True(t, ok)
	assert.True(t, st.Terminated)
	assert.Equal(t, 3, st.Failures)
	assert.NotEmpty(t, st.LastError)
	assert.True(t, h.log.Has("session_report"))
	assert.Equal(t, 1, h.notes.kinds(notify.KindReport))
	assert.True(t, h.trades.closed)
}

func TestNewBarsDoNotCutBackoffShort(t *testing.T) {
	h := newHarness(t, setup{mutate: func(c *Config) {
		c.BackoffBase = time.Hour
		c.BackoffMax = time.Hour
		c.HealthInterval = time.Hour
	}})
	h.sim.SetOnline(false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	require.Eventually(t, func() bool { return h.log.Count("cycle_failed") == 1 }, 2*time.Second, 5*time.Millisecond)
	for i := 0; i < 5; i++ {
		h.sim.Advance()
	}
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, h.log.Count("cycle_failed"))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestRunLiquidatesOnStop(t *testing.T) {
	h := newHarness(t, setup{mutate: func(c *Config) {
		c.LiquidateOnStop = true
		c.HealthInterval = time.Hour
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	require.Eventually(t, func() bool { return len(h.gw.Orders()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
	assert.Equal(t, []int64{1}, h.gw.Closed())
	assert.True(t, h.log.Has("position_liquidated"))
	assert.True(t, h.log.Has("session_report"))

	st, ok := h.store.Get()
	require.True(t, ok)
	assert.True(t, st.Terminated)
}

func TestHealthWatchSuspendsAndRestores(t *testing.T) {
	h := newHarness(t, setup{mutate: func(c *Config) {
		c.HealthInterval = 5 * time.Millisecond
		c.ReconnectBase = 5 * time.Millisecond
		c.ReconnectMax = 10 * time.Millisecond
		c.CallTimeout = 100 * time.Millisecond
	}})
	h.gw.SetPingErr(fmt.Errorf("%w: broker unreachable", types.ErrConnectivityLost))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.loop.watchHealth(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	require.Eventually(t, func() bool { return h.gate.Suspended() && !h.loop.Connected() }, 2*time.Second, time.Millisecond)

	_, err := h.gate.Submit(ctx, order.Intent{Instrument: types.Instrument{Symbol: "EURUSD"}}, nil)
	require.ErrorIs(t, err, types.ErrConnectivityLost)

	h.gw.SetPingErr(nil)
	require.Eventually(t, func() bool { return !h.gate.Suspended() && h.loop.Connected() }, 2*time.Second, time.Millisecond)
	assert.True(t, h.log.Has("connectivity_lost"))
	assert.True(t, h.log.Has("connectivity_restored"))
	assert.GreaterOrEqual(t, h.notes.kinds(notify.KindConnectivity), 2)
}

func TestBackoffDoublesUpToMax(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 10 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for i, w := range want {
		assert.Equal(t, w, b.Delay(i), "attempt %d", i)
	}
	assert.Equal(t, 10*time.Second, b.Delay(500))
	assert.Zero(t, Backoff{}.Delay(3))
}

func TestSleepHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
	require.NoError(t, sleep(context.Background(), time.Millisecond))
}

func TestReport(t *testing.T) {
	r := NewReport(risk.State{Trades: 4, Wins: 3, Losses: 1, GrossProfit: 30, GrossLoss: 10, RealisedPL: 20, Equity: 10_020}, "stopped")
	assert.InDelta(t, 75, r.WinRate, 1e-9)
	assert.InDelta(t, 3, r.ProfitFactor, 1e-9)
	assert.Contains(t, r.String(), "4 trades")

	r = NewReport(risk.State{Trades: 1, Wins: 1, GrossProfit: 5}, "fatal")
	assert.True(t, math.IsInf(r.ProfitFactor, 1))
	assert.Contains(t, r.String(), "profit factor inf")

	r = NewReport(risk.State{}, "stopped")
	assert.Zero(t, r.WinRate)
	assert.Zero(t, r.ProfitFactor)
}

func TestErrorKind(t *testing.T) {
	cases := map[string]error{
		"timeout":           fmt.Errorf("bars: %w", context.DeadlineExceeded),
		"data_insufficient": fmt.Errorf("x: %w", types.ErrDataInsufficient),
		"invalid_series":    types.ErrInvalidSeries,
		"quote_unavailable": fmt.Errorf("x: %w", types.ErrQuoteUnavailable),
		"connectivity":      types.ErrConnectivityLost,
		"validation":        &order.ValidationError{Symbol: "EURUSD", Field: "lot", Reason: "too small"},
		"gateway_rejected":  types.ErrGatewayRejected,
		"other":             errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, errorKind(err), want)
	}

	_, _, err := order.Resolve(order.Level{Value: 50, Unit: order.Money}, order.StopLoss, order.LevelContext{Entry: 1.1})
	assert.Equal(t, "validation", errorKind(fmt.Errorf("levels: %w", err)))
}
