// Package engine runs the trading control loop: one cycle per wake moves
// from account state through risk, signals and decisions to orders.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evdnx/tradecore/decision"
	"github.com/evdnx/tradecore/executor"
	"github.com/evdnx/tradecore/feed"
	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/metrics"
	"github.com/evdnx/tradecore/notify"
	"github.com/evdnx/tradecore/order"
	"github.com/evdnx/tradecore/params"
	"github.com/evdnx/tradecore/quality"
	"github.com/evdnx/tradecore/risk"
	"github.com/evdnx/tradecore/session"
	"github.com/evdnx/tradecore/snapshot"
	"github.com/evdnx/tradecore/strategy"
	"github.com/evdnx/tradecore/tradelog"
	"github.com/evdnx/tradecore/types"
)

// Deps are the collaborators of a Loop. Notifier, TradeLog, Store and
// Publisher are optional.
type Deps struct {
	Provider  feed.Provider
	Gateway   executor.Gateway
	Evaluator strategy.Evaluator
	Spreads   strategy.SpreadTable
	Scorer    *quality.Scorer
	Adjuster  *session.Adjuster
	Decider   *decision.Engine
	Risk      *risk.Manager
	Gate      *order.Gate
	Params    params.Source

	Notifier  notify.Notifier
	TradeLog  tradelog.Sink
	Store     *snapshot.Store
	Publisher snapshot.Publisher

	Log   logger.Logger
	Clock func() time.Time
}

// Loop is the control loop of one strategy over a set of symbols.
type Loop struct {
	cfg      Config
	d        Deps
	log      logger.Logger
	strategy types.StrategyID
	interval time.Duration
	symbols  map[string]bool

	backoff   Backoff
	reconnect Backoff

	connected atomic.Bool
	cycles    atomic.Int64

	// Owned by the loop goroutine.
	account    types.Account
	known      map[int64]tracked
	decisions  map[string]types.Decision
	lastParams params.Params
	haveParams bool
	failures   int
	lastErr    error
	wasHalted  bool
}

// tracked is the last observed state of an open position.
type tracked struct {
	pos      types.Position
	strategy string
}

func New(cfg Config, d Deps) (*Loop, error) {
	id, err := types.ParseStrategyID(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	switch {
	case d.Provider == nil, d.Gateway == nil, d.Evaluator == nil, d.Scorer == nil,
		d.Adjuster == nil, d.Decider == nil, d.Risk == nil, d.Gate == nil, d.Params == nil:
		return nil, errors.New("engine: missing dependency")
	case d.Evaluator.ID() != id:
		return nil, fmt.Errorf("engine: evaluator %s does not match strategy %s", d.Evaluator.ID(), id)
	case len(cfg.Symbols) == 0:
		return nil, errors.New("engine: no symbols")
	}
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Spreads == nil {
		d.Spreads = strategy.DefaultSpreadTable()
	}
	syms := make(map[string]bool, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		syms[s] = true
	}
	l := &Loop{
		cfg:       cfg,
		d:         d,
		log:       logger.With(d.Log, logger.String("strategy", id.String())),
		strategy:  id,
		interval:  cfg.Intervals.For(id),
		symbols:   syms,
		backoff:   Backoff{Base: cfg.BackoffBase, Max: cfg.BackoffMax},
		reconnect: Backoff{Base: cfg.ReconnectBase, Max: cfg.ReconnectMax},
		known:     make(map[int64]tracked),
		decisions: make(map[string]types.Decision),
	}
	if l.interval <= 0 {
		l.interval = time.Minute
	}
	l.connected.Store(true)
	return l, nil
}

// Connected reports whether the last health check passed.
func (l *Loop) Connected() bool { return l.connected.Load() }

// Run drives cycles until ctx is cancelled or the consecutive failure
// ceiling is exceeded, in which case the returned error wraps
// types.ErrSessionFatal. The final report is emitted in both cases.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.start(ctx); err != nil {
		return err
	}

	rctx, stopRecovery := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.watchHealth(rctx)
	}()

	err := l.drive(ctx)
	stopRecovery()
	wg.Wait()

	reason := "stopped"
	if err != nil {
		reason = "fatal"
	}
	l.stop(ctx, reason)
	return err
}

// start opens the risk session and seeds position tracking.
func (l *Loop) start(ctx context.Context) error {
	acct, err := call(ctx, l.cfg.CallTimeout, l.d.Gateway.Account)
	if err != nil {
		return fmt.Errorf("engine start: account: %w", err)
	}
	positions, err := call(ctx, l.cfg.CallTimeout, l.d.Gateway.ListOpenPositions)
	if err != nil {
		return fmt.Errorf("engine start: positions: %w", err)
	}
	now := l.d.Clock()
	l.account = acct
	l.d.Risk.StartSession(acct, now)
	for _, p := range positions {
		l.known[p.Ticket] = tracked{pos: p}
	}
	l.log.Info("engine_started",
		logger.Strings("symbols", l.cfg.Symbols),
		logger.Duration("interval", l.interval),
		logger.Float64("balance", acct.Balance),
		logger.Int("open_positions", len(positions)),
	)
	return nil
}

func (l *Loop) drive(ctx context.Context) error {
	var bars <-chan string
	if n, ok := l.d.Provider.(feed.BarNotifier); ok {
		bars = n.NewBars()
	}
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case sym, ok := <-bars:
			if !ok {
				bars = nil
				continue
			}
			// a pending failure backoff is not cut short by new bars
			if !l.symbols[sym] || l.failures > 0 {
				continue
			}
			// Consume a pending tick so the wake is not doubled.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		wait := l.interval
		if err := l.runCycle(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, context.Canceled) {
				return nil
			}
			l.failures++
			l.lastErr = err
			l.log.Warn("cycle_failed",
				logger.Int("consecutive_failures", l.failures),
				logger.Int("ceiling", l.cfg.MaxConsecutiveFailures),
				logger.Err(err),
			)
			if l.failures > l.cfg.MaxConsecutiveFailures {
				l.publish(ctx)
				return fmt.Errorf("%w: %d failed cycles, last: %v", types.ErrSessionFatal, l.failures, err)
			}
			wait = l.backoff.Delay(l.failures - 1)
		} else {
			l.failures = 0
			l.lastErr = nil
		}
		l.publish(ctx)
		timer.Reset(wait)
	}
}

func (l *Loop) runCycle(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.CycleDuration.Observe(time.Since(start).Seconds()) }()
	l.cycles.Add(1)
	return l.cycle(ctx)
}

// stop liquidates when asked, emits the final report and publishes the
// terminal status. It runs on a context detached from cancellation.
func (l *Loop) stop(parent context.Context, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), l.cfg.StopTimeout)
	defer cancel()

	if l.cfg.LiquidateOnStop {
		if err := l.liquidate(ctx); err != nil {
			l.log.Error("liquidation_failed", logger.Err(err))
		}
	}
	rep := NewReport(l.d.Risk.Snapshot(), reason)
	l.log.Info("session_report", rep.fields()...)
	l.notify(ctx, notify.Message{Kind: notify.KindReport, Text: rep.String()})

	st := l.status()
	st.Terminated = true
	l.emit(ctx, st)
	if l.d.TradeLog != nil {
		if err := l.d.TradeLog.Close(); err != nil {
			l.log.Warn("tradelog_close_failed", logger.Err(err))
		}
	}
}

// liquidate closes every open position under the gate lock.
func (l *Loop) liquidate(ctx context.Context) error {
	return l.d.Gate.Exclusive(ctx, func(ctx context.Context) error {
		positions, err := call(ctx, l.cfg.CallTimeout, l.d.Gateway.ListOpenPositions)
		if err != nil {
			return err
		}
		var errs []error
		for _, p := range positions {
			cctx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
			err := l.d.Gateway.ClosePosition(cctx, p.Ticket)
			cancel()
			if err != nil {
				errs = append(errs, fmt.Errorf("close %d: %w", p.Ticket, err))
				continue
			}
			l.log.Info("position_liquidated", logger.Int64("ticket", p.Ticket), logger.String("symbol", p.Symbol), logger.Float64("profit", p.Profit))
		}
		return errors.Join(errs...)
	})
}

func (l *Loop) notify(ctx context.Context, msg notify.Message) {
	if msg.Time.IsZero() {
		msg.Time = l.d.Clock().UTC()
	}
	if err := l.d.Notifier.Send(ctx, msg); err != nil {
		l.log.Warn("notify_failed", logger.String("kind", msg.Kind), logger.String("symbol", msg.Symbol), logger.Err(err))
	}
}

// call runs fn under a per-call timeout.
func call[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(cctx)
}
