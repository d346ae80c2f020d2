// Package app wires a configuration into a running paper trading core:
// simulated feed, paper gateway, control loop, sinks and HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evdnx/tradecore/api"
	"github.com/evdnx/tradecore/config"
	"github.com/evdnx/tradecore/decision"
	"github.com/evdnx/tradecore/engine"
	"github.com/evdnx/tradecore/executor"
	"github.com/evdnx/tradecore/feed"
	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/notify"
	"github.com/evdnx/tradecore/order"
	"github.com/evdnx/tradecore/params"
	"github.com/evdnx/tradecore/quality"
	"github.com/evdnx/tradecore/risk"
	"github.com/evdnx/tradecore/session"
	"github.com/evdnx/tradecore/snapshot"
	"github.com/evdnx/tradecore/strategy"
	"github.com/evdnx/tradecore/structure"
	"github.com/evdnx/tradecore/tradelog"
	"github.com/evdnx/tradecore/types"
)

// App owns every long-lived component.
type App struct {
	cfg *config.Config
	log logger.Logger

	Sim   *feed.SimProvider
	Paper *executor.PaperGateway
	Loop  *engine.Loop
	API   *api.Server
	Store *snapshot.Store

	dispatcher *notify.Dispatcher
	closers    []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Build constructs the application. Connections opened before a failure
// are closed again.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	if log == nil {
		log = logger.NewNop()
	}
	a := &App{cfg: cfg, log: log, Store: snapshot.NewStore()}
	built := false
	defer func() {
		if !built {
			a.shutdown(context.Background())
		}
	}()

	id, err := types.ParseStrategyID(cfg.Engine.Strategy)
	if err != nil {
		return nil, err
	}

	// 1️⃣ Market and broker.
	a.Sim, err = feed.NewSimProvider(cfg.Paper.Seed, cfg.Engine.Timeframe, cfg.Engine.Symbols, log, feed.WithHistory(cfg.Paper.History))
	if err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}
	conv := order.NewConverter(a.Sim)
	a.Paper = executor.NewPaperGateway(cfg.Paper.Balance, cfg.Paper.Currency, a.Sim, log,
		executor.WithLeverage(cfg.Paper.Leverage),
		executor.WithConverter(conv),
	)

	// 2️⃣ Decision pipeline.
	eval, err := strategy.New(id, cfg.Strategy, log)
	if err != nil {
		return nil, err
	}
	adj, err := session.NewAdjuster(cfg.Sessions)
	if err != nil {
		return nil, fmt.Errorf("sessions: %w", err)
	}
	analyzer, err := structure.NewGotiAnalyzer(cfg.Structure, log)
	if err != nil {
		return nil, fmt.Errorf("structure: %w", err)
	}
	rm, err := risk.NewManager(cfg.Risk, a.Paper, log)
	if err != nil {
		return nil, err
	}

	var src params.Source = params.NewStaticSource(cfg.Params)
	if cfg.ParamsFile != "" {
		src = params.NewFileSource(cfg.ParamsFile, cfg.Params, log)
	}

	// 3️⃣ Outputs.
	notifier, err := a.notifier(cfg.Notify)
	if err != nil {
		return nil, err
	}
	a.dispatcher = notify.NewDispatcher(notifier, cfg.Notify.QueueSize, cfg.Notify.SendTimeout, log)
	trades, err := a.tradeLog(ctx, cfg.TradeLog)
	if err != nil {
		return nil, err
	}
	if trades != nil {
		defer func() {
			if !built {
				_ = trades.Close()
			}
		}()
	}
	var pub snapshot.Publisher
	if cfg.Snapshot.Redis.Enabled {
		rp, err := snapshot.NewRedisPublisher(ctx, cfg.Snapshot.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, namedCloser{"redis", rp.Close})
		pub = rp
	}

	a.Loop, err = engine.New(cfg.Engine, engine.Deps{
		Provider:  a.Sim,
		Gateway:   a.Paper,
		Evaluator: eval,
		Spreads:   cfg.Strategy.Spread,
		Scorer:    quality.NewScorer(cfg.Quality),
		Adjuster:  adj,
		Decider:   decision.NewEngine(cfg.Decision, analyzer, log),
		Risk:      rm,
		Gate:      order.NewGate(a.Paper, conv, cfg.Gate, log),
		Params:    src,
		Notifier:  a.dispatcher,
		TradeLog:  trades,
		Store:     a.Store,
		Publisher: pub,
		Log:       log,
	})
	if err != nil {
		return nil, err
	}
	a.API = api.NewServer(cfg.API, a.Store, log)
	built = true
	return a, nil
}

func (a *App) notifier(cfg notify.Config) (notify.Notifier, error) {
	switch cfg.Backend {
	case "nats":
		n, err := notify.NewNATSNotifier(cfg.NATS, a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, namedCloser{"nats", n.Close})
		return notify.Multi{notify.NewLogNotifier(a.log), n}, nil
	case "none":
		return notify.Nop{}, nil
	}
	return notify.NewLogNotifier(a.log), nil
}

// tradeLog opens every enabled sink. The returned sink is closed by the
// control loop when it stops.
func (a *App) tradeLog(ctx context.Context, cfg tradelog.Config) (tradelog.Sink, error) {
	var sinks []tradelog.Named
	var opened []tradelog.Sink
	fail := func(err error) (tradelog.Sink, error) {
		for _, s := range opened {
			_ = s.Close()
		}
		return nil, err
	}
	if cfg.File.Enabled {
		s, err := tradelog.NewFileSink(cfg.File.Path)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, s)
		sinks = append(sinks, tradelog.Named{Name: "file", Sink: s})
	}
	if cfg.Kafka.Enabled {
		s, err := tradelog.NewKafkaSink(cfg.Kafka)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, s)
		sinks = append(sinks, tradelog.Named{Name: "kafka", Sink: s})
	}
	if cfg.ClickHouse.Enabled {
		s, err := tradelog.NewClickHouseSink(ctx, cfg.ClickHouse)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, s)
		sinks = append(sinks, tradelog.Named{Name: "clickhouse", Sink: s})
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	m := tradelog.NewMulti(a.log, sinks...)
	a.log.Info("tradelog_ready", logger.Int("sinks", m.Len()))
	return m, nil
}

// Run serves the market simulator, the control loop and the API until ctx
// ends or one of them fails. A fatal loop error is returned.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Sim.Run(gctx) })
	g.Go(func() error { return a.Loop.Run(gctx) })
	g.Go(func() error { return a.API.Run(gctx) })
	err := g.Wait()

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.shutdown(sctx)
	return err
}

func (a *App) shutdown(ctx context.Context) {
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil {
			a.log.Warn("notify_drain_failed", logger.Err(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("close_failed", logger.String("component", c.name), logger.Err(err))
		}
	}
	a.closers = nil
}
