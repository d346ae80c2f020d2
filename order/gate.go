package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evdnx/tradecore/executor"
	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/metrics"
	"github.com/evdnx/tradecore/risk"
	"github.com/evdnx/tradecore/session"
	"github.com/evdnx/tradecore/types"
)

// Params is the per-strategy order specification.
type Params struct {
	Lot float64 `yaml:"lot" json:"lot" validate:"gte=0"`
	TP  Level   `yaml:"tp" json:"tp"`
	SL  Level   `yaml:"sl" json:"sl"`
}

// Sizing selects fixed or risk-based lots.
type Sizing struct {
	AutoLot bool    `yaml:"auto_lot" json:"auto_lot"`
	RiskPct float64 `yaml:"risk_pct" json:"risk_pct" validate:"gte=0,lte=100"`
}

// Intent is everything the gate needs to turn an approved decision into an
// order.
type Intent struct {
	Decision   types.Decision
	Instrument types.Instrument
	Quote      types.Quote
	Account    types.Account
	Params     Params
	Sizing     Sizing
	Adjustment session.Adjustment
}

// Plan builds the order request for an intent. Entry is the ask for BUY and
// the bid for SELL. The lot is fixed or risk based, scaled by the session
// multiplier and normalised to broker constraints before money based
// levels are resolved.
func Plan(in Intent, conv *Converter, safety float64) (types.OrderRequest, error) {
	side, ok := in.Decision.Action.Side()
	if !ok {
		return types.OrderRequest{}, &ValidationError{Symbol: in.Decision.Symbol, Field: "action", Reason: "WAIT cannot be traded"}
	}
	inst := in.Instrument
	entry := in.Quote.Ask
	if side == types.Sell {
		entry = in.Quote.Bid
	}
	ccy := in.Account.Currency
	lc := LevelContext{
		Instrument:      inst,
		Side:            side,
		Entry:           entry,
		Balance:         in.Account.Balance,
		AccountCurrency: ccy,
		Converter:       conv,
	}

	lot := in.Params.Lot
	if in.Sizing.AutoLot && in.Params.SL.Enabled() && in.Params.SL.Unit != Money && in.Params.SL.Unit != Percent {
		lc.Multiplier = in.Adjustment.SLMultiplier
		_, slDist, err := Resolve(in.Params.SL, StopLoss, lc)
		if err != nil {
			return types.OrderRequest{}, err
		}
		pv, err := PipValue(inst, ccy, conv)
		if err != nil {
			return types.OrderRequest{}, err
		}
		lot = risk.CalcLot(in.Account.Balance, in.Sizing.RiskPct/100, slDist/PipSize(inst), pv)
	}
	if m := in.Adjustment.LotMultiplier; m > 0 {
		lot *= m
	}
	lot = NormalizeLot(lot, inst)
	lc.Lot = lot

	lc.Multiplier = in.Adjustment.SLMultiplier
	sl, _, err := Resolve(in.Params.SL, StopLoss, lc)
	if err != nil {
		return types.OrderRequest{}, err
	}
	lc.Multiplier = in.Adjustment.TPMultiplier
	tp, _, err := Resolve(in.Params.TP, TakeProfit, lc)
	if err != nil {
		return types.OrderRequest{}, err
	}

	req := types.OrderRequest{
		Symbol:     inst.Symbol,
		Side:       side,
		Lot:        lot,
		Entry:      entry,
		StopLoss:   sl,
		TakeProfit: tp,
		Tag:        fmt.Sprintf("tc-%s-%d", in.Decision.Strategy, int(math.Round(in.Decision.Confidence))),
	}
	if err := Validate(req, inst, safety); err != nil {
		return types.OrderRequest{}, err
	}
	return req, nil
}

// GateConfig tunes order dispatch.
type GateConfig struct {
	MinInterval       time.Duration `yaml:"min_retrade_interval" default:"60s"`
	StopSafety        float64       `yaml:"stop_safety" default:"1.1" validate:"gte=1"`
	SubmitTimeout     time.Duration `yaml:"submit_timeout" default:"10s"`
	RetryWithoutStops bool          `yaml:"retry_without_stops" default:"true"`
}

// Result describes an accepted order.
type Result struct {
	Ticket       int64
	Request      types.OrderRequest
	StopsDropped bool
}

// Gate serialises every order submission behind one lock and enforces a
// minimum re-trade interval per symbol.
type Gate struct {
	mu        sync.Mutex
	gw        executor.Gateway
	conv      *Converter
	cfg       GateConfig
	log       logger.Logger
	now       func() time.Time
	last      map[string]time.Time
	suspended atomic.Bool
}

// NewGate wires a gate to a gateway.
func NewGate(gw executor.Gateway, conv *Converter, cfg GateConfig, log logger.Logger) *Gate {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.StopSafety < 1 {
		cfg.StopSafety = DefaultStopSafety
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 10 * time.Second
	}
	return &Gate{gw: gw, conv: conv, cfg: cfg, log: log, now: time.Now, last: make(map[string]time.Time)}
}

// SetClock overrides time.Now.
func (g *Gate) SetClock(now func() time.Time) { g.now = now }

// Suspend blocks new submissions until Resume is called.
func (g *Gate) Suspend()        { g.suspended.Store(true) }
func (g *Gate) Resume()         { g.suspended.Store(false) }
func (g *Gate) Suspended() bool { return g.suspended.Load() }

// Exclusive runs fn while holding the submission lock, so fn never overlaps
// an order in flight.
func (g *Gate) Exclusive(ctx context.Context, fn func(context.Context) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(ctx)
}

// Submit sends one order. allow is invoked under the lock after the rate
// limit check and before the request is built; a non-nil error aborts the
// submission without touching the gateway. The send itself is detached
// from ctx cancellation so an order is never cut off mid-flight.
func (g *Gate) Submit(ctx context.Context, in Intent, allow func() error) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sym := in.Instrument.Symbol
	fields := []logger.Field{
		logger.String("symbol", sym),
		logger.String("strategy", in.Decision.Strategy.String()),
		logger.String("action", string(in.Decision.Action)),
	}
	if g.suspended.Load() {
		metrics.OrdersRejected.WithLabelValues("connectivity").Inc()
		return Result{}, fmt.Errorf("%w: orders suspended", types.ErrConnectivityLost)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	now := g.now()
	if last, ok := g.last[sym]; ok && now.Sub(last) < g.cfg.MinInterval {
		metrics.OrdersRejected.WithLabelValues("rate_limited").Inc()
		return Result{}, fmt.Errorf("%w: %s traded %s ago", types.ErrRateLimited, sym, now.Sub(last).Round(time.Millisecond))
	}
	if allow != nil {
		if err := allow(); err != nil {
			metrics.OrdersRejected.WithLabelValues("risk").Inc()
			return Result{}, err
		}
	}

	req, err := Plan(in, g.conv, g.cfg.StopSafety)
	if err != nil {
		metrics.OrdersRejected.WithLabelValues("validation").Inc()
		g.log.Warn("order_invalid", append(fields, logger.Err(err))...)
		return Result{}, err
	}

	res := Result{Request: req}
	res.Ticket, err = g.send(ctx, req)
	if err != nil && executor.InvalidStops(err) && g.cfg.RetryWithoutStops && (req.StopLoss > 0 || req.TakeProfit > 0) {
		g.log.Warn("order_retry_without_stops", append(fields, logger.Err(err))...)
		res.Request = req.WithoutStops()
		res.StopsDropped = true
		res.Ticket, err = g.send(ctx, res.Request)
	}
	if err != nil {
		reason := "gateway"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.OrdersRejected.WithLabelValues(reason).Inc()
		g.log.Error("order_submit_failed", append(fields,
			logger.String("side", string(req.Side)),
			logger.Float64("lot", req.Lot),
			logger.Err(err))...)
		return Result{}, err
	}

	g.last[sym] = now
	metrics.OrdersSubmitted.WithLabelValues(in.Decision.Strategy.String()).Inc()
	g.log.Info("order_submitted", append(fields,
		logger.String("side", string(res.Request.Side)),
		logger.Float64("lot", res.Request.Lot),
		logger.Float64("price", res.Request.Entry),
		logger.Float64("sl", res.Request.StopLoss),
		logger.Float64("tp", res.Request.TakeProfit),
		logger.Int64("ticket", res.Ticket),
		logger.Bool("stops_dropped", res.StopsDropped))...)
	return res, nil
}

func (g *Gate) send(ctx context.Context, req types.OrderRequest) (int64, error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.SubmitTimeout)
	defer cancel()
	return g.gw.Submit(sctx, req)
}
