package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/evdnx/tradecore/decision"
	"github.com/evdnx/tradecore/executor"
	"github.com/evdnx/tradecore/feed"
	"github.com/evdnx/tradecore/indicator"
	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/metrics"
	"github.com/evdnx/tradecore/notify"
	"github.com/evdnx/tradecore/order"
	"github.com/evdnx/tradecore/params"
	"github.com/evdnx/tradecore/strategy"
	"github.com/evdnx/tradecore/tradelog"
	"github.com/evdnx/tradecore/types"
)

// cycle runs one pass over every symbol. Symbol failures do not stop the
// other symbols; they are joined into the result.
func (l *Loop) cycle(ctx context.Context) error {
	now := l.d.Clock()

	// 1️⃣ Account and book.
	acct, err := call(ctx, l.cfg.CallTimeout, l.d.Gateway.Account)
	if err != nil {
		return l.fail("account", "", fmt.Errorf("account: %w", err))
	}
	l.account = acct
	positions, err := call(ctx, l.cfg.CallTimeout, l.d.Gateway.ListOpenPositions)
	if err != nil {
		return l.fail("positions", "", fmt.Errorf("positions: %w", err))
	}

	// 2️⃣ Trades that left the book since the last cycle.
	l.detectClosed(ctx, positions, now)

	// 3️⃣ Parameters for this cycle.
	p := l.cycleParams(ctx)
	l.d.Risk.SetLimits(p.MaxDrawdownPct/100, p.ProfitTargetPct/100)

	// 4️⃣ Risk gates.
	verdict, riskErr := l.d.Risk.OnCycleTick(ctx, acct, positions, now)
	if len(verdict.Closed) > 0 {
		l.log.Warn("risk_closed_positions", logger.String("reason", string(verdict.Reason)), logger.Int("count", len(verdict.Closed)))
		l.notify(ctx, notify.Message{
			Kind:  notify.KindRiskHalt,
			Text:  fmt.Sprintf("risk manager closed %d positions (%s)", len(verdict.Closed), verdict.Reason),
			Attrs: map[string]string{"reason": string(verdict.Reason)},
		})
	}
	if riskErr != nil {
		riskErr = l.fail("risk_close", "", fmt.Errorf("risk liquidation: %w", riskErr))
	}
	if !verdict.CanTrade {
		l.halted(ctx, now)
		return riskErr
	}
	l.wasHalted = false

	// 5️⃣ Symbols.
	open := len(positions)
	errs := []error{riskErr}
	for _, sym := range l.cfg.Symbols {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := l.trade(ctx, sym, acct, p, &open, now); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// halted records a RiskHalt decision for every symbol and notifies once
// per halt.
func (l *Loop) halted(ctx context.Context, now time.Time) {
	st := l.d.Risk.Snapshot()
	for _, sym := range l.cfg.Symbols {
		l.decisions[sym] = l.d.Decider.Decide(decision.Input{Strategy: l.strategy, Symbol: sym, RiskHalted: true, Time: now})
	}
	if l.wasHalted {
		return
	}
	l.wasHalted = true
	l.notify(ctx, notify.Message{
		Kind:  notify.KindRiskHalt,
		Text:  "trading halted: " + string(st.HaltReason),
		Attrs: map[string]string{"reason": string(st.HaltReason), "equity": strconv.FormatFloat(st.Equity, 'f', 2, 64)},
	})
}

// trade runs the signal pipeline for one symbol and submits an order
// when the decision approves one.
func (l *Loop) trade(ctx context.Context, sym string, acct types.Account, p params.Params, open *int, now time.Time) error {
	inst, err := call(ctx, l.cfg.CallTimeout, func(c context.Context) (types.Instrument, error) { return l.d.Provider.Instrument(c, sym) })
	if err != nil {
		return l.fail("instrument", sym, fmt.Errorf("%s instrument: %w", sym, err))
	}
	series, err := call(ctx, l.cfg.CallTimeout, func(c context.Context) (types.BarSeries, error) {
		return l.d.Provider.GetBars(c, sym, l.cfg.Timeframe, l.cfg.Bars)
	})
	if err != nil {
		return l.fail("bars", sym, fmt.Errorf("%s bars: %w", sym, err))
	}
	snap, err := indicator.Compute(series)
	if err != nil {
		return l.fail("indicators", sym, fmt.Errorf("%s indicators: %w", sym, err), logger.Int("bars", len(series.Bars)))
	}
	quote, err := call(ctx, l.cfg.CallTimeout, func(c context.Context) (types.Quote, error) { return l.d.Provider.GetQuote(c, sym) })
	if err != nil {
		return l.fail("quote", sym, fmt.Errorf("%s quote: %w", sym, err))
	}
	if feed.Stale(quote, now, l.cfg.MaxQuoteAge) {
		return l.fail("quote", sym, fmt.Errorf("%s: %w: quote from %s", sym, types.ErrQuoteUnavailable, quote.Time.Format(time.RFC3339)),
			logger.Duration("age", now.Sub(quote.Time)))
	}

	sess, adj := l.d.Adjuster.At(now, l.strategy)
	rating, spreadPips := l.d.Spreads.RateSpread(inst, quote)
	sig := l.d.Evaluator.Evaluate(strategy.Input{Instrument: inst, Snapshot: snap, Quote: quote, Adjustment: adj, Spread: rating})
	q := l.d.Scorer.Score(snap, sess)
	d := l.d.Decider.Decide(decision.Input{
		Strategy:   l.strategy,
		Symbol:     sym,
		Signal:     sig,
		Snapshot:   snap,
		Quality:    q,
		Adjustment: adj,
		Series:     series,
		Time:       now,
	})
	l.decisions[sym] = d
	if d.Action == types.ActionWait {
		return nil
	}

	if p.MaxPositions > 0 && *open >= p.MaxPositions {
		l.log.Info("max_positions_reached", logger.String("symbol", sym), logger.Int("open", *open), logger.Int("max", p.MaxPositions))
		return nil
	}

	res, err := l.d.Gate.Submit(ctx, order.Intent{
		Decision:   d,
		Instrument: inst,
		Quote:      quote,
		Account:    acct,
		Params:     p.For(l.strategy),
		Sizing:     p.Sizing(),
		Adjustment: adj,
	}, l.d.Risk.Check)
	switch {
	case err == nil:
	case errors.Is(err, types.ErrRateLimited), errors.Is(err, types.ErrRiskHalt):
		l.log.Debug("order_skipped", logger.String("symbol", sym), logger.Err(err))
		return nil
	default:
		return l.fail("order", sym, fmt.Errorf("%s order: %w", sym, err),
			logger.String("action", string(d.Action)),
			logger.Float64("confidence", d.Confidence),
			logger.String("session", sess.Name),
			logger.String("spread", rating.String()),
			logger.Float64("spread_pips", spreadPips),
		)
	}

	*open++
	req := res.Request
	l.known[res.Ticket] = tracked{
		strategy: l.strategy.String(),
		pos: types.Position{
			Ticket: res.Ticket, Symbol: req.Symbol, Side: req.Side, Lot: req.Lot,
			OpenPrice: req.Entry, StopLoss: req.StopLoss, TakeProfit: req.TakeProfit,
			Tag: req.Tag, OpenTime: now,
		},
	}
	l.appendTrade(ctx, tradelog.Opened(res.Ticket, l.strategy, req, now))
	l.notify(ctx, notify.Message{
		Kind:   notify.KindOrder,
		Symbol: sym,
		Text:   fmt.Sprintf("%s %.2f %s @ %g (confidence %.0f%%)", req.Side, req.Lot, sym, req.Entry, d.Confidence),
		Attrs:  map[string]string{"ticket": strconv.FormatInt(res.Ticket, 10), "strategy": l.strategy.String()},
	})
	return nil
}

// detectClosed books every tracked ticket missing from positions as a
// closed trade with its last observed profit.
func (l *Loop) detectClosed(ctx context.Context, positions []types.Position, now time.Time) {
	current := make(map[int64]types.Position, len(positions))
	for _, p := range positions {
		current[p.Ticket] = p
	}
	var gone []int64
	for t := range l.known {
		if _, ok := current[t]; !ok {
			gone = append(gone, t)
		}
	}
	sort.Slice(gone, func(i, j int) bool { return gone[i] < gone[j] })
	for _, t := range gone {
		tr := l.known[t]
		delete(l.known, t)
		l.d.Risk.RecordTrade(tr.pos.Profit)
		l.log.Info("trade_closed",
			logger.Int64("ticket", t),
			logger.String("symbol", tr.pos.Symbol),
			logger.Float64("profit", tr.pos.Profit),
		)
		l.appendTrade(ctx, tradelog.Closed(tr.pos, tr.strategy, now))
		l.notify(ctx, notify.Message{
			Kind:   notify.KindTradeClosed,
			Symbol: tr.pos.Symbol,
			Text:   fmt.Sprintf("closed %d %s profit %.2f", t, tr.pos.Symbol, tr.pos.Profit),
		})
	}
	for t, p := range current {
		tr := l.known[t]
		tr.pos = p
		l.known[t] = tr
	}
}

// cycleParams reads the parameter source, falling back to the last good
// set when it fails.
func (l *Loop) cycleParams(ctx context.Context) params.Params {
	p, err := call(ctx, l.cfg.CallTimeout, l.d.Params.Params)
	if err == nil {
		l.lastParams, l.haveParams = p, true
		return p
	}
	if !l.haveParams {
		l.lastParams, l.haveParams = params.Default(), true
	}
	l.log.Warn("params_unavailable", logger.Err(err))
	return l.lastParams
}

func (l *Loop) appendTrade(ctx context.Context, r tradelog.Record) {
	if l.d.TradeLog == nil {
		return
	}
	if err := l.d.TradeLog.Append(ctx, r); err != nil {
		l.log.Warn("tradelog_failed", logger.String("symbol", r.Symbol), logger.Int64("ticket", r.Ticket), logger.Err(err))
	}
}

// fail counts and logs a cycle step failure and returns err.
func (l *Loop) fail(step, sym string, err error, fields ...logger.Field) error {
	kind := errorKind(err)
	metrics.CycleFailures.WithLabelValues(kind).Inc()
	fs := append([]logger.Field{
		logger.String("step", step),
		logger.String("kind", kind),
		logger.String("symbol", sym),
		logger.Int64("cycle", l.cycles.Load()),
		logger.Err(err),
	}, fields...)
	l.log.Warn("cycle_step_failed", fs...)
	return err
}

func errorKind(err error) string {
	var verr *order.ValidationError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, types.ErrDataInsufficient):
		return "data_insufficient"
	case errors.Is(err, types.ErrInvalidSeries):
		return "invalid_series"
	case errors.Is(err, types.ErrQuoteUnavailable):
		return "quote_unavailable"
	case errors.Is(err, types.ErrConnectivityLost):
		return "connectivity"
	case errors.As(err, &verr):
		return "validation"
	case errors.Is(err, types.ErrGatewayRejected), executor.InvalidStops(err):
		return "gateway_rejected"
	}
	return "other"
}
