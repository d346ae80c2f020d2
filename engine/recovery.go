package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evdnx/tradecore/executor"
	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/metrics"
	"github.com/evdnx/tradecore/notify"
)

// watchHealth pings the provider and the gateway every health interval.
// A failed check suspends order submission and starts reconnecting.
func (l *Loop) watchHealth(ctx context.Context) {
	t := time.NewTicker(l.cfg.HealthInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		err := l.ping(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		l.lost(ctx, err)
		if !l.restore(ctx) {
			return
		}
	}
}

func (l *Loop) ping(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
	defer cancel()
	var errs []error
	if err := l.d.Provider.Ping(pctx); err != nil {
		errs = append(errs, fmt.Errorf("provider: %w", err))
	}
	if err := l.d.Gateway.Ping(pctx); err != nil {
		errs = append(errs, fmt.Errorf("gateway: %w", err))
	}
	return errors.Join(errs...)
}

func (l *Loop) lost(ctx context.Context, err error) {
	l.connected.Store(false)
	l.d.Gate.Suspend()
	metrics.CycleFailures.WithLabelValues("connectivity").Inc()
	l.log.Error("connectivity_lost", logger.Err(err))
	l.notify(ctx, notify.Message{Kind: notify.KindConnectivity, Text: "connectivity lost: " + err.Error()})
}

// restore reconnects with capped exponential backoff until both sides
// answer or ctx ends. Each attempt holds the gate lock so it never
// overlaps an order in flight.
func (l *Loop) restore(ctx context.Context) bool {
	for attempt := 0; ; attempt++ {
		if err := sleep(ctx, l.reconnect.Delay(attempt)); err != nil {
			return false
		}
		err := l.d.Gate.Exclusive(ctx, func(ctx context.Context) error {
			rctx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
			defer cancel()
			for _, side := range []any{l.d.Provider, l.d.Gateway} {
				if r, ok := side.(executor.Reconnector); ok {
					if err := r.Reconnect(rctx); err != nil {
						return err
					}
				}
			}
			return l.ping(ctx)
		})
		if err != nil {
			l.log.Warn("reconnect_failed",
				logger.Int("attempt", attempt+1),
				logger.Duration("next_delay", l.reconnect.Delay(attempt+1)),
				logger.Err(err),
			)
			continue
		}
		l.d.Gate.Resume()
		l.connected.Store(true)
		l.log.Info("connectivity_restored", logger.Int("attempts", attempt+1))
		l.notify(ctx, notify.Message{Kind: notify.KindConnectivity, Text: "connectivity restored"})
		return true
	}
}
