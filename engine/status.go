package engine

import (
	"context"
	"maps"
	"sort"
	"time"

	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/snapshot"
	"github.com/evdnx/tradecore/types"
)

// status assembles the reader view from loop-owned state.
func (l *Loop) status() snapshot.Status {
	rs := l.d.Risk.Snapshot()
	positions := make([]types.Position, 0, len(l.known))
	for _, tr := range l.known {
		positions = append(positions, tr.pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Ticket < positions[j].Ticket })
	st := snapshot.Status{
		Time:      l.d.Clock().UTC(),
		Cycle:     l.cycles.Load(),
		Strategy:  l.strategy.String(),
		Connected: l.connected.Load(),
		Failures:  l.failures,
		Account:   l.account,
		Positions: positions,
		Risk: snapshot.Risk{
			Halted:        rs.Halted,
			HaltReason:    string(rs.HaltReason),
			PeakEquity:    rs.PeakEquity,
			Drawdown:      rs.Drawdown(),
			DrawdownLimit: l.d.Risk.DrawdownLimit(rs),
			LossStreak:    rs.LossStreak,
			DailyProfit:   rs.DailyProfit,
			Trades:        rs.Trades,
			RealisedPL:    rs.RealisedPL,
		},
		Decisions: maps.Clone(l.decisions),
	}
	if l.lastErr != nil {
		st.LastError = l.lastErr.Error()
	}
	return st
}

// publish pushes the status after a cycle.
func (l *Loop) publish(ctx context.Context) {
	l.emit(ctx, l.status())
}

func (l *Loop) emit(ctx context.Context, st snapshot.Status) {
	if l.d.Store != nil {
		l.d.Store.Set(st)
	}
	if l.d.Publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second+l.cfg.CallTimeout)
	defer cancel()
	if err := l.d.Publisher.Publish(pctx, st); err != nil {
		l.log.Warn("status_publish_failed", logger.Int64("cycle", st.Cycle), logger.Err(err))
	}
}
