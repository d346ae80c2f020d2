// Package feed defines the market data provider the control loop reads
// bars, quotes and instrument metadata from.
package feed

import (
	"context"
	"time"

	"github.com/evdnx/tradecore/types"
)

// Provider supplies market data. Implementations return
// types.ErrQuoteUnavailable or types.ErrConnectivityLost (wrapped) when
// data cannot be served.
type Provider interface {
	GetBars(ctx context.Context, symbol string, timeframe time.Duration, count int) (types.BarSeries, error)
	GetQuote(ctx context.Context, symbol string) (types.Quote, error)
	Instrument(ctx context.Context, symbol string) (types.Instrument, error)
	Ping(ctx context.Context) error
}

// BarNotifier is implemented by providers that can announce a newly
// closed bar. The channel carries the symbol.
type BarNotifier interface {
	NewBars() <-chan string
}

// Stale reports whether q is older than maxAge at now. A zero maxAge
// disables the check; a zero quote time is always stale.
func Stale(q types.Quote, now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	if q.Time.IsZero() {
		return true
	}
	return now.Sub(q.Time) > maxAge
}
