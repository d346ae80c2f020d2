package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/tradecore/indicator"
	"github.com/evdnx/tradecore/types"
)

var fixedNow = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

func newSim(t *testing.T, seed int64, symbols ...string) *SimProvider {
	t.Helper()
	s, err := NewSimProvider(seed, time.Minute, symbols, nil, WithSimClock(func() time.Time { return fixedNow }), WithHistory(120))
	require.NoError(t, err)
	return s
}

func TestSimIsDeterministic(t *testing.T) {
	ctx := context.Background()
	a, err := newSim(t, 42, "EURUSD", "USDJPY").GetBars(ctx, "USDJPY", time.Minute, 100)
	require.NoError(t, err)
	b, err := newSim(t, 42, "EURUSD", "USDJPY").GetBars(ctx, "USDJPY", time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := newSim(t, 43, "EURUSD", "USDJPY").GetBars(ctx, "USDJPY", time.Minute, 100)
	require.NoError(t, err)
	assert.NotEqual(t, a.Bars, c.Bars)
}

func TestSimBarsAreValidSeries(t *testing.T) {
	s := newSim(t, 1, SimSymbols()...)
	for _, sym := range SimSymbols() {
		series, err := s.GetBars(context.Background(), sym, time.Minute, 0)
		require.NoError(t, err)
		assert.Equal(t, 120, series.Len(), sym)
		_, repaired, err := indicator.Validate(series)
		require.NoError(t, err, sym)
		assert.Zero(t, repaired, sym)
		assert.True(t, series.Last().Time.Before(fixedNow), sym)
	}
}

func TestSimAdvanceNotifies(t *testing.T) {
	s := newSim(t, 7, "EURUSD", "GBPUSD")
	before, _ := s.GetBars(context.Background(), "EURUSD", time.Minute, 0)
	s.Advance()

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case sym := <-s.NewBars():
			got[sym] = true
		case <-time.After(time.Second):
			t.Fatal("no bar notification")
		}
	}
	assert.Equal(t, map[string]bool{"EURUSD": true, "GBPUSD": true}, got)

	after, _ := s.GetBars(context.Background(), "EURUSD", time.Minute, 0)
	assert.Equal(t, before.Len()+1, after.Len())
	assert.Equal(t, before.Last().Time.Add(time.Minute), after.Last().Time)
}

func TestSimQuote(t *testing.T) {
	s := newSim(t, 3, "EURUSD")
	q, err := s.GetQuote(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Greater(t, q.Ask, q.Bid)
	assert.Equal(t, fixedNow, q.Time)

	rate, ok := s.Rate("EURUSD")
	assert.True(t, ok)
	assert.InDelta(t, q.Mid(), rate, 1e-12)
	_, ok = s.Rate("USDCHF")
	assert.False(t, ok)
}

func TestSimConnectivity(t *testing.T) {
	ctx := context.Background()
	s := newSim(t, 3, "EURUSD")
	s.SetOnline(false)
	require.ErrorIs(t, s.Ping(ctx), types.ErrConnectivityLost)
	_, err := s.GetQuote(ctx, "EURUSD")
	require.ErrorIs(t, err, types.ErrConnectivityLost)

	require.NoError(t, s.Reconnect(ctx))
	require.NoError(t, s.Ping(ctx))
}

func TestSimRejectsUnknown(t *testing.T) {
	_, err := NewSimProvider(1, time.Minute, []string{"NOPE"}, nil)
	assert.Error(t, err)

	s := newSim(t, 1, "EURUSD")
	_, err = s.GetBars(context.Background(), "EURUSD", time.Hour, 10)
	assert.Error(t, err)
	_, err = s.Instrument(context.Background(), "GBPUSD")
	assert.Error(t, err)
}

func TestStale(t *testing.T) {
	q := types.Quote{Time: fixedNow}
	assert.False(t, Stale(q, fixedNow.Add(time.Second), 5*time.Second))
	assert.True(t, Stale(q, fixedNow.Add(10*time.Second), 5*time.Second))
	assert.False(t, Stale(q, fixedNow.Add(time.Hour), 0))
	assert.True(t, Stale(types.Quote{}, fixedNow, time.Second))
}
