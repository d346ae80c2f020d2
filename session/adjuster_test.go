package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/tradecore/types"
)

func newDefault(t *testing.T) *Adjuster {
	t.Helper()
	a, err := NewAdjuster(DefaultConfig())
	require.NoError(t, err)
	return a
}

// 2024-03-04 is a Monday.
func at(h, m int) time.Time { return time.Date(2024, 3, 4, h, m, 0, 0, time.UTC) }

func TestContextPriority(t *testing.T) {
	a := newDefault(t)
	cases := []struct {
		when time.Time
		name string
		vol  Volatility
	}{
		{at(14, 0), "london_newyork_overlap", VeryHigh},
		{at(8, 0), "london", High},
		{at(17, 0), "newyork", High},
		{at(3, 0), "tokyo", Medium},
		{at(21, 30), "newyork", High},
		{at(23, 0), "sydney", Low},
	}
	for _, c := range cases {
		ctx := a.Context(c.when)
		assert.Equal(t, c.name, ctx.Name, "at %s", c.when.Format("15:04"))
		assert.Equal(t, c.vol, ctx.Volatility, "at %s", c.when.Format("15:04"))
	}
}

func TestOverlapNotShadowedByConfigOrder(t *testing.T) {
	cfg := DefaultConfig()
	// Put the calmer window first; the overlap must still win.
	cfg.Windows = []Window{
		{Name: "london", Start: "07:00", End: "16:00", Volatility: High},
		{Name: "overlap", Start: "13:00", End: "16:00", Volatility: VeryHigh},
	}
	a, err := NewAdjuster(cfg)
	require.NoError(t, err)
	assert.Equal(t, "overlap", a.Context(at(14, 0)).Name)
}

func TestFallbackContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Windows = []Window{{Name: "london", Start: "07:00", End: "16:00", Volatility: High}}
	a, err := NewAdjuster(cfg)
	require.NoError(t, err)

	ctx := a.Context(at(20, 0))
	assert.Equal(t, FallbackName, ctx.Name)
	assert.Equal(t, Medium, ctx.Volatility)
	assert.Zero(t, ctx.Progress)
}

func TestProgressAcrossMidnight(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Windows = []Window{{Name: "sydney", Start: "21:00", End: "06:00", Volatility: Low}}
	a, err := NewAdjuster(cfg)
	require.NoError(t, err)

	ctx := a.Context(at(1, 30)) // 4.5h into a 9h window
	assert.Equal(t, "sydney", ctx.Name)
	assert.InDelta(t, 0.5, ctx.Progress, 1e-9)
}

func TestHighImpactWindows(t *testing.T) {
	a := newDefault(t)
	assert.True(t, a.Context(at(12, 30)).HighImpact, "daily window")
	assert.False(t, a.Context(at(18, 0)).HighImpact, "wednesday window on a monday")

	wed := time.Date(2024, 3, 6, 18, 0, 0, 0, time.UTC)
	assert.True(t, a.Context(wed).HighImpact)
}

func TestThresholdMonotonicInVolatility(t *testing.T) {
	a := newDefault(t)
	for _, id := range types.AllStrategies() {
		prev := a.Adjust(Context{Volatility: Low}, id).ThresholdDelta
		for v := Medium; v <= VeryHigh; v++ {
			cur := a.Adjust(Context{Volatility: v}, id).ThresholdDelta
			assert.LessOrEqual(t, cur, prev, "%s at %s", id, v)
			prev = cur
		}
	}
}

func TestRejectsRisingThresholdProfile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VeryHigh.ThresholdDelta = 3
	_, err := NewAdjuster(cfg)
	assert.Error(t, err)
}

func TestNewsPenaltyComposesWithSession(t *testing.T) {
	a := newDefault(t)
	adj := a.Adjust(Context{Volatility: High, HighImpact: true}, types.Scalping)
	// base 3, session -1, news +2 => 4
	assert.Equal(t, 4.0, 3+adj.ThresholdDelta)
}

func TestWrappingNewsWindowKeepsStartDay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.News = []NewsWindow{{Weekday: "fri", Start: "23:30", End: "00:30"}}
	a, err := NewAdjuster(cfg)
	require.NoError(t, err)

	// 2024-03-08 is a Friday.
	fri := time.Date(2024, 3, 8, 23, 45, 0, 0, time.UTC)
	assert.True(t, a.Context(fri).HighImpact)
	assert.True(t, a.Context(fri.Add(30*time.Minute)).HighImpact, "saturday 00:15 belongs to friday's window")
	assert.False(t, a.Context(fri.Add(-24*time.Hour+30*time.Minute)).HighImpact, "friday 00:15 belongs to thursday")
	assert.False(t, a.Context(fri.Add(time.Hour)).HighImpact)
}

func TestSensitivityScalesMultipliers(t *testing.T) {
	a := newDefault(t)
	scalp := a.Adjust(Context{Volatility: VeryHigh}, types.Scalping)
	intra := a.Adjust(Context{Volatility: VeryHigh}, types.Intraday)

	assert.InDelta(t, 1.4, scalp.LotMultiplier, 1e-9)
	assert.InDelta(t, 0.8, scalp.SLMultiplier, 1e-9)
	assert.InDelta(t, 1.2, intra.LotMultiplier, 1e-9)
	assert.InDelta(t, 0.9, intra.SLMultiplier, 1e-9)
	assert.Equal(t, scalp.ThresholdDelta, intra.ThresholdDelta)
}

func TestClockParsing(t *testing.T) {
	m, err := Clock("13:05").Minutes()
	require.NoError(t, err)
	assert.Equal(t, 785, m)

	for _, bad := range []Clock{"1305", "25:00", "12:60", "aa:bb"} {
		_, err := bad.Minutes()
		assert.Error(t, err, string(bad))
	}
}

func TestVolatilityText(t *testing.T) {
	var v Volatility
	require.NoError(t, v.UnmarshalText([]byte("very-high")))
	assert.Equal(t, VeryHigh, v)
	assert.Error(t, v.UnmarshalText([]byte("extreme")))
}
