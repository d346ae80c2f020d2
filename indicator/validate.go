package indicator

import (
	"fmt"
	"math"

	"github.com/evdnx/tradecore/types"
)

// MinBars is the smallest series Compute accepts.
const MinBars = 50

// Validate checks a series and returns a repaired copy together with the
// number of bars that needed repair.
// Timestamps that do not strictly increase and non-finite or non-positive
// prices are rejected with ErrInvalidSeries. A bar whose high or low does
// not bracket its open and close is repaired by widening the range. The
// input is never modified.
func Validate(series types.BarSeries) (types.BarSeries, int, error) {
	out := series
	out.Bars = make([]types.Bar, len(series.Bars))
	repaired := 0
	for i, b := range series.Bars {
		for _, p := range [...]float64{b.Open, b.High, b.Low, b.Close} {
			if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
				return types.BarSeries{}, 0, fmt.Errorf("%w: bar %d has price %v", types.ErrInvalidSeries, i, p)
			}
		}
		if math.IsNaN(b.Volume) || math.IsInf(b.Volume, 0) || b.Volume < 0 {
			return types.BarSeries{}, 0, fmt.Errorf("%w: bar %d has volume %v", types.ErrInvalidSeries, i, b.Volume)
		}
		if i > 0 && !b.Time.After(series.Bars[i-1].Time) {
			return types.BarSeries{}, 0, fmt.Errorf("%w: bar %d timestamp %s not after %s",
				types.ErrInvalidSeries, i, b.Time, series.Bars[i-1].Time)
		}
		hi := math.Max(math.Max(b.Open, b.Close), math.Max(b.High, b.Low))
		lo := math.Min(math.Min(b.Open, b.Close), math.Min(b.High, b.Low))
		if hi != b.High || lo != b.Low {
			repaired++
			b.High, b.Low = hi, lo
		}
		out.Bars[i] = b
	}
	return out, repaired, nil
}
