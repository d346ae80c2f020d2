package indicator

import (
	"math"

	"github.com/evdnx/goti"
)

// Every function in this file returns a slice the same length as its input.
// Element i depends only on inputs at or before i; entries that are still
// warming up are NaN. The moving averages, RSI and ATR stream the input
// through a fresh goti indicator, so no state is shared between calls.

// SMA is the simple moving average over n values. NaN inputs are skipped
// and leave a NaN in the output.
func SMA(values []float64, n int) []float64 {
	return movingAverage(goti.SMAMovingAverage, values, n, false)
}

// EMA is the exponential moving average with alpha = 2/(n+1), seeded with
// the SMA of the first n values. After the seed a NaN input repeats the
// previous value.
func EMA(values []float64, n int) []float64 {
	return movingAverage(goti.EMAMovingAverage, values, n, true)
}

func movingAverage(kind goti.MovingAverageType, values []float64, n int, hold bool) []float64 {
	out := nanSlice(len(values))
	ma, err := goti.NewMovingAverage(kind, n)
	if err != nil {
		return out
	}
	prev := math.NaN()
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			if hold {
				out[i] = prev
			}
			continue
		}
		if err := ma.AddValue(v); err != nil {
			continue
		}
		if cur, err := ma.Calculate(); err == nil {
			out[i], prev = cur, cur
		}
	}
	return out
}

// StdDev is the rolling sample standard deviation over n values. goti only
// keeps a population deviation internally, so this one is computed here.
func StdDev(values []float64, n int) []float64 {
	out := nanSlice(len(values))
	if n < 2 {
		return out
	}
	for i := n - 1; i < len(values); i++ {
		out[i] = sampleStd(values[i-n+1 : i+1])
	}
	return out
}

// RSI uses Wilder smoothing. The first average is the plain mean of the
// first n deltas, so the first defined value sits at index n. A flat
// window is 50 and a window without losses is 100.
func RSI(closes []float64, n int) []float64 {
	out := nanSlice(len(closes))
	rsi, err := goti.NewRelativeStrengthIndexWithParams(n, goti.DefaultConfig())
	if err != nil {
		return out
	}
	for i, c := range closes {
		if err := rsi.Add(c); err != nil {
			return out
		}
		if v, err := rsi.Calculate(); err == nil {
			out[i] = v
		}
	}
	return out
}

// MACD returns the fast/slow EMA difference, its signal EMA and the
// histogram (difference minus signal).
func MACD(closes []float64, fast, slow, signal int) (line, sig, hist []float64) {
	f := EMA(closes, fast)
	s := EMA(closes, slow)
	line = make([]float64, len(closes))
	for i := range closes {
		line[i] = f[i] - s[i]
	}
	sig = EMA(line, signal)
	hist = make([]float64, len(closes))
	for i := range closes {
		hist[i] = line[i] - sig[i]
	}
	return line, sig, hist
}

// Bollinger returns SMA(n) ± k sample standard deviations. goti has no
// band indicator.
func Bollinger(closes []float64, n int, k float64) (upper, middle, lower []float64) {
	middle = SMA(closes, n)
	std := StdDev(closes, n)
	upper = make([]float64, len(closes))
	lower = make([]float64, len(closes))
	for i := range closes {
		upper[i] = middle[i] + k*std[i]
		lower[i] = middle[i] - k*std[i]
	}
	return upper, middle, lower
}

// Stochastic returns %K over kPeriod bars and %D as the SMA of %K over
// dPeriod. A flat high/low range yields 50. goti has no stochastic.
func Stochastic(highs, lows, closes []float64, kPeriod, dPeriod int) (k, d []float64) {
	k = nanSlice(len(closes))
	for i := kPeriod - 1; i < len(closes); i++ {
		hh, ll := math.Inf(-1), math.Inf(1)
		for j := i - kPeriod + 1; j <= i; j++ {
			hh = math.Max(hh, highs[j])
			ll = math.Min(ll, lows[j])
		}
		if hh-ll == 0 {
			k[i] = 50
			continue
		}
		k[i] = (closes[i] - ll) / (hh - ll) * 100
	}
	d = SMA(k, dPeriod)
	return k, d
}

// TrueRange is max(high−low, |high−prevClose|, |low−prevClose|); the first
// bar has no previous close and uses high−low. goti keeps its true range
// unexported.
func TrueRange(highs, lows, closes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		tr := highs[i] - lows[i]
		if i > 0 {
			pc := closes[i-1]
			tr = math.Max(tr, math.Max(math.Abs(highs[i]-pc), math.Abs(lows[i]-pc)))
		}
		out[i] = tr
	}
	return out
}

// ATR is the simple mean of the last n true ranges, each measured against
// the previous close, so the first defined value sits at index n.
func ATR(highs, lows, closes []float64, n int) []float64 {
	out := nanSlice(len(closes))
	atr, err := goti.NewAverageTrueRangeWithParams(n, goti.WithCloseValidation(false))
	if err != nil {
		return out
	}
	for i := range closes {
		if err := atr.AddCandle(highs[i], lows[i], closes[i]); err != nil {
			return out
		}
		if v, err := atr.Calculate(); err == nil {
			out[i] = v
		}
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func sampleStd(vals []float64) float64 {
	if len(vals) < 2 {
		return math.NaN()
	}
	m := mean(vals)
	ss := 0.0
	for _, v := range vals {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}

func maxOf(vals []float64) float64 {
	m := math.Inf(-1)
	for _, v := range vals {
		m = math.Max(m, v)
	}
	return m
}

func minOf(vals []float64) float64 {
	m := math.Inf(1)
	for _, v := range vals {
		m = math.Min(m, v)
	}
	return m
}
