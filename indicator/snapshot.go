package indicator

import (
	"fmt"
	"math"
	"time"

	"github.com/evdnx/tradecore/types"
)

// Snapshot is the read-only indicator view of the newest bar of a series.
// Fields suffixed Prev hold the value one bar earlier.
type Snapshot struct {
	Symbol   string
	Time     time.Time
	Digits   int
	Point    float64
	Repaired int

	Open, High, Low, Close float64
	PrevOpen, PrevClose    float64
	Close2                 float64 // close two bars back

	EMA5, EMA13, EMA20, EMA50, EMA200 float64
	EMA5Prev, EMA13Prev               float64
	SMA20, SMA50                      float64

	RSI9, RSI14, RSI14Prev float64

	MACD, MACDSignal, MACDHist             float64
	MACDPrev, MACDSignalPrev, MACDHistPrev float64

	BBUpper, BBMiddle, BBLower float64
	BBPosition                 float64 // 0 at lower band, 1 at upper band

	StochK, StochD float64

	ATR14    float64
	ATRRatio float64 // ATR14 over the mean true range of the last 50 bars

	Volume, VolumeSMA10, VolumeSMA20 float64

	Highest20, Lowest20 float64 // prior 20 bars, current bar excluded

	BullishEngulfing, BearishEngulfing bool
	StrongBullCandle, StrongBearCandle bool
	BreakoutUp, BreakoutDown           bool
	HigherHigh, LowerLow               bool

	TrendStrength float64 // 20-bar close change in units of 20-bar std
}

// Compute derives the Snapshot for the newest bar. It is a pure function
// of the series: the input is not mutated and repeated calls return
// identical values.
func Compute(series types.BarSeries) (Snapshot, error) {
	if series.Len() < MinBars {
		return Snapshot{}, fmt.Errorf("%w: have %d bars, need %d", types.ErrDataInsufficient, series.Len(), MinBars)
	}
	clean, repaired, err := Validate(series)
	if err != nil {
		return Snapshot{}, err
	}

	bars := clean.Bars
	n := len(bars)
	last, prev := n-1, n-2
	closes, highs, lows, vols := clean.Closes(), clean.Highs(), clean.Lows(), clean.Volumes()

	s := Snapshot{
		Symbol:    clean.Symbol,
		Time:      bars[last].Time,
		Digits:    clean.Digits,
		Point:     clean.Point,
		Repaired:  repaired,
		Open:      bars[last].Open,
		High:      bars[last].High,
		Low:       bars[last].Low,
		Close:     bars[last].Close,
		PrevOpen:  bars[prev].Open,
		PrevClose: bars[prev].Close,
		Close2:    bars[n-3].Close,
		Volume:    bars[last].Volume,
	}

	ema5, ema13 := EMA(closes, 5), EMA(closes, 13)
	s.EMA5, s.EMA5Prev = ema5[last], ema5[prev]
	s.EMA13, s.EMA13Prev = ema13[last], ema13[prev]
	s.EMA20 = EMA(closes, 20)[last]
	s.EMA50 = EMA(closes, 50)[last]
	s.EMA200 = EMA(closes, 200)[last]
	s.SMA20 = SMA(closes, 20)[last]
	s.SMA50 = SMA(closes, 50)[last]

	s.RSI9 = RSI(closes, 9)[last]
	rsi14 := RSI(closes, 14)
	s.RSI14, s.RSI14Prev = rsi14[last], rsi14[prev]

	line, sig, hist := MACD(closes, 12, 26, 9)
	s.MACD, s.MACDPrev = line[last], line[prev]
	s.MACDSignal, s.MACDSignalPrev = sig[last], sig[prev]
	s.MACDHist, s.MACDHistPrev = hist[last], hist[prev]

	up, mid, lo := Bollinger(closes, 20, 2)
	s.BBUpper, s.BBMiddle, s.BBLower = up[last], mid[last], lo[last]
	if width := s.BBUpper - s.BBLower; width > 0 {
		s.BBPosition = (s.Close - s.BBLower) / width
	} else {
		s.BBPosition = 0.5
	}

	k, d := Stochastic(highs, lows, closes, 14, 3)
	s.StochK, s.StochD = k[last], d[last]

	s.ATR14 = ATR(highs, lows, closes, 14)[last]
	tr := TrueRange(highs, lows, closes)
	if base := mean(tr[n-MinBars:]); base > 0 {
		s.ATRRatio = s.ATR14 / base
	} else {
		s.ATRRatio = 1
	}

	s.VolumeSMA10 = SMA(vols, 10)[last]
	s.VolumeSMA20 = SMA(vols, 20)[last]

	s.Highest20 = maxOf(highs[n-21 : last])
	s.Lowest20 = minOf(lows[n-21 : last])
	s.BreakoutUp = s.Close > s.Highest20
	s.BreakoutDown = s.Close < s.Lowest20
	s.HigherHigh = s.High > maxOf(highs[n-6:last])
	s.LowerLow = s.Low < minOf(lows[n-6:last])

	cur, before := bars[last], bars[prev]
	s.BullishEngulfing = before.Close < before.Open && cur.Close > cur.Open &&
		cur.Open <= before.Close && cur.Close >= before.Open
	s.BearishEngulfing = before.Close > before.Open && cur.Close < cur.Open &&
		cur.Open >= before.Close && cur.Close <= before.Open

	rng := cur.High - cur.Low
	body := math.Abs(cur.Close - cur.Open)
	if rng > 0 && body >= 0.6*rng && rng >= 0.5*s.ATR14 {
		s.StrongBullCandle = cur.Close > cur.Open
		s.StrongBearCandle = cur.Close < cur.Open
	}

	if std := sampleStd(closes[n-20:]); std > 0 {
		s.TrendStrength = (s.Close - closes[n-21]) / std
	}
	return s, nil
}

// Neutral returns a copy in which every NaN or infinite value is replaced
// by a neutral default: oscillators sit mid-range, MACD is flat and
// averages collapse onto the close.
func (s Snapshot) Neutral() Snapshot {
	price := func(v *float64) {
		if bad(*v) {
			*v = s.Close
		}
	}
	fix := func(v *float64, def float64) {
		if bad(*v) {
			*v = def
		}
	}
	for _, p := range []*float64{&s.EMA5, &s.EMA13, &s.EMA20, &s.EMA50, &s.EMA200,
		&s.EMA5Prev, &s.EMA13Prev, &s.SMA20, &s.SMA50, &s.BBMiddle, &s.BBUpper, &s.BBLower,
		&s.PrevClose, &s.PrevOpen, &s.Close2, &s.Highest20, &s.Lowest20} {
		price(p)
	}
	for _, p := range []*float64{&s.RSI9, &s.RSI14, &s.RSI14Prev, &s.StochK, &s.StochD} {
		fix(p, 50)
	}
	for _, p := range []*float64{&s.MACD, &s.MACDSignal, &s.MACDHist, &s.MACDPrev,
		&s.MACDSignalPrev, &s.MACDHistPrev, &s.TrendStrength, &s.ATR14,
		&s.Volume, &s.VolumeSMA10, &s.VolumeSMA20} {
		fix(p, 0)
	}
	fix(&s.BBPosition, 0.5)
	fix(&s.ATRRatio, 1)
	return s
}

func bad(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }
