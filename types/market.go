package types

import "time"

// Bar is one OHLCV candle.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// BarSeries is an ordered window of bars plus instrument precision metadata.
type BarSeries struct {
	Symbol string
	Digits int
	Point  float64
	Bars   []Bar
}

func (s BarSeries) Len() int { return len(s.Bars) }

// Last returns the newest bar. The series must not be empty.
func (s BarSeries) Last() Bar { return s.Bars[len(s.Bars)-1] }

// Closes, Highs, Lows and Volumes extract one column of the series.
func (s BarSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

func (s BarSeries) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

func (s BarSeries) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}

func (s BarSeries) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Volume
	}
	return out
}

// Quote is the live best bid/ask.
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

func (q Quote) Mid() float64    { return (q.Bid + q.Ask) / 2 }
func (q Quote) Spread() float64 { return q.Ask - q.Bid }

// Instrument carries the broker constraints for one symbol.
type Instrument struct {
	Symbol        string
	Digits        int
	Point         float64
	ContractSize  float64
	MinLot        float64
	MaxLot        float64
	LotStep       float64
	StopsLevel    int // minimum stop distance in points
	BaseCurrency  string
	QuoteCurrency string
}
