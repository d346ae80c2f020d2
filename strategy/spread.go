package strategy

import (
	"fmt"

	"github.com/evdnx/tradecore/order"
	"github.com/evdnx/tradecore/types"
)

// SpreadRating buckets the live spread. Smaller is better.
type SpreadRating int

const (
	SpreadExcellent SpreadRating = iota
	SpreadGood
	SpreadFair
	SpreadPoor
)

func (r SpreadRating) String() string {
	switch r {
	case SpreadExcellent:
		return "EXCELLENT"
	case SpreadGood:
		return "GOOD"
	case SpreadFair:
		return "FAIR"
	case SpreadPoor:
		return "POOR"
	}
	return fmt.Sprintf("spread(%d)", int(r))
}

// AtLeast reports whether r is as good as or better than want.
func (r SpreadRating) AtLeast(want SpreadRating) bool { return r <= want }

// Buckets are upper bounds in pips for each rating.
type Buckets struct {
	Excellent float64 `yaml:"excellent" validate:"gt=0"`
	Good      float64 `yaml:"good" validate:"gtefield=Excellent"`
	Fair      float64 `yaml:"fair" validate:"gtefield=Good"`
}

// SpreadTable maps instrument class names to buckets.
type SpreadTable map[string]Buckets

// DefaultSpreadTable is tuned for retail ECN spreads.
func DefaultSpreadTable() SpreadTable {
	return SpreadTable{
		order.Forex.String():     {Excellent: 1.0, Good: 2.0, Fair: 3.0},
		order.JPYPair.String():   {Excellent: 1.5, Good: 2.5, Fair: 4.0},
		order.Metal.String():     {Excellent: 3.0, Good: 5.0, Fair: 8.0},
		order.Crypto.String():    {Excellent: 10, Good: 25, Fair: 50},
		order.Index.String():     {Excellent: 2.0, Good: 4.0, Fair: 8.0},
		order.Commodity.String(): {Excellent: 3.0, Good: 5.0, Fair: 8.0},
	}
}

// SpreadPips is the quote spread expressed in the instrument's pips.
func SpreadPips(inst types.Instrument, q types.Quote) float64 {
	pip := order.PipSize(inst)
	if pip <= 0 {
		return 0
	}
	return q.Spread() / pip
}

// RateSpread rates the current spread for the instrument's class. Classes
// missing from the table use the forex buckets.
func (t SpreadTable) RateSpread(inst types.Instrument, q types.Quote) (SpreadRating, float64) {
	pips := SpreadPips(inst, q)
	b, ok := t[order.Classify(inst.Symbol).String()]
	if !ok {
		b = DefaultSpreadTable()[order.Forex.String()]
	}
	switch {
	case pips <= b.Excellent:
		return SpreadExcellent, pips
	case pips <= b.Good:
		return SpreadGood, pips
	case pips <= b.Fair:
		return SpreadFair, pips
	}
	return SpreadPoor, pips
}
