package strategy

import (
	"testing"

	"github.com/evdnx/tradecore/indicator"
	"github.com/evdnx/tradecore/session"
	"github.com/evdnx/tradecore/testutils"
	"github.com/evdnx/tradecore/types"
)

var eurusd = types.Instrument{
	Symbol: "EURUSD", Digits: 5, Point: 0.00001, ContractSize: 100_000,
	MinLot: 0.01, MaxLot: 100, LotStep: 0.01, StopsLevel: 10,
}

// flatSnapshot is a snapshot on which no rule of any evaluator fires.
func flatSnapshot() indicator.Snapshot {
	const p = 1.1
	return indicator.Snapshot{
		Symbol: "EURUSD", Digits: 5, Point: 0.00001,
		Open: p, High: p + 0.0005, Low: p - 0.0005, Close: p,
		PrevOpen: p, PrevClose: p, Close2: p,
		EMA5: p, EMA13: p, EMA20: p, EMA50: p, EMA200: p,
		EMA5Prev: p, EMA13Prev: p, SMA20: p, SMA50: p,
		RSI9: 50, RSI14: 50, RSI14Prev: 50,
		BBUpper: p + 0.001, BBMiddle: p, BBLower: p - 0.001, BBPosition: 0.5,
		StochK: 50, StochD: 50,
		ATR14: 0.001, ATRRatio: 1,
		Highest20: p + 0.002, Lowest20: p - 0.002,
	}
}

// flatQuote sits on the snapshot close with a 0.5 pip spread.
func flatQuote() types.Quote {
	return types.Quote{Symbol: "EURUSD", Bid: 1.099975, Ask: 1.100025}
}

func input(snap indicator.Snapshot, spread SpreadRating) Input {
	return Input{
		Instrument: eurusd,
		Snapshot:   snap,
		Quote:      flatQuote(),
		Adjustment: session.Neutral(),
		Spread:     spread,
	}
}

func mustNew(t *testing.T, id types.StrategyID) Evaluator {
	t.Helper()
	ev, err := New(id, DefaultConfig(), testutils.NewMockLogger())
	if err != nil {
		t.Fatalf("New(%s): %v", id, err)
	}
	return ev
}
