package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/evdnx/tradecore/types"
)

type stubMarket struct {
	mu     sync.Mutex
	quotes map[string]types.Quote
}

func newStubMarket() *stubMarket {
	return &stubMarket{quotes: map[string]types.Quote{
		"EURUSD": {Symbol: "EURUSD", Bid: 1.10000, Ask: 1.10010},
	}}
}

func (m *stubMarket) set(symbol string, bid, ask float64) {
	m.mu.Lock()
	m.quotes[symbol] = types.Quote{Symbol: symbol, Bid: bid, Ask: ask}
	m.mu.Unlock()
}

func (m *stubMarket) GetQuote(_ context.Context, symbol string) (types.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[symbol]
	if !ok {
		return types.Quote{}, fmt.Errorf("%w: %s", types.ErrQuoteUnavailable, symbol)
	}
	return q, nil
}

func (m *stubMarket) Instrument(_ context.Context, symbol string) (types.Instrument, error) {
	return types.Instrument{
		Symbol: symbol, Digits: 5, Point: 0.00001, ContractSize: 100_000,
		MinLot: 0.01, MaxLot: 50, LotStep: 0.01, StopsLevel: 10,
		BaseCurrency: "EUR", QuoteCurrency: "USD",
	}, nil
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestPaperGateway_SubmitAndMark(t *testing.T) {
	ctx := context.Background()
	mkt := newStubMarket()
	gw := NewPaperGateway(10_000, "USD", mkt, nil)

	ticket, err := gw.Submit(ctx, types.OrderRequest{Symbol: "EURUSD", Side: types.Buy, Lot: 0.1, Entry: 1.1001})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	mkt.set("EURUSD", 1.10110, 1.10120)

	positions, err := gw.ListOpenPositions(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(positions) != 1 || positions[0].Ticket != ticket {
		t.Fatalf("unexpected positions: %+v", positions)
	}
	// filled at ask 1.10010, marked at bid 1.10110: 10 pips on 0.1 lot = $10
	if !near(positions[0].Profit, 10) {
		t.Fatalf("expected profit 10, got %v", positions[0].Profit)
	}
	acc, err := gw.Account(ctx)
	if err != nil {
		t.Fatalf("account failed: %v", err)
	}
	if !near(acc.Equity, 10_010) || acc.MarginLevel <= 0 {
		t.Fatalf("unexpected account: %+v", acc)
	}
}

func TestPaperGateway_StopLossClosesPosition(t *testing.T) {
	ctx := context.Background()
	mkt := newStubMarket()
	gw := NewPaperGateway(10_000, "USD", mkt, nil)

	if _, err := gw.Submit(ctx, types.OrderRequest{Symbol: "EURUSD", Side: types.Buy, Lot: 1, StopLoss: 1.0990}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	mkt.set("EURUSD", 1.09890, 1.09900)

	positions, _ := gw.ListOpenPositions(ctx)
	if len(positions) != 0 {
		t.Fatalf("expected position to be stopped out, got %d open", len(positions))
	}
	closed := gw.ClosedTrades()
	if len(closed) != 1 || closed[0].Reason != "stop_loss" {
		t.Fatalf("unexpected closed trades: %+v", closed)
	}
	// 1.10010 -> 1.09900 on one lot = -110
	if !near(closed[0].Profit, -110) {
		t.Fatalf("expected -110, got %v", closed[0].Profit)
	}
	acc, _ := gw.Account(ctx)
	if !near(acc.Balance, 9_890) {
		t.Fatalf("expected balance 9890, got %v", acc.Balance)
	}
}

func TestPaperGateway_RejectsInvalidStops(t *testing.T) {
	gw := NewPaperGateway(10_000, "USD", newStubMarket(), nil)
	_, err := gw.Submit(context.Background(), types.OrderRequest{Symbol: "EURUSD", Side: types.Buy, Lot: 0.1, StopLoss: 1.1005})
	if !InvalidStops(err) {
		t.Fatalf("expected invalid stops rejection, got %v", err)
	}
	if !errors.Is(err, types.ErrGatewayRejected) {
		t.Fatalf("rejection must match ErrGatewayRejected")
	}
}

func TestPaperGateway_RejectsWithoutMargin(t *testing.T) {
	gw := NewPaperGateway(100, "USD", newStubMarket(), nil)
	_, err := gw.Submit(context.Background(), types.OrderRequest{Symbol: "EURUSD", Side: types.Sell, Lot: 10})
	var re *RejectedError
	if !errors.As(err, &re) || re.Code != CodeNoMoney {
		t.Fatalf("expected NO_MONEY rejection, got %v", err)
	}
}

func TestPaperGateway_Connectivity(t *testing.T) {
	ctx := context.Background()
	gw := NewPaperGateway(10_000, "USD", newStubMarket(), nil)
	gw.SetConnected(false)

	if err := gw.Ping(ctx); !errors.Is(err, types.ErrConnectivityLost) {
		t.Fatalf("expected connectivity error, got %v", err)
	}
	if _, err := gw.Submit(ctx, types.OrderRequest{Symbol: "EURUSD", Side: types.Buy, Lot: 0.1}); !errors.Is(err, types.ErrConnectivityLost) {
		t.Fatalf("submit must fail while disconnected, got %v", err)
	}
	if err := gw.Reconnect(ctx); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	if err := gw.Ping(ctx); err != nil {
		t.Fatalf("ping after reconnect: %v", err)
	}
}

func TestPaperGateway_ManualClose(t *testing.T) {
	ctx := context.Background()
	mkt := newStubMarket()
	gw := NewPaperGateway(10_000, "USD", mkt, nil)
	ticket, err := gw.Submit(ctx, types.OrderRequest{Symbol: "EURUSD", Side: types.Sell, Lot: 0.5})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := gw.ClosePosition(ctx, ticket); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := gw.ClosePosition(ctx, ticket); err == nil {
		t.Fatalf("closing twice must fail")
	}
	// sold at bid 1.10000, bought back at ask 1.10010: -1 pip on 0.5 lot
	if closed := gw.ClosedTrades(); len(closed) != 1 || !near(closed[0].Profit, -5) {
		t.Fatalf("unexpected closed trades: %+v", closed)
	}
}
