package testutils

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/evdnx/tradecore/types"
)

// MockGateway implements executor.Gateway in‑memory. Orders are filled at
// their entry price and stay open until ClosePosition or Drop is called.
type MockGateway struct {
	mu        sync.RWMutex
	account   types.Account
	positions map[int64]types.Position
	orders    []types.OrderRequest // captured for assertions
	closed    []int64
	next      int64

	// SubmitErrs is consumed one error per Submit call; a nil entry means
	// accept.
	SubmitErrs []error
	PingErr    error
	AccountErr error
	ListErr    error
	// OnClose, when set, runs after a position is closed so tests can
	// adjust the account.
	OnClose func(p types.Position)
}

// NewMockGateway creates a fresh gateway whose account has the supplied
// balance and equity.
func NewMockGateway(balance float64) *MockGateway {
	return &MockGateway{
		account:   types.Account{Balance: balance, Equity: balance, FreeMargin: balance, Currency: "USD"},
		positions: make(map[int64]types.Position),
		next:      1,
	}
}

// Submit records the order and opens a position like PaperGateway.
func (m *MockGateway) Submit(ctx context.Context, req types.OrderRequest) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, req)
	if len(m.SubmitErrs) > 0 {
		err := m.SubmitErrs[0]
		m.SubmitErrs = m.SubmitErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t := m.next
	m.next++
	m.positions[t] = types.Position{
		Ticket: t, Symbol: req.Symbol, Side: req.Side, Lot: req.Lot,
		OpenPrice: req.Entry, StopLoss: req.StopLoss, TakeProfit: req.TakeProfit, Tag: req.Tag,
	}
	return t, nil
}

func (m *MockGateway) ClosePosition(_ context.Context, ticket int64) error {
	m.mu.Lock()
	p, ok := m.positions[ticket]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown ticket %d", ticket)
	}
	delete(m.positions, ticket)
	m.closed = append(m.closed, ticket)
	hook := m.OnClose
	m.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return nil
}

func (m *MockGateway) ListOpenPositions(context.Context) ([]types.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]types.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

func (m *MockGateway) Account(context.Context) (types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.AccountErr != nil {
		return types.Account{}, m.AccountErr
	}
	return m.account, nil
}

func (m *MockGateway) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PingErr
}

// SetAccount replaces the reported account.
func (m *MockGateway) SetAccount(a types.Account) {
	m.mu.Lock()
	m.account = a
	m.mu.Unlock()
}

// SetProfit updates the floating profit of an open position.
func (m *MockGateway) SetProfit(ticket int64, profit float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.positions[ticket]; ok {
		p.Profit = profit
		m.positions[ticket] = p
	}
}

// AddPosition injects an open position.
func (m *MockGateway) AddPosition(p types.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Ticket == 0 {
		p.Ticket = m.next
		m.next++
	}
	m.positions[p.Ticket] = p
}

// Drop removes a position as if the broker closed it (SL/TP hit).
func (m *MockGateway) Drop(ticket int64) {
	m.mu.Lock()
	delete(m.positions, ticket)
	m.mu.Unlock()
}

// SetPingErr changes the health check result.
func (m *MockGateway) SetPingErr(err error) {
	m.mu.Lock()
	m.PingErr = err
	m.mu.Unlock()
}

// Orders returns a copy of all submitted requests (useful for assertions).
func (m *MockGateway) Orders() []types.OrderRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.OrderRequest, len(m.orders))
	copy(out, m.orders)
	return out
}

// Closed returns the tickets closed through ClosePosition, in order.
func (m *MockGateway) Closed() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int64, len(m.closed))
	copy(out, m.closed)
	return out
}
