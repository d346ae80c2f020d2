package executor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/types"
)

// MarketSource supplies live prices and instrument metadata to the paper
// gateway.
type MarketSource interface {
	GetQuote(ctx context.Context, symbol string) (types.Quote, error)
	Instrument(ctx context.Context, symbol string) (types.Instrument, error)
}

// Converter turns an amount between currencies.
type Converter interface {
	Convert(amount float64, from, to string) (float64, string, error)
}

// ClosedTrade is a position the paper gateway has closed.
type ClosedTrade struct {
	types.Position
	ClosePrice float64
	CloseTime  time.Time
	Reason     string // manual, stop_loss, take_profit
}

// PaperGateway is an in-memory broker: perfect fills at the current
// bid/ask, no slippage, positions closed automatically when SL or TP is
// touched.
type PaperGateway struct {
	mu        sync.Mutex
	market    MarketSource
	conv      Converter
	log       logger.Logger
	now       func() time.Time
	currency  string
	leverage  float64
	balance   float64
	positions map[int64]*paperPosition
	closed    []ClosedTrade
	next      int64
	connected bool
}

type paperPosition struct {
	types.Position
	inst   types.Instrument
	margin float64
}

// PaperOption customises a PaperGateway.
type PaperOption func(*PaperGateway)

// WithLeverage sets the account leverage (default 100).
func WithLeverage(l float64) PaperOption {
	return func(p *PaperGateway) {
		if l > 0 {
			p.leverage = l
		}
	}
}

// WithConverter sets the converter used when an instrument's quote
// currency differs from the account currency.
func WithConverter(c Converter) PaperOption { return func(p *PaperGateway) { p.conv = c } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) PaperOption { return func(p *PaperGateway) { p.now = now } }

// NewPaperGateway creates a paper account with the given starting balance.
func NewPaperGateway(balance float64, currency string, market MarketSource, log logger.Logger, opts ...PaperOption) *PaperGateway {
	if log == nil {
		log = logger.NewNop()
	}
	p := &PaperGateway{
		market:    market,
		log:       log,
		now:       time.Now,
		currency:  currency,
		leverage:  100,
		balance:   balance,
		positions: make(map[int64]*paperPosition),
		next:      1,
		connected: true,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetConnected simulates a dropped or restored session.
func (p *PaperGateway) SetConnected(ok bool) {
	p.mu.Lock()
	p.connected = ok
	p.mu.Unlock()
}

func (p *PaperGateway) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return types.ErrConnectivityLost
	}
	return nil
}

func (p *PaperGateway) Reconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.SetConnected(true)
	return nil
}

func (p *PaperGateway) Submit(ctx context.Context, req types.OrderRequest) (int64, error) {
	if err := p.Ping(ctx); err != nil {
		return 0, err
	}
	inst, err := p.market.Instrument(ctx, req.Symbol)
	if err != nil {
		return 0, err
	}
	q, err := p.market.GetQuote(ctx, req.Symbol)
	if err != nil {
		return 0, &RejectedError{Code: CodeNoQuote, Message: err.Error()}
	}
	if req.Lot <= 0 || (inst.MinLot > 0 && req.Lot < inst.MinLot) || (inst.MaxLot > 0 && req.Lot > inst.MaxLot) {
		return 0, &RejectedError{Code: CodeInvalidVolume, Message: fmt.Sprintf("lot %v", req.Lot)}
	}

	fill := q.Ask
	if req.Side == types.Sell {
		fill = q.Bid
	}
	if err := checkStops(req, inst, fill); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshLocked(ctx)

	margin, err := p.toAccount(req.Lot*contractSize(inst)*fill/p.leverage, inst)
	if err != nil {
		return 0, err
	}
	acc := p.accountLocked()
	if margin > acc.FreeMargin {
		return 0, &RejectedError{Code: CodeNoMoney, Message: fmt.Sprintf("margin %.2f exceeds free margin %.2f", margin, acc.FreeMargin)}
	}

	ticket := p.next
	p.next++
	p.positions[ticket] = &paperPosition{
		Position: types.Position{
			Ticket:     ticket,
			Symbol:     req.Symbol,
			Side:       req.Side,
			Lot:        req.Lot,
			OpenPrice:  fill,
			StopLoss:   req.StopLoss,
			TakeProfit: req.TakeProfit,
			Tag:        req.Tag,
			OpenTime:   p.now(),
		},
		inst:   inst,
		margin: margin,
	}
	p.log.Info("paper_fill",
		logger.String("symbol", req.Symbol),
		logger.String("side", string(req.Side)),
		logger.Float64("lot", req.Lot),
		logger.Float64("price", fill),
		logger.Int64("ticket", ticket),
	)
	return ticket, nil
}

// checkStops mirrors broker-side stop validation against the fill price.
func checkStops(req types.OrderRequest, inst types.Instrument, fill float64) error {
	minDist := float64(inst.StopsLevel) * inst.Point
	bad := func(msg string) error { return &RejectedError{Code: CodeInvalidStops, Message: msg} }
	buy := req.Side == types.Buy
	if req.StopLoss > 0 {
		if (buy && req.StopLoss >= fill) || (!buy && req.StopLoss <= fill) {
			return bad(fmt.Sprintf("stop loss %v on wrong side of %v", req.StopLoss, fill))
		}
		if math.Abs(fill-req.StopLoss) < minDist {
			return bad("stop loss too close")
		}
	}
	if req.TakeProfit > 0 {
		if (buy && req.TakeProfit <= fill) || (!buy && req.TakeProfit >= fill) {
			return bad(fmt.Sprintf("take profit %v on wrong side of %v", req.TakeProfit, fill))
		}
		if math.Abs(fill-req.TakeProfit) < minDist {
			return bad("take profit too close")
		}
	}
	return nil
}

func (p *PaperGateway) ClosePosition(ctx context.Context, ticket int64) error {
	if err := p.Ping(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[ticket]
	if !ok {
		return fmt.Errorf("paper gateway: unknown ticket %d", ticket)
	}
	q, err := p.market.GetQuote(ctx, pos.Symbol)
	if err != nil {
		return fmt.Errorf("paper gateway: close %d: %w", ticket, err)
	}
	p.closeLocked(pos, exitPrice(pos.Side, q), "manual")
	return nil
}

func (p *PaperGateway) ListOpenPositions(ctx context.Context) ([]types.Position, error) {
	if err := p.Ping(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshLocked(ctx)
	out := make([]types.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos.Position)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

func (p *PaperGateway) Account(ctx context.Context) (types.Account, error) {
	if err := p.Ping(ctx); err != nil {
		return types.Account{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshLocked(ctx)
	return p.accountLocked(), nil
}

// ClosedTrades returns every position closed so far, oldest first.
func (p *PaperGateway) ClosedTrades() []ClosedTrade {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ClosedTrade, len(p.closed))
	copy(out, p.closed)
	return out
}

func (p *PaperGateway) accountLocked() types.Account {
	acc := types.Account{Balance: p.balance, Equity: p.balance, Currency: p.currency}
	for _, pos := range p.positions {
		acc.Equity += pos.Profit
		acc.Margin += pos.margin
	}
	acc.FreeMargin = acc.Equity - acc.Margin
	if acc.Margin > 0 {
		acc.MarginLevel = acc.Equity / acc.Margin * 100
	}
	return acc
}

// refreshLocked marks every position to market and closes those whose SL
// or TP has been touched. Positions without a quote keep their last mark.
func (p *PaperGateway) refreshLocked(ctx context.Context) {
	tickets := make([]int64, 0, len(p.positions))
	for t := range p.positions {
		tickets = append(tickets, t)
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i] < tickets[j] })
	for _, t := range tickets {
		pos := p.positions[t]
		q, err := p.market.GetQuote(ctx, pos.Symbol)
		if err != nil {
			p.log.Warn("paper_mark_failed", logger.String("symbol", pos.Symbol), logger.Err(err))
			continue
		}
		px := exitPrice(pos.Side, q)
		switch {
		case pos.StopLoss > 0 && hit(pos.Side, px, pos.StopLoss, false):
			p.closeLocked(pos, pos.StopLoss, "stop_loss")
		case pos.TakeProfit > 0 && hit(pos.Side, px, pos.TakeProfit, true):
			p.closeLocked(pos, pos.TakeProfit, "take_profit")
		default:
			pos.Profit = p.profit(pos, px)
		}
	}
}

func (p *PaperGateway) closeLocked(pos *paperPosition, price float64, reason string) {
	pos.Profit = p.profit(pos, price)
	p.balance += pos.Profit
	delete(p.positions, pos.Ticket)
	p.closed = append(p.closed, ClosedTrade{Position: pos.Position, ClosePrice: price, CloseTime: p.now(), Reason: reason})
	p.log.Info("paper_close",
		logger.String("symbol", pos.Symbol),
		logger.Int64("ticket", pos.Ticket),
		logger.Float64("price", price),
		logger.Float64("profit", pos.Profit),
		logger.String("reason", reason),
	)
}

func (p *PaperGateway) profit(pos *paperPosition, price float64) float64 {
	move := price - pos.OpenPrice
	if pos.Side == types.Sell {
		move = -move
	}
	v, err := p.toAccount(move*pos.Lot*contractSize(pos.inst), pos.inst)
	if err != nil {
		p.log.Warn("paper_convert_failed", logger.String("symbol", pos.Symbol), logger.Err(err))
		return pos.Profit
	}
	return v
}

func (p *PaperGateway) toAccount(amount float64, inst types.Instrument) (float64, error) {
	if inst.QuoteCurrency == "" || inst.QuoteCurrency == p.currency || p.conv == nil {
		return amount, nil
	}
	v, _, err := p.conv.Convert(amount, inst.QuoteCurrency, p.currency)
	return v, err
}

// exitPrice is the side of the book a position closes against.
func exitPrice(side types.Side, q types.Quote) float64 {
	if side == types.Buy {
		return q.Bid
	}
	return q.Ask
}

func hit(side types.Side, px, level float64, profit bool) bool {
	up := (side == types.Buy) == profit
	if up {
		return px >= level
	}
	return px <= level
}

func contractSize(inst types.Instrument) float64 {
	if inst.ContractSize > 0 {
		return inst.ContractSize
	}
	return 1
}
