package order

import (
	"fmt"
	"math"

	"github.com/evdnx/tradecore/types"
)

// ValidationError is returned for an order that must not be sent.
type ValidationError struct {
	Symbol string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order for %s: %s %s", e.Symbol, e.Field, e.Reason)
}

// DefaultStopSafety widens the broker minimum stop distance by 10%.
const DefaultStopSafety = 1.1

// Validate checks lot, TP/SL side and the minimum stop distance.
// safety multiplies the broker's StopsLevel; values below 1 are treated
// as 1.
func Validate(req types.OrderRequest, inst types.Instrument, safety float64) error {
	bad := func(field, format string, args ...interface{}) error {
		return &ValidationError{Symbol: req.Symbol, Field: field, Reason: fmt.Sprintf(format, args...)}
	}
	if req.Side != types.Buy && req.Side != types.Sell {
		return bad("side", "must be BUY or SELL, got %q", req.Side)
	}
	if req.Entry <= 0 || math.IsNaN(req.Entry) {
		return bad("entry", "must be positive, got %v", req.Entry)
	}
	if req.Lot <= 0 || math.IsNaN(req.Lot) {
		return bad("lot", "must be positive, got %v", req.Lot)
	}
	if inst.MinLot > 0 && req.Lot < inst.MinLot {
		return bad("lot", "%v below minimum %v", req.Lot, inst.MinLot)
	}
	if inst.MaxLot > 0 && req.Lot > inst.MaxLot {
		return bad("lot", "%v above maximum %v", req.Lot, inst.MaxLot)
	}

	if safety < 1 {
		safety = 1
	}
	minDist := float64(inst.StopsLevel) * inst.Point * safety

	check := func(field string, level float64, wantAbove bool) error {
		if level == 0 {
			return nil
		}
		if math.IsNaN(level) || level < 0 {
			return bad(field, "must be a positive price, got %v", level)
		}
		if wantAbove && level <= req.Entry {
			return bad(field, "%v must be above entry %v for %s", level, req.Entry, req.Side)
		}
		if !wantAbove && level >= req.Entry {
			return bad(field, "%v must be below entry %v for %s", level, req.Entry, req.Side)
		}
		if dist := math.Abs(level - req.Entry); minDist > 0 && dist < minDist {
			return bad(field, "distance %v closer than minimum %v", dist, minDist)
		}
		return nil
	}
	buy := req.Side == types.Buy
	if err := check("take_profit", req.TakeProfit, buy); err != nil {
		return err
	}
	return check("stop_loss", req.StopLoss, !buy)
}
