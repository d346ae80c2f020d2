package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/evdnx/tradecore/types"
)

// Gateway is the order-execution side of the broker.
type Gateway interface {
	Submit(ctx context.Context, req types.OrderRequest) (ticket int64, err error)
	ClosePosition(ctx context.Context, ticket int64) error
	ListOpenPositions(ctx context.Context) ([]types.Position, error)
	Account(ctx context.Context) (types.Account, error)
	Ping(ctx context.Context) error
}

// Reconnector is implemented by gateways that can re-establish a lost
// session.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// Broker rejection codes.
const (
	CodeInvalidStops  = "INVALID_STOPS"
	CodeInvalidVolume = "INVALID_VOLUME"
	CodeNoMoney       = "NO_MONEY"
	CodeMarketClosed  = "MARKET_CLOSED"
	CodeNoQuote       = "NO_QUOTE"
)

// RejectedError is a broker refusal. It matches types.ErrGatewayRejected.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("order rejected (%s): %s", e.Code, e.Message)
}

func (e *RejectedError) Is(target error) bool {
	return target == types.ErrGatewayRejected
}

// InvalidStops reports whether err is a rejection caused by TP/SL levels.
func InvalidStops(err error) bool {
	var re *RejectedError
	return errors.As(err, &re) && re.Code == CodeInvalidStops
}
