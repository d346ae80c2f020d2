package types

import "errors"

// Error kinds shared by every stage of the trading cycle. Callers match
// them with errors.Is.
var (
	ErrDataInsufficient = errors.New("insufficient bar data")
	ErrInvalidSeries    = errors.New("invalid bar series")
	ErrQuoteUnavailable = errors.New("quote unavailable")
	ErrGatewayRejected  = errors.New("order rejected by gateway")
	ErrConnectivityLost = errors.New("connectivity lost")
	ErrRiskHalt         = errors.New("trading halted by risk manager")
	ErrRateLimited      = errors.New("re-trade interval not elapsed")
	ErrSessionFatal     = errors.New("consecutive failure ceiling exceeded")
)
