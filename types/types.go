package types

import (
	"fmt"
	"strings"
	"time"
)

// Side is the direction of an order or an open position.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Action is the terminal output of one decision cycle.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionWait Action = "WAIT"
)

// Side maps a trading action onto an order side. ok is false for WAIT.
func (a Action) Side() (Side, bool) {
	switch a {
	case ActionBuy:
		return Buy, true
	case ActionSell:
		return Sell, true
	}
	return "", false
}

// Direction is the candidate direction carried by a Signal.
type Direction string

const (
	DirBuy  Direction = "BUY"
	DirSell Direction = "SELL"
	DirNone Direction = "NONE"
)

// StrategyID is the closed set of evaluation modes.
type StrategyID int

const (
	Scalping StrategyID = iota
	HFT
	Intraday
	Arbitrage
)

var strategyNames = [...]string{"scalping", "hft", "intraday", "arbitrage"}

func (s StrategyID) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return fmt.Sprintf("strategy(%d)", int(s))
	}
	return strategyNames[s]
}

// AllStrategies lists every defined StrategyID in declaration order.
func AllStrategies() []StrategyID {
	return []StrategyID{Scalping, HFT, Intraday, Arbitrage}
}

// ParseStrategyID is case-insensitive.
func ParseStrategyID(s string) (StrategyID, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range strategyNames {
		if n == name {
			return StrategyID(i), nil
		}
	}
	return 0, fmt.Errorf("unknown strategy %q", s)
}

// MarshalText lets StrategyID be used as a YAML/JSON map key.
func (s StrategyID) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(strategyNames) {
		return nil, fmt.Errorf("unknown strategy %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *StrategyID) UnmarshalText(b []byte) error {
	id, err := ParseStrategyID(string(b))
	if err != nil {
		return err
	}
	*s = id
	return nil
}

// Signal is the scored output of one strategy evaluation. It is produced
// fresh each cycle.
type Signal struct {
	Strategy  StrategyID
	BuyScore  float64
	SellScore float64
	Reasons   []string
}

// Buy adds weight to the buy side and records why.
func (s *Signal) Buy(weight float64, reason string) {
	s.BuyScore += weight
	s.Reasons = append(s.Reasons, reason)
}

// Sell adds weight to the sell side and records why.
func (s *Signal) Sell(weight float64, reason string) {
	s.SellScore += weight
	s.Reasons = append(s.Reasons, reason)
}

// Note appends a rationale without touching the scores.
func (s *Signal) Note(reason string) {
	s.Reasons = append(s.Reasons, reason)
}

// Direction is the side with the strictly higher score.
func (s Signal) Direction() Direction {
	switch {
	case s.BuyScore > s.SellScore:
		return DirBuy
	case s.SellScore > s.BuyScore:
		return DirSell
	}
	return DirNone
}

// Score is the leading side's total.
func (s Signal) Score() float64 {
	if s.BuyScore > s.SellScore {
		return s.BuyScore
	}
	return s.SellScore
}

// Decision is the result of one decision cycle for one symbol.
type Decision struct {
	Strategy   StrategyID
	Symbol     string
	Action     Action
	Confidence float64
	Threshold  float64
	BuyScore   float64
	SellScore  float64
	Quality    int
	Reasons    []string
	// Override is set when market structure overrode a WAIT.
	Override bool
	// RiskHalt is set when the risk manager vetoed trading this cycle.
	RiskHalt bool
	Time     time.Time
}

// OrderRequest is built once per approved decision and never mutated.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Lot        float64
	Entry      float64
	StopLoss   float64 // 0 = none
	TakeProfit float64 // 0 = none
	Tag        string
}

// WithoutStops returns a copy with TP/SL removed.
func (o OrderRequest) WithoutStops() OrderRequest {
	o.StopLoss = 0
	o.TakeProfit = 0
	return o
}

// Position is an open trade as reported by the gateway.
type Position struct {
	Ticket     int64
	Symbol     string
	Side       Side
	Lot        float64
	OpenPrice  float64
	StopLoss   float64
	TakeProfit float64
	Profit     float64
	Tag        string
	OpenTime   time.Time
}

// Account is a point-in-time view of the trading account.
type Account struct {
	Balance     float64
	Equity      float64
	Margin      float64
	FreeMargin  float64
	MarginLevel float64 // percent; 0 when no margin is used
	Currency    string
}
