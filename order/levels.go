package order

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/evdnx/tradecore/types"
)

// Unit says how a TP or SL value is expressed.
type Unit string

const (
	Pips    Unit = "pips"
	Price   Unit = "price"
	Percent Unit = "percent" // of account balance
	Money   Unit = "money"   // amount in Level.Currency, account currency if empty
)

func (u *Unit) UnmarshalText(b []byte) error {
	switch v := Unit(strings.ToLower(strings.TrimSpace(string(b)))); v {
	case Pips, Price, Percent, Money:
		*u = v
		return nil
	case "":
		*u = Pips
		return nil
	}
	return fmt.Errorf("unknown level unit %q", string(b))
}

// Level is a TP or SL specification. A zero Value disables the level.
type Level struct {
	Value    float64 `yaml:"value" json:"value" validate:"gte=0"`
	Unit     Unit    `yaml:"unit" json:"unit"`
	Currency string  `yaml:"currency,omitempty" json:"currency,omitempty"`
}

func (l Level) Enabled() bool { return l.Value > 0 }

// Kind tells Resolve which side of entry a level belongs on.
type Kind int

const (
	TakeProfit Kind = iota
	StopLoss
)

func (k Kind) String() string {
	if k == TakeProfit {
		return "take_profit"
	}
	return "stop_loss"
}

// LevelContext carries what Resolve needs beyond the level itself.
type LevelContext struct {
	Instrument      types.Instrument
	Side            types.Side
	Entry           float64
	Lot             float64
	Balance         float64
	AccountCurrency string
	Multiplier      float64 // session TP or SL multiplier, 0 means 1
	Converter       *Converter
}

// Resolve turns a level into an absolute price. It also returns the
// distance from entry in price units.
func Resolve(l Level, kind Kind, c LevelContext) (price, distance float64, err error) {
	if !l.Enabled() {
		return 0, 0, nil
	}
	mult := c.Multiplier
	if mult <= 0 {
		mult = 1
	}
	switch l.Unit {
	case Pips, "":
		distance = l.Value * PipSize(c.Instrument) * mult
	case Price:
		price = RoundPrice(l.Value, c.Instrument.Digits)
		if price < c.Entry {
			distance = c.Entry - price
		} else {
			distance = price - c.Entry
		}
		return price, distance, nil
	case Percent:
		distance, err = moneyDistance(kind, c.Balance*l.Value/100, c.AccountCurrency, c)
		distance *= mult
	case Money:
		ccy := l.Currency
		if ccy == "" {
			ccy = c.AccountCurrency
		}
		distance, err = moneyDistance(kind, l.Value, ccy, c)
		distance *= mult
	default:
		return 0, 0, &ValidationError{Symbol: c.Instrument.Symbol, Field: kind.String(), Reason: fmt.Sprintf("unknown unit %q", l.Unit)}
	}
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", kind, err)
	}
	return offset(c.Side, kind, c.Entry, distance, c.Instrument.Digits), distance, nil
}

// offset places a level on the profit or loss side of entry.
func offset(side types.Side, kind Kind, entry, distance float64, digits int) float64 {
	up := (side == types.Buy) == (kind == TakeProfit)
	if up {
		return RoundPrice(entry+distance, digits)
	}
	return RoundPrice(entry-distance, digits)
}

// moneyDistance is the price move at which the position's P/L equals
// amount (given in ccy).
func moneyDistance(kind Kind, amount float64, ccy string, c LevelContext) (float64, error) {
	invalid := func(reason string) error {
		return &ValidationError{Symbol: c.Instrument.Symbol, Field: kind.String(), Reason: reason}
	}
	if c.Lot <= 0 {
		return 0, invalid("money based level needs a positive lot")
	}
	if c.Converter == nil {
		return 0, invalid("money based level needs a currency converter")
	}
	inAccount, _, err := c.Converter.Convert(amount, ccy, c.AccountCurrency)
	if err != nil {
		return 0, err
	}
	_, quote := Currencies(c.Instrument)
	perUnit, _, err := c.Converter.Convert(1, quote, c.AccountCurrency)
	if err != nil {
		return 0, err
	}
	denom := c.Lot * ContractSize(c.Instrument) * perUnit
	if denom <= 0 {
		return 0, invalid("cannot size a money level")
	}
	return inAccount / denom, nil
}

// PipValue is the account-currency value of a one pip move on one lot.
func PipValue(inst types.Instrument, accountCcy string, conv *Converter) (float64, error) {
	_, quote := Currencies(inst)
	perQuote := PipSize(inst) * ContractSize(inst)
	if conv == nil {
		if quote != accountCcy {
			return 0, fmt.Errorf("pip value for %s needs a converter", inst.Symbol)
		}
		return perQuote, nil
	}
	v, _, err := conv.Convert(perQuote, quote, accountCcy)
	return v, err
}

// RoundPrice rounds to the instrument's price precision.
func RoundPrice(p float64, digits int) float64 {
	if digits < 0 {
		return p
	}
	v, _ := decimal.NewFromFloat(p).Round(int32(digits)).Float64()
	return v
}

// NormalizeLot floors lot to the instrument step and clamps it into
// [MinLot, MaxLot]. A zero step leaves the lot unrounded. The step count is
// rounded to six places before flooring so float noise such as 59.9999999
// steps does not lose a whole step.
func NormalizeLot(lot float64, inst types.Instrument) float64 {
	if lot <= 0 {
		return 0
	}
	v := decimal.NewFromFloat(lot)
	if inst.LotStep > 0 {
		step := decimal.NewFromFloat(inst.LotStep)
		v = v.Div(step).Round(6).Floor().Mul(step)
	}
	out, _ := v.Float64()
	if inst.MinLot > 0 && out < inst.MinLot {
		out = inst.MinLot
	}
	if inst.MaxLot > 0 && out > inst.MaxLot {
		out = inst.MaxLot
	}
	return out
}
