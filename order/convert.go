package order

import (
	"fmt"
	"strings"
)

// RateSource returns the current mid price of a six-letter currency pair
// such as "EURUSD". ok is false when the pair is not quoted.
type RateSource interface {
	Rate(pair string) (rate float64, ok bool)
}

// RateFunc adapts a function to RateSource.
type RateFunc func(pair string) (float64, bool)

func (f RateFunc) Rate(pair string) (float64, bool) { return f(pair) }

// ConversionStep is one way of turning an amount in one currency into
// another. It reports whether it succeeded.
type ConversionStep struct {
	Name    string
	Convert func(rates RateSource, amount float64, from, to string) (float64, bool)
}

// DirectStep uses the FROMTO pair.
var DirectStep = ConversionStep{Name: "direct", Convert: direct}

// InverseStep divides by the TOFROM pair.
var InverseStep = ConversionStep{Name: "inverse", Convert: inverse}

// USDCrossStep goes through USD, each leg direct or inverse.
var USDCrossStep = ConversionStep{Name: "usd_cross", Convert: usdCross}

func direct(rates RateSource, amount float64, from, to string) (float64, bool) {
	r, ok := rates.Rate(from + to)
	if !ok || r <= 0 {
		return 0, false
	}
	return amount * r, true
}

func inverse(rates RateSource, amount float64, from, to string) (float64, bool) {
	r, ok := rates.Rate(to + from)
	if !ok || r <= 0 {
		return 0, false
	}
	return amount / r, true
}

func leg(rates RateSource, amount float64, from, to string) (float64, bool) {
	if from == to {
		return amount, true
	}
	if v, ok := direct(rates, amount, from, to); ok {
		return v, true
	}
	return inverse(rates, amount, from, to)
}

func usdCross(rates RateSource, amount float64, from, to string) (float64, bool) {
	if from == "USD" || to == "USD" {
		return 0, false
	}
	usd, ok := leg(rates, amount, from, "USD")
	if !ok {
		return 0, false
	}
	return leg(rates, usd, "USD", to)
}

// Converter tries its steps in order and stops at the first that succeeds.
type Converter struct {
	rates RateSource
	steps []ConversionStep
}

// NewConverter uses direct, inverse and USD cross steps unless others are
// supplied.
func NewConverter(rates RateSource, steps ...ConversionStep) *Converter {
	if len(steps) == 0 {
		steps = []ConversionStep{DirectStep, InverseStep, USDCrossStep}
	}
	return &Converter{rates: rates, steps: steps}
}

// Convert returns amount expressed in currency to, together with the name
// of the step that produced it.
func (c *Converter) Convert(amount float64, from, to string) (float64, string, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to || from == "" || to == "" {
		return amount, "identity", nil
	}
	for _, s := range c.steps {
		if v, ok := s.Convert(c.rates, amount, from, to); ok {
			return v, s.Name, nil
		}
	}
	return 0, "", fmt.Errorf("no conversion path from %s to %s", from, to)
}

// Rate is Convert for one unit.
func (c *Converter) Rate(from, to string) (float64, error) {
	v, _, err := c.Convert(1, from, to)
	return v, err
}
