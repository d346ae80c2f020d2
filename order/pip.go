package order

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/evdnx/tradecore/types"
)

// Class groups instruments that share a pip definition.
type Class int

const (
	Forex Class = iota
	JPYPair
	Metal
	Crypto
	Index
	Commodity
)

var classNames = [...]string{"forex", "jpy", "metal", "crypto", "index", "commodity"}

func (c Class) String() string {
	if c < 0 || int(c) >= len(classNames) {
		return fmt.Sprintf("class(%d)", int(c))
	}
	return classNames[c]
}

func (c Class) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Class) UnmarshalText(b []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(b)))
	for i, n := range classNames {
		if n == name {
			*c = Class(i)
			return nil
		}
	}
	return fmt.Errorf("unknown instrument class %q", string(b))
}

var (
	cryptoTokens    = []string{"BTC", "ETH", "LTC", "XRP", "SOL", "ADA", "DOGE", "BNB", "DOT"}
	indexPrefixes   = []string{"US30", "US500", "US100", "NAS", "SPX", "DJ", "GER", "DE40", "DAX", "UK100", "FTSE", "JP225", "NIK", "AUS200", "HK50", "FRA40", "EU50"}
	commodityTokens = []string{"OIL", "WTI", "BRENT", "XTI", "XBR", "NGAS", "NATGAS", "COPPER"}
)

// Classify infers the instrument class from its symbol. Broker suffixes
// such as ".m" or "_raw" are ignored.
func Classify(symbol string) Class {
	s := normalizeSymbol(symbol)
	switch {
	case strings.HasPrefix(s, "XAU"), strings.HasPrefix(s, "XAG"),
		strings.HasPrefix(s, "XPT"), strings.HasPrefix(s, "XPD"),
		strings.HasPrefix(s, "GOLD"), strings.HasPrefix(s, "SILVER"):
		return Metal
	case hasAnyPrefix(s, cryptoTokens):
		return Crypto
	case hasAnyPrefix(s, indexPrefixes):
		return Index
	case containsAny(s, commodityTokens):
		return Commodity
	case len(s) == 6 && strings.Contains(s, "JPY"):
		return JPYPair
	}
	return Forex
}

// PipSize is the pip-equivalent price increment used for scoring and for
// TP/SL distances expressed in pips.
func PipSize(inst types.Instrument) float64 {
	s := normalizeSymbol(inst.Symbol)
	switch Classify(inst.Symbol) {
	case JPYPair:
		return 0.01
	case Metal:
		if strings.HasPrefix(s, "XAG") || strings.HasPrefix(s, "SILVER") {
			return 0.01
		}
		return 0.1
	case Crypto, Index:
		return 1
	case Commodity:
		return 0.01
	}
	if inst.Digits == 3 || inst.Digits == 5 {
		pip, _ := decimal.NewFromFloat(inst.Point).Shift(1).Float64()
		return pip
	}
	if inst.Point > 0 {
		return inst.Point
	}
	return 0.0001
}

// ContractSize returns the instrument's contract size, falling back to the
// usual size for its class when the broker did not report one.
func ContractSize(inst types.Instrument) float64 {
	if inst.ContractSize > 0 {
		return inst.ContractSize
	}
	s := normalizeSymbol(inst.Symbol)
	switch Classify(inst.Symbol) {
	case Metal:
		if strings.HasPrefix(s, "XAG") || strings.HasPrefix(s, "SILVER") {
			return 5000
		}
		return 100
	case Crypto, Index:
		return 1
	case Commodity:
		return 1000
	}
	return 100_000
}

// Currencies returns the base and quote currency of the instrument. Values
// reported by the broker win; otherwise they are parsed from the symbol.
// Indices and commodities quote in USD.
func Currencies(inst types.Instrument) (base, quote string) {
	if inst.BaseCurrency != "" && inst.QuoteCurrency != "" {
		return inst.BaseCurrency, inst.QuoteCurrency
	}
	s := normalizeSymbol(inst.Symbol)
	switch Classify(inst.Symbol) {
	case Forex, JPYPair, Metal:
		if len(s) >= 6 {
			return s[:3], s[3:6]
		}
	case Crypto:
		for _, q := range []string{"USDT", "USD", "EUR", "BTC"} {
			if strings.HasSuffix(s, q) && len(s) > len(q) {
				base := s[:len(s)-len(q)]
				if q == "USDT" {
					q = "USD"
				}
				return base, q
			}
		}
	}
	return s, "USD"
}

func normalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.IndexAny(s, "._-"); i > 0 {
		s = s[:i]
	}
	return s
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
