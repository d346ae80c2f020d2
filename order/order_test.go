package order

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/tradecore/types"
)

var eurusd = types.Instrument{
	Symbol: "EURUSD", Digits: 5, Point: 0.00001, ContractSize: 100_000,
	MinLot: 0.01, MaxLot: 100, LotStep: 0.01, StopsLevel: 10,
}

func rates(m map[string]float64) RateSource {
	return RateFunc(func(pair string) (float64, bool) {
		r, ok := m[pair]
		return r, ok
	})
}

func TestClassifyAndPipSize(t *testing.T) {
	cases := []struct {
		inst  types.Instrument
		class Class
		pip   float64
	}{
		{eurusd, Forex, 0.0001},
		{types.Instrument{Symbol: "GBPUSD", Digits: 4, Point: 0.0001}, Forex, 0.0001},
		{types.Instrument{Symbol: "USDJPY", Digits: 3, Point: 0.001}, JPYPair, 0.01},
		{types.Instrument{Symbol: "XAUUSD", Digits: 2, Point: 0.01}, Metal, 0.1},
		{types.Instrument{Symbol: "XAGUSD.m", Digits: 3, Point: 0.001}, Metal, 0.01},
		{types.Instrument{Symbol: "BTCUSD", Digits: 2, Point: 0.01}, Crypto, 1},
		{types.Instrument{Symbol: "US30", Digits: 1, Point: 0.1}, Index, 1},
		{types.Instrument{Symbol: "USOIL", Digits: 2, Point: 0.01}, Commodity, 0.01},
		{types.Instrument{Symbol: "CADAUD", Digits: 5, Point: 0.00001}, Forex, 0.0001},
	}
	for _, c := range cases {
		assert.Equal(t, c.class, Classify(c.inst.Symbol), c.inst.Symbol)
		assert.InDelta(t, c.pip, PipSize(c.inst), 1e-12, c.inst.Symbol)
	}
}

func TestCurrencies(t *testing.T) {
	b, q := Currencies(eurusd)
	assert.Equal(t, "EUR", b)
	assert.Equal(t, "USD", q)

	b, q = Currencies(types.Instrument{Symbol: "ETHUSDT"})
	assert.Equal(t, "ETH", b)
	assert.Equal(t, "USD", q)

	_, q = Currencies(types.Instrument{Symbol: "GER40"})
	assert.Equal(t, "USD", q)
}

func TestConverterOrder(t *testing.T) {
	c := NewConverter(rates(map[string]float64{
		"EURUSD": 1.10,
		"USDJPY": 150,
		"GBPUSD": 1.25,
	}))

	v, step, err := c.Convert(100, "EUR", "USD")
	require.NoError(t, err)
	assert.Equal(t, "direct", step)
	assert.InDelta(t, 110, v, 1e-9)

	v, step, err = c.Convert(110, "USD", "EUR")
	require.NoError(t, err)
	assert.Equal(t, "inverse", step)
	assert.InDelta(t, 100, v, 1e-9)

	v, step, err = c.Convert(100, "GBP", "JPY")
	require.NoError(t, err)
	assert.Equal(t, "usd_cross", step)
	assert.InDelta(t, 100*1.25*150, v, 1e-6)

	v, step, err = c.Convert(5, "usd", "USD")
	require.NoError(t, err)
	assert.Equal(t, "identity", step)
	assert.Equal(t, 5.0, v)

	_, _, err = c.Convert(1, "CHF", "SEK")
	assert.Error(t, err)
}

func TestConverterStopsAtFirstSuccess(t *testing.T) {
	var calls []string
	record := func(name string, ok bool) ConversionStep {
		return ConversionStep{Name: name, Convert: func(_ RateSource, a float64, _, _ string) (float64, bool) {
			calls = append(calls, name)
			return a * 2, ok
		}}
	}
	c := NewConverter(rates(nil), record("a", false), record("b", true), record("c", true))
	v, step, err := c.Convert(1, "AAA", "BBB")
	require.NoError(t, err)
	assert.Equal(t, "b", step)
	assert.Equal(t, 2.0, v)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestResolvePipsStopLoss(t *testing.T) {
	price, dist, err := Resolve(Level{Value: 10, Unit: Pips}, StopLoss, LevelContext{
		Instrument: eurusd, Side: types.Buy, Entry: 1.10000,
	})
	require.NoError(t, err)
	assert.Equal(t, 1.09900, price)
	assert.InDelta(t, 0.001, dist, 1e-12)

	price, _, err = Resolve(Level{Value: 20, Unit: Pips}, TakeProfit, LevelContext{
		Instrument: eurusd, Side: types.Sell, Entry: 1.10000, Multiplier: 1.5,
	})
	require.NoError(t, err)
	assert.Equal(t, 1.09700, price)
}

func TestResolveAbsoluteAndMoney(t *testing.T) {
	conv := NewConverter(rates(map[string]float64{"EURUSD": 1.1}))

	price, dist, err := Resolve(Level{Value: 1.123456, Unit: Price}, TakeProfit, LevelContext{
		Instrument: eurusd, Side: types.Buy, Entry: 1.1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1.12346, price)
	assert.InDelta(t, 0.02346, dist, 1e-9)

	// $50 on 0.5 lot of EURUSD is a 0.001 move.
	price, _, err = Resolve(Level{Value: 50, Unit: Money}, StopLoss, LevelContext{
		Instrument: eurusd, Side: types.Buy, Entry: 1.1, Lot: 0.5,
		AccountCurrency: "USD", Converter: conv,
	})
	require.NoError(t, err)
	assert.Equal(t, 1.099, price)

	// 1% of 10k USD balance = $100 on 1 lot = 0.001 move.
	price, _, err = Resolve(Level{Value: 1, Unit: Percent}, TakeProfit, LevelContext{
		Instrument: eurusd, Side: types.Sell, Entry: 1.1, Lot: 1, Balance: 10_000,
		AccountCurrency: "USD", Converter: conv,
	})
	require.NoError(t, err)
	assert.Equal(t, 1.099, price)

	// money in EUR converts to the USD account first.
	price, _, err = Resolve(Level{Value: 100, Unit: Money, Currency: "EUR"}, TakeProfit, LevelContext{
		Instrument: eurusd, Side: types.Buy, Entry: 1.1, Lot: 1,
		AccountCurrency: "USD", Converter: conv,
	})
	require.NoError(t, err)
	assert.Equal(t, 1.1011, price)

	_, _, err = Resolve(Level{Value: 50, Unit: Money}, StopLoss, LevelContext{Instrument: eurusd, Side: types.Buy, Entry: 1.1})
	assert.Error(t, err, "money level without lot")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "stop_loss", verr.Field)

	_, _, err = Resolve(Level{Value: 1, Unit: Percent}, TakeProfit, LevelContext{Instrument: eurusd, Side: types.Buy, Entry: 1.1, Lot: 1, Balance: 1000})
	require.ErrorAs(t, err, &verr, "percent level without converter")
	assert.Equal(t, "take_profit", verr.Field)

	price, dist, err = Resolve(Level{}, StopLoss, LevelContext{Instrument: eurusd, Entry: 1.1})
	require.NoError(t, err)
	assert.Zero(t, price)
	assert.Zero(t, dist)
}

func TestPipValue(t *testing.T) {
	conv := NewConverter(rates(map[string]float64{"USDJPY": 150}))
	v, err := PipValue(eurusd, "USD", conv)
	require.NoError(t, err)
	assert.InDelta(t, 10, v, 1e-9)

	jpy := types.Instrument{Symbol: "USDJPY", Digits: 3, Point: 0.001, ContractSize: 100_000}
	v, err = PipValue(jpy, "USD", conv)
	require.NoError(t, err)
	assert.InDelta(t, 1000/150.0, v, 1e-9)
}

func TestNormalizeLot(t *testing.T) {
	assert.Equal(t, 0.37, NormalizeLot(0.379, eurusd))
	assert.Equal(t, 0.01, NormalizeLot(0.004, eurusd))
	assert.Equal(t, 100.0, NormalizeLot(250, eurusd))
	assert.Equal(t, 0.0, NormalizeLot(0, eurusd))
	assert.Equal(t, 0.123, NormalizeLot(0.123, types.Instrument{}))
}

func TestValidate(t *testing.T) {
	ok := types.OrderRequest{Symbol: "EURUSD", Side: types.Buy, Lot: 0.1, Entry: 1.1, StopLoss: 1.099, TakeProfit: 1.102}
	require.NoError(t, Validate(ok, eurusd, DefaultStopSafety))

	wrongSide := ok
	wrongSide.StopLoss = 1.101
	var ve *ValidationError
	err := Validate(wrongSide, eurusd, DefaultStopSafety)
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "stop_loss", ve.Field)

	sell := types.OrderRequest{Symbol: "EURUSD", Side: types.Sell, Lot: 0.1, Entry: 1.1, TakeProfit: 1.101}
	err = Validate(sell, eurusd, DefaultStopSafety)
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "take_profit", ve.Field)

	// StopsLevel 10 points * 1.1 safety = 0.00011; 0.0001 is too close.
	tight := ok
	tight.StopLoss = 1.0999
	assert.Error(t, Validate(tight, eurusd, DefaultStopSafety))
	tight.StopLoss = 1.09988
	assert.NoError(t, Validate(tight, eurusd, DefaultStopSafety))

	lot := ok
	lot.Lot = 0
	assert.Error(t, Validate(lot, eurusd, DefaultStopSafety))
}
