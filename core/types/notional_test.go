package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNotional(t *testing.T) {
	price := decimal.RequireFromString("50000")

	// 1 BTC (8 decimals) at 50000 USDC (6 decimals)
	n := Notional(NewBaseAmount(100_000_000), price, 8, 6)
	assert.Equal(t, "50000000000", n.String())

	// fractional results truncate towards zero
	n = Notional(NewBaseAmount(1), decimal.RequireFromString("0.5"), 0, 0)
	assert.Equal(t, "0", n.String())

	n = Notional(NewBaseAmount(7), decimal.RequireFromString("3"), 0, 2)
	assert.Equal(t, "2100", n.String())
}

func TestNotionalFee(t *testing.T) {
	// 2% of 1000
	fee := NotionalFee(NewQuoteAmount(1000), 20_000)
	assert.Equal(t, "20", fee.String())

	// truncates towards zero
	fee = NotionalFee(NewQuoteAmount(21), 20_000)
	assert.Equal(t, "0", fee.String())

	fee = NotionalFee(NewQuoteAmount(1000), 0)
	assert.True(t, fee.IsZero())
}

func TestNotionalPlusFee(t *testing.T) {
	total := NotionalPlusFee(NewBaseAmount(100), decimal.RequireFromString("10"), 0, 0, 20_000)
	assert.Equal(t, "1020", total.String())
}

func TestFeeFromNotionalPlusFee(t *testing.T) {
	// exact inversion of NotionalPlusFee
	fee := FeeFromNotionalPlusFee(NewQuoteAmount(1020), 20_000)
	assert.Equal(t, "20", fee.String())

	// floors when the split is not exact
	fee = FeeFromNotionalPlusFee(NewQuoteAmount(404), 10_000)
	assert.Equal(t, "4", fee.String())
}

func TestQuantityFromNotionalAndPrice(t *testing.T) {
	q := QuantityFromNotionalAndPrice(NewQuoteAmount(1000), decimal.RequireFromString("3"), 0, 0)
	assert.Equal(t, "333", q.String())

	// decimal shift between base and quote scales
	q = QuantityFromNotionalAndPrice(NewQuoteAmount(2450), decimal.RequireFromString("3"), 0, 2)
	assert.Equal(t, "8", q.String())

	// exact division loses nothing
	q = QuantityFromNotionalAndPrice(NewQuoteAmount(50_000_000_000), decimal.RequireFromString("50000"), 8, 6)
	assert.Equal(t, "100000000", q.String())
}

func TestFeeRates(t *testing.T) {
	assert.Equal(t, FeeRate(10_000), FeeRateFromPercents(1.0))
	assert.Equal(t, 2.0, FeeRate(20_000).InPercents())

	assert.True(t, FeeRates{Maker: 0, Taker: MaxFeeRate}.Valid())
	assert.False(t, FeeRates{Maker: -1, Taker: 0}.Valid())
	assert.False(t, FeeRates{Maker: 0, Taker: MaxFeeRate + 1}.Valid())
}
