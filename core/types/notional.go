package types

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Notional converts a base amount at the given price into quote units,
// truncating towards zero. Base and quote assets may use different decimal
// scales, so the product is shifted by quoteDecimals-baseDecimals.
func Notional(amount BaseAmount, price decimal.Decimal, baseDecimals, quoteDecimals uint8) QuoteAmount {
	n := amount.Decimal().
		Mul(price).
		Shift(int32(quoteDecimals) - int32(baseDecimals)).
		Truncate(0)
	return QuoteAmount{v: n.BigInt()}
}

// NotionalFee computes the fee owed on a notional at the given rate,
// truncating towards zero.
func NotionalFee(notional QuoteAmount, rate FeeRate) QuoteAmount {
	fee := new(big.Int).Mul(notional.big(), big.NewInt(int64(rate)))
	fee.Quo(fee, big.NewInt(int64(MaxFeeRate)))
	return QuoteAmount{v: fee}
}

// NotionalPlusFee is the total quote amount needed to settle a trade of the
// given base amount: the notional plus the fee at the given rate.
func NotionalPlusFee(amount BaseAmount, price decimal.Decimal, baseDecimals, quoteDecimals uint8, rate FeeRate) QuoteAmount {
	n := Notional(amount, price, baseDecimals, quoteDecimals)
	return n.Add(NotionalFee(n, rate))
}

// FeeFromNotionalPlusFee inverts NotionalPlusFee: given a quote limit that
// must cover both notional and fee, it returns the fee portion, i.e.
// floor(limit * rate / (1_000_000 + rate)).
func FeeFromNotionalPlusFee(limit QuoteAmount, rate FeeRate) QuoteAmount {
	fee := new(big.Int).Mul(limit.big(), big.NewInt(int64(rate)))
	fee.Quo(fee, big.NewInt(int64(MaxFeeRate)+int64(rate)))
	return QuoteAmount{v: fee}
}

// QuantityFromNotionalAndPrice converts a quote notional back into a base
// quantity at the given price, flooring the result. The division is exact
// rational arithmetic so no precision is lost before the final floor.
func QuantityFromNotionalAndPrice(notional QuoteAmount, price decimal.Decimal, baseDecimals, quoteDecimals uint8) BaseAmount {
	r := new(big.Rat).SetInt(notional.big())
	r.Quo(r, price.Rat())

	shift := int(baseDecimals) - int(quoteDecimals)
	if shift > 0 {
		r.Mul(r, new(big.Rat).SetInt(pow10(shift)))
	} else if shift < 0 {
		r.Quo(r, new(big.Rat).SetInt(pow10(-shift)))
	}

	q := new(big.Int).Quo(r.Num(), r.Denom())
	return BaseAmount{v: q}
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
