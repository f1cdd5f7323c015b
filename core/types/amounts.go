package types

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// BaseAmount is an integer amount of a market's base asset, in base units.
// The zero value is zero. Operations never mutate their receiver.
type BaseAmount struct {
	v *big.Int
}

func NewBaseAmount(v int64) BaseAmount {
	return BaseAmount{v: big.NewInt(v)}
}

// BaseAmountFromBig copies v into a BaseAmount. A nil v is zero.
func BaseAmountFromBig(v *big.Int) BaseAmount {
	if v == nil {
		return BaseAmount{}
	}
	return BaseAmount{v: new(big.Int).Set(v)}
}

func (a BaseAmount) big() *big.Int {
	if a.v == nil {
		return bigZero
	}
	return a.v
}

// Big returns a copy of the amount as a big.Int.
func (a BaseAmount) Big() *big.Int {
	return new(big.Int).Set(a.big())
}

func (a BaseAmount) Add(b BaseAmount) BaseAmount {
	return BaseAmount{v: new(big.Int).Add(a.big(), b.big())}
}

func (a BaseAmount) Sub(b BaseAmount) BaseAmount {
	return BaseAmount{v: new(big.Int).Sub(a.big(), b.big())}
}

func (a BaseAmount) Neg() BaseAmount {
	return BaseAmount{v: new(big.Int).Neg(a.big())}
}

func (a BaseAmount) Min(b BaseAmount) BaseAmount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func (a BaseAmount) Cmp(b BaseAmount) int { return a.big().Cmp(b.big()) }
func (a BaseAmount) Sign() int            { return a.big().Sign() }
func (a BaseAmount) IsZero() bool         { return a.big().Sign() == 0 }
func (a BaseAmount) String() string       { return a.big().String() }

func (a BaseAmount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(a.big(), 0)
}

func (a BaseAmount) MarshalJSON() ([]byte, error) {
	return a.big().MarshalJSON()
}

func (a *BaseAmount) UnmarshalJSON(data []byte) error {
	v := new(big.Int)
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	a.v = v
	return nil
}

// QuoteAmount is an integer amount of a market's quote asset, in quote units.
// The zero value is zero. Operations never mutate their receiver.
type QuoteAmount struct {
	v *big.Int
}

func NewQuoteAmount(v int64) QuoteAmount {
	return QuoteAmount{v: big.NewInt(v)}
}

// QuoteAmountFromBig copies v into a QuoteAmount. A nil v is zero.
func QuoteAmountFromBig(v *big.Int) QuoteAmount {
	if v == nil {
		return QuoteAmount{}
	}
	return QuoteAmount{v: new(big.Int).Set(v)}
}

func (a QuoteAmount) big() *big.Int {
	if a.v == nil {
		return bigZero
	}
	return a.v
}

// Big returns a copy of the amount as a big.Int.
func (a QuoteAmount) Big() *big.Int {
	return new(big.Int).Set(a.big())
}

func (a QuoteAmount) Add(b QuoteAmount) QuoteAmount {
	return QuoteAmount{v: new(big.Int).Add(a.big(), b.big())}
}

func (a QuoteAmount) Sub(b QuoteAmount) QuoteAmount {
	return QuoteAmount{v: new(big.Int).Sub(a.big(), b.big())}
}

func (a QuoteAmount) Neg() QuoteAmount {
	return QuoteAmount{v: new(big.Int).Neg(a.big())}
}

func (a QuoteAmount) Min(b QuoteAmount) QuoteAmount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func (a QuoteAmount) Cmp(b QuoteAmount) int { return a.big().Cmp(b.big()) }
func (a QuoteAmount) Sign() int             { return a.big().Sign() }
func (a QuoteAmount) IsZero() bool          { return a.big().Sign() == 0 }
func (a QuoteAmount) String() string        { return a.big().String() }

func (a QuoteAmount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(a.big(), 0)
}

func (a QuoteAmount) MarshalJSON() ([]byte, error) {
	return a.big().MarshalJSON()
}

func (a *QuoteAmount) UnmarshalJSON(data []byte) error {
	v := new(big.Int)
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	a.v = v
	return nil
}

var bigZero = big.NewInt(0)
