package types

// FeeRate is a fee rate expressed in parts per million of the notional.
// 1% is 10_000.
type FeeRate int64

const (
	MinFeeRate FeeRate = 0
	MaxFeeRate FeeRate = 1_000_000
)

func (f FeeRate) Valid() bool {
	return f >= MinFeeRate && f <= MaxFeeRate
}

func (f FeeRate) IsZero() bool {
	return f == 0
}

// FeeRateFromPercents converts a percentage (1.0 == 1%) into a FeeRate.
func FeeRateFromPercents(percents float64) FeeRate {
	return FeeRate(percents * float64(MaxFeeRate) / 100)
}

func (f FeeRate) InPercents() float64 {
	return float64(f) * 100 / float64(MaxFeeRate)
}

// FeeRates carries the current maker and taker rates. Makers are charged on
// resting orders, takers on crossing orders.
type FeeRates struct {
	Maker FeeRate `json:"maker"`
	Taker FeeRate `json:"taker"`
}

func FeeRatesFromPercents(maker, taker float64) FeeRates {
	return FeeRates{
		Maker: FeeRateFromPercents(maker),
		Taker: FeeRateFromPercents(taker),
	}
}

func (f FeeRates) Valid() bool {
	return f.Maker.Valid() && f.Taker.Valid()
}
