package types

// OrderType discriminates the four supported order shapes.
type OrderType int8

const (
	LimitBuy OrderType = iota
	LimitSell
	MarketBuy
	MarketSell
)

func (t OrderType) String() string {
	switch t {
	case LimitBuy:
		return "limitBuy"
	case LimitSell:
		return "limitSell"
	case MarketBuy:
		return "marketBuy"
	case MarketSell:
		return "marketSell"
	}
	return "unknown"
}

func (t OrderType) IsBuy() bool {
	return t == LimitBuy || t == MarketBuy
}

func (t OrderType) IsMarket() bool {
	return t == MarketBuy || t == MarketSell
}

// Side of the book a price level belongs to.
type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// OrderDisposition is the outcome of an order or order change.
type OrderDisposition int8

const (
	DispositionAccepted OrderDisposition = iota
	DispositionFilled
	DispositionPartiallyFilled
	DispositionRejected
	DispositionCanceled
	DispositionAutoReduced
)

func (d OrderDisposition) String() string {
	switch d {
	case DispositionAccepted:
		return "accepted"
	case DispositionFilled:
		return "filled"
	case DispositionPartiallyFilled:
		return "partiallyFilled"
	case DispositionRejected:
		return "rejected"
	case DispositionCanceled:
		return "canceled"
	case DispositionAutoReduced:
		return "autoReduced"
	}
	return "unknown"
}

// RejectionReason explains a rejected order change.
type RejectionReason int8

const (
	RejectionNone RejectionReason = iota
	RejectionDoesNotExist
	RejectionNotForAccount
)

func (r RejectionReason) String() string {
	switch r {
	case RejectionDoesNotExist:
		return "doesNotExist"
	case RejectionNotForAccount:
		return "notForAccount"
	}
	return "none"
}

// Order is an order to add to a market.
//
// Limit orders carry LevelIx, the price level expressed as an integer
// multiple of the market's tick size. Market orders may carry Percentage
// instead of an absolute amount; the engine resolves it against the
// account's free balance before the batch is applied.
type Order struct {
	Guid       OrderGuid  `json:"guid"`
	Type       OrderType  `json:"type"`
	Amount     BaseAmount `json:"amount"`
	LevelIx    int        `json:"levelIx,omitempty"`
	Percentage int        `json:"percentage,omitempty"`

	// MaxAvailable is set internally on 100% market buys when the whole
	// quote balance is spendable, enabling the dust sweep on the final fill.
	MaxAvailable *QuoteAmount `json:"-"`
}

// CancelOrder requests removal of a resting order.
type CancelOrder struct {
	Guid OrderGuid `json:"guid"`
}

// OrderBatch is a set of order changes for a single market and account,
// applied atomically in sequence: cancels first, then adds.
type OrderBatch struct {
	Guid           string        `json:"guid"`
	MarketID       MarketID      `json:"marketId"`
	Account        AccountGuid   `json:"account"`
	OrdersToAdd    []Order       `json:"ordersToAdd,omitempty"`
	OrdersToCancel []CancelOrder `json:"ordersToCancel,omitempty"`
}
