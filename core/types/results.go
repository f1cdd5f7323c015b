package types

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Error is a sequencer-level error code. Errors are reported in responses;
// they never abort the request stream.
type Error int8

const (
	ErrNone Error = iota
	ErrUnknownRequest
	ErrUnknownMarket
	ErrMarketExists
	ErrInvalidFeeRate
	ErrInvalidWithdrawalFee
	ErrInvalidMarketMinFee
	ErrExceedsLimit
)

func (e Error) String() string {
	switch e {
	case ErrNone:
		return "none"
	case ErrUnknownRequest:
		return "unknownRequest"
	case ErrUnknownMarket:
		return "unknownMarket"
	case ErrMarketExists:
		return "marketExists"
	case ErrInvalidFeeRate:
		return "invalidFeeRate"
	case ErrInvalidWithdrawalFee:
		return "invalidWithdrawalFee"
	case ErrInvalidMarketMinFee:
		return "invalidMarketMinFee"
	case ErrExceedsLimit:
		return "exceedsLimit"
	}
	return "unknown"
}

// OrderChanged reports a disposition change for an order. NewQuantity is set
// when the order rests with a quantity differing from the requested amount.
type OrderChanged struct {
	Guid        OrderGuid        `json:"guid"`
	Disposition OrderDisposition `json:"disposition"`
	NewQuantity *BaseAmount      `json:"newQuantity,omitempty"`
}

// OrderChangeRejected reports an order change that could not be applied.
type OrderChangeRejected struct {
	Guid   OrderGuid       `json:"guid"`
	Reason RejectionReason `json:"reason"`
}

// TradeCreated reports a fill between two orders.
type TradeCreated struct {
	MarketID      MarketID    `json:"marketId"`
	BuyOrderGuid  OrderGuid   `json:"buyOrderGuid"`
	SellOrderGuid OrderGuid   `json:"sellOrderGuid"`
	Amount        BaseAmount  `json:"amount"`
	LevelIx       int         `json:"levelIx"`
	BuyerFee      QuoteAmount `json:"buyerFee"`
	SellerFee     QuoteAmount `json:"sellerFee"`
}

// BalanceChange reports the net balance delta for an account and asset over
// one request.
type BalanceChange struct {
	Account AccountGuid `json:"account"`
	Asset   Asset       `json:"asset"`
	Delta   *big.Int    `json:"delta"`
}

// LimitsUpdate reports the assets available to an account in a market after
// a request: balance minus the amount consumed by resting orders.
type LimitsUpdate struct {
	Account  AccountGuid `json:"account"`
	MarketID MarketID    `json:"marketId"`
	Base     *big.Int    `json:"base"`
	Quote    *big.Int    `json:"quote"`
}

// WithdrawalCreated acknowledges an accepted withdrawal and the fee charged.
type WithdrawalCreated struct {
	ExternalGuid string   `json:"externalGuid"`
	Fee          *big.Int `json:"fee"`
}

// MarketCreated acknowledges a created market.
type MarketCreated struct {
	MarketID      MarketID        `json:"marketId"`
	TickSize      decimal.Decimal `json:"tickSize"`
	BaseDecimals  uint8           `json:"baseDecimals"`
	QuoteDecimals uint8           `json:"quoteDecimals"`
	MinFee        QuoteAmount     `json:"minFee"`
}

// BidOfferState is the market's book-edge indices after a batch.
type BidOfferState struct {
	MinBidIx    int `json:"minBidIx"`
	BestBidIx   int `json:"bestBidIx"`
	BestOfferIx int `json:"bestOfferIx"`
	MaxOfferIx  int `json:"maxOfferIx"`
}

// Response is the envelope for all sequencer outputs. Sequence mirrors the
// input sequence number of the request that produced it.
type Response struct {
	Sequence uint64 `json:"sequence"`
	Guid     string `json:"guid"`
	Error    Error  `json:"error,omitempty"`

	MarketsCreated       []MarketCreated       `json:"marketsCreated,omitempty"`
	FeeRatesSet          *FeeRates             `json:"feeRatesSet,omitempty"`
	WithdrawalFeesSet    []WithdrawalFee       `json:"withdrawalFeesSet,omitempty"`
	MarketMinFeesSet     []MarketMinFee        `json:"marketMinFeesSet,omitempty"`
	OrdersChanged        []OrderChanged        `json:"ordersChanged,omitempty"`
	OrdersChangeRejected []OrderChangeRejected `json:"ordersChangeRejected,omitempty"`
	TradesCreated        []TradeCreated        `json:"tradesCreated,omitempty"`
	BalancesChanged      []BalanceChange       `json:"balancesChanged,omitempty"`
	LimitsUpdated        []LimitsUpdate        `json:"limitsUpdated,omitempty"`
	WithdrawalsCreated   []WithdrawalCreated   `json:"withdrawalsCreated,omitempty"`
	BidOfferState        *BidOfferState        `json:"bidOfferState,omitempty"`
	StateDump            *StateDump            `json:"stateDump,omitempty"`

	CreatedAt      int64 `json:"createdAt"`
	ProcessingTime int64 `json:"processingTime"`
}
