package types

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// RequestType discriminates sequencer requests.
type RequestType int8

const (
	RequestUnparseable RequestType = iota
	RequestAddMarket
	RequestSetFeeRates
	RequestSetWithdrawalFees
	RequestSetMarketMinFees
	RequestApplyOrderBatch
	RequestApplyBalanceBatch
	RequestReset
	RequestGetState
)

func (t RequestType) String() string {
	switch t {
	case RequestAddMarket:
		return "addMarket"
	case RequestSetFeeRates:
		return "setFeeRates"
	case RequestSetWithdrawalFees:
		return "setWithdrawalFees"
	case RequestSetMarketMinFees:
		return "setMarketMinFees"
	case RequestApplyOrderBatch:
		return "applyOrderBatch"
	case RequestApplyBalanceBatch:
		return "applyBalanceBatch"
	case RequestReset:
		return "reset"
	case RequestGetState:
		return "getState"
	}
	return "unparseable"
}

// AddMarket creates a market. Re-adding an existing market with the same
// tick size and decimals is a no-op.
type AddMarket struct {
	MarketID          MarketID        `json:"marketId"`
	TickSize          decimal.Decimal `json:"tickSize"`
	MaxOrdersPerLevel int             `json:"maxOrdersPerLevel"`
	BaseDecimals      uint8           `json:"baseDecimals"`
	QuoteDecimals     uint8           `json:"quoteDecimals"`
	MinFee            QuoteAmount     `json:"minFee"`
}

// WithdrawalFee is the flat fee charged on withdrawals of an asset.
type WithdrawalFee struct {
	Asset Asset    `json:"asset"`
	Value *big.Int `json:"value"`
}

// MarketMinFee sets the minimum taker fee for a market, in quote units.
type MarketMinFee struct {
	MarketID MarketID    `json:"marketId"`
	MinFee   QuoteAmount `json:"minFee"`
}

// Deposit credits an account balance.
type Deposit struct {
	Account AccountGuid `json:"account"`
	Asset   Asset       `json:"asset"`
	Amount  *big.Int    `json:"amount"`
}

// Withdrawal debits an account balance. A zero amount withdraws the full
// balance. Withdrawals that do not exceed the withdrawal fee, or that exceed
// the balance, are ignored.
type Withdrawal struct {
	Account      AccountGuid `json:"account"`
	Asset        Asset       `json:"asset"`
	Amount       *big.Int    `json:"amount"`
	ExternalGuid string      `json:"externalGuid"`
}

// FailedWithdrawal refunds a withdrawal that failed downstream.
type FailedWithdrawal struct {
	Account AccountGuid `json:"account"`
	Asset   Asset       `json:"asset"`
	Amount  *big.Int    `json:"amount"`
}

// SettlementTrade describes the trade being reversed by a failed settlement.
type SettlementTrade struct {
	Amount    BaseAmount  `json:"amount"`
	LevelIx   int         `json:"levelIx"`
	BuyerFee  QuoteAmount `json:"buyerFee"`
	SellerFee QuoteAmount `json:"sellerFee"`
}

// FailedSettlement reverses a settled trade: the seller gets the base back
// and returns the quote proceeds, the buyer gets the quote back and returns
// the base.
type FailedSettlement struct {
	MarketID    MarketID        `json:"marketId"`
	BuyAccount  AccountGuid     `json:"buyAccount"`
	SellAccount AccountGuid     `json:"sellAccount"`
	Trade       SettlementTrade `json:"trade"`
}

// BalanceBatch is a set of balance changes applied atomically in sequence.
type BalanceBatch struct {
	Guid              string             `json:"guid"`
	Deposits          []Deposit          `json:"deposits,omitempty"`
	Withdrawals       []Withdrawal       `json:"withdrawals,omitempty"`
	FailedWithdrawals []FailedWithdrawal `json:"failedWithdrawals,omitempty"`
	FailedSettlements []FailedSettlement `json:"failedSettlements,omitempty"`
}

// Request is the envelope for all sequencer inputs. Exactly one payload
// field matching Type is set.
type Request struct {
	Guid string      `json:"guid"`
	Type RequestType `json:"type"`

	AddMarket      *AddMarket      `json:"addMarket,omitempty"`
	FeeRates       *FeeRates       `json:"feeRates,omitempty"`
	WithdrawalFees []WithdrawalFee `json:"withdrawalFees,omitempty"`
	MarketMinFees  []MarketMinFee  `json:"marketMinFees,omitempty"`
	OrderBatch     *OrderBatch     `json:"orderBatch,omitempty"`
	BalanceBatch   *BalanceBatch   `json:"balanceBatch,omitempty"`
}
