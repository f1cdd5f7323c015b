package types

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// CheckpointVersion is the current checkpoint document format version.
// Documents with any other version fail to load.
const CheckpointVersion = 1

// Consumption records the quote or base amount a market has consumed from an
// account's balance through resting orders.
type Consumption struct {
	MarketID MarketID `json:"marketId"`
	Consumed *big.Int `json:"consumed"`
}

// BalanceCheckpoint is one account/asset balance with its per-market
// consumption.
type BalanceCheckpoint struct {
	Account  AccountGuid   `json:"account"`
	Asset    Asset         `json:"asset"`
	Amount   *big.Int      `json:"amount"`
	Consumed []Consumption `json:"consumed,omitempty"`
}

// OrderCheckpoint is one resting order within a level checkpoint.
type OrderCheckpoint struct {
	Guid             OrderGuid   `json:"guid"`
	Account          AccountGuid `json:"account"`
	Quantity         BaseAmount  `json:"quantity"`
	OriginalQuantity BaseAmount  `json:"originalQuantity"`
	FeeRate          FeeRate     `json:"feeRate"`
}

// LevelCheckpoint is one populated price level. Orders are listed in queue
// order from head to tail; Head and Tail preserve the ring cursors so a
// restore reproduces the level byte for byte.
type LevelCheckpoint struct {
	Ix            int               `json:"ix"`
	Side          Side              `json:"side"`
	MaxOrderCount int               `json:"maxOrderCount"`
	TotalQuantity BaseAmount        `json:"totalQuantity"`
	Head          int               `json:"head"`
	Tail          int               `json:"tail"`
	Orders        []OrderCheckpoint `json:"orders,omitempty"`
}

// MarketCheckpoint is the complete persisted form of one market, levels in
// ascending index order.
type MarketCheckpoint struct {
	ID                MarketID          `json:"id"`
	TickSize          decimal.Decimal   `json:"tickSize"`
	MaxOrdersPerLevel int               `json:"maxOrdersPerLevel"`
	BaseDecimals      uint8             `json:"baseDecimals"`
	QuoteDecimals     uint8             `json:"quoteDecimals"`
	MinFee            QuoteAmount       `json:"minFee"`
	MinBidIx          int               `json:"minBidIx"`
	BestBidIx         int               `json:"bestBidIx"`
	BestOfferIx       int               `json:"bestOfferIx"`
	MaxOfferIx        int               `json:"maxOfferIx"`
	Levels            []LevelCheckpoint `json:"levels,omitempty"`
}

// Checkpoint is the persisted form of the full sequencer state at a cycle
// boundary. Balances are sorted by (account, asset) and markets by id so the
// persisted bytes are deterministic.
type Checkpoint struct {
	Version        int                 `json:"version"`
	Cycle          uint64              `json:"cycle"`
	MakerFeeRate   FeeRate             `json:"makerFeeRate"`
	TakerFeeRate   FeeRate             `json:"takerFeeRate"`
	WithdrawalFees []WithdrawalFee     `json:"withdrawalFees,omitempty"`
	Balances       []BalanceCheckpoint `json:"balances,omitempty"`
	Markets        []MarketCheckpoint  `json:"markets,omitempty"`
}

// StateDump is the sandbox-mode state introspection payload.
type StateDump struct {
	FeeRates       FeeRates            `json:"feeRates"`
	WithdrawalFees []WithdrawalFee     `json:"withdrawalFees,omitempty"`
	Balances       []BalanceCheckpoint `json:"balances,omitempty"`
	Markets        []MarketCheckpoint  `json:"markets,omitempty"`
}
