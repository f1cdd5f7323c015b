package matching

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.straitex.io/sequencer/core/types"
	"code.straitex.io/sequencer/logging"
)

var testFeeRates = types.FeeRates{Maker: 10_000, Taker: 20_000}

func bigInt(v int64) *big.Int { return big.NewInt(v) }

// newTestMarket uses a tick size of 1 and no decimal shift, so a fill of
// amount a at level ix settles at exactly a*ix quote units.
func newTestMarket(t *testing.T) *Market {
	t.Helper()
	return NewMarket(logging.NewTestLogger(), types.AddMarket{
		MarketID:          "BTC/USDC",
		TickSize:          decimal.NewFromInt(1),
		MaxOrdersPerLevel: 5,
		BaseDecimals:      0,
		QuoteDecimals:     0,
	})
}

func limitSell(guid types.OrderGuid, amount int64, ix int) types.Order {
	return types.Order{Guid: guid, Type: types.LimitSell, Amount: types.NewBaseAmount(amount), LevelIx: ix}
}

func limitBuy(guid types.OrderGuid, amount int64, ix int) types.Order {
	return types.Order{Guid: guid, Type: types.LimitBuy, Amount: types.NewBaseAmount(amount), LevelIx: ix}
}

func addBatch(m *Market, account types.AccountGuid, orders ...types.Order) AddOrdersResult {
	return m.ApplyOrderBatch(types.OrderBatch{
		MarketID:    m.ID,
		Account:     account,
		OrdersToAdd: orders,
	}, testFeeRates)
}

func TestLimitOrderRests(t *testing.T) {
	m := newTestMarket(t)

	result := addBatch(m, 1, limitSell(1, 100, 10))

	require.Len(t, result.OrdersChanged, 1)
	assert.Equal(t, types.OrderChanged{Guid: 1, Disposition: types.DispositionAccepted}, result.OrdersChanged[0])
	assert.Empty(t, result.CreatedTrades)
	assert.Empty(t, result.BalanceChanges)

	// resting sell consumes its base amount
	require.Len(t, result.ConsumptionChanges, 2)
	assert.Equal(t, types.Asset("BTC"), result.ConsumptionChanges[0].Asset)
	assert.Equal(t, "100", result.ConsumptionChanges[0].Delta.String())
	assert.Equal(t, "0", result.ConsumptionChanges[1].Delta.String())

	assert.Equal(t, types.BidOfferState{MinBidIx: -1, BestBidIx: -1, BestOfferIx: 10, MaxOfferIx: 10}, m.BidOfferState())
}

func TestSimpleCross(t *testing.T) {
	m := newTestMarket(t)
	addBatch(m, 1, limitSell(1, 100, 10))

	result := addBatch(m, 2, types.Order{Guid: 2, Type: types.MarketBuy, Amount: types.NewBaseAmount(100)})

	require.Len(t, result.OrdersChanged, 2)
	assert.Equal(t, types.OrderChanged{Guid: 2, Disposition: types.DispositionFilled}, result.OrdersChanged[0])
	assert.Equal(t, types.OrderChanged{Guid: 1, Disposition: types.DispositionFilled}, result.OrdersChanged[1])

	require.Len(t, result.CreatedTrades, 1)
	trade := result.CreatedTrades[0]
	assert.Equal(t, types.OrderGuid(2), trade.BuyOrderGuid)
	assert.Equal(t, types.OrderGuid(1), trade.SellOrderGuid)
	assert.Equal(t, "100", trade.Amount.String())
	assert.Equal(t, 10, trade.LevelIx)
	assert.Equal(t, "20", trade.BuyerFee.String())  // 2% taker on 1000
	assert.Equal(t, "10", trade.SellerFee.String()) // 1% maker on 1000

	require.Len(t, result.BalanceChanges, 4)
	assert.Equal(t, types.BalanceChange{Account: 2, Asset: "USDC", Delta: bigInt(-1020)}, result.BalanceChanges[0])
	assert.Equal(t, types.BalanceChange{Account: 1, Asset: "BTC", Delta: bigInt(-100)}, result.BalanceChanges[1])
	assert.Equal(t, types.BalanceChange{Account: 2, Asset: "BTC", Delta: bigInt(100)}, result.BalanceChanges[2])
	assert.Equal(t, types.BalanceChange{Account: 1, Asset: "USDC", Delta: bigInt(990)}, result.BalanceChanges[3])

	// the filled sell releases its consumption
	assert.Equal(t, "-100", result.ConsumptionChanges[0].Delta.String())

	assert.Equal(t, types.BidOfferState{MinBidIx: -1, BestBidIx: -1, BestOfferIx: -1, MaxOfferIx: -1}, m.BidOfferState())
}

func TestPartialFill(t *testing.T) {
	m := newTestMarket(t)
	addBatch(m, 1, limitSell(1, 100, 10))

	result := addBatch(m, 2, types.Order{Guid: 2, Type: types.MarketBuy, Amount: types.NewBaseAmount(60)})

	require.Len(t, result.OrdersChanged, 2)
	assert.Equal(t, types.OrderChanged{Guid: 2, Disposition: types.DispositionFilled}, result.OrdersChanged[0])
	assert.Equal(t, types.DispositionPartiallyFilled, result.OrdersChanged[1].Disposition)
	require.NotNil(t, result.OrdersChanged[1].NewQuantity)
	assert.Equal(t, "40", result.OrdersChanged[1].NewQuantity.String())

	require.Len(t, result.CreatedTrades, 1)
	assert.Equal(t, "12", result.CreatedTrades[0].BuyerFee.String())
	assert.Equal(t, "6", result.CreatedTrades[0].SellerFee.String())

	assert.Equal(t, 10, m.BestOfferIx())
	lo, ok := m.OrderByGuid(1)
	require.True(t, ok)
	assert.Equal(t, "40", lo.Quantity.String())
	assert.Equal(t, "100", lo.OriginalQuantity.String())
}

func TestPriceTimePriority(t *testing.T) {
	m := newTestMarket(t)
	addBatch(m, 1, limitSell(1, 50, 10), limitSell(2, 50, 10), limitSell(3, 50, 11))

	result := addBatch(m, 2, types.Order{Guid: 4, Type: types.MarketBuy, Amount: types.NewBaseAmount(120)})

	require.Len(t, result.CreatedTrades, 3)
	assert.Equal(t, types.OrderGuid(1), result.CreatedTrades[0].SellOrderGuid)
	assert.Equal(t, "50", result.CreatedTrades[0].Amount.String())
	assert.Equal(t, types.OrderGuid(2), result.CreatedTrades[1].SellOrderGuid)
	assert.Equal(t, "50", result.CreatedTrades[1].Amount.String())
	assert.Equal(t, types.OrderGuid(3), result.CreatedTrades[2].SellOrderGuid)
	assert.Equal(t, "20", result.CreatedTrades[2].Amount.String())
	assert.Equal(t, 11, result.CreatedTrades[2].LevelIx)

	assert.Equal(t, types.DispositionFilled, result.OrdersChanged[0].Disposition)
	assert.Equal(t, 11, m.BestOfferIx())
}

func TestLevelCapacityRejection(t *testing.T) {
	m := newTestMarket(t)

	// maxOrdersPerLevel 5 leaves room for 4 resting orders
	result := addBatch(m, 1,
		limitSell(1, 10, 10), limitSell(2, 10, 10), limitSell(3, 10, 10), limitSell(4, 10, 10),
		limitSell(5, 10, 10),
	)

	require.Len(t, result.OrdersChanged, 5)
	for i := 0; i < 4; i++ {
		assert.Equal(t, types.DispositionAccepted, result.OrdersChanged[i].Disposition)
	}
	assert.Equal(t, types.DispositionRejected, result.OrdersChanged[4].Disposition)

	// the rejected order consumes nothing
	assert.Equal(t, "40", result.ConsumptionChanges[0].Delta.String())
}

func TestCrossingLimitBuyRestsRemainder(t *testing.T) {
	m := newTestMarket(t)
	addBatch(m, 1, limitSell(1, 50, 10))

	result := addBatch(m, 2, limitBuy(2, 80, 10))

	require.Len(t, result.OrdersChanged, 2)
	assert.Equal(t, types.OrderGuid(2), result.OrdersChanged[0].Guid)
	assert.Equal(t, types.DispositionPartiallyFilled, result.OrdersChanged[0].Disposition)
	assert.Equal(t, types.OrderChanged{Guid: 1, Disposition: types.DispositionFilled}, result.OrdersChanged[1])

	// the trade names the exhausted sell as counterparty even though its
	// level was recycled to rest the remainder
	require.Len(t, result.CreatedTrades, 1)
	trade := result.CreatedTrades[0]
	assert.Equal(t, types.OrderGuid(2), trade.BuyOrderGuid)
	assert.Equal(t, types.OrderGuid(1), trade.SellOrderGuid)
	assert.Equal(t, "50", trade.Amount.String())
	assert.Equal(t, "10", trade.BuyerFee.String()) // 2% taker on 500
	assert.Equal(t, "5", trade.SellerFee.String()) // 1% maker on 500

	require.Len(t, result.BalanceChanges, 4)
	assert.Equal(t, types.BalanceChange{Account: 2, Asset: "USDC", Delta: bigInt(-510)}, result.BalanceChanges[0])
	assert.Equal(t, types.BalanceChange{Account: 1, Asset: "BTC", Delta: bigInt(-50)}, result.BalanceChanges[1])
	assert.Equal(t, types.BalanceChange{Account: 2, Asset: "BTC", Delta: bigInt(50)}, result.BalanceChanges[2])
	assert.Equal(t, types.BalanceChange{Account: 1, Asset: "USDC", Delta: bigInt(495)}, result.BalanceChanges[3])

	// the 30 remainder rests on the bid side at the same level
	assert.Equal(t, types.BidOfferState{MinBidIx: 10, BestBidIx: 10, BestOfferIx: -1, MaxOfferIx: -1}, m.BidOfferState())
	lo, ok := m.OrderByGuid(2)
	require.True(t, ok)
	assert.Equal(t, "30", lo.Quantity.String())

	// the resting remainder of a partially filled order consumes at the
	// taker rate: 30*10 plus 2%
	found := false
	for _, cc := range result.ConsumptionChanges {
		if cc.Account == 2 && cc.Asset == "USDC" {
			assert.Equal(t, "306", cc.Delta.String())
			found = true
		}
	}
	assert.True(t, found)
}

func TestCrossingLimitSellStopsAtOwnLevel(t *testing.T) {
	m := newTestMarket(t)
	addBatch(m, 1, limitBuy(1, 50, 12), limitBuy(2, 50, 8))

	// crosses the bid at 12 but must not take the bid at 8
	result := addBatch(m, 2, limitSell(3, 80, 10))

	require.Len(t, result.CreatedTrades, 1)
	assert.Equal(t, "50", result.CreatedTrades[0].Amount.String())
	assert.Equal(t, 12, result.CreatedTrades[0].LevelIx)

	assert.Equal(t, types.BidOfferState{MinBidIx: 8, BestBidIx: 8, BestOfferIx: 10, MaxOfferIx: 10}, m.BidOfferState())
	lo, ok := m.OrderByGuid(3)
	require.True(t, ok)
	assert.Equal(t, "30", lo.Quantity.String())
}

func TestCancelOrder(t *testing.T) {
	m := newTestMarket(t)
	addBatch(m, 1, limitSell(1, 100, 10))

	result := m.ApplyOrderBatch(types.OrderBatch{
		MarketID:       m.ID,
		Account:        1,
		OrdersToCancel: []types.CancelOrder{{Guid: 1}},
	}, testFeeRates)

	require.Len(t, result.OrdersChanged, 1)
	assert.Equal(t, types.OrderChanged{Guid: 1, Disposition: types.DispositionCanceled}, result.OrdersChanged[0])
	assert.Equal(t, "-100", result.ConsumptionChanges[0].Delta.String())

	_, ok := m.OrderByGuid(1)
	assert.False(t, ok)
	assert.Equal(t, types.BidOfferState{MinBidIx: -1, BestBidIx: -1, BestOfferIx: -1, MaxOfferIx: -1}, m.BidOfferState())
}

func TestCancelRejections(t *testing.T) {
	m := newTestMarket(t)
	addBatch(m, 1, limitSell(1, 100, 10))

	result := m.ApplyOrderBatch(types.OrderBatch{
		MarketID:       m.ID,
		Account:        2,
		OrdersToCancel: []types.CancelOrder{{Guid: 1}, {Guid: 99}},
	}, testFeeRates)

	require.Len(t, result.OrdersChangeRejected, 2)
	assert.Equal(t, types.OrderChangeRejected{Guid: 1, Reason: types.RejectionNotForAccount}, result.OrdersChangeRejected[0])
	assert.Equal(t, types.OrderChangeRejected{Guid: 99, Reason: types.RejectionDoesNotExist}, result.OrdersChangeRejected[1])

	_, ok := m.OrderByGuid(1)
	assert.True(t, ok)
}

func TestMarketOrderNoLiquidity(t *testing.T) {
	m := newTestMarket(t)

	result := addBatch(m, 1, types.Order{Guid: 1, Type: types.MarketBuy, Amount: types.NewBaseAmount(10)})

	require.Len(t, result.OrdersChanged, 1)
	assert.Equal(t, types.DispositionRejected, result.OrdersChanged[0].Disposition)
	assert.Empty(t, result.CreatedTrades)
}

func TestAutoReduceSells(t *testing.T) {
	m := newTestMarket(t)
	addBatch(m, 1, limitSell(1, 100, 10), limitSell(2, 100, 12))

	changed := m.AutoReduce(1, "BTC", bigInt(150))

	// cheapest level kept whole, the reduction lands on level 12
	require.Len(t, changed, 1)
	assert.Equal(t, types.OrderGuid(2), changed[0].Guid)
	assert.Equal(t, types.DispositionAutoReduced, changed[0].Disposition)
	assert.Equal(t, "50", changed[0].NewQuantity.String())

	lo, _ := m.OrderByGuid(2)
	assert.Equal(t, "50", lo.Quantity.String())
	assert.Equal(t, "50", lo.Level.totalQuantity.String())
}

func TestAutoReduceBuys(t *testing.T) {
	m := newTestMarket(t)
	addBatch(m, 1, limitBuy(1, 100, 10), limitBuy(2, 100, 8))

	// guid 1 consumes 1010 (notional 1000 plus 1% maker fee), guid 2 808;
	// with a 1414 budget the best level is kept whole and 404 remains for
	// guid 2: fee 4, notional 400, quantity 50 at price 8
	changed := m.AutoReduce(1, "USDC", bigInt(1414))

	require.Len(t, changed, 1)
	assert.Equal(t, types.OrderGuid(2), changed[0].Guid)
	assert.Equal(t, "50", changed[0].NewQuantity.String())

	lo, _ := m.OrderByGuid(2)
	assert.Equal(t, "50", lo.Quantity.String())
	assert.Equal(t, "50", lo.Level.totalQuantity.String())
	assert.Equal(t, "1414", m.QuoteAssetsRequired(1).String())
}

func TestClearingPriceAndQuantityForMarketBuy(t *testing.T) {
	m := newTestMarket(t)
	addBatch(m, 1, limitSell(1, 50, 10), limitSell(2, 50, 12))

	price, quantity := m.ClearingPriceAndQuantityForMarketBuy(types.NewBaseAmount(80), 0, false)
	assert.Equal(t, "80", quantity.String())
	assert.True(t, price.Equal(decimal.RequireFromString("10.75")), price.String())

	// more than the book holds
	price, quantity = m.ClearingPriceAndQuantityForMarketBuy(types.NewBaseAmount(200), 0, false)
	assert.Equal(t, "100", quantity.String())
	assert.True(t, price.Equal(decimal.RequireFromString("11")), price.String())

	// capped at a level
	_, quantity = m.ClearingPriceAndQuantityForMarketBuy(types.NewBaseAmount(200), 10, true)
	assert.Equal(t, "50", quantity.String())
}

func TestCalculateAmountForPercentageSell(t *testing.T) {
	m := newTestMarket(t)
	addBatch(m, 1, limitBuy(1, 100, 10))

	amount := m.CalculateAmountForPercentageSell(2, types.NewBaseAmount(80), 50)
	assert.Equal(t, "40", amount.String())

	// capped by bid liquidity
	amount = m.CalculateAmountForPercentageSell(2, types.NewBaseAmount(300), 100)
	assert.Equal(t, "100", amount.String())
}

func TestCalculateAmountForPercentageBuy(t *testing.T) {
	m := newTestMarket(t)
	addBatch(m, 1, limitSell(1, 100, 10))

	// 2040 net of the 2% taker fee leaves 2000 to spend
	amount, maxAvailable := m.CalculateAmountForPercentageBuy(2, types.NewQuoteAmount(2040), 100, testFeeRates.Taker)
	assert.Equal(t, "100", amount.String())
	require.NotNil(t, maxAvailable)
	assert.Equal(t, "2040", maxAvailable.String())

	// below 100% there is no dust sweep
	amount, maxAvailable = m.CalculateAmountForPercentageBuy(2, types.NewQuoteAmount(2040), 50, testFeeRates.Taker)
	assert.Equal(t, "100", amount.String())
	assert.Nil(t, maxAvailable)
}

func TestMarketCheckpointRoundTrip(t *testing.T) {
	m := newTestMarket(t)
	addBatch(m, 1, limitSell(1, 100, 10), limitSell(2, 50, 12), limitBuy(3, 40, 5))
	addBatch(m, 2, types.Order{Guid: 4, Type: types.MarketBuy, Amount: types.NewBaseAmount(30)})
	m.ApplyOrderBatch(types.OrderBatch{
		MarketID:       m.ID,
		Account:        1,
		OrdersToCancel: []types.CancelOrder{{Guid: 2}},
	}, testFeeRates)

	cp := m.ToCheckpoint()
	restored := MarketFromCheckpoint(logging.NewTestLogger(), cp)
	cp2 := restored.ToCheckpoint()

	require.Equal(t, cp, cp2)

	// byte-stable persistence
	b1, err := json.Marshal(cp)
	require.NoError(t, err)
	b2, err := json.Marshal(cp2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)

	// the restored market behaves identically
	assert.Equal(t, m.BidOfferState(), restored.BidOfferState())
	lo, ok := restored.OrderByGuid(1)
	require.True(t, ok)
	assert.Equal(t, "70", lo.Quantity.String())
	assert.Equal(t, "100", lo.OriginalQuantity.String())
}
