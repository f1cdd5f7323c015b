package matching

import (
	"math/big"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"code.straitex.io/sequencer/core/types"
	"code.straitex.io/sequencer/logging"
)

const levelPoolInitialSize = 1000

// Market is one order book. All state is owned by the single engine
// goroutine; nothing here is safe for concurrent use.
type Market struct {
	ID                types.MarketID
	TickSize          decimal.Decimal
	MaxOrdersPerLevel int
	BaseDecimals      uint8
	QuoteDecimals     uint8

	log    *logging.Logger
	minFee types.QuoteAmount

	levels    *levelIndex
	levelPool *pool[*Level]

	maxOfferIx  int
	bestOfferIx int
	bestBidIx   int
	minBidIx    int

	buyOrdersByAccount  map[types.AccountGuid][]*LevelOrder
	sellOrdersByAccount map[types.AccountGuid][]*LevelOrder
	ordersByGuid        map[types.OrderGuid]*LevelOrder
}

func NewMarket(log *logging.Logger, cfg types.AddMarket) *Market {
	m := &Market{
		ID:                  cfg.MarketID,
		TickSize:            cfg.TickSize,
		MaxOrdersPerLevel:   cfg.MaxOrdersPerLevel,
		BaseDecimals:        cfg.BaseDecimals,
		QuoteDecimals:       cfg.QuoteDecimals,
		log:                 log.Named(string(cfg.MarketID)),
		minFee:              cfg.MinFee,
		levels:              newLevelIndex(),
		maxOfferIx:          -1,
		bestOfferIx:         -1,
		bestBidIx:           -1,
		minBidIx:            -1,
		buyOrdersByAccount:  map[types.AccountGuid][]*LevelOrder{},
		sellOrdersByAccount: map[types.AccountGuid][]*LevelOrder{},
		ordersByGuid:        map[types.OrderGuid]*LevelOrder{},
	}
	m.levelPool = newPool(
		func() *Level { return newLevel(cfg.MaxOrdersPerLevel) },
		func(l *Level) { l.reset() },
		levelPoolInitialSize,
	)
	return m
}

// Price converts a level index into a price.
func (m *Market) Price(levelIx int) decimal.Decimal {
	return m.TickSize.Mul(decimal.NewFromInt(int64(levelIx)))
}

func (m *Market) MinFee() types.QuoteAmount     { return m.minFee }
func (m *Market) SetMinFee(f types.QuoteAmount) { m.minFee = f }

func (m *Market) BestBidIx() int   { return m.bestBidIx }
func (m *Market) BestOfferIx() int { return m.bestOfferIx }

func (m *Market) BidOfferState() types.BidOfferState {
	if m.bestBidIx != -1 && m.bestOfferIx != -1 && m.bestBidIx >= m.bestOfferIx {
		m.logState()
	}
	return types.BidOfferState{
		MinBidIx:    m.minBidIx,
		BestBidIx:   m.bestBidIx,
		BestOfferIx: m.bestOfferIx,
		MaxOfferIx:  m.maxOfferIx,
	}
}

// OrderByGuid returns the resting order with the given guid, if any.
func (m *Market) OrderByGuid(guid types.OrderGuid) (*LevelOrder, bool) {
	lo, ok := m.ordersByGuid[guid]
	return lo, ok
}

// ConsumptionChange is a delta to the amount a resting order book position
// consumes from an account's balance.
type ConsumptionChange struct {
	Account types.AccountGuid
	Asset   types.Asset
	Delta   *big.Int
}

// AddOrdersResult is the outcome of applying one order batch.
type AddOrdersResult struct {
	OrdersChanged        []types.OrderChanged
	CreatedTrades        []types.TradeCreated
	BalanceChanges       []types.BalanceChange
	ConsumptionChanges   []ConsumptionChange
	OrdersChangeRejected []types.OrderChangeRejected
}

type addOrderResult struct {
	disposition types.OrderDisposition
	executions  []Execution
}

// consumptionSet accumulates per-account base and quote consumption deltas
// in first-touch order.
type consumptionSet struct {
	accounts []types.AccountGuid
	deltas   map[types.AccountGuid]*consumptionDelta
}

type consumptionDelta struct {
	base  *big.Int
	quote *big.Int
}

func newConsumptionSet() *consumptionSet {
	return &consumptionSet{deltas: map[types.AccountGuid]*consumptionDelta{}}
}

func (s *consumptionSet) delta(account types.AccountGuid) *consumptionDelta {
	d, ok := s.deltas[account]
	if !ok {
		d = &consumptionDelta{base: new(big.Int), quote: new(big.Int)}
		s.deltas[account] = d
		s.accounts = append(s.accounts, account)
	}
	return d
}

func (s *consumptionSet) addBase(account types.AccountGuid, delta *big.Int) {
	d := s.delta(account)
	d.base.Add(d.base, delta)
}

func (s *consumptionSet) addQuote(account types.AccountGuid, delta *big.Int) {
	d := s.delta(account)
	d.quote.Add(d.quote, delta)
}

func (s *consumptionSet) changes(baseAsset, quoteAsset types.Asset) []ConsumptionChange {
	changes := make([]ConsumptionChange, 0, 2*len(s.accounts))
	for _, account := range s.accounts {
		d := s.deltas[account]
		changes = append(changes,
			ConsumptionChange{Account: account, Asset: baseAsset, Delta: new(big.Int).Set(d.base)},
			ConsumptionChange{Account: account, Asset: quoteAsset, Delta: new(big.Int).Set(d.quote)},
		)
	}
	return changes
}

type batchState struct {
	ordersChanged        []types.OrderChanged
	ordersChangeRejected []types.OrderChangeRejected
	createdTrades        []types.TradeCreated
	balanceChanges       *types.BalanceChangeSet
	consumptionChanges   *consumptionSet
}

// ApplyOrderBatch applies cancellations then additions in the given order.
// Individual rejections are reported in the result and never abort the
// batch.
func (m *Market) ApplyOrderBatch(batch types.OrderBatch, feeRates types.FeeRates) AddOrdersResult {
	bs := &batchState{
		balanceChanges:     types.NewBalanceChangeSet(),
		consumptionChanges: newConsumptionSet(),
	}

	for _, cancel := range batch.OrdersToCancel {
		reason := m.validateOrderForAccount(batch.Account, cancel.Guid)
		if reason != types.RejectionNone {
			bs.ordersChangeRejected = append(bs.ordersChangeRejected, types.OrderChangeRejected{
				Guid:   cancel.Guid,
				Reason: reason,
			})
			continue
		}
		if result, ok := m.removeOrder(cancel.Guid); ok {
			bs.ordersChanged = append(bs.ordersChanged, types.OrderChanged{
				Guid:        cancel.Guid,
				Disposition: types.DispositionCanceled,
			})
			bs.consumptionChanges.addBase(result.account, new(big.Int).Neg(result.baseAmount.Big()))
			bs.consumptionChanges.addQuote(result.account, new(big.Int).Neg(result.quoteAmount.Big()))
		}
	}

	for _, order := range batch.OrdersToAdd {
		m.applyOrder(batch.Account, order, feeRates, bs)
	}

	baseAsset, quoteAsset := m.ID.Assets()
	return AddOrdersResult{
		OrdersChanged:        bs.ordersChanged,
		CreatedTrades:        bs.createdTrades,
		BalanceChanges:       bs.balanceChanges.Changes(),
		ConsumptionChanges:   bs.consumptionChanges.changes(baseAsset, quoteAsset),
		OrdersChangeRejected: bs.ordersChangeRejected,
	}
}

func (m *Market) applyOrder(account types.AccountGuid, order types.Order, feeRates types.FeeRates, bs *batchState) {
	orderResult := m.addOrder(account, order, feeRates)

	changed := types.OrderChanged{
		Guid:        order.Guid,
		Disposition: orderResult.disposition,
	}
	if order.Percentage > 0 {
		q := order.Amount
		changed.NewQuantity = &q
	}
	bs.ordersChanged = append(bs.ordersChanged, changed)

	if orderResult.disposition == types.DispositionAccepted || orderResult.disposition == types.DispositionPartiallyFilled {
		// the immediately filled part of a limit order does not count
		// towards consumption
		filledAmount := types.BaseAmount{}
		for _, e := range orderResult.executions {
			filledAmount = filledAmount.Add(e.Amount)
		}

		feeRate := feeRates.Maker
		if orderResult.disposition == types.DispositionPartiallyFilled {
			feeRate = feeRates.Taker
		}

		switch order.Type {
		case types.LimitBuy:
			restingNotional := types.NotionalPlusFee(
				order.Amount.Sub(filledAmount), m.Price(order.LevelIx),
				m.BaseDecimals, m.QuoteDecimals, feeRate,
			)
			bs.consumptionChanges.addQuote(account, restingNotional.Big())
		case types.LimitSell:
			bs.consumptionChanges.addBase(account, order.Amount.Sub(filledAmount).Big())
		}
	}

	// remainingAvailable is only set for a 100% market buy with no quote
	// reserved by other orders. On the order's last execution, the dust left
	// over after all its balance changes is swept into the buyer fee.
	for i, execution := range orderResult.executions {
		var remainingAvailable *big.Int
		if order.MaxAvailable != nil && i+1 == len(orderResult.executions) {
			remainingAvailable = order.MaxAvailable.Big()
			if spent := bs.balanceChanges.Get(account, m.ID.QuoteAsset()); spent != nil {
				remainingAvailable.Add(remainingAvailable, spent)
			}
		}
		m.processExecution(account, order, execution, feeRates, remainingAvailable, bs)
	}
}

func (m *Market) processExecution(
	account types.AccountGuid,
	takerOrder types.Order,
	execution Execution,
	feeRates types.FeeRates,
	remainingAvailable *big.Int,
	bs *batchState,
) {
	notional := types.Notional(execution.Amount, execution.Price, m.BaseDecimals, m.QuoteDecimals)
	baseAsset, quoteAsset := m.ID.Assets()

	var (
		buyOrderGuid, sellOrderGuid types.OrderGuid
		buyer, seller               types.AccountGuid
		buyerFee, sellerFee         types.QuoteAmount
	)

	if takerOrder.Type.IsBuy() {
		buyOrderGuid = takerOrder.Guid
		buyer = account
		buyerFee = types.NotionalFee(notional, feeRates.Taker)

		if remainingAvailable != nil && takerOrder.Type == types.MarketBuy && takerOrder.Percentage == 100 {
			dust := new(big.Int).Sub(remainingAvailable, notional.Add(buyerFee).Big())
			// sweep the dust into the fee unless the order ran out of
			// liquidity and a real remainder is left
			if dust.Cmp(buyerFee.Big()) <= 0 {
				if m.log.GetLevel() == logging.DebugLevel {
					m.log.Debug("sweeping dust into buyer fee",
						zap.Int64("order", int64(takerOrder.Guid)),
						zap.String("dust", dust.String()))
				}
				buyerFee = buyerFee.Add(types.QuoteAmountFromBig(dust))
			}
		}

		sellOrderGuid = execution.CounterOrder.Guid
		seller = execution.CounterOrder.Account
		sellerFee = types.NotionalFee(notional, execution.CounterOrder.FeeRate)

		bs.consumptionChanges.addBase(seller, new(big.Int).Neg(execution.Amount.Big()))
	} else {
		buyOrderGuid = execution.CounterOrder.Guid
		buyer = execution.CounterOrder.Account
		buyerFee = types.NotionalFee(notional, execution.CounterOrder.FeeRate)

		sellOrderGuid = takerOrder.Guid
		seller = account
		sellerFee = types.NotionalFee(notional, feeRates.Taker)

		bs.consumptionChanges.addQuote(buyer, notional.Add(buyerFee).Neg().Big())
	}

	bs.createdTrades = append(bs.createdTrades, types.TradeCreated{
		MarketID:      m.ID,
		BuyOrderGuid:  buyOrderGuid,
		SellOrderGuid: sellOrderGuid,
		Amount:        execution.Amount,
		LevelIx:       execution.LevelIx,
		BuyerFee:      buyerFee,
		SellerFee:     sellerFee,
	})

	counterChanged := types.OrderChanged{Guid: execution.CounterOrder.Guid}
	if execution.CounterOrderExhausted {
		counterChanged.Disposition = types.DispositionFilled
	} else {
		counterChanged.Disposition = types.DispositionPartiallyFilled
		q := execution.CounterOrder.Quantity
		counterChanged.NewQuantity = &q
	}
	bs.ordersChanged = append(bs.ordersChanged, counterChanged)

	bs.balanceChanges.Add(buyer, quoteAsset, notional.Add(buyerFee).Neg().Big())
	bs.balanceChanges.Add(seller, baseAsset, execution.Amount.Neg().Big())
	bs.balanceChanges.Add(buyer, baseAsset, execution.Amount.Big())
	bs.balanceChanges.Add(seller, quoteAsset, notional.Sub(sellerFee).Big())
}

// AutoReduce shrinks the account's resting orders in this market so their
// total consumption of the given asset no longer exceeds limit. Sells are
// reduced cheapest level first, buys best level first.
func (m *Market) AutoReduce(account types.AccountGuid, asset types.Asset, limit *big.Int) []types.OrderChanged {
	var changed []types.OrderChanged
	total := new(big.Int)

	if asset == m.ID.BaseAsset() {
		orders := append([]*LevelOrder(nil), m.sellOrdersByAccount[account]...)
		sort.SliceStable(orders, func(i, j int) bool {
			return orders[i].Level.ix < orders[j].Level.ix
		})
		for _, lo := range orders {
			remaining := new(big.Int).Sub(limit, total)
			if lo.Quantity.Big().Cmp(remaining) <= 0 {
				total.Add(total, lo.Quantity.Big())
				continue
			}
			newQuantity := types.BaseAmountFromBig(remaining)
			lo.Level.totalQuantity = lo.Level.totalQuantity.Sub(lo.Quantity.Sub(newQuantity))
			lo.Quantity = newQuantity
			total.Add(total, remaining)
			q := lo.Quantity
			changed = append(changed, types.OrderChanged{
				Guid:        lo.Guid,
				Disposition: types.DispositionAutoReduced,
				NewQuantity: &q,
			})
		}
		return changed
	}

	orders := append([]*LevelOrder(nil), m.buyOrdersByAccount[account]...)
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Level.ix > orders[j].Level.ix
	})
	for _, lo := range orders {
		notionalPlusFee := types.NotionalPlusFee(lo.Quantity, lo.Level.price, m.BaseDecimals, m.QuoteDecimals, lo.FeeRate)
		if new(big.Int).Add(notionalPlusFee.Big(), total).Cmp(limit) <= 0 {
			total.Add(total, notionalPlusFee.Big())
			continue
		}
		// invert the notional computation for the quote budget that is left
		remainingNotionalPlusFee := types.QuoteAmountFromBig(new(big.Int).Sub(limit, total))
		fee := types.FeeFromNotionalPlusFee(remainingNotionalPlusFee, lo.FeeRate)
		remainingNotional := remainingNotionalPlusFee.Sub(fee)

		newQuantity := types.QuantityFromNotionalAndPrice(remainingNotional, lo.Level.price, m.BaseDecimals, m.QuoteDecimals)
		lo.Level.totalQuantity = lo.Level.totalQuantity.Sub(lo.Quantity.Sub(newQuantity))
		lo.Quantity = newQuantity
		total.Add(total, remainingNotionalPlusFee.Big())
		q := lo.Quantity
		changed = append(changed, types.OrderChanged{
			Guid:        lo.Guid,
			Disposition: types.DispositionAutoReduced,
			NewQuantity: &q,
		})
	}
	return changed
}

// BaseAssetsRequired is the base amount consumed by the account's resting
// sell orders.
func (m *Market) BaseAssetsRequired(account types.AccountGuid) types.BaseAmount {
	total := types.BaseAmount{}
	for _, lo := range m.sellOrdersByAccount[account] {
		total = total.Add(lo.Quantity)
	}
	return total
}

// QuoteAssetsRequired is the quote amount (notional plus fee) consumed by
// the account's resting buy orders.
func (m *Market) QuoteAssetsRequired(account types.AccountGuid) types.QuoteAmount {
	total := types.QuoteAmount{}
	for _, lo := range m.buyOrdersByAccount[account] {
		total = total.Add(types.NotionalPlusFee(lo.Quantity, lo.Level.price, m.BaseDecimals, m.QuoteDecimals, lo.FeeRate))
	}
	return total
}

func (m *Market) handleCrossingOrder(order types.Order, stopAtLevelIx int, hasStop bool) addOrderResult {
	originalAmount := order.Amount
	remainingAmount := originalAmount
	var executions []Execution
	var exhaustedLevels []*Level

	isBuyOrder := order.Type.IsBuy()

	if (isBuyOrder && m.bestOfferIx != -1) || (!isBuyOrder && m.bestBidIx != -1) {
		var currentLevel *Level
		if isBuyOrder {
			currentLevel = m.levels.get(m.bestOfferIx)
		} else {
			currentLevel = m.levels.get(m.bestBidIx)
		}

		for currentLevel != nil {
			if hasStop {
				// a crossing limit order only takes liquidity up to its own
				// price level
				if (isBuyOrder && currentLevel.ix > stopAtLevelIx) ||
					(!isBuyOrder && currentLevel.ix < stopAtLevelIx) {
					break
				}
			}

			fill := currentLevel.fillOrder(remainingAmount)
			remainingAmount = fill.remainingAmount
			executions = append(executions, fill.executions...)

			// removal is deferred, the edge recomputation below still needs
			// to navigate from this level
			if currentLevel.totalQuantity.IsZero() {
				exhaustedLevels = append(exhaustedLevels, currentLevel)
			}

			if remainingAmount.IsZero() {
				break
			}

			if isBuyOrder {
				currentLevel = m.levels.next(currentLevel.ix)
			} else {
				currentLevel = m.levels.prev(currentLevel.ix)
			}
		}

		if isBuyOrder {
			m.bestOfferIx = -1
			if currentLevel != nil {
				if currentLevel.totalQuantity.Sign() > 0 {
					m.bestOfferIx = currentLevel.ix
				} else if next := m.levels.next(currentLevel.ix); next != nil {
					m.bestOfferIx = next.ix
				}
			}
			if m.bestOfferIx == -1 {
				m.maxOfferIx = -1
			}
		} else {
			m.bestBidIx = -1
			if currentLevel != nil {
				if currentLevel.totalQuantity.Sign() > 0 {
					m.bestBidIx = currentLevel.ix
				} else if prev := m.levels.prev(currentLevel.ix); prev != nil {
					m.bestBidIx = prev.ix
				}
			}
			if m.bestBidIx == -1 {
				m.minBidIx = -1
			}
		}

		for _, lv := range exhaustedLevels {
			m.levels.remove(lv.ix)
			m.levelPool.release(lv)
		}
	}

	if remainingAmount.Cmp(originalAmount) < 0 {
		// drop exhausted counter orders from the account indices
		for _, execution := range executions {
			if !execution.CounterOrderExhausted {
				continue
			}
			byAccount := m.buyOrdersByAccount
			if isBuyOrder {
				byAccount = m.sellOrdersByAccount
			}
			m.removeAccountOrder(byAccount, execution.CounterOrder)
			delete(m.ordersByGuid, execution.CounterOrder.Guid)
		}

		if remainingAmount.Sign() > 0 {
			return addOrderResult{types.DispositionPartiallyFilled, executions}
		}
		return addOrderResult{types.DispositionFilled, executions}
	}

	if !order.Type.IsMarket() {
		return addOrderResult{types.DispositionAccepted, nil}
	}
	if m.log.GetLevel() == logging.DebugLevel {
		m.log.Debug("market order rejected, no liquidity",
			zap.Int64("order", int64(order.Guid)))
	}
	return addOrderResult{types.DispositionRejected, nil}
}

type removeOrderResult struct {
	account     types.AccountGuid
	baseAmount  types.BaseAmount
	quoteAmount types.QuoteAmount
}

// removeOrder takes a resting order off the book, reporting the base and
// quote amounts it was consuming.
func (m *Market) removeOrder(guid types.OrderGuid) (removeOrderResult, bool) {
	lo, ok := m.ordersByGuid[guid]
	if !ok {
		return removeOrderResult{}, false
	}

	level := lo.Level
	var ret removeOrderResult
	if level.side == types.Buy {
		m.removeAccountOrder(m.buyOrdersByAccount, lo)
		ret = removeOrderResult{
			account:     lo.Account,
			quoteAmount: types.NotionalPlusFee(lo.Quantity, level.price, m.BaseDecimals, m.QuoteDecimals, lo.FeeRate),
		}
	} else {
		m.removeAccountOrder(m.sellOrdersByAccount, lo)
		ret = removeOrderResult{
			account:    lo.Account,
			baseAmount: lo.Quantity,
		}
	}

	level.removeLevelOrder(lo)

	// an exhausted level comes off the book, which may move the edges
	if level.totalQuantity.IsZero() {
		if level.side == types.Buy {
			switch level.ix {
			case m.minBidIx:
				next := m.levels.next(level.ix)
				if next == nil || next.ix > m.bestBidIx {
					m.minBidIx = -1
					m.bestBidIx = -1
				} else {
					m.minBidIx = next.ix
				}
			case m.bestBidIx:
				prev := m.levels.prev(level.ix)
				if prev == nil {
					m.minBidIx = -1
					m.bestBidIx = -1
				} else {
					m.bestBidIx = prev.ix
				}
			}
		} else {
			switch level.ix {
			case m.bestOfferIx:
				next := m.levels.next(level.ix)
				if next == nil {
					m.bestOfferIx = -1
					m.maxOfferIx = -1
				} else {
					m.bestOfferIx = next.ix
				}
			case m.maxOfferIx:
				prev := m.levels.prev(level.ix)
				if prev == nil || prev.ix < m.bestOfferIx {
					m.bestOfferIx = -1
					m.maxOfferIx = -1
				} else {
					m.maxOfferIx = prev.ix
				}
			}
		}
		m.levels.remove(level.ix)
		m.levelPool.release(level)
	}

	delete(m.ordersByGuid, guid)
	return ret, true
}

func (m *Market) removeAccountOrder(byAccount map[types.AccountGuid][]*LevelOrder, lo *LevelOrder) {
	orders := byAccount[lo.Account]
	for i, o := range orders {
		if o == lo {
			byAccount[lo.Account] = append(orders[:i], orders[i+1:]...)
			break
		}
	}
	if len(byAccount[lo.Account]) == 0 {
		delete(byAccount, lo.Account)
	}
}

func (m *Market) addOrder(account types.AccountGuid, order types.Order, feeRates types.FeeRates) addOrderResult {
	if m.isBelowMinFee(order, feeRates) {
		if m.log.GetLevel() == logging.DebugLevel {
			m.log.Debug("order rejected, fee below market minimum",
				zap.Int64("order", int64(order.Guid)))
		}
		return addOrderResult{types.DispositionRejected, nil}
	}

	switch order.Type {
	case types.LimitSell:
		levelIx := order.LevelIx
		if m.bestBidIx != -1 && levelIx <= m.bestBidIx {
			// crossing: execute as a market sell down to levelIx, then rest
			// the remainder
			crossingResult := m.handleCrossingOrder(order, levelIx, true)
			remainingAmount := order.Amount
			for _, e := range crossingResult.executions {
				remainingAmount = remainingAmount.Sub(e.Amount)
			}

			if remainingAmount.Sign() > 0 {
				if levelIx > m.maxOfferIx {
					m.maxOfferIx = levelIx
				}
				adjusted := order
				adjusted.Amount = remainingAmount
				disposition := m.createLimitSellOrder(levelIx, account, adjusted, feeRates.Maker)
				return addOrderResult{
					finalDisposition(crossingResult.disposition, disposition, m.log, order.Guid),
					crossingResult.executions,
				}
			}
			return crossingResult
		}
		if levelIx > m.maxOfferIx {
			m.maxOfferIx = levelIx
		}
		disposition := m.createLimitSellOrder(levelIx, account, order, feeRates.Maker)
		return addOrderResult{disposition, nil}

	case types.LimitBuy:
		levelIx := order.LevelIx
		if m.bestOfferIx != -1 && levelIx >= m.bestOfferIx {
			// crossing: execute as a market buy up to levelIx, then rest the
			// remainder
			crossingResult := m.handleCrossingOrder(order, levelIx, true)
			remainingAmount := order.Amount
			for _, e := range crossingResult.executions {
				remainingAmount = remainingAmount.Sub(e.Amount)
			}

			if remainingAmount.Sign() > 0 {
				if m.minBidIx == -1 || levelIx < m.minBidIx {
					m.minBidIx = levelIx
				}
				adjusted := order
				adjusted.Amount = remainingAmount
				disposition := m.createLimitBuyOrder(levelIx, account, adjusted, feeRates.Maker)
				return addOrderResult{
					finalDisposition(crossingResult.disposition, disposition, m.log, order.Guid),
					crossingResult.executions,
				}
			}
			return crossingResult
		}
		if m.minBidIx == -1 || levelIx < m.minBidIx {
			m.minBidIx = levelIx
		}
		disposition := m.createLimitBuyOrder(levelIx, account, order, feeRates.Maker)
		return addOrderResult{disposition, nil}

	case types.MarketBuy, types.MarketSell:
		return m.handleCrossingOrder(order, 0, false)
	}

	m.log.Error("unknown order type rejected",
		zap.Int64("order", int64(order.Guid)),
		zap.String("type", order.Type.String()))
	return addOrderResult{types.DispositionRejected, nil}
}

// finalDisposition resolves the disposition of a crossing limit order whose
// remainder could not rest (level at capacity): if nothing was filled the
// whole order is rejected.
func finalDisposition(crossing, resting types.OrderDisposition, log *logging.Logger, guid types.OrderGuid) types.OrderDisposition {
	if crossing == types.DispositionAccepted && resting == types.DispositionRejected {
		if log.GetLevel() == logging.DebugLevel {
			log.Debug("remaining limit order amount rejected",
				zap.Int64("order", int64(guid)))
		}
		return types.DispositionRejected
	}
	return crossing
}

// isBelowMinFee rejects orders whose taker or maker fee at the relevant
// price would fall under the market minimum. A zero fee rate or an empty
// book never triggers the check.
func (m *Market) isBelowMinFee(order types.Order, feeRates types.FeeRates) bool {
	var levelIx int
	var feeRate types.FeeRate
	switch order.Type {
	case types.MarketBuy:
		if feeRates.Taker.IsZero() {
			return false
		}
		levelIx, feeRate = m.bestOfferIx, feeRates.Taker
	case types.MarketSell:
		if feeRates.Taker.IsZero() {
			return false
		}
		levelIx, feeRate = m.bestBidIx, feeRates.Taker
	default:
		if feeRates.Maker.IsZero() {
			return false
		}
		levelIx, feeRate = order.LevelIx, feeRates.Maker
	}

	// an empty book: let the order proceed, it gets rejected downstream
	if levelIx == -1 {
		return false
	}

	fee := types.NotionalFee(types.Notional(order.Amount, m.Price(levelIx), m.BaseDecimals, m.QuoteDecimals), feeRate)
	return fee.Cmp(m.minFee) < 0
}

func (m *Market) createLimitBuyOrder(levelIx int, account types.AccountGuid, order types.Order, feeRate types.FeeRate) types.OrderDisposition {
	disposition, lo := m.getOrCreateLevel(levelIx, types.Buy).addOrder(account, order, feeRate)
	if disposition == types.DispositionAccepted {
		m.buyOrdersByAccount[lo.Account] = append(m.buyOrdersByAccount[lo.Account], lo)
		m.ordersByGuid[lo.Guid] = lo
		if m.bestBidIx == -1 || levelIx > m.bestBidIx {
			m.bestBidIx = levelIx
		}
	} else if m.log.GetLevel() == logging.DebugLevel {
		m.log.Debug("limit buy order rejected, level at capacity",
			zap.Int64("order", int64(order.Guid)), zap.Int("levelIx", levelIx))
	}
	return disposition
}

func (m *Market) createLimitSellOrder(levelIx int, account types.AccountGuid, order types.Order, feeRate types.FeeRate) types.OrderDisposition {
	disposition, lo := m.getOrCreateLevel(levelIx, types.Sell).addOrder(account, order, feeRate)
	if disposition == types.DispositionAccepted {
		m.sellOrdersByAccount[lo.Account] = append(m.sellOrdersByAccount[lo.Account], lo)
		m.ordersByGuid[lo.Guid] = lo
		if m.bestOfferIx == -1 || levelIx < m.bestOfferIx {
			m.bestOfferIx = levelIx
		}
	} else if m.log.GetLevel() == logging.DebugLevel {
		m.log.Debug("limit sell order rejected, level at capacity",
			zap.Int64("order", int64(order.Guid)), zap.Int("levelIx", levelIx))
	}
	return disposition
}

func (m *Market) getOrCreateLevel(levelIx int, side types.Side) *Level {
	if lv := m.levels.get(levelIx); lv != nil {
		return lv
	}
	lv := m.levelPool.borrow().init(levelIx, side, m.Price(levelIx))
	return m.levels.add(lv)
}

// ClearingPriceAndQuantityForMarketBuy walks the offer side to determine how
// much of the requested amount could fill (up to stopAtLevelIx when
// stopAtLevel is set) and the volume-weighted price it would clear at.
func (m *Market) ClearingPriceAndQuantityForMarketBuy(amount types.BaseAmount, stopAtLevelIx int, stopAtLevel bool) (decimal.Decimal, types.BaseAmount) {
	remainingAmount := amount
	totalPriceUnits := decimal.Decimal{}

	var currentLevel *Level
	if m.bestOfferIx != -1 {
		currentLevel = m.levels.get(m.bestOfferIx)
	}
	for currentLevel != nil && (!stopAtLevel || currentLevel.ix <= stopAtLevelIx) {
		quantityAtLevel := currentLevel.totalQuantity.Min(remainingAmount)
		totalPriceUnits = totalPriceUnits.Add(quantityAtLevel.Decimal().Mul(currentLevel.price))
		remainingAmount = remainingAmount.Sub(quantityAtLevel)

		if remainingAmount.IsZero() {
			break
		}
		currentLevel = m.levels.next(currentLevel.ix)
	}

	availableQuantity := amount.Sub(remainingAmount)
	clearingPrice := decimal.Decimal{}
	if !availableQuantity.IsZero() {
		clearingPrice = totalPriceUnits.DivRound(availableQuantity.Decimal(), 18)
	}
	return clearingPrice, availableQuantity
}

// quantityForMarketBuy walks the offer side to find how much base the given
// quote notional can purchase.
func (m *Market) quantityForMarketBuy(notional types.QuoteAmount) types.BaseAmount {
	remainingNotional := notional
	baseAmount := types.BaseAmount{}

	var currentLevel *Level
	if m.bestOfferIx != -1 {
		currentLevel = m.levels.get(m.bestOfferIx)
	}
	for currentLevel != nil {
		quantityAtLevel := currentLevel.totalQuantity
		if quantityAtLevel.Sign() > 0 {
			notionalAtLevel := remainingNotional.Min(
				types.Notional(quantityAtLevel, currentLevel.price, m.BaseDecimals, m.QuoteDecimals))

			if notionalAtLevel.Cmp(remainingNotional) == 0 {
				return baseAmount.Add(types.QuantityFromNotionalAndPrice(
					remainingNotional, m.Price(currentLevel.ix), m.BaseDecimals, m.QuoteDecimals))
			}

			baseAmount = baseAmount.Add(quantityAtLevel)
			remainingNotional = remainingNotional.Sub(notionalAtLevel)
		}
		currentLevel = m.levels.next(currentLevel.ix)
	}
	return baseAmount
}

// clearingQuantityForMarketSell walks the bid side to determine how much of
// the requested amount could fill.
func (m *Market) clearingQuantityForMarketSell(amount types.BaseAmount) types.BaseAmount {
	remainingAmount := amount

	var currentLevel *Level
	if m.bestBidIx != -1 {
		currentLevel = m.levels.get(m.bestBidIx)
	}
	for currentLevel != nil {
		quantityAtLevel := currentLevel.totalQuantity.Min(remainingAmount)
		remainingAmount = remainingAmount.Sub(quantityAtLevel)

		if remainingAmount.IsZero() {
			break
		}
		currentLevel = m.levels.prev(currentLevel.ix)
	}
	return amount.Sub(remainingAmount)
}

// CalculateAmountForPercentageSell resolves a percentage market sell into an
// absolute base amount: the given share of the account's free base balance,
// capped by available bid liquidity.
func (m *Market) CalculateAmountForPercentageSell(account types.AccountGuid, assetBalance types.BaseAmount, percent int) types.BaseAmount {
	free := assetBalance.Sub(m.BaseAssetsRequired(account))
	if free.Sign() < 0 {
		free = types.BaseAmount{}
	}
	clearing := m.clearingQuantityForMarketSell(free)
	amount := new(big.Int).Mul(clearing.Big(), big.NewInt(int64(percent)))
	amount.Quo(amount, big.NewInt(100))
	return types.BaseAmountFromBig(amount)
}

// CalculateAmountForPercentageBuy resolves a percentage market buy into an
// absolute base amount by walking offer liquidity with the account's free
// quote balance net of the taker fee. When the whole balance is spendable
// (100% and nothing reserved), maxAvailable is returned for the dust sweep.
func (m *Market) CalculateAmountForPercentageBuy(account types.AccountGuid, assetBalance types.QuoteAmount, percent int, takerFeeRate types.FeeRate) (types.BaseAmount, *types.QuoteAmount) {
	quoteAssetsRequired := m.QuoteAssetsRequired(account)
	free := assetBalance.Sub(quoteAssetsRequired)
	if free.Sign() < 0 {
		free = types.QuoteAmount{}
	}
	limit := new(big.Int).Mul(free.Big(), big.NewInt(int64(percent)))
	limit.Quo(limit, big.NewInt(100))

	// deduct the taker fee up front so the resolved amount settles within
	// the budget
	limit.Mul(limit, big.NewInt(int64(types.MaxFeeRate)))
	limit.Quo(limit, big.NewInt(int64(types.MaxFeeRate)+int64(takerFeeRate)))

	amount := m.quantityForMarketBuy(types.QuoteAmountFromBig(limit))

	if quoteAssetsRequired.IsZero() && percent == 100 {
		maxAvailable := assetBalance
		return amount, &maxAvailable
	}
	return amount, nil
}

// AssetsReservedForOrder reports the base and quote amounts a resting order
// consumes.
func (m *Market) AssetsReservedForOrder(lo *LevelOrder) (types.BaseAmount, types.QuoteAmount) {
	if lo.Level.side == types.Buy {
		return types.BaseAmount{}, types.NotionalPlusFee(lo.Quantity, lo.Level.price, m.BaseDecimals, m.QuoteDecimals, lo.FeeRate)
	}
	return lo.Quantity, types.QuoteAmount{}
}

func (m *Market) validateOrderForAccount(account types.AccountGuid, guid types.OrderGuid) types.RejectionReason {
	lo, ok := m.ordersByGuid[guid]
	if !ok {
		return types.RejectionDoesNotExist
	}
	if lo.Account != account {
		return types.RejectionNotForAccount
	}
	return types.RejectionNone
}

func (m *Market) logState() {
	if m.log.GetLevel() != logging.DebugLevel {
		return
	}
	m.log.Debug("book state",
		zap.Int("minBidIx", m.minBidIx),
		zap.Int("bestBidIx", m.bestBidIx),
		zap.Int("bestOfferIx", m.bestOfferIx),
		zap.Int("maxOfferIx", m.maxOfferIx),
		zap.String("minFee", m.minFee.String()))
	m.levels.ascend(func(lv *Level) bool {
		m.log.Debug("level",
			zap.Int("levelIx", lv.ix),
			zap.String("side", lv.side.String()),
			zap.String("totalQuantity", lv.totalQuantity.String()))
		return true
	})
}
