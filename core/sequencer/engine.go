package sequencer

import (
	"math/big"
	"sort"
	"time"

	"go.uber.org/zap"

	"code.straitex.io/sequencer/core/matching"
	"code.straitex.io/sequencer/core/types"
	"code.straitex.io/sequencer/logging"
)

// App is the sequencer engine. ProcessRequest must only ever be called from
// a single goroutine; given the same request stream it produces the same
// response stream and the same state, byte for byte.
type App struct {
	log   *logging.Logger
	cfg   Config
	state *State
}

func New(log *logging.Logger, cfg Config) *App {
	return &App{
		log:   log.Named("sequencer"),
		cfg:   cfg,
		state: NewState(),
	}
}

func (a *App) State() *State {
	return a.state
}

// ProcessRequest applies one request to the state and returns its response.
// Request-level failures are reported as response error codes; the engine
// itself never fails.
func (a *App) ProcessRequest(req types.Request, sequence uint64) types.Response {
	start := time.Now()
	resp := a.process(req)
	resp.Sequence = sequence
	resp.CreatedAt = time.Now().UnixMilli()
	resp.ProcessingTime = time.Since(start).Nanoseconds()
	return resp
}

func (a *App) process(req types.Request) types.Response {
	switch req.Type {
	case types.RequestAddMarket:
		return a.processAddMarket(req)
	case types.RequestSetFeeRates:
		return a.processSetFeeRates(req)
	case types.RequestSetWithdrawalFees:
		return a.processSetWithdrawalFees(req)
	case types.RequestSetMarketMinFees:
		return a.processSetMarketMinFees(req)
	case types.RequestApplyOrderBatch:
		return a.processOrderBatch(req)
	case types.RequestApplyBalanceBatch:
		return a.processBalanceBatch(req)
	case types.RequestReset:
		if a.cfg.SandboxMode {
			a.state.Clear()
			return types.Response{Guid: req.Guid}
		}
		return types.Response{Guid: req.Guid, Error: types.ErrUnknownRequest}
	case types.RequestGetState:
		if a.cfg.SandboxMode {
			return types.Response{Guid: req.Guid, StateDump: a.state.Dump()}
		}
		return types.Response{Guid: req.Guid, Error: types.ErrUnknownRequest}
	}
	return types.Response{Guid: req.Guid, Error: types.ErrUnknownRequest}
}

func (a *App) processAddMarket(req types.Request) types.Response {
	am := req.AddMarket
	if am == nil {
		return types.Response{Guid: req.Guid, Error: types.ErrUnknownRequest}
	}

	if existing := a.state.Market(am.MarketID); existing != nil {
		// re-adding with identical parameters is a no-op
		if !existing.TickSize.Equal(am.TickSize) ||
			existing.BaseDecimals != am.BaseDecimals ||
			existing.QuoteDecimals != am.QuoteDecimals {
			return types.Response{Guid: req.Guid, Error: types.ErrMarketExists}
		}
	} else {
		a.state.AddMarket(matching.NewMarket(a.log, *am))
	}

	return types.Response{
		Guid: req.Guid,
		MarketsCreated: []types.MarketCreated{{
			MarketID:      am.MarketID,
			TickSize:      am.TickSize,
			BaseDecimals:  am.BaseDecimals,
			QuoteDecimals: am.QuoteDecimals,
			MinFee:        am.MinFee,
		}},
	}
}

func (a *App) processSetFeeRates(req types.Request) types.Response {
	rates := req.FeeRates
	if rates == nil || !rates.Valid() {
		return types.Response{Guid: req.Guid, Error: types.ErrInvalidFeeRate}
	}
	a.state.feeRates = *rates
	return types.Response{Guid: req.Guid, FeeRatesSet: rates}
}

func (a *App) processSetWithdrawalFees(req types.Request) types.Response {
	fees := req.WithdrawalFees
	if len(fees) == 0 {
		return types.Response{Guid: req.Guid, Error: types.ErrInvalidWithdrawalFee}
	}
	for _, wf := range fees {
		a.state.withdrawalFees[wf.Asset] = new(big.Int).Set(wf.Value)
	}
	return types.Response{Guid: req.Guid, WithdrawalFeesSet: fees}
}

func (a *App) processSetMarketMinFees(req types.Request) types.Response {
	minFees := req.MarketMinFees
	if len(minFees) == 0 {
		return types.Response{Guid: req.Guid, Error: types.ErrInvalidMarketMinFee}
	}
	for _, mf := range minFees {
		if market := a.state.Market(mf.MarketID); market != nil {
			market.SetMinFee(mf.MinFee)
		}
	}
	return types.Response{Guid: req.Guid, MarketMinFeesSet: minFees}
}

func (a *App) processOrderBatch(req types.Request) types.Response {
	batch := req.OrderBatch
	if batch == nil {
		return types.Response{Guid: req.Guid, Error: types.ErrUnknownRequest}
	}

	var (
		ordersChanged        []types.OrderChanged
		ordersChangeRejected []types.OrderChangeRejected
		trades               []types.TradeCreated
	)
	balanceChanges := types.NewBalanceChangeSet()
	accountsAndAssets := newOrderedSet[accountAsset]()
	limitChanges := newOrderedSet[accountMarket]()

	errCode := types.ErrNone
	market := a.state.Market(batch.MarketID)
	if market == nil {
		errCode = types.ErrUnknownMarket
	} else {
		adjusted := a.adjustBatchForPercentageMarketOrders(market, *batch)
		errCode = a.checkLimits(market, adjusted)
		if errCode == types.ErrNone {
			result := market.ApplyOrderBatch(adjusted, a.state.feeRates)
			ordersChanged = result.OrdersChanged
			ordersChangeRejected = result.OrdersChangeRejected
			trades = result.CreatedTrades
			a.applyBalanceAndConsumptionChanges(market.ID, result, accountsAndAssets, balanceChanges, limitChanges)
			ordersChanged = append(ordersChanged, a.autoReduce(accountsAndAssets.items(), limitChanges)...)
		}
	}

	resp := types.Response{
		Guid:                 batch.Guid,
		Error:                errCode,
		OrdersChanged:        ordersChanged,
		OrdersChangeRejected: ordersChangeRejected,
		TradesCreated:        trades,
		BalancesChanged:      balanceChanges.Changes(),
		LimitsUpdated:        a.calculateLimits(limitChanges.items()),
	}
	if market != nil {
		bos := market.BidOfferState()
		resp.BidOfferState = &bos
	}
	return resp
}

func (a *App) processBalanceBatch(req types.Request) types.Response {
	batch := req.BalanceBatch
	if batch == nil {
		return types.Response{Guid: req.Guid, Error: types.ErrUnknownRequest}
	}

	balancesChanged := types.NewBalanceChangeSet()
	limitChanges := newOrderedSet[accountMarket]()

	for _, d := range batch.Deposits {
		a.state.addBalance(d.Account, d.Asset, d.Amount)
		balancesChanged.Add(d.Account, d.Asset, d.Amount)
	}

	var withdrawalsCreated []types.WithdrawalCreated
	for _, w := range batch.Withdrawals {
		byAsset, ok := a.state.balances[w.Account]
		if !ok {
			continue
		}
		fee, ok := a.state.withdrawalFees[w.Asset]
		if !ok {
			fee = new(big.Int)
		}
		balance, ok := byAsset[w.Asset]
		if !ok {
			balance = new(big.Int)
		}
		amount := w.Amount
		if amount.Sign() == 0 {
			// zero means withdraw everything
			amount = new(big.Int).Set(balance)
		}
		if amount.Cmp(fee) > 0 && amount.Cmp(balance) <= 0 {
			neg := new(big.Int).Neg(amount)
			a.state.addBalance(w.Account, w.Asset, neg)
			balancesChanged.Add(w.Account, w.Asset, neg)
			withdrawalsCreated = append(withdrawalsCreated, types.WithdrawalCreated{
				ExternalGuid: w.ExternalGuid,
				Fee:          new(big.Int).Set(fee),
			})
		}
	}

	for _, fw := range batch.FailedWithdrawals {
		a.state.addBalance(fw.Account, fw.Asset, fw.Amount)
		balancesChanged.Add(fw.Account, fw.Asset, fw.Amount)
	}

	for _, fs := range batch.FailedSettlements {
		market := a.state.Market(fs.MarketID)
		if market == nil {
			continue
		}
		baseAsset, quoteAsset := market.ID.Assets()
		notional := types.Notional(fs.Trade.Amount, market.Price(fs.Trade.LevelIx), market.BaseDecimals, market.QuoteDecimals)

		sellerBaseRefund := fs.Trade.Amount.Big()
		sellerQuoteRefund := notional.Sub(fs.Trade.SellerFee).Neg().Big()
		buyerBaseRefund := fs.Trade.Amount.Neg().Big()
		buyerQuoteRefund := notional.Add(fs.Trade.BuyerFee).Big()

		a.state.addBalance(fs.SellAccount, baseAsset, sellerBaseRefund)
		balancesChanged.Add(fs.SellAccount, baseAsset, sellerBaseRefund)
		a.state.addBalance(fs.SellAccount, quoteAsset, sellerQuoteRefund)
		balancesChanged.Add(fs.SellAccount, quoteAsset, sellerQuoteRefund)
		a.state.addBalance(fs.BuyAccount, baseAsset, buyerBaseRefund)
		balancesChanged.Add(fs.BuyAccount, baseAsset, buyerBaseRefund)
		a.state.addBalance(fs.BuyAccount, quoteAsset, buyerQuoteRefund)
		balancesChanged.Add(fs.BuyAccount, quoteAsset, buyerQuoteRefund)
	}

	var touched []accountAsset
	balancesChanged.Each(func(account types.AccountGuid, asset types.Asset, _ *big.Int) {
		touched = append(touched, accountAsset{Account: account, Asset: asset})
		for _, marketID := range a.state.MarketIDsByAsset(asset) {
			limitChanges.add(accountMarket{Account: account, MarketID: marketID})
		}
	})

	return types.Response{
		Guid:               batch.Guid,
		OrdersChanged:      a.autoReduce(touched, limitChanges),
		BalancesChanged:    balancesChanged.Changes(),
		WithdrawalsCreated: withdrawalsCreated,
		LimitsUpdated:      a.calculateLimits(limitChanges.items()),
	}
}

func isOrderWithPercentage(o types.Order) bool {
	return o.Percentage != 0 && (o.Type == types.MarketSell || o.Type == types.MarketBuy)
}

// adjustBatchForPercentageMarketOrders resolves percentage market orders
// into absolute amounts against the account's free balances.
func (a *App) adjustBatchForPercentageMarketOrders(market *matching.Market, batch types.OrderBatch) types.OrderBatch {
	hasPercentage := false
	for _, o := range batch.OrdersToAdd {
		if isOrderWithPercentage(o) {
			hasPercentage = true
			break
		}
	}
	if !hasPercentage {
		return batch
	}

	baseAsset, quoteAsset := market.ID.Assets()
	adjusted := batch
	adjusted.OrdersToAdd = make([]types.Order, len(batch.OrdersToAdd))
	for i, o := range batch.OrdersToAdd {
		if isOrderWithPercentage(o) {
			if o.Type == types.MarketSell {
				o.Amount = market.CalculateAmountForPercentageSell(
					batch.Account,
					types.BaseAmountFromBig(a.state.balance(batch.Account, baseAsset)),
					o.Percentage,
				)
			} else {
				amount, maxAvailable := market.CalculateAmountForPercentageBuy(
					batch.Account,
					types.QuoteAmountFromBig(a.state.balance(batch.Account, quoteAsset)),
					o.Percentage,
					a.state.feeRates.Taker,
				)
				o.Amount = amount
				o.MaxAvailable = maxAvailable
			}
		}
		adjusted.OrdersToAdd[i] = o
	}
	return adjusted
}

// checkLimits verifies the cumulative base and quote the batch requires, net
// of its own cancellations, against the account balances. A violation fails
// the whole batch.
func (a *App) checkLimits(market *matching.Market, batch types.OrderBatch) types.Error {
	baseRequired := map[types.AccountGuid]*big.Int{}
	quoteRequired := map[types.AccountGuid]*big.Int{}
	merge := func(m map[types.AccountGuid]*big.Int, account types.AccountGuid, delta *big.Int) {
		if cur, ok := m[account]; ok {
			cur.Add(cur, delta)
		} else {
			m[account] = new(big.Int).Set(delta)
		}
	}

	for _, order := range batch.OrdersToAdd {
		switch order.Type {
		case types.LimitSell, types.MarketSell:
			merge(baseRequired, batch.Account, order.Amount.Big())
		case types.LimitBuy:
			merge(quoteRequired, batch.Account, a.limitBuyNotionalPlusFee(order, market).Big())
		case types.MarketBuy:
			// what a market buy needs depends on the clearing price it
			// would currently get
			clearingPrice, availableQuantity := market.ClearingPriceAndQuantityForMarketBuy(order.Amount, 0, false)
			merge(quoteRequired, batch.Account,
				types.Notional(availableQuantity, clearingPrice, market.BaseDecimals, market.QuoteDecimals).Big())
		}
	}
	for _, cancel := range batch.OrdersToCancel {
		if lo, ok := market.OrderByGuid(cancel.Guid); ok {
			base, quote := market.AssetsReservedForOrder(lo)
			if base.Sign() > 0 {
				merge(baseRequired, lo.Account, base.Neg().Big())
			}
			if quote.Sign() > 0 {
				merge(quoteRequired, lo.Account, quote.Neg().Big())
			}
		}
	}

	baseAsset, quoteAsset := market.ID.Assets()
	for _, account := range sortedAccounts(baseRequired) {
		required := new(big.Int).Add(baseRequired[account], market.BaseAssetsRequired(account).Big())
		balance := a.state.balance(account, baseAsset)
		if required.Cmp(balance) > 0 {
			if a.log.GetLevel() == logging.DebugLevel {
				a.log.Debug("order batch exceeds base limit",
					zap.Int64("account", int64(account)),
					zap.String("required", required.String()),
					zap.String("balance", balance.String()))
			}
			return types.ErrExceedsLimit
		}
	}
	for _, account := range sortedAccounts(quoteRequired) {
		required := new(big.Int).Add(quoteRequired[account], market.QuoteAssetsRequired(account).Big())
		balance := a.state.balance(account, quoteAsset)
		if required.Cmp(balance) > 0 {
			if a.log.GetLevel() == logging.DebugLevel {
				a.log.Debug("order batch exceeds quote limit",
					zap.Int64("account", int64(account)),
					zap.String("required", required.String()),
					zap.String("balance", balance.String()))
			}
			return types.ErrExceedsLimit
		}
	}
	return types.ErrNone
}

// limitBuyNotionalPlusFee is the quote amount a limit buy requires: the
// crossing chunk at the clearing price with the taker rate, plus the resting
// remainder at the order's own price with the maker rate.
func (a *App) limitBuyNotionalPlusFee(order types.Order, market *matching.Market) types.QuoteAmount {
	orderPrice := market.Price(order.LevelIx)
	if order.LevelIx >= market.BestOfferIx() {
		clearingPrice, availableQuantity := market.ClearingPriceAndQuantityForMarketBuy(order.Amount, order.LevelIx, true)
		remainingQuantity := order.Amount.Sub(availableQuantity)

		marketChunk := types.NotionalPlusFee(availableQuantity, clearingPrice, market.BaseDecimals, market.QuoteDecimals, a.state.feeRates.Taker)
		limitChunk := types.NotionalPlusFee(remainingQuantity, orderPrice, market.BaseDecimals, market.QuoteDecimals, a.state.feeRates.Maker)
		return marketChunk.Add(limitChunk)
	}
	return types.NotionalPlusFee(order.Amount, orderPrice, market.BaseDecimals, market.QuoteDecimals, a.state.feeRates.Maker)
}

func (a *App) applyBalanceAndConsumptionChanges(
	marketID types.MarketID,
	result matching.AddOrdersResult,
	accountsAndAssets *orderedSet[accountAsset],
	balanceChanges *types.BalanceChangeSet,
	limitChanges *orderedSet[accountMarket],
) {
	for _, bc := range result.BalanceChanges {
		balanceChanges.Add(bc.Account, bc.Asset, bc.Delta)
		a.state.addBalanceClamped(bc.Account, bc.Asset, bc.Delta)
		accountsAndAssets.add(accountAsset{Account: bc.Account, Asset: bc.Asset})
		for _, mid := range a.state.MarketIDsByAsset(bc.Asset) {
			limitChanges.add(accountMarket{Account: bc.Account, MarketID: mid})
		}
	}

	for _, cc := range result.ConsumptionChanges {
		if cc.Delta.Sign() != 0 {
			a.state.addConsumed(cc.Account, cc.Asset, marketID, cc.Delta)
			limitChanges.add(accountMarket{Account: cc.Account, MarketID: marketID})
		}
	}
}

// autoReduce shrinks resting orders in every market where an account's
// consumption exceeds its balance after a balance decrease, then clamps the
// consumption ledger to the balance.
func (a *App) autoReduce(accountsAndAssets []accountAsset, limitChanges *orderedSet[accountMarket]) []types.OrderChanged {
	var changed []types.OrderChanged
	for _, aa := range accountsAndAssets {
		byMarket := a.state.consumed[aa.Account][aa.Asset]
		if len(byMarket) == 0 {
			continue
		}
		marketIDs := make([]types.MarketID, 0, len(byMarket))
		for mid := range byMarket {
			marketIDs = append(marketIDs, mid)
		}
		sort.Slice(marketIDs, func(i, j int) bool { return marketIDs[i] < marketIDs[j] })

		var changes []types.OrderChanged
		for _, mid := range marketIDs {
			balance := a.state.balance(aa.Account, aa.Asset)
			if byMarket[mid].Cmp(balance) > 0 {
				if market := a.state.Market(mid); market != nil {
					changes = append(changes, market.AutoReduce(aa.Account, aa.Asset, balance)...)
				}
				a.state.setConsumed(aa.Account, aa.Asset, mid, balance)
				limitChanges.add(accountMarket{Account: aa.Account, MarketID: mid})
			}
		}
		sort.SliceStable(changes, func(i, j int) bool { return changes[i].Guid < changes[j].Guid })
		changed = append(changed, changes...)
	}
	return changed
}

func (a *App) calculateLimits(items []accountMarket) []types.LimitsUpdate {
	updates := make([]types.LimitsUpdate, 0, len(items))
	for _, am := range items {
		baseAsset, quoteAsset := am.MarketID.Assets()
		updates = append(updates, types.LimitsUpdate{
			Account:  am.Account,
			MarketID: am.MarketID,
			Base: new(big.Int).Sub(
				a.state.balance(am.Account, baseAsset),
				a.state.consumedAmount(am.Account, baseAsset, am.MarketID)),
			Quote: new(big.Int).Sub(
				a.state.balance(am.Account, quoteAsset),
				a.state.consumedAmount(am.Account, quoteAsset, am.MarketID)),
		})
	}
	sort.Slice(updates, func(i, j int) bool {
		if updates[i].Account != updates[j].Account {
			return updates[i].Account < updates[j].Account
		}
		return updates[i].MarketID < updates[j].MarketID
	})
	return updates
}

type accountAsset struct {
	Account types.AccountGuid
	Asset   types.Asset
}

type accountMarket struct {
	Account  types.AccountGuid
	MarketID types.MarketID
}

type orderedSet[K comparable] struct {
	keys []K
	seen map[K]struct{}
}

func newOrderedSet[K comparable]() *orderedSet[K] {
	return &orderedSet[K]{seen: map[K]struct{}{}}
}

func (s *orderedSet[K]) add(k K) {
	if _, ok := s.seen[k]; ok {
		return
	}
	s.seen[k] = struct{}{}
	s.keys = append(s.keys, k)
}

func (s *orderedSet[K]) items() []K {
	return s.keys
}

func sortedAccounts(m map[types.AccountGuid]*big.Int) []types.AccountGuid {
	accounts := make([]types.AccountGuid, 0, len(m))
	for account := range m {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })
	return accounts
}
