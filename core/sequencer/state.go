package sequencer

import (
	"math/big"
	"sort"

	"code.straitex.io/sequencer/core/matching"
	"code.straitex.io/sequencer/core/types"
	"code.straitex.io/sequencer/logging"
)

// State is the complete sequencer state: all markets plus the balance,
// consumption and fee ledgers. It is owned by the engine goroutine.
type State struct {
	markets          map[types.MarketID]*matching.Market
	balances         map[types.AccountGuid]map[types.Asset]*big.Int
	consumed         map[types.AccountGuid]map[types.Asset]map[types.MarketID]*big.Int
	feeRates         types.FeeRates
	withdrawalFees   map[types.Asset]*big.Int
	marketIDsByAsset map[types.Asset][]types.MarketID
}

func NewState() *State {
	return &State{
		markets:          map[types.MarketID]*matching.Market{},
		balances:         map[types.AccountGuid]map[types.Asset]*big.Int{},
		consumed:         map[types.AccountGuid]map[types.Asset]map[types.MarketID]*big.Int{},
		withdrawalFees:   map[types.Asset]*big.Int{},
		marketIDsByAsset: map[types.Asset][]types.MarketID{},
	}
}

func (s *State) AddMarket(m *matching.Market) {
	s.markets[m.ID] = m
	base, quote := m.ID.Assets()
	s.marketIDsByAsset[base] = append(s.marketIDsByAsset[base], m.ID)
	s.marketIDsByAsset[quote] = append(s.marketIDsByAsset[quote], m.ID)
}

func (s *State) Market(id types.MarketID) *matching.Market {
	return s.markets[id]
}

func (s *State) MarketIDsByAsset(asset types.Asset) []types.MarketID {
	return s.marketIDsByAsset[asset]
}

func (s *State) FeeRates() types.FeeRates {
	return s.feeRates
}

func (s *State) Clear() {
	s.markets = map[types.MarketID]*matching.Market{}
	s.balances = map[types.AccountGuid]map[types.Asset]*big.Int{}
	s.consumed = map[types.AccountGuid]map[types.Asset]map[types.MarketID]*big.Int{}
	s.feeRates = types.FeeRates{}
	s.withdrawalFees = map[types.Asset]*big.Int{}
	s.marketIDsByAsset = map[types.Asset][]types.MarketID{}
}

// balance returns the stored balance, or zero. The result must not be
// mutated.
func (s *State) balance(account types.AccountGuid, asset types.Asset) *big.Int {
	if byAsset, ok := s.balances[account]; ok {
		if b, ok := byAsset[asset]; ok {
			return b
		}
	}
	return new(big.Int)
}

// addBalance applies a signed delta to a balance without clamping.
func (s *State) addBalance(account types.AccountGuid, asset types.Asset, delta *big.Int) {
	byAsset, ok := s.balances[account]
	if !ok {
		byAsset = map[types.Asset]*big.Int{}
		s.balances[account] = byAsset
	}
	b, ok := byAsset[asset]
	if !ok {
		b = new(big.Int)
		byAsset[asset] = b
	}
	b.Add(b, delta)
}

// addBalanceClamped applies a signed delta to a balance, flooring at zero.
func (s *State) addBalanceClamped(account types.AccountGuid, asset types.Asset, delta *big.Int) {
	s.addBalance(account, asset, delta)
	b := s.balances[account][asset]
	if b.Sign() < 0 {
		b.SetInt64(0)
	}
}

// consumedAmount returns the consumption ledger entry, or zero. The result
// must not be mutated.
func (s *State) consumedAmount(account types.AccountGuid, asset types.Asset, marketID types.MarketID) *big.Int {
	if byAsset, ok := s.consumed[account]; ok {
		if byMarket, ok := byAsset[asset]; ok {
			if c, ok := byMarket[marketID]; ok {
				return c
			}
		}
	}
	return new(big.Int)
}

func (s *State) addConsumed(account types.AccountGuid, asset types.Asset, marketID types.MarketID, delta *big.Int) {
	byAsset, ok := s.consumed[account]
	if !ok {
		byAsset = map[types.Asset]map[types.MarketID]*big.Int{}
		s.consumed[account] = byAsset
	}
	byMarket, ok := byAsset[asset]
	if !ok {
		byMarket = map[types.MarketID]*big.Int{}
		byAsset[asset] = byMarket
	}
	c, ok := byMarket[marketID]
	if !ok {
		c = new(big.Int)
		byMarket[marketID] = c
	}
	c.Add(c, delta)
}

func (s *State) setConsumed(account types.AccountGuid, asset types.Asset, marketID types.MarketID, value *big.Int) {
	cur := s.consumedAmount(account, asset, marketID)
	delta := new(big.Int).Sub(value, cur)
	s.addConsumed(account, asset, marketID, delta)
}

// ToCheckpoint captures the state as a versioned document. All lists are
// sorted so persisting the same state always yields the same bytes.
func (s *State) ToCheckpoint(cycle uint64) types.Checkpoint {
	return types.Checkpoint{
		Version:        types.CheckpointVersion,
		Cycle:          cycle,
		MakerFeeRate:   s.feeRates.Maker,
		TakerFeeRate:   s.feeRates.Taker,
		WithdrawalFees: s.withdrawalFeesList(),
		Balances:       s.balancesCheckpoint(),
		Markets:        s.marketsCheckpoint(),
	}
}

// Dump is the sandbox-mode state introspection payload.
func (s *State) Dump() *types.StateDump {
	return &types.StateDump{
		FeeRates:       s.feeRates,
		WithdrawalFees: s.withdrawalFeesList(),
		Balances:       s.balancesCheckpoint(),
		Markets:        s.marketsCheckpoint(),
	}
}

func (s *State) withdrawalFeesList() []types.WithdrawalFee {
	fees := make([]types.WithdrawalFee, 0, len(s.withdrawalFees))
	for asset, value := range s.withdrawalFees {
		fees = append(fees, types.WithdrawalFee{Asset: asset, Value: new(big.Int).Set(value)})
	}
	sort.Slice(fees, func(i, j int) bool { return fees[i].Asset < fees[j].Asset })
	return fees
}

func (s *State) balancesCheckpoint() []types.BalanceCheckpoint {
	var balances []types.BalanceCheckpoint
	for account, byAsset := range s.balances {
		for asset, amount := range byAsset {
			bc := types.BalanceCheckpoint{
				Account: account,
				Asset:   asset,
				Amount:  new(big.Int).Set(amount),
			}
			if byMarket, ok := s.consumed[account][asset]; ok {
				for marketID, consumed := range byMarket {
					bc.Consumed = append(bc.Consumed, types.Consumption{
						MarketID: marketID,
						Consumed: new(big.Int).Set(consumed),
					})
				}
				sort.Slice(bc.Consumed, func(i, j int) bool {
					return bc.Consumed[i].MarketID < bc.Consumed[j].MarketID
				})
			}
			balances = append(balances, bc)
		}
	}
	sort.Slice(balances, func(i, j int) bool {
		if balances[i].Account != balances[j].Account {
			return balances[i].Account < balances[j].Account
		}
		return balances[i].Asset < balances[j].Asset
	})
	return balances
}

func (s *State) marketsCheckpoint() []types.MarketCheckpoint {
	markets := make([]types.MarketCheckpoint, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, m.ToCheckpoint())
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].ID < markets[j].ID })
	return markets
}

// LoadCheckpoint replaces the state with the checkpoint's contents.
func (s *State) LoadCheckpoint(log *logging.Logger, cp types.Checkpoint) {
	s.Clear()

	s.feeRates = types.FeeRates{Maker: cp.MakerFeeRate, Taker: cp.TakerFeeRate}
	for _, wf := range cp.WithdrawalFees {
		s.withdrawalFees[wf.Asset] = new(big.Int).Set(wf.Value)
	}
	for _, bc := range cp.Balances {
		s.addBalance(bc.Account, bc.Asset, bc.Amount)
		for _, c := range bc.Consumed {
			s.addConsumed(bc.Account, bc.Asset, c.MarketID, c.Consumed)
		}
	}
	for _, mc := range cp.Markets {
		s.AddMarket(matching.MarketFromCheckpoint(log, mc))
	}
}
