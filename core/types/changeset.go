package types

import "math/big"

type balanceKey struct {
	Account AccountGuid
	Asset   Asset
}

// BalanceChangeSet accumulates balance deltas per (account, asset). The core
// is deterministic, so iteration follows first-touch order rather than map
// order.
type BalanceChangeSet struct {
	keys   []balanceKey
	deltas map[balanceKey]*big.Int
}

func NewBalanceChangeSet() *BalanceChangeSet {
	return &BalanceChangeSet{
		deltas: make(map[balanceKey]*big.Int),
	}
}

func (s *BalanceChangeSet) Add(account AccountGuid, asset Asset, delta *big.Int) {
	k := balanceKey{Account: account, Asset: asset}
	if cur, ok := s.deltas[k]; ok {
		cur.Add(cur, delta)
		return
	}
	s.keys = append(s.keys, k)
	s.deltas[k] = new(big.Int).Set(delta)
}

// Get returns the accumulated delta for the account and asset, or nil.
func (s *BalanceChangeSet) Get(account AccountGuid, asset Asset) *big.Int {
	return s.deltas[balanceKey{Account: account, Asset: asset}]
}

func (s *BalanceChangeSet) Len() int {
	return len(s.keys)
}

// Each visits the accumulated deltas in first-touch order.
func (s *BalanceChangeSet) Each(f func(account AccountGuid, asset Asset, delta *big.Int)) {
	for _, k := range s.keys {
		f(k.Account, k.Asset, s.deltas[k])
	}
}

// Changes returns the non-zero deltas in first-touch order.
func (s *BalanceChangeSet) Changes() []BalanceChange {
	changes := make([]BalanceChange, 0, len(s.keys))
	for _, k := range s.keys {
		delta := s.deltas[k]
		if delta.Sign() == 0 {
			continue
		}
		changes = append(changes, BalanceChange{
			Account: k.Account,
			Asset:   k.Asset,
			Delta:   new(big.Int).Set(delta),
		})
	}
	return changes
}
