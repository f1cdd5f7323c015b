package matching

import (
	"code.straitex.io/sequencer/core/types"
	"code.straitex.io/sequencer/logging"
)

// ToCheckpoint captures the market's full state, levels in ascending index
// order.
func (m *Market) ToCheckpoint() types.MarketCheckpoint {
	cp := types.MarketCheckpoint{
		ID:                m.ID,
		TickSize:          m.TickSize,
		MaxOrdersPerLevel: m.MaxOrdersPerLevel,
		BaseDecimals:      m.BaseDecimals,
		QuoteDecimals:     m.QuoteDecimals,
		MinFee:            m.minFee,
		MinBidIx:          m.minBidIx,
		BestBidIx:         m.bestBidIx,
		BestOfferIx:       m.bestOfferIx,
		MaxOfferIx:        m.maxOfferIx,
	}
	m.levels.ascend(func(lv *Level) bool {
		cp.Levels = append(cp.Levels, lv.toCheckpoint())
		return true
	})
	return cp
}

// MarketFromCheckpoint rebuilds a market from its checkpoint: levels first,
// with their ring cursors preserved, then the per-account and per-guid
// indices in queue order.
func MarketFromCheckpoint(log *logging.Logger, cp types.MarketCheckpoint) *Market {
	m := NewMarket(log, types.AddMarket{
		MarketID:          cp.ID,
		TickSize:          cp.TickSize,
		MaxOrdersPerLevel: cp.MaxOrdersPerLevel,
		BaseDecimals:      cp.BaseDecimals,
		QuoteDecimals:     cp.QuoteDecimals,
		MinFee:            cp.MinFee,
	})
	m.maxOfferIx = cp.MaxOfferIx
	m.bestOfferIx = cp.BestOfferIx
	m.bestBidIx = cp.BestBidIx
	m.minBidIx = cp.MinBidIx

	for _, lcp := range cp.Levels {
		lv := m.levelPool.borrow().init(lcp.Ix, lcp.Side, m.Price(lcp.Ix))
		lv.fromCheckpoint(lcp)
		m.levels.add(lv)
	}

	m.levels.ascend(func(lv *Level) bool {
		for i := lv.head; i != lv.tail; i = (i + 1) % lv.maxOrderCount {
			lo := lv.orders[i]
			m.ordersByGuid[lo.Guid] = lo
			if lv.side == types.Buy {
				m.buyOrdersByAccount[lo.Account] = append(m.buyOrdersByAccount[lo.Account], lo)
			} else {
				m.sellOrdersByAccount[lo.Account] = append(m.sellOrdersByAccount[lo.Account], lo)
			}
		}
		return true
	})
	return m
}
