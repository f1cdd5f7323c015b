package matching

import (
	"github.com/shopspring/decimal"

	"code.straitex.io/sequencer/core/types"
)

// LevelOrder is a resting order within a price level. The structs are
// preallocated per level and recycled in place.
type LevelOrder struct {
	Guid             types.OrderGuid
	Account          types.AccountGuid
	Quantity         types.BaseAmount
	OriginalQuantity types.BaseAmount
	FeeRate          types.FeeRate
	Level            *Level
}

func (lo *LevelOrder) update(account types.AccountGuid, order types.Order, feeRate types.FeeRate) {
	lo.Guid = order.Guid
	lo.Account = account
	lo.Quantity = order.Amount
	lo.OriginalQuantity = order.Amount
	lo.FeeRate = feeRate
}

func (lo *LevelOrder) reset() {
	lo.Guid = 0
	lo.Account = 0
	lo.Quantity = types.BaseAmount{}
	lo.OriginalQuantity = types.BaseAmount{}
	lo.FeeRate = 0
}

// Execution is one fill against a resting counter order.
type Execution struct {
	CounterOrder          *LevelOrder
	Amount                types.BaseAmount
	LevelIx               int
	Price                 decimal.Decimal
	CounterOrderExhausted bool
}

type levelFill struct {
	remainingAmount types.BaseAmount
	executions      []Execution
}

// Level is one price level of the book: a fixed-capacity circular buffer of
// resting orders in arrival order, plus the aggregate resting quantity.
// Orders occupy positions head..tail-1 (mod capacity); one slot is always
// kept free so head==tail means empty.
type Level struct {
	ix            int
	side          types.Side
	price         decimal.Decimal
	maxOrderCount int
	orders        []*LevelOrder
	totalQuantity types.BaseAmount
	head          int
	tail          int
}

func newLevel(maxOrderCount int) *Level {
	l := &Level{
		side:          types.Sell,
		maxOrderCount: maxOrderCount,
		orders:        make([]*LevelOrder, maxOrderCount),
	}
	for i := range l.orders {
		l.orders[i] = &LevelOrder{Level: l}
	}
	return l
}

func (l *Level) init(ix int, side types.Side, price decimal.Decimal) *Level {
	l.ix = ix
	l.side = side
	l.price = price
	return l
}

// reset prepares the level for pool reuse. The head/tail cursors are kept:
// an exhausted level can be released and borrowed back within the same batch
// while its consumed slots are still referenced by pending executions, so new
// orders must land on the free slots past tail rather than overwrite them.
func (l *Level) reset() {
	l.ix = 0
	l.side = types.Sell
	l.price = decimal.Decimal{}
	l.totalQuantity = types.BaseAmount{}
}

func (l *Level) orderCount() int {
	return (l.tail - l.head + l.maxOrderCount) % l.maxOrderCount
}

// addOrder appends the order at the tail. The level holds at most
// maxOrderCount-1 orders; at capacity the order is rejected.
func (l *Level) addOrder(account types.AccountGuid, order types.Order, feeRate types.FeeRate) (types.OrderDisposition, *LevelOrder) {
	nextTail := (l.tail + 1) % l.maxOrderCount
	if nextTail == l.head {
		return types.DispositionRejected, nil
	}
	lo := l.orders[l.tail]
	lo.update(account, order, feeRate)
	l.totalQuantity = l.totalQuantity.Add(lo.Quantity)
	l.tail = nextTail
	return types.DispositionAccepted, lo
}

// fillOrder consumes resting orders from the head until the requested amount
// is exhausted or the level runs dry, returning the executions and the
// unfilled remainder.
func (l *Level) fillOrder(requestedAmount types.BaseAmount) levelFill {
	orderIx := l.head
	var executions []Execution
	remainingAmount := requestedAmount
	for orderIx != l.tail && remainingAmount.Sign() > 0 {
		curOrder := l.orders[orderIx]
		if remainingAmount.Cmp(curOrder.Quantity) >= 0 {
			executions = append(executions, Execution{
				CounterOrder:          curOrder,
				Amount:                curOrder.Quantity,
				LevelIx:               l.ix,
				Price:                 l.price,
				CounterOrderExhausted: true,
			})
			l.totalQuantity = l.totalQuantity.Sub(curOrder.Quantity)
			remainingAmount = remainingAmount.Sub(curOrder.Quantity)
			orderIx = (orderIx + 1) % l.maxOrderCount
		} else {
			executions = append(executions, Execution{
				CounterOrder:          curOrder,
				Amount:                remainingAmount,
				LevelIx:               l.ix,
				Price:                 l.price,
				CounterOrderExhausted: false,
			})
			l.totalQuantity = l.totalQuantity.Sub(remainingAmount)
			curOrder.Quantity = curOrder.Quantity.Sub(remainingAmount)
			remainingAmount = types.BaseAmount{}
		}
	}
	l.head = orderIx

	return levelFill{
		remainingAmount: remainingAmount,
		executions:      executions,
	}
}

// removeLevelOrder removes an order from an arbitrary position in the ring,
// shifting the shorter run of survivors to close the gap. The removed struct
// is parked on the vacated slot for reuse.
func (l *Level) removeLevelOrder(lo *LevelOrder) {
	orderIx := -1
	for i, o := range l.orders {
		if o == lo {
			orderIx = i
			break
		}
	}
	if orderIx == -1 {
		return
	}

	l.totalQuantity = l.totalQuantity.Sub(lo.Quantity)
	lo.reset()

	switch {
	case orderIx == (l.tail-1+l.maxOrderCount)%l.maxOrderCount:
		l.tail = (l.tail - 1 + l.maxOrderCount) % l.maxOrderCount
	case orderIx < l.head:
		// wrapped segment: shift (orderIx, tail] back one slot
		if orderIx < l.tail {
			copy(l.orders[orderIx:l.tail], l.orders[orderIx+1:l.tail+1])
			l.orders[l.tail] = lo
		}
		l.tail = (l.tail - 1 + l.maxOrderCount) % l.maxOrderCount
	default:
		// shift [head, orderIx) forward one slot
		if orderIx > l.head {
			copy(l.orders[l.head+1:orderIx+1], l.orders[l.head:orderIx])
			l.orders[l.head] = lo
		}
		l.head = (l.head + 1) % l.maxOrderCount
	}
}

func (l *Level) toCheckpoint() types.LevelCheckpoint {
	cp := types.LevelCheckpoint{
		Ix:            l.ix,
		Side:          l.side,
		MaxOrderCount: l.maxOrderCount,
		TotalQuantity: l.totalQuantity,
		Head:          l.head,
		Tail:          l.tail,
	}
	for i := l.head; i != l.tail; i = (i + 1) % l.maxOrderCount {
		lo := l.orders[i]
		cp.Orders = append(cp.Orders, types.OrderCheckpoint{
			Guid:             lo.Guid,
			Account:          lo.Account,
			Quantity:         lo.Quantity,
			OriginalQuantity: lo.OriginalQuantity,
			FeeRate:          lo.FeeRate,
		})
	}
	return cp
}

// fromCheckpoint restores the ring with the persisted cursors, placing the
// orders back at their original positions.
func (l *Level) fromCheckpoint(cp types.LevelCheckpoint) {
	l.head = cp.Head
	l.tail = cp.Tail
	l.side = cp.Side
	for i, ocp := range cp.Orders {
		lo := l.orders[(cp.Head+i)%l.maxOrderCount]
		lo.Guid = ocp.Guid
		lo.Account = ocp.Account
		lo.Quantity = ocp.Quantity
		lo.OriginalQuantity = ocp.OriginalQuantity
		lo.FeeRate = ocp.FeeRate
	}
	l.totalQuantity = cp.TotalQuantity
}
