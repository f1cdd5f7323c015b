package matching

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.straitex.io/sequencer/core/types"
)

func addTestOrder(t *testing.T, l *Level, guid types.OrderGuid, amount int64) *LevelOrder {
	t.Helper()
	disposition, lo := l.addOrder(1, types.Order{
		Guid:   guid,
		Type:   types.LimitSell,
		Amount: types.NewBaseAmount(amount),
	}, 10_000)
	require.Equal(t, types.DispositionAccepted, disposition)
	return lo
}

func levelGuids(l *Level) []types.OrderGuid {
	var guids []types.OrderGuid
	for i := l.head; i != l.tail; i = (i + 1) % l.maxOrderCount {
		guids = append(guids, l.orders[i].Guid)
	}
	return guids
}

func TestLevelCapacity(t *testing.T) {
	l := newLevel(3).init(10, types.Sell, decimal.NewFromInt(10))

	// one slot stays free, so capacity 3 holds 2 orders
	addTestOrder(t, l, 1, 10)
	addTestOrder(t, l, 2, 10)

	disposition, lo := l.addOrder(1, types.Order{Guid: 3, Amount: types.NewBaseAmount(10)}, 0)
	assert.Equal(t, types.DispositionRejected, disposition)
	assert.Nil(t, lo)
	assert.Equal(t, 2, l.orderCount())
	assert.Equal(t, "20", l.totalQuantity.String())
}

func TestLevelFillOrder(t *testing.T) {
	l := newLevel(5).init(10, types.Sell, decimal.NewFromInt(10))
	addTestOrder(t, l, 1, 10)
	b := addTestOrder(t, l, 2, 20)
	addTestOrder(t, l, 3, 30)

	fill := l.fillOrder(types.NewBaseAmount(25))

	require.Len(t, fill.executions, 2)
	assert.True(t, fill.remainingAmount.IsZero())

	assert.Equal(t, types.OrderGuid(1), fill.executions[0].CounterOrder.Guid)
	assert.Equal(t, "10", fill.executions[0].Amount.String())
	assert.True(t, fill.executions[0].CounterOrderExhausted)

	assert.Equal(t, types.OrderGuid(2), fill.executions[1].CounterOrder.Guid)
	assert.Equal(t, "15", fill.executions[1].Amount.String())
	assert.False(t, fill.executions[1].CounterOrderExhausted)

	assert.Equal(t, "5", b.Quantity.String())
	assert.Equal(t, "35", l.totalQuantity.String())
	assert.Equal(t, []types.OrderGuid{2, 3}, levelGuids(l))
}

func TestLevelFillOrderRunsDry(t *testing.T) {
	l := newLevel(5).init(10, types.Sell, decimal.NewFromInt(10))
	addTestOrder(t, l, 1, 10)

	fill := l.fillOrder(types.NewBaseAmount(25))
	require.Len(t, fill.executions, 1)
	assert.Equal(t, "15", fill.remainingAmount.String())
	assert.True(t, l.totalQuantity.IsZero())
	assert.Equal(t, 0, l.orderCount())
}

func TestLevelRemoveTail(t *testing.T) {
	l := newLevel(5).init(10, types.Sell, decimal.NewFromInt(10))
	addTestOrder(t, l, 1, 10)
	addTestOrder(t, l, 2, 20)
	c := addTestOrder(t, l, 3, 30)

	l.removeLevelOrder(c)
	assert.Equal(t, []types.OrderGuid{1, 2}, levelGuids(l))
	assert.Equal(t, "30", l.totalQuantity.String())
}

func TestLevelRemoveMiddle(t *testing.T) {
	l := newLevel(5).init(10, types.Sell, decimal.NewFromInt(10))
	addTestOrder(t, l, 1, 10)
	b := addTestOrder(t, l, 2, 20)
	addTestOrder(t, l, 3, 30)

	l.removeLevelOrder(b)
	assert.Equal(t, []types.OrderGuid{1, 3}, levelGuids(l))
	assert.Equal(t, "40", l.totalQuantity.String())
	assert.Equal(t, 2, l.orderCount())
}

func TestLevelRemoveWrapped(t *testing.T) {
	l := newLevel(5).init(10, types.Sell, decimal.NewFromInt(10))

	// wrap the ring: occupy slots 3,4,0,1 with guids 4,5,6,7
	a := addTestOrder(t, l, 1, 10)
	b := addTestOrder(t, l, 2, 10)
	c := addTestOrder(t, l, 3, 10)
	addTestOrder(t, l, 4, 10)
	l.removeLevelOrder(a)
	l.removeLevelOrder(b)
	addTestOrder(t, l, 5, 10)
	f := addTestOrder(t, l, 6, 10)
	l.removeLevelOrder(c)
	addTestOrder(t, l, 7, 10)
	require.Equal(t, []types.OrderGuid{4, 5, 6, 7}, levelGuids(l))
	require.Equal(t, 3, l.head)

	// guid 6 sits in the wrapped segment before head
	l.removeLevelOrder(f)
	assert.Equal(t, []types.OrderGuid{4, 5, 7}, levelGuids(l))
	assert.Equal(t, "30", l.totalQuantity.String())
}

func TestLevelResetKeepsConsumedSlots(t *testing.T) {
	l := newLevel(5).init(10, types.Sell, decimal.NewFromInt(10))
	addTestOrder(t, l, 1, 10)
	addTestOrder(t, l, 2, 20)

	fill := l.fillOrder(types.NewBaseAmount(30))
	require.Len(t, fill.executions, 2)
	require.True(t, l.totalQuantity.IsZero())

	// recycling the drained level must not touch the consumed slots, their
	// executions are still pending
	l.reset()
	l.init(11, types.Buy, decimal.NewFromInt(11))
	disposition, lo := l.addOrder(2, types.Order{
		Guid:   9,
		Type:   types.LimitBuy,
		Amount: types.NewBaseAmount(30),
	}, 10_000)
	require.Equal(t, types.DispositionAccepted, disposition)

	assert.NotSame(t, fill.executions[0].CounterOrder, lo)
	assert.NotSame(t, fill.executions[1].CounterOrder, lo)
	assert.Equal(t, types.OrderGuid(1), fill.executions[0].CounterOrder.Guid)
	assert.Equal(t, types.OrderGuid(2), fill.executions[1].CounterOrder.Guid)
	assert.Equal(t, types.AccountGuid(1), fill.executions[1].CounterOrder.Account)
	assert.Equal(t, []types.OrderGuid{9}, levelGuids(l))
}

func TestLevelCheckpointRoundTrip(t *testing.T) {
	l := newLevel(5).init(10, types.Sell, decimal.NewFromInt(10))
	a := addTestOrder(t, l, 1, 10)
	addTestOrder(t, l, 2, 20)
	addTestOrder(t, l, 3, 30)
	l.removeLevelOrder(a)
	l.fillOrder(types.NewBaseAmount(5))

	cp := l.toCheckpoint()

	restored := newLevel(cp.MaxOrderCount).init(cp.Ix, cp.Side, decimal.NewFromInt(10))
	restored.fromCheckpoint(cp)

	assert.Equal(t, l.head, restored.head)
	assert.Equal(t, l.tail, restored.tail)
	assert.Equal(t, l.totalQuantity.String(), restored.totalQuantity.String())
	assert.Equal(t, levelGuids(l), levelGuids(restored))
	assert.Equal(t, cp, restored.toCheckpoint())
}
