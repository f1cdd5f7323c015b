package matching

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.straitex.io/sequencer/core/types"
)

func TestLevelIndexNavigation(t *testing.T) {
	idx := newLevelIndex()
	for _, ix := range []int{15, 5, 10} {
		idx.add(newLevel(3).init(ix, types.Sell, decimal.NewFromInt(int64(ix))))
	}
	require.Equal(t, 3, idx.len())

	assert.Equal(t, 10, idx.get(10).ix)
	assert.Nil(t, idx.get(11))

	assert.Equal(t, 10, idx.next(5).ix)
	assert.Equal(t, 10, idx.next(6).ix)
	assert.Nil(t, idx.next(15))

	assert.Equal(t, 10, idx.prev(15).ix)
	assert.Equal(t, 10, idx.prev(14).ix)
	assert.Nil(t, idx.prev(5))

	var seen []int
	idx.ascend(func(lv *Level) bool {
		seen = append(seen, lv.ix)
		return true
	})
	assert.Equal(t, []int{5, 10, 15}, seen)

	idx.remove(10)
	assert.Nil(t, idx.get(10))
	assert.Equal(t, 15, idx.next(5).ix)
	assert.Equal(t, 2, idx.len())
}

func TestPool(t *testing.T) {
	created := 0
	p := newPool(
		func() *Level { created++; return newLevel(3) },
		func(l *Level) { l.reset() },
		2,
	)
	require.Equal(t, 2, created)

	a := p.borrow()
	b := p.borrow()
	assert.NotSame(t, a, b)

	// pool drained, borrow creates
	c := p.borrow()
	assert.Equal(t, 3, created)

	a.init(7, types.Buy, decimal.NewFromInt(7))
	p.release(a)
	d := p.borrow()
	assert.Same(t, a, d)
	assert.Equal(t, 0, d.ix)
	assert.Equal(t, types.Sell, d.side)

	_ = b
	_ = c
}
