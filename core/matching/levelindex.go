package matching

import (
	"github.com/google/btree"
)

const levelIndexDegree = 16

// levelIndex keeps the populated price levels of a market ordered by level
// index, with O(log n) lookup and in-order neighbour navigation.
type levelIndex struct {
	tree *btree.BTreeG[*Level]
}

func newLevelIndex() *levelIndex {
	return &levelIndex{
		tree: btree.NewG(levelIndexDegree, func(a, b *Level) bool {
			return a.ix < b.ix
		}),
	}
}

func (l *levelIndex) get(ix int) *Level {
	lv, _ := l.tree.Get(&Level{ix: ix})
	return lv
}

func (l *levelIndex) add(lv *Level) *Level {
	l.tree.ReplaceOrInsert(lv)
	return lv
}

func (l *levelIndex) remove(ix int) {
	l.tree.Delete(&Level{ix: ix})
}

// next returns the level with the smallest index greater than ix, or nil.
func (l *levelIndex) next(ix int) *Level {
	var found *Level
	l.tree.AscendGreaterOrEqual(&Level{ix: ix + 1}, func(lv *Level) bool {
		found = lv
		return false
	})
	return found
}

// prev returns the level with the greatest index smaller than ix, or nil.
func (l *levelIndex) prev(ix int) *Level {
	var found *Level
	l.tree.DescendLessOrEqual(&Level{ix: ix - 1}, func(lv *Level) bool {
		found = lv
		return false
	})
	return found
}

// ascend visits all levels in ascending index order while f returns true.
func (l *levelIndex) ascend(f func(*Level) bool) {
	l.tree.Ascend(f)
}

func (l *levelIndex) len() int {
	return l.tree.Len()
}
