package matching

// pool recycles heavy objects (price levels and their order arrays) so the
// hot path stays allocation free. The core runs on a single goroutine, so no
// locking is needed.
type pool[T any] struct {
	create func() T
	reset  func(T)
	items  []T
}

func newPool[T any](create func() T, reset func(T), initialSize int) *pool[T] {
	p := &pool[T]{
		create: create,
		reset:  reset,
		items:  make([]T, 0, initialSize),
	}
	for i := 0; i < initialSize; i++ {
		p.items = append(p.items, create())
	}
	return p
}

func (p *pool[T]) borrow() T {
	n := len(p.items)
	if n == 0 {
		return p.create()
	}
	item := p.items[n-1]
	p.items = p.items[:n-1]
	return item
}

func (p *pool[T]) release(item T) {
	p.reset(item)
	p.items = append(p.items, item)
}
