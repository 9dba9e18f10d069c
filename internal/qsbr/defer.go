package qsbr

import "sync"

type deferred[T any] struct {
	token Token
	value T
}

// DeferQueue holds unlinked elements until readers have quiesced, then hands
// them to the release function. Elements are released in enqueue order.
type DeferQueue[T any] struct {
	c       *Coordinator
	release func(T)

	mu    sync.Mutex
	items []deferred[T]
}

// NewDeferQueue creates a queue bound to coordinator c.
func NewDeferQueue[T any](c *Coordinator, release func(T)) *DeferQueue[T] {
	return &DeferQueue[T]{c: c, release: release}
}

// Enqueue stamps v with a new generation and defers its release.
// v must already be unreachable for new readers.
func (q *DeferQueue[T]) Enqueue(v T) Token {
	t := q.c.Start()
	q.mu.Lock()
	q.items = append(q.items, deferred[T]{token: t, value: v})
	q.mu.Unlock()
	return t
}

// Reclaim releases every element whose generation all online readers have
// passed. It never blocks on readers and returns the number released.
func (q *DeferQueue[T]) Reclaim() int {
	q.mu.Lock()
	n := 0
	for n < len(q.items) && q.c.Check(q.items[n].token) {
		n++
	}
	ready := make([]T, n)
	for i := 0; i < n; i++ {
		ready[i] = q.items[i].value
	}
	q.items = compact(q.items, n)
	q.mu.Unlock()

	for _, v := range ready {
		q.release(v)
	}
	return n
}

// Len returns the number of elements waiting for release.
func (q *DeferQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain releases everything regardless of reader state. Only call it once
// all readers have stopped.
func (q *DeferQueue[T]) Drain() int {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, it := range items {
		q.release(it.value)
	}
	return len(items)
}

// compact drops the first n items, zeroing the vacated tail so released
// values are not retained by the backing array.
func compact[T any](items []deferred[T], n int) []deferred[T] {
	if n == 0 {
		return items
	}
	rest := copy(items, items[n:])
	var zero deferred[T]
	for i := rest; i < len(items); i++ {
		items[i] = zero
	}
	return items[:rest]
}
