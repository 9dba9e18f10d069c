package counter

import "sync/atomic"

// Bank is the live storage of one counter instance.
//
// A Bank has exactly one writer. Writes are a plain atomic load followed by
// an atomic store, which keeps the hot path free of locked instructions while
// readers on other goroutines always observe whole words. Concurrent readers
// see best-effort values, not a consistent cut across fields.
type Bank struct {
	schema *Schema
	cells  []atomic.Uint64
}

// NewBank allocates a zeroed bank for the schema.
func NewBank(s *Schema) *Bank {
	return &Bank{
		schema: s,
		cells:  make([]atomic.Uint64, s.Len()),
	}
}

// Schema returns the bank's schema.
func (b *Bank) Schema() *Schema { return b.schema }

// Add adds delta to field f. Only the owning writer may call Add.
func (b *Bank) Add(f Field, delta uint64) {
	c := &b.cells[f]
	c.Store(c.Load() + delta)
}

// Inc adds one to field f.
func (b *Bank) Inc(f Field) {
	b.Add(f, 1)
}

// Load returns the current value of field f.
func (b *Bank) Load(f Field) uint64 {
	return b.cells[f].Load()
}

// Reset zeroes every field.
func (b *Bank) Reset() {
	for i := range b.cells {
		b.cells[i].Store(0)
	}
}

// Snapshot copies the current values.
func (b *Bank) Snapshot() Values {
	v := make(Values, len(b.cells))
	for i := range b.cells {
		v[i] = b.cells[i].Load()
	}
	return v
}

// AddTo adds the current values into dst without allocating.
func (b *Bank) AddTo(dst Values) {
	for i := range b.cells {
		dst[i] += b.cells[i].Load()
	}
}
