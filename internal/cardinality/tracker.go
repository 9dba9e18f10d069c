package cardinality

import (
	"sync"

	"github.com/axiomhq/hyperloglog"
	"github.com/bits-and-blooms/bloom/v3"
)

// Tracker counts distinct keys. Implementations are safe for concurrent
// use.
type Tracker interface {
	// Add records key and reports whether it was new. Trackers that cannot
	// test membership always return false.
	Add(key []byte) bool
	// Count returns the number of distinct keys since the last Reset.
	Count() int64
	// Reset starts a new window.
	Reset()
	// MemoryUsage returns the approximate footprint in bytes.
	MemoryUsage() uint64
}

// New returns the tracker for cfg.Mode, or nil for ModeOff.
func New(cfg Config) Tracker {
	switch cfg.Mode {
	case ModeBloom:
		return NewBloomTracker(cfg.ExpectedItems, cfg.FalsePositiveRate)
	case ModeExact:
		return NewExactTracker()
	case ModeOff:
		return nil
	default:
		return NewHLLTracker()
	}
}

// HLLTracker estimates cardinality with a HyperLogLog sketch.
type HLLTracker struct {
	mu     sync.Mutex
	sketch *hyperloglog.Sketch
}

func NewHLLTracker() *HLLTracker {
	return &HLLTracker{sketch: hyperloglog.New()}
}

func (t *HLLTracker) Add(key []byte) bool {
	t.mu.Lock()
	t.sketch.Insert(key)
	t.mu.Unlock()
	return false
}

// Count takes the full lock: Estimate may merge the sparse list.
func (t *HLLTracker) Count() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(t.sketch.Estimate())
}

func (t *HLLTracker) Reset() {
	t.mu.Lock()
	t.sketch = hyperloglog.New()
	t.mu.Unlock()
}

// MemoryUsage is fixed for precision 14.
func (t *HLLTracker) MemoryUsage() uint64 { return 1 << 14 }

// BloomTracker counts first sightings through a Bloom filter.
type BloomTracker struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	count  int64
}

func NewBloomTracker(expectedItems uint, falsePositiveRate float64) *BloomTracker {
	return &BloomTracker{filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate)}
}

func (t *BloomTracker) Add(key []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.filter.Test(key) {
		return false
	}
	t.filter.Add(key)
	t.count++
	return true
}

func (t *BloomTracker) Count() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

func (t *BloomTracker) Reset() {
	t.mu.Lock()
	t.filter.ClearAll()
	t.count = 0
	t.mu.Unlock()
}

func (t *BloomTracker) MemoryUsage() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return uint64(t.filter.Cap()) / 8
}

// ExactTracker keeps every key in a map.
type ExactTracker struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

func NewExactTracker() *ExactTracker {
	return &ExactTracker{items: make(map[string]struct{})}
}

func (t *ExactTracker) Add(key []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.items[string(key)]; ok {
		return false
	}
	t.items[string(key)] = struct{}{}
	return true
}

func (t *ExactTracker) Count() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return int64(len(t.items))
}

func (t *ExactTracker) Reset() {
	t.mu.Lock()
	t.items = make(map[string]struct{})
	t.mu.Unlock()
}

// MemoryUsage assumes 64 bytes per entry for the key and map overhead.
func (t *ExactTracker) MemoryUsage() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return uint64(len(t.items)) * 64
}
