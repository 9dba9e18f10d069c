// Package peerstore holds the per-worker peer counter dictionaries.
//
// A Store maps peer keys to counter entries. The owning worker looks entries
// up without locks while the control plane adds and removes keys. Removed
// entries are retired through a qsbr.DeferQueue and only return to the
// store's free list once every online worker has passed a quiescent state.
package peerstore

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/szibis/lf-telemetry/internal/counter"
	"github.com/szibis/lf-telemetry/internal/logging"
	"github.com/szibis/lf-telemetry/internal/peer"
	"github.com/szibis/lf-telemetry/internal/qsbr"
)

// MinSize is the smallest accepted initial table size.
const MinSize = 8

var (
	ErrSizeTooSmall = fmt.Errorf("peer store size must be at least %d", MinSize)
	ErrStoreFull    = errors.New("peer store full")
	ErrPartialApply = errors.New("peer configuration partially applied")
	ErrClosed       = errors.New("peer store closed")
)

var storeSeq atomic.Uint64

// Entry is a peer's counter bank. The owner key is set while the entry is
// indexed and cleared when it is released, so a reader that observes a
// foreign or empty owner has outlived the entry's reclamation.
type Entry struct {
	*counter.Bank
	owner atomic.Pointer[peer.Key]
}

// Owner returns the key the entry currently belongs to.
func (e *Entry) Owner() (peer.Key, bool) {
	k := e.owner.Load()
	if k == nil {
		return peer.Key{}, false
	}
	return *k, true
}

// Config describes a store.
type Config struct {
	// Worker is the owning worker index, used for logging.
	Worker int
	// Size is the initial capacity hint. Values below MinSize are rejected.
	Size int
	// MaxEntries caps the number of indexed keys; 0 means unbounded.
	MaxEntries int
	// Coordinator gates the release of removed entries.
	Coordinator *qsbr.Coordinator
}

// Store is one worker's peer dictionary.
type Store struct {
	name       string
	worker     int
	maxEntries int

	index   *xsync.MapOf[peer.Key, *Entry]
	retired *qsbr.DeferQueue[*Entry]

	// mu serializes structural changes; Lookup never takes it.
	mu     sync.Mutex
	free   []*Entry
	closed bool
}

// New creates an empty store.
func New(cfg Config) (*Store, error) {
	if cfg.Size < MinSize {
		return nil, fmt.Errorf("%w: got %d", ErrSizeTooSmall, cfg.Size)
	}
	if cfg.Coordinator == nil {
		return nil, errors.New("peer store requires a reclamation coordinator")
	}
	if cfg.MaxEntries < 0 {
		return nil, fmt.Errorf("peer store max entries must not be negative, got %d", cfg.MaxEntries)
	}
	s := &Store{
		name:       fmt.Sprintf("lf_s_d%d-%s", storeSeq.Add(1), uuid.NewString()),
		worker:     cfg.Worker,
		maxEntries: cfg.MaxEntries,
		index:      xsync.NewMapOf[peer.Key, *Entry](xsync.WithPresize(cfg.Size)),
	}
	s.retired = qsbr.NewDeferQueue(cfg.Coordinator, s.release)
	return s, nil
}

// Name returns the store's process-unique name.
func (s *Store) Name() string { return s.name }

// Lookup returns the entry for key. It is safe to call from the owning worker
// concurrently with Apply; the entry stays valid until the worker's next
// quiescent report.
func (s *Store) Lookup(key peer.Key) (*Entry, bool) {
	return s.index.Load(key)
}

// Len returns the number of indexed keys.
func (s *Store) Len() int { return s.index.Size() }

// Pending returns the number of removed entries waiting for reclamation.
func (s *Store) Pending() int { return s.retired.Len() }

// Keys returns the indexed keys in ascending order.
func (s *Store) Keys() []peer.Key {
	keys := make([]peer.Key, 0, s.index.Size())
	s.index.Range(func(k peer.Key, _ *Entry) bool {
		keys = append(keys, k)
		return true
	})
	slices.SortFunc(keys, peer.Key.Compare)
	return keys
}

// Range calls fn for every indexed entry until fn returns false.
func (s *Store) Range(fn func(peer.Key, *Entry) bool) {
	s.index.Range(fn)
}

// Apply makes the store's membership equal to desired. Stale keys are
// unlinked first and retired; missing keys are inserted with zeroed counters.
// A key that cannot be inserted is logged and skipped, and the returned error
// wraps ErrPartialApply. Changes already made are kept.
func (s *Store) Apply(desired []peer.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	want := make(map[peer.Key]struct{}, len(desired))
	for _, k := range desired {
		want[k] = struct{}{}
	}

	var stale []peer.Key
	s.index.Range(func(k peer.Key, _ *Entry) bool {
		if _, ok := want[k]; !ok {
			stale = append(stale, k)
		}
		return true
	})
	for _, k := range stale {
		if e, ok := s.index.LoadAndDelete(k); ok {
			s.retired.Enqueue(e)
		}
	}

	var errs []error
	for _, k := range desired {
		if _, ok := s.index.Load(k); ok {
			continue
		}
		if s.maxEntries > 0 && s.index.Size() >= s.maxEntries {
			err := fmt.Errorf("%s: %w (max %d)", k, ErrStoreFull, s.maxEntries)
			logging.Warn("peer counter not added", logging.F(
				"component", "statistics",
				"store", s.name,
				"worker", s.worker,
				"peer", k.String(),
				"error", err.Error(),
			))
			errs = append(errs, err)
			continue
		}
		s.index.Store(k, s.alloc(k))
	}

	if len(errs) > 0 {
		return fmt.Errorf("worker %d: %w: %w", s.worker, ErrPartialApply, errors.Join(errs...))
	}
	return nil
}

// SetMaxEntries changes the cap used by later applies. Entries beyond a
// lowered cap are kept.
func (s *Store) SetMaxEntries(n int) {
	if n < 0 {
		n = 0
	}
	s.mu.Lock()
	s.maxEntries = n
	s.mu.Unlock()
}

// Reclaim releases retired entries that no online worker can still hold.
func (s *Store) Reclaim() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retired.Reclaim()
}

// Close releases every entry. Workers must have stopped. Calling Close more
// than once is a no-op.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.index.Range(func(k peer.Key, e *Entry) bool {
		s.index.Delete(k)
		s.release(e)
		return true
	})
	s.retired.Drain()
	s.free = nil
}

// alloc takes an entry from the free list or creates one. Called with mu held.
func (s *Store) alloc(k peer.Key) *Entry {
	var e *Entry
	if n := len(s.free); n > 0 {
		e = s.free[n-1]
		s.free[n-1] = nil
		s.free = s.free[:n-1]
	} else {
		e = &Entry{Bank: counter.NewBank(counter.PeerSchema)}
	}
	owner := k
	e.owner.Store(&owner)
	return e
}

// release resets e and returns it to the free list. Called with mu held,
// either directly or from the defer queue.
func (s *Store) release(e *Entry) {
	e.owner.Store(nil)
	e.Reset()
	if !s.closed {
		s.free = append(s.free, e)
	}
}
