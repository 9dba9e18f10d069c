// Package stats is the statistics engine: per-worker counter banks, mirrored
// per-worker peer stores and the control-plane operations that configure,
// aggregate and tear them down.
//
// Workers update their own bank and peer entries through a Worker handle
// without synchronization. Everything else runs on the control plane and is
// serialized by the Context's mutation lock. Aggregates are best effort: a
// sum taken while workers run mixes values from slightly different instants
// but never contains a torn counter.
package stats

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/szibis/lf-telemetry/internal/counter"
	"github.com/szibis/lf-telemetry/internal/logging"
	"github.com/szibis/lf-telemetry/internal/peer"
	"github.com/szibis/lf-telemetry/internal/peerstore"
	"github.com/szibis/lf-telemetry/internal/placement"
	"github.com/szibis/lf-telemetry/internal/qsbr"
)

// DefaultPeerStoreSize is the initial capacity of each worker's peer store.
const DefaultPeerStoreSize = 1024

var (
	ErrWorkerOutOfRange = errors.New("worker id out of range")
	ErrPeerNotFound     = errors.New("peer not tracked by every worker")
	ErrClosed           = errors.New("statistics closed")
	ErrNotMirrored      = errors.New("worker peer stores differ")
)

// Options configures a Context.
type Options struct {
	// Workers is the number of workers. Must be positive.
	Workers int
	// Placement optionally holds one CPU per worker. Each worker's counters
	// are allocated from a thread pinned to that CPU. -1 means no hint.
	Placement []int
	// Coordinator tracks worker quiescence. If nil a coordinator with one
	// slot per worker is created.
	Coordinator *qsbr.Coordinator
	// PeerStoreSize is the initial size of each peer store. Zero selects
	// DefaultPeerStoreSize.
	PeerStoreSize int
	// MaxPeers caps each peer store. Zero means unbounded.
	MaxPeers int
}

// Context is the statistics root shared by the workers and the control plane.
type Context struct {
	workers []*Worker
	coord   *qsbr.Coordinator

	// mu serializes peer store mutation, aggregation and Close.
	mu        sync.Mutex
	desired   []peer.Key
	divergent bool
	closed    bool
}

// New allocates the per-worker banks and peer stores. On error every
// structure allocated so far is released.
func New(opts Options) (*Context, error) {
	if opts.Workers <= 0 {
		return nil, fmt.Errorf("statistics: worker count must be positive, got %d", opts.Workers)
	}
	if len(opts.Placement) > 0 && len(opts.Placement) != opts.Workers {
		return nil, fmt.Errorf("statistics: %d placement hints for %d workers", len(opts.Placement), opts.Workers)
	}
	coord := opts.Coordinator
	if coord == nil {
		var err error
		if coord, err = qsbr.NewCoordinator(opts.Workers); err != nil {
			return nil, fmt.Errorf("statistics: %w", err)
		}
	}
	if coord.MaxThreads() < opts.Workers {
		return nil, fmt.Errorf("statistics: coordinator has %d slots for %d workers", coord.MaxThreads(), opts.Workers)
	}
	size := opts.PeerStoreSize
	if size == 0 {
		size = DefaultPeerStoreSize
	}

	c := &Context{
		workers: make([]*Worker, 0, opts.Workers),
		coord:   coord,
	}
	for id := 0; id < opts.Workers; id++ {
		cpu := placement.NoCPU
		if len(opts.Placement) > 0 {
			cpu = opts.Placement[id]
		}
		w, err := newWorker(id, cpu, size, opts.MaxPeers, coord)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("statistics: worker %d: %w", id, err)
		}
		c.workers = append(c.workers, w)
	}
	logging.Info("statistics initialized", logging.F(
		"component", "statistics",
		"workers", opts.Workers,
		"peer_store_size", size,
		"max_peers", opts.MaxPeers,
	))
	return c, nil
}

func newWorker(id, cpu, size, maxPeers int, coord *qsbr.Coordinator) (*Worker, error) {
	w := &Worker{id: id, cpu: cpu}
	var err error
	pinErr := placement.OnCPU(cpu, func() {
		w.bank = counter.NewBank(counter.WorkerSchema)
		w.peers, err = peerstore.New(peerstore.Config{
			Worker:      id,
			Size:        size,
			MaxEntries:  maxPeers,
			Coordinator: coord,
		})
	})
	if pinErr != nil {
		logging.Warn("worker placement hint ignored", logging.F(
			"component", "statistics",
			"worker", id,
			"cpu", cpu,
			"error", pinErr.Error(),
		))
	} else if cpu >= 0 {
		logging.Debug("worker counters allocated", logging.F(
			"component", "statistics",
			"worker", id,
			"cpu", cpu,
			"numa_node", placement.NodeOfCPU(cpu),
		))
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Workers returns the number of workers.
func (c *Context) Workers() int { return len(c.workers) }

// Coordinator returns the reclamation coordinator workers report to.
func (c *Context) Coordinator() *qsbr.Coordinator { return c.coord }

// Worker returns the hot-path handle of worker id, or nil if id is out of
// range.
func (c *Context) Worker(id int) *Worker {
	if id < 0 || id >= len(c.workers) {
		return nil
	}
	return c.workers[id]
}

// ApplyConfig makes every worker's peer store track exactly peers. A store
// that fails to insert some keys is logged and left partially updated; the
// remaining stores are still processed and the joined error is returned.
// The context then counts as divergent until a later apply or Reconcile
// succeeds.
func (c *Context) ApplyConfig(peers []peer.Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.desired = slices.Clone(peers)
	return c.applyLocked("apply")
}

// SetMaxPeers changes the per-worker peer cap for later applies.
func (c *Context) SetMaxPeers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.workers {
		w.peers.SetMaxEntries(n)
	}
}

// Reconcile re-applies the last configuration if the previous apply failed.
func (c *Context) Reconcile() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.divergent {
		return nil
	}
	return c.applyLocked("reconcile")
}

func (c *Context) applyLocked(op string) error {
	var errs []error
	for _, w := range c.workers {
		if err := w.peers.Apply(c.desired); err != nil {
			errs = append(errs, err)
		}
	}
	released := c.reclaimLocked()

	c.divergent = len(errs) > 0
	if c.divergent {
		configApplyTotal.WithLabelValues("partial").Inc()
		err := errors.Join(errs...)
		logging.Error("peer configuration partially applied", logging.F(
			"component", "statistics",
			"operation", op,
			"peers", len(c.desired),
			"failed_workers", len(errs),
			"error", err.Error(),
		))
		return err
	}
	configApplyTotal.WithLabelValues("success").Inc()
	logging.Info("peer configuration applied", logging.F(
		"component", "statistics",
		"operation", op,
		"peers", len(c.desired),
		"reclaimed", released,
	))
	return nil
}

// Divergent reports whether the last apply left the stores incomplete.
func (c *Context) Divergent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.divergent
}

// Reclaim releases removed peer entries that no worker can still reference.
// It never waits for workers.
func (c *Context) Reclaim() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	return c.reclaimLocked()
}

func (c *Context) reclaimLocked() int {
	n := 0
	for _, w := range c.workers {
		n += w.peers.Reclaim()
	}
	if n > 0 {
		reclaimedEntriesTotal.Add(float64(n))
	}
	return n
}

// Pending returns the number of removed entries awaiting reclamation.
func (c *Context) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.workers {
		n += w.peers.Pending()
	}
	return n
}

// AggregateWorker sums the worker counters of all workers.
func (c *Context) AggregateWorker() (counter.Values, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	total := counter.WorkerSchema.Zero()
	for _, w := range c.workers {
		w.bank.AddTo(total)
	}
	return total, nil
}

// WorkerSnapshot returns the counters of worker id.
func (c *Context) WorkerSnapshot(id int) (counter.Values, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if id < 0 || id >= len(c.workers) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrWorkerOutOfRange, id, len(c.workers))
	}
	return c.workers[id].bank.Snapshot(), nil
}

// WorkerSnapshots returns the counters of every worker, indexed by id.
func (c *Context) WorkerSnapshots() ([]counter.Values, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	out := make([]counter.Values, len(c.workers))
	for i, w := range c.workers {
		out[i] = w.bank.Snapshot()
	}
	return out, nil
}

// AggregatePeers sums the counters of every tracked peer over all workers.
func (c *Context) AggregatePeers() (counter.Values, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	total := counter.PeerSchema.Zero()
	for _, w := range c.workers {
		w.peers.Range(func(_ peer.Key, e *peerstore.Entry) bool {
			e.AddTo(total)
			return true
		})
	}
	return total, nil
}

// PeerSnapshot sums one peer's counters over all workers. Once a
// configuration has been applied every worker tracks the same peers, so a
// miss in any worker is reported as ErrPeerNotFound.
func (c *Context) PeerSnapshot(k peer.Key) (counter.Values, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.peerSnapshotLocked(k)
}

func (c *Context) peerSnapshotLocked(k peer.Key) (counter.Values, error) {
	total := counter.PeerSchema.Zero()
	for _, w := range c.workers {
		e, ok := w.peers.Lookup(k)
		if !ok {
			return nil, fmt.Errorf("%w: %s (worker %d)", ErrPeerNotFound, k, w.id)
		}
		e.AddTo(total)
	}
	return total, nil
}

// PeerStats is one peer's counters summed over all workers.
type PeerStats struct {
	Key    peer.Key
	Values counter.Values
}

// PeerSnapshots returns the summed counters of every peer listed by
// ListPeers. Peers missing from some worker are skipped.
func (c *Context) PeerSnapshots() ([]PeerStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	keys := c.workers[0].peers.Keys()
	out := make([]PeerStats, 0, len(keys))
	for _, k := range keys {
		v, err := c.peerSnapshotLocked(k)
		if err != nil {
			continue
		}
		out = append(out, PeerStats{Key: k, Values: v})
	}
	return out, nil
}

// ListPeers returns the peers tracked by worker 0 in ascending order. All
// workers track the same peers once a configuration apply has succeeded;
// see CheckMirrored.
func (c *Context) ListPeers() ([]peer.Key, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.workers[0].peers.Keys(), nil
}

// CheckMirrored verifies that every worker tracks the same peers.
func (c *Context) CheckMirrored() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	ref := c.workers[0].peers.Keys()
	for _, w := range c.workers[1:] {
		if keys := w.peers.Keys(); !slices.Equal(keys, ref) {
			return fmt.Errorf("%w: worker %d tracks %d peers, worker 0 tracks %d",
				ErrNotMirrored, w.id, len(keys), len(ref))
		}
	}
	return nil
}

// Close releases all peer entries. Workers must have stopped. Calling Close
// again is a no-op.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, w := range c.workers {
		if w.peers != nil {
			w.peers.Close()
		}
	}
	logging.Info("statistics closed", logging.F("component", "statistics"))
}
