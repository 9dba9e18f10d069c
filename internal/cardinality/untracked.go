package cardinality

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/szibis/lf-telemetry/internal/logging"
	"github.com/szibis/lf-telemetry/internal/peer"
)

const (
	// maxLoggedPerWindow bounds the "untracked peer" log lines per window.
	maxLoggedPerWindow = 10
	// ringSize is the per-worker queue length; a power of two.
	ringSize = 1024
	// drainInterval is how often Run empties the worker queues between
	// window rotations.
	drainInterval = 100 * time.Millisecond
)

// ring is a single-producer single-consumer queue of peer keys. The owning
// worker pushes; the consumer side is serialized by Untracked.mu.
type ring struct {
	head atomic.Uint64 // next slot to consume
	tail atomic.Uint64 // next slot to fill
	buf  [ringSize]peer.Key

	// Producer only: the last key pushed and the window it was pushed in.
	last    peer.Key
	lastGen uint64
	hasLast bool

	_ [64]byte
}

func (r *ring) push(k peer.Key, gen uint64) bool {
	if r.hasLast && r.last == k && r.lastGen == gen {
		return true
	}
	t := r.tail.Load()
	if t-r.head.Load() >= ringSize {
		return false
	}
	r.buf[t&(ringSize-1)] = k
	r.tail.Store(t + 1)
	r.last, r.lastGen, r.hasLast = k, gen, true
	return true
}

func (r *ring) drain(fn func(peer.Key)) int {
	h, t := r.head.Load(), r.tail.Load()
	for i := h; i < t; i++ {
		fn(r.buf[i&(ringSize-1)])
	}
	r.head.Store(t)
	return int(t - h)
}

// Untracked counts untracked peers over rotating windows. Workers only
// queue keys with AddPeer; the tracker is fed, and new peers are logged,
// when the queues are drained by Drain, Current, Rotate or Run.
type Untracked struct {
	cfg   Config
	rings []ring

	// gen changes on every rotation so workers queue a repeated peer once
	// per window.
	gen      atomic.Uint64
	dropped  atomic.Uint64
	previous atomic.Int64

	mu      sync.Mutex
	tracker Tracker
	logged  map[peer.Key]struct{}
}

// NewUntracked returns nil when cfg.Mode is ModeOff. A nil *Untracked
// ignores AddPeer and reports zero counts.
func NewUntracked(cfg Config) *Untracked {
	t := New(cfg)
	if t == nil {
		return nil
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Untracked{
		cfg:     cfg,
		rings:   make([]ring, cfg.Workers),
		tracker: t,
		logged:  make(map[peer.Key]struct{}, maxLoggedPerWindow),
	}
}

// AddPeer queues k from worker. Each worker must pass its own index and
// call from one goroutine at a time. It never blocks; it returns false when
// the key was dropped because the worker's queue is full or worker is out
// of range.
func (u *Untracked) AddPeer(worker int, k peer.Key) bool {
	if u == nil {
		return false
	}
	if worker < 0 || worker >= len(u.rings) || !u.rings[worker].push(k, u.gen.Load()) {
		u.dropped.Add(1)
		return false
	}
	return true
}

// Drain moves the queued keys into the tracker and returns how many were
// taken. The first peers of each window are logged.
func (u *Untracked) Drain() int {
	if u == nil {
		return 0
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.drainLocked()
}

func (u *Untracked) drainLocked() int {
	var buf [peer.Size]byte
	n := 0
	for i := range u.rings {
		n += u.rings[i].drain(func(k peer.Key) {
			u.tracker.Add(k.AppendBytes(buf[:0]))
			u.noteLocked(k)
		})
	}
	return n
}

// noteLocked logs k if it is among the first distinct peers of the window.
// Membership is kept here so every mode logs, including hll.
func (u *Untracked) noteLocked(k peer.Key) {
	if len(u.logged) >= maxLoggedPerWindow {
		return
	}
	if _, ok := u.logged[k]; ok {
		return
	}
	u.logged[k] = struct{}{}
	logging.Info("untracked peer", logging.F(
		"component", "cardinality",
		"peer", k.String(),
	))
}

// Rotate closes the current window and returns its count. Peers queued
// while the window closes may land in either window.
func (u *Untracked) Rotate() int64 {
	if u == nil {
		return 0
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.drainLocked()
	n := u.tracker.Count()
	u.tracker.Reset()
	clear(u.logged)
	u.gen.Add(1)
	u.previous.Store(n)
	return n
}

// Current drains the queues and returns the count of the open window.
func (u *Untracked) Current() int64 {
	if u == nil {
		return 0
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.drainLocked()
	return u.tracker.Count()
}

// Previous returns the count of the last closed window.
func (u *Untracked) Previous() int64 {
	if u == nil {
		return 0
	}
	return u.previous.Load()
}

// Dropped returns the number of keys lost to full worker queues.
func (u *Untracked) Dropped() uint64 {
	if u == nil {
		return 0
	}
	return u.dropped.Load()
}

func (u *Untracked) Mode() Mode {
	if u == nil {
		return ModeOff
	}
	return u.cfg.Mode
}

func (u *Untracked) Window() time.Duration {
	if u == nil {
		return 0
	}
	return u.cfg.Window
}

// MemoryUsage covers the tracker and the worker queues.
func (u *Untracked) MemoryUsage() uint64 {
	if u == nil {
		return 0
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tracker.MemoryUsage() + uint64(len(u.rings))*ringSize*peer.Size
}

// Run drains the worker queues and rotates the window until ctx is done.
func (u *Untracked) Run(ctx context.Context) {
	if u == nil {
		return
	}
	drain := time.NewTicker(min(drainInterval, u.cfg.Window))
	defer drain.Stop()
	window := time.NewTicker(u.cfg.Window)
	defer window.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-drain.C:
			u.Drain()
		case <-window.C:
			if n := u.Rotate(); n > 0 {
				logging.Warn("traffic from untracked peers", logging.F(
					"component", "cardinality",
					"peers", n,
					"window", u.cfg.Window.String(),
					"mode", u.cfg.Mode.String(),
					"dropped", u.Dropped(),
				))
			}
		}
	}
}
