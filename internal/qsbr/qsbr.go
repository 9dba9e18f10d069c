// Package qsbr implements quiescent-state based reclamation.
//
// Reader threads (packet workers) report a quiescent state whenever they hold
// no references into shared structures, typically once per loop iteration.
// A writer that unlinks an element calls Start to obtain a token and may
// reuse or release the element once Check(token) reports that every online
// reader has passed a quiescent state since.
//
// Readers pay one atomic load and one atomic store per report. Writers are
// expected to be rare (configuration changes), so Check is a linear scan.
package qsbr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrThreadID is returned for thread ids outside the coordinator's range.
var ErrThreadID = errors.New("qsbr: thread id out of range")

// Token is a reclamation generation.
type Token uint64

// offline marks a thread that must not be waited for.
const offline = 0

// threadState is padded to a cache line so reports from different workers
// do not contend.
type threadState struct {
	cnt atomic.Uint64
	_   [56]byte
}

// Coordinator tracks the quiescent generation of up to maxThreads readers.
// It can be shared by several subsystems.
type Coordinator struct {
	token   atomic.Uint64
	threads []threadState

	mu         sync.Mutex
	registered []bool
}

// NewCoordinator creates a coordinator for thread ids [0, maxThreads).
func NewCoordinator(maxThreads int) (*Coordinator, error) {
	if maxThreads <= 0 {
		return nil, fmt.Errorf("qsbr: max threads must be positive, got %d", maxThreads)
	}
	c := &Coordinator{
		threads:    make([]threadState, maxThreads),
		registered: make([]bool, maxThreads),
	}
	// Token 0 is reserved for the offline state.
	c.token.Store(1)
	return c, nil
}

// MaxThreads returns the number of thread slots.
func (c *Coordinator) MaxThreads() int { return len(c.threads) }

func (c *Coordinator) check(id int) error {
	if id < 0 || id >= len(c.threads) {
		return fmt.Errorf("%w: %d (max %d)", ErrThreadID, id, len(c.threads))
	}
	return nil
}

// Register claims a thread slot. A registered thread starts offline.
func (c *Coordinator) Register(id int) error {
	if err := c.check(id); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registered[id] {
		return fmt.Errorf("qsbr: thread %d already registered", id)
	}
	c.registered[id] = true
	c.threads[id].cnt.Store(offline)
	return nil
}

// Unregister releases a thread slot. The thread is taken offline first.
func (c *Coordinator) Unregister(id int) error {
	if err := c.check(id); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.registered[id] {
		return fmt.Errorf("qsbr: thread %d not registered", id)
	}
	c.threads[id].cnt.Store(offline)
	c.registered[id] = false
	return nil
}

// Online starts tracking thread id. The thread must not hold references
// obtained while it was offline.
func (c *Coordinator) Online(id int) {
	c.threads[id].cnt.Store(c.token.Load())
}

// Offline stops tracking thread id, e.g. before it blocks for a long time.
func (c *Coordinator) Offline(id int) {
	c.threads[id].cnt.Store(offline)
}

// Quiescent reports that thread id holds no references into protected
// structures. It is safe to call on the hot path.
func (c *Coordinator) Quiescent(id int) {
	t := &c.threads[id].cnt
	if t.Load() == offline {
		return
	}
	t.Store(c.token.Load())
}

// Start begins a new generation and returns its token. Elements unlinked
// before Start may be reclaimed once Check returns true for the token.
func (c *Coordinator) Start() Token {
	return Token(c.token.Add(1))
}

// Check reports whether every online thread has passed a quiescent state at
// or after generation t. Offline threads are ignored.
func (c *Coordinator) Check(t Token) bool {
	for i := range c.threads {
		cnt := c.threads[i].cnt.Load()
		if cnt != offline && cnt < uint64(t) {
			return false
		}
	}
	return true
}

// Synchronize waits until Check(t) is true or ctx is done. It must not be
// called from a registered online thread.
func (c *Coordinator) Synchronize(ctx context.Context, t Token) error {
	backoff := 10 * time.Microsecond
	for !c.Check(t) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 10*time.Millisecond {
			backoff *= 2
		}
	}
	return nil
}

// OnlineCount returns the number of threads currently online.
func (c *Coordinator) OnlineCount() int {
	n := 0
	for i := range c.threads {
		if c.threads[i].cnt.Load() != offline {
			n++
		}
	}
	return n
}
