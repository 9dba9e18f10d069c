package stats

import (
	"github.com/szibis/lf-telemetry/internal/counter"
	"github.com/szibis/lf-telemetry/internal/peer"
	"github.com/szibis/lf-telemetry/internal/peerstore"
)

// Worker is the hot-path handle of one worker. Its methods never block and
// never take the context's mutation lock. Only the owning worker goroutine
// may call the update methods.
type Worker struct {
	id    int
	cpu   int
	bank  *counter.Bank
	peers *peerstore.Store
}

// ID returns the worker index.
func (w *Worker) ID() int { return w.id }

// CPU returns the placement hint the worker was created with, or -1.
func (w *Worker) CPU() int { return w.cpu }

// Add increments a worker counter field by delta.
func (w *Worker) Add(f counter.Field, delta uint64) { w.bank.Add(f, delta) }

// Inc increments a worker counter field by one.
func (w *Worker) Inc(f counter.Field) { w.bank.Inc(f) }

// AddBurst records the size of one received burst in the burst histogram.
// Empty bursts are not recorded.
func (w *Worker) AddBurst(n int) {
	if n <= 0 {
		return
	}
	w.bank.Inc(counter.BurstField(n))
}

// PeerCounter looks up the peer's counter entry without locking. The entry
// may be used until the worker's next quiescent report.
func (w *Worker) PeerCounter(k peer.Key) (*peerstore.Entry, bool) {
	return w.peers.Lookup(k)
}

// AddPeer increments a peer counter field. Unknown peers are skipped and
// reported with false.
func (w *Worker) AddPeer(k peer.Key, f counter.Field, delta uint64) bool {
	e, ok := w.peers.Lookup(k)
	if !ok {
		return false
	}
	e.Add(f, delta)
	return true
}

// Snapshot returns a copy of the worker counters.
func (w *Worker) Snapshot() counter.Values { return w.bank.Snapshot() }

// Reset zeroes the worker counters. Only the owning worker may call it.
func (w *Worker) Reset() { w.bank.Reset() }
