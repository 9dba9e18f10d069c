// Package worker runs the packet workers. Each worker owns one counter bank
// and one peer store of a stats.Context, polls a Source for bursts and
// reports a quiescent state to the reclamation coordinator once per
// iteration, when it holds no peer entries.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/szibis/lf-telemetry/internal/logging"
	"github.com/szibis/lf-telemetry/internal/peer"
	"github.com/szibis/lf-telemetry/internal/placement"
	"github.com/szibis/lf-telemetry/internal/stats"
)

const (
	// DefaultBurstSize is the receive buffer size per worker.
	DefaultBurstSize = 32
	// DefaultIdleWait is how long an idle worker stays offline before it
	// polls again.
	DefaultIdleWait = 100 * time.Microsecond
)

// Config describes a Runner.
type Config struct {
	Stats *stats.Context
	// NewSource returns the packet source of worker id.
	NewSource func(id int) Source
	// BurstSize is the receive buffer size. Zero selects DefaultBurstSize.
	BurstSize int
	// IdleWait is the pause after an empty receive. Zero selects
	// DefaultIdleWait.
	IdleWait time.Duration
	// Untracked, if set, receives the source peers of verdicts that no
	// peer store could attribute.
	Untracked UntrackedRecorder
}

// UntrackedRecorder is implemented by *cardinality.Untracked. AddPeer is
// called from the worker goroutine with that worker's id and must not
// block.
type UntrackedRecorder interface {
	AddPeer(worker int, k peer.Key) bool
}

// Runner drives one goroutine per worker of a stats.Context.
type Runner struct {
	cfg Config
}

// New validates cfg.
func New(cfg Config) (*Runner, error) {
	if cfg.Stats == nil {
		return nil, errors.New("worker: stats context is required")
	}
	if cfg.NewSource == nil {
		return nil, errors.New("worker: source factory is required")
	}
	if cfg.BurstSize < 0 {
		return nil, fmt.Errorf("worker: burst size must not be negative, got %d", cfg.BurstSize)
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	if cfg.IdleWait <= 0 {
		cfg.IdleWait = DefaultIdleWait
	}
	return &Runner{cfg: cfg}, nil
}

// Run starts every worker and blocks until ctx is done or a worker fails
// to start. All workers have gone offline and unregistered when Run
// returns.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for id := 0; id < r.cfg.Stats.Workers(); id++ {
		w := r.cfg.Stats.Worker(id)
		src := r.cfg.NewSource(id)
		g.Go(func() error {
			return r.runWorker(ctx, w, src)
		})
	}
	return g.Wait()
}

func (r *Runner) runWorker(ctx context.Context, w *stats.Worker, src Source) error {
	id := w.ID()
	if cpu := w.CPU(); cpu != placement.NoCPU {
		restore, err := placement.PinCurrentThread(cpu)
		if err != nil {
			logging.Warn("worker not pinned", logging.F(
				"component", "worker",
				"worker", id,
				"cpu", cpu,
				"error", err.Error(),
			))
		}
		defer restore()
	}

	coord := r.cfg.Stats.Coordinator()
	if err := coord.Register(id); err != nil {
		return fmt.Errorf("worker %d: %w", id, err)
	}
	defer func() {
		if err := coord.Unregister(id); err != nil {
			logging.Error("worker unregister failed", logging.F(
				"component", "worker",
				"worker", id,
				"error", err.Error(),
			))
		}
	}()
	coord.Online(id)
	defer coord.Offline(id)

	logging.Debug("worker started", logging.F("component", "worker", "worker", id))
	defer logging.Debug("worker stopped", logging.F("component", "worker", "worker", id))

	buf := make([]Packet, r.cfg.BurstSize)
	idle := time.NewTimer(r.cfg.IdleWait)
	defer idle.Stop()
	for {
		coord.Quiescent(id)
		if ctx.Err() != nil {
			return nil
		}

		n := src.Receive(buf)
		if n <= 0 {
			// Idle workers go offline so reclamation does not wait on them.
			coord.Offline(id)
			idle.Reset(r.cfg.IdleWait)
			select {
			case <-ctx.Done():
				return nil
			case <-idle.C:
			}
			coord.Online(id)
			continue
		}

		w.AddBurst(n)
		for i := 0; i < n; i++ {
			p := &buf[i]
			if !Record(w, p) && p.HasPeer && r.cfg.Untracked != nil {
				r.cfg.Untracked.AddPeer(id, p.Peer)
			}
		}
	}
}
