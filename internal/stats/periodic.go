package stats

import (
	"context"
	"time"

	"github.com/szibis/lf-telemetry/internal/counter"
	"github.com/szibis/lf-telemetry/internal/logging"
)

// StartMaintenance runs until ctx is done. Every reclaimInterval it releases
// quiesced peer entries and retries a divergent configuration; every
// logInterval it logs a traffic summary. A non-positive interval disables
// that task.
func (c *Context) StartMaintenance(ctx context.Context, reclaimInterval, logInterval time.Duration) {
	var reclaimC, logC <-chan time.Time
	if reclaimInterval > 0 {
		t := time.NewTicker(reclaimInterval)
		defer t.Stop()
		reclaimC = t.C
	}
	if logInterval > 0 {
		t := time.NewTicker(logInterval)
		defer t.Stop()
		logC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-reclaimC:
			c.maintain()
		case <-logC:
			c.logSummary()
		}
	}
}

func (c *Context) maintain() {
	if n := c.Reclaim(); n > 0 {
		logging.Debug("reclaimed retired peer counters", logging.F(
			"component", "statistics",
			"released", n,
		))
	}
	if c.Divergent() {
		// Failures are logged by the apply itself.
		_ = c.Reconcile()
	}
}

func (c *Context) logSummary() {
	total, err := c.AggregateWorker()
	if err != nil {
		return
	}
	peers, err := c.ListPeers()
	if err != nil {
		return
	}
	logging.Info("stats", logging.F(
		"component", "statistics",
		"rx_pkts", total.Get(counter.RxPkts),
		"tx_pkts", total.Get(counter.TxPkts),
		"drop_pkts", total.Get(counter.DropPkts),
		"besteffort_pkts", total.Get(counter.BestEffortPkts),
		"peers", len(peers),
		"reclaim_pending", c.Pending(),
	))
}
