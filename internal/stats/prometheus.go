package stats

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/szibis/lf-telemetry/internal/counter"
	"github.com/szibis/lf-telemetry/internal/peer"
)

var (
	configApplyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lf_config_apply_total",
		Help: "Peer configuration applies by result (success, partial)",
	}, []string{"result"})

	reclaimedEntriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lf_reclaimed_entries_total",
		Help: "Removed peer counter entries released after worker quiescence",
	})
)

func init() {
	prometheus.MustRegister(configApplyTotal, reclaimedEntriesTotal)
}

var (
	workerStatsDesc = prometheus.NewDesc(
		"lf_worker_stats",
		"Worker counters by worker and counter name",
		[]string{"worker_id", "metric"}, nil,
	)
	peerStatsDesc = prometheus.NewDesc(
		"lf_peer_stats",
		"Peer counters summed over workers, by peer and counter name",
		[]string{"isd_as", "drkey_protocol", "metric"}, nil,
	)
	peersTrackedDesc = prometheus.NewDesc(
		"lf_peers_tracked",
		"Number of peers tracked by every worker",
		nil, nil,
	)
	reclaimPendingDesc = prometheus.NewDesc(
		"lf_reclaim_pending",
		"Removed peer entries waiting for worker quiescence",
		nil, nil,
	)
	workersDesc = prometheus.NewDesc(
		"lf_workers",
		"Number of workers",
		nil, nil,
	)
)

// PrometheusCollector exposes a Context's counters. Each scrape takes the
// context's mutation lock for the duration of the snapshot.
type PrometheusCollector struct {
	c *Context
}

// NewPrometheusCollector returns a collector for c.
func NewPrometheusCollector(c *Context) *PrometheusCollector {
	return &PrometheusCollector{c: c}
}

// Describe implements prometheus.Collector.
func (p *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- workerStatsDesc
	ch <- peerStatsDesc
	ch <- peersTrackedDesc
	ch <- reclaimPendingDesc
	ch <- workersDesc
}

// Collect implements prometheus.Collector. A closed context yields nothing.
func (p *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	workers, err := p.c.WorkerSnapshots()
	if err != nil {
		return
	}
	for id, v := range workers {
		wid := strconv.Itoa(id)
		for _, nv := range counter.WorkerSchema.Export(v) {
			ch <- prometheus.MustNewConstMetric(workerStatsDesc, prometheus.CounterValue,
				float64(nv.Value), wid, nv.Name)
		}
	}

	peers, err := p.c.PeerSnapshots()
	if err != nil {
		return
	}
	for _, ps := range peers {
		ia := peer.FormatISDAS(ps.Key.ISDAS())
		proto := strconv.FormatUint(uint64(ps.Key.Protocol()), 10)
		for _, nv := range counter.PeerSchema.Export(ps.Values) {
			ch <- prometheus.MustNewConstMetric(peerStatsDesc, prometheus.CounterValue,
				float64(nv.Value), ia, proto, nv.Name)
		}
	}

	ch <- prometheus.MustNewConstMetric(peersTrackedDesc, prometheus.GaugeValue, float64(len(peers)))
	ch <- prometheus.MustNewConstMetric(reclaimPendingDesc, prometheus.GaugeValue, float64(p.c.Pending()))
	ch <- prometheus.MustNewConstMetric(workersDesc, prometheus.GaugeValue, float64(p.c.Workers()))
}
