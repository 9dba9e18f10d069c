package cardinality

import "github.com/prometheus/client_golang/prometheus"

var (
	untrackedPeersDesc = prometheus.NewDesc(
		"lf_untracked_peers",
		"Distinct untracked peers seen in the open window (estimated in hll mode)",
		nil, nil,
	)
	untrackedPeersLastDesc = prometheus.NewDesc(
		"lf_untracked_peers_last_window",
		"Distinct untracked peers seen in the last closed window",
		nil, nil,
	)
	droppedDesc = prometheus.NewDesc(
		"lf_untracked_dropped_total",
		"Untracked peer keys dropped because a worker queue was full",
		nil, nil,
	)
	trackerBytesDesc = prometheus.NewDesc(
		"lf_untracked_tracker_bytes",
		"Approximate memory held by the untracked peer tracker",
		[]string{"mode"}, nil,
	)
)

// Collector exposes an Untracked.
type Collector struct {
	u *Untracked
}

func NewCollector(u *Untracked) *Collector { return &Collector{u: u} }

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- untrackedPeersDesc
	ch <- untrackedPeersLastDesc
	ch <- droppedDesc
	ch <- trackerBytesDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(untrackedPeersDesc, prometheus.GaugeValue, float64(c.u.Current()))
	ch <- prometheus.MustNewConstMetric(untrackedPeersLastDesc, prometheus.GaugeValue, float64(c.u.Previous()))
	ch <- prometheus.MustNewConstMetric(droppedDesc, prometheus.CounterValue, float64(c.u.Dropped()))
	ch <- prometheus.MustNewConstMetric(trackerBytesDesc, prometheus.GaugeValue, float64(c.u.MemoryUsage()), c.u.Mode().String())
}
