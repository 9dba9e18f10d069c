package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/szibis/lf-telemetry/internal/counter"
	"github.com/szibis/lf-telemetry/internal/peer"
)

func findMetric(families []*dto.MetricFamily, name string, labels map[string]string) *dto.Metric {
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return m
		}
	}
	return nil
}

func TestPrometheusCollector(t *testing.T) {
	c := newTestContext(t, Options{Workers: 2})
	if err := c.ApplyConfig([]peer.Key{peerA, peerC}); err != nil {
		t.Fatal(err)
	}
	c.Worker(0).Add(counter.RxPkts, 5)
	c.Worker(1).Add(counter.RxPkts, 3)
	c.Worker(0).AddPeer(peerC, counter.OutdatedTimestamp, 2)
	c.Worker(1).AddPeer(peerC, counter.OutdatedTimestamp, 9)

	collector := NewPrometheusCollector(c)
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(collector); err != nil {
		t.Fatal(err)
	}

	if got, want := testutil.CollectAndCount(collector, "lf_worker_stats"), 2*counter.WorkerSchema.Len(); got != want {
		t.Errorf("lf_worker_stats series = %d, want %d", got, want)
	}
	if got, want := testutil.CollectAndCount(collector, "lf_peer_stats"), 2*counter.PeerSchema.Len(); got != want {
		t.Errorf("lf_peer_stats series = %d, want %d", got, want)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	m := findMetric(families, "lf_worker_stats", map[string]string{"worker_id": "0", "metric": "rx_pkts"})
	if m == nil || m.GetCounter().GetValue() != 5 {
		t.Errorf("worker 0 rx_pkts = %v", m)
	}
	m = findMetric(families, "lf_peer_stats", map[string]string{
		"isd_as":         "2-ff00:0:220",
		"drkey_protocol": "3",
		"metric":         "outdated_timestamp",
	})
	if m == nil || m.GetCounter().GetValue() != 11 {
		t.Errorf("peer outdated_timestamp = %v", m)
	}
	m = findMetric(families, "lf_peers_tracked", nil)
	if m == nil || m.GetGauge().GetValue() != 2 {
		t.Errorf("lf_peers_tracked = %v", m)
	}
	m = findMetric(families, "lf_workers", nil)
	if m == nil || m.GetGauge().GetValue() != 2 {
		t.Errorf("lf_workers = %v", m)
	}
}

func TestPrometheusCollectorClosedContext(t *testing.T) {
	c := newTestContext(t, Options{Workers: 1})
	collector := NewPrometheusCollector(c)
	c.Close()
	if n := testutil.CollectAndCount(collector); n != 0 {
		t.Errorf("closed context exported %d series", n)
	}
}

func TestConfigApplyMetric(t *testing.T) {
	c := newTestContext(t, Options{Workers: 1, MaxPeers: 1})

	success := testutil.ToFloat64(configApplyTotal.WithLabelValues("success"))
	partial := testutil.ToFloat64(configApplyTotal.WithLabelValues("partial"))

	if err := c.ApplyConfig([]peer.Key{peerA}); err != nil {
		t.Fatal(err)
	}
	if err := c.ApplyConfig([]peer.Key{peerA, peerB}); err == nil {
		t.Fatal("expected partial apply")
	}

	if got := testutil.ToFloat64(configApplyTotal.WithLabelValues("success")) - success; got != 1 {
		t.Errorf("success delta = %v", got)
	}
	if got := testutil.ToFloat64(configApplyTotal.WithLabelValues("partial")) - partial; got != 1 {
		t.Errorf("partial delta = %v", got)
	}
}
