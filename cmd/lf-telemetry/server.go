package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	"github.com/szibis/lf-telemetry/internal/auth"
	"github.com/szibis/lf-telemetry/internal/cardinality"
	"github.com/szibis/lf-telemetry/internal/command"
	"github.com/szibis/lf-telemetry/internal/health"
	"github.com/szibis/lf-telemetry/internal/logging"
	"github.com/szibis/lf-telemetry/internal/stats"
)

// newRegistry exposes c and, when tracking is on, the untracked peer counts.
func newRegistry(c *stats.Context, untracked *cardinality.Untracked) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(stats.NewPrometheusCollector(c))
	if untracked != nil {
		reg.MustRegister(cardinality.NewCollector(untracked))
	}
	return reg
}

// gatherers merges reg with the default registry, which carries the Go and
// process collectors and the package-level counters.
func gatherers(reg *prometheus.Registry) prometheus.Gatherer {
	return prometheus.Gatherers{reg, prometheus.DefaultGatherer}
}

// newMux routes the endpoints. Credentials in authCfg guard /metrics and
// /telemetry; the probes stay open.
func newMux(g prometheus.Gatherer, cmds *command.Registry, checker *health.Checker, authCfg auth.ServerConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", auth.HTTPMiddleware(authCfg, promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	mux.Handle("/telemetry", auth.HTTPMiddleware(authCfg, cmds.HTTPHandler()))
	mux.HandleFunc("/live", checker.LiveHandler())
	mux.HandleFunc("/ready", checker.ReadyHandler())
	return mux
}

// listen opens addr, capped at maxConns concurrent connections when
// maxConns is positive.
func listen(addr string, maxConns int) (net.Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		l = netutil.LimitListener(l, maxConns)
	}
	return l, nil
}

// serve runs srv on l until ctx is done, then shuts it down gracefully.
// A non-nil srv.TLSConfig serves HTTPS.
func serve(ctx context.Context, srv *http.Server, l net.Listener, grace time.Duration) error {
	errc := make(chan error, 1)
	go func() {
		logging.Info("stats endpoint started", logging.F(
			"component", "server",
			"addr", l.Addr().String(),
			"tls", srv.TLSConfig != nil,
		))
		if srv.TLSConfig != nil {
			errc <- srv.ServeTLS(l, "", "")
			return
		}
		errc <- srv.Serve(l)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
