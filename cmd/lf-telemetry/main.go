package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"golang.org/x/sync/errgroup"

	"github.com/szibis/lf-telemetry/internal/buildinfo"
	"github.com/szibis/lf-telemetry/internal/cardinality"
	"github.com/szibis/lf-telemetry/internal/command"
	"github.com/szibis/lf-telemetry/internal/config"
	"github.com/szibis/lf-telemetry/internal/health"
	"github.com/szibis/lf-telemetry/internal/logging"
	"github.com/szibis/lf-telemetry/internal/stats"
	"github.com/szibis/lf-telemetry/internal/telemetry"
	lftls "github.com/szibis/lf-telemetry/internal/tls"
	"github.com/szibis/lf-telemetry/internal/worker"
)

const serviceName = "lf-telemetry"

func main() {
	cfg, err := config.ParseFlags(serviceName, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		config.PrintUsage(os.Stderr, serviceName)
		os.Exit(2)
	}
	if cfg.ShowHelp {
		config.PrintUsage(os.Stdout, serviceName)
		os.Exit(0)
	}
	info := buildinfo.Get()
	if cfg.ShowVersion {
		fmt.Print(info.All())
		os.Exit(0)
	}
	if cfg.ValidateOnly {
		if cfg.ConfigFile == "" {
			logging.Fatal("-validate requires -config")
		}
		result := config.ValidateFile(cfg.ConfigFile)
		fmt.Println(result.JSON())
		if !result.Valid {
			os.Exit(1)
		}
		os.Exit(0)
	}
	if err := cfg.Validate(); err != nil {
		logging.Fatal("invalid configuration", logging.F("error", err.Error()))
	}

	if err := run(cfg, info); err != nil {
		logging.Fatal("lf-telemetry failed", logging.F("error", err.Error()))
	}
}

func run(cfg *config.Config, info buildinfo.Info) error {
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetResource(map[string]string{
		"service.name":    serviceName,
		"service.version": info.Version,
	})
	setMemoryLimit(cfg.MemoryLimitRatio)

	sc, err := stats.New(cfg.StatsOptions())
	if err != nil {
		return err
	}
	defer sc.Close()
	if err := sc.ApplyConfig(cfg.Peers); err != nil {
		// Maintenance keeps reconciling; readiness reports the gap.
		logging.Warn("initial peer configuration incomplete", logging.F("error", err.Error()))
	}

	untracked := cardinality.NewUntracked(cfg.UntrackedConfig())

	cmds := command.NewRegistry()
	if err := stats.RegisterCommands(cmds, sc, info); err != nil {
		return err
	}
	if untracked != nil {
		if err := cardinality.RegisterCommands(cmds, untracked); err != nil {
			return err
		}
	}

	reg := newRegistry(sc, untracked)
	g := gatherers(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tc := cfg.TelemetryConfig()
	if tc.TLS, err = lftls.NewClientTLSConfig(cfg.TelemetryTLS()); err != nil {
		return fmt.Errorf("telemetry tls: %w", err)
	}
	tel, err := telemetry.Init(ctx, tc, telemetry.Service{
		Name:    serviceName,
		Version: info.Version,
		Workers: cfg.Workers,
	}, g)
	if err != nil {
		return err
	}
	if tel.Enabled() {
		logging.SetHook(tel.NewLogHook())
		logging.Info("OTLP self-telemetry enabled", logging.F(
			"endpoint", cfg.TelemetryEndpoint,
			"protocol", cfg.TelemetryProtocol,
		))
	}
	defer func() {
		logging.SetHook(nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tel.ShutdownTimeout())
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logging.Warn("telemetry shutdown failed", logging.F("error", err.Error()))
		}
	}()

	checker := health.New()
	checker.RegisterReadiness("peer_stores", health.PeerStoresCheck(sc))
	checker.RegisterReadiness("reclaim_backlog", health.ReclaimBacklogCheck(sc, cfg.ReclaimBacklogLimit))

	serverTLS, certs, err := lftls.NewServerTLSConfig(cfg.StatsTLS())
	if err != nil {
		return fmt.Errorf("stats tls: %w", err)
	}
	l, err := listen(cfg.StatsAddr, cfg.StatsMaxConnections)
	if err != nil {
		return fmt.Errorf("stats endpoint: %w", err)
	}
	srv := &http.Server{
		Handler:           newMux(g, cmds, checker, cfg.StatsAuth()),
		TLSConfig:         serverTLS,
		ReadHeaderTimeout: 5 * time.Second,
	}

	peers := worker.NewPeerSet(cfg.Peers)
	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return serve(gctx, srv, l, 5*time.Second) })
	grp.Go(func() error {
		sc.StartMaintenance(gctx, cfg.ReclaimInterval, cfg.StatsLogInterval)
		return nil
	})
	if untracked != nil {
		grp.Go(func() error {
			untracked.Run(gctx)
			return nil
		})
	}
	if cfg.Simulate {
		runner, err := worker.New(worker.Config{
			Stats:     sc,
			BurstSize: cfg.BurstSize,
			Untracked: untracked,
			NewSource: func(id int) worker.Source {
				return worker.NewSyntheticSource(worker.SyntheticConfig{
					Seed:             cfg.SimulateSeed + uint64(id),
					Peers:            peers,
					MaxBurst:         cfg.BurstSize,
					Interval:         cfg.SimulateInterval,
					UnknownPeerRatio: cfg.SimulateUnknownPeerRatio,
				})
			},
		})
		if err != nil {
			return err
		}
		grp.Go(func() error { return runner.Run(gctx) })
	}
	grp.Go(func() error {
		return handleSignals(gctx, cancel, cfg, sc, peers, checker, certs)
	})

	checker.MarkStarted()
	logging.Info("lf-telemetry started", logging.F(
		"workers", cfg.Workers,
		"peers", len(cfg.Peers),
		"stats_addr", l.Addr().String(),
		"stats_tls", serverTLS != nil,
		"stats_auth", cfg.StatsAuth().Enabled(),
		"simulate", cfg.Simulate,
		"version", info.Version,
	))

	err = grp.Wait()
	logging.Info("shutdown complete")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// handleSignals reloads the peer configuration and the stats certificate on
// SIGHUP and starts the shutdown on SIGINT or SIGTERM.
func handleSignals(ctx context.Context, stop context.CancelFunc, cfg *config.Config, sc *stats.Context,
	peers *worker.PeerSet, checker *health.Checker, certs *lftls.CertReloader,
) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				reload(cfg.ConfigFile, sc, peers)
				if certs != nil {
					if err := certs.Reload(); err != nil {
						logging.Error("certificate reload failed", logging.F("error", err.Error()))
					} else {
						logging.Info("certificate reloaded")
					}
				}
				continue
			}
			logging.Info("shutting down", logging.F("signal", sig.String()))
			checker.SetShuttingDown()
			stop()
			return nil
		}
	}
}

func reload(path string, sc *stats.Context, peers *worker.PeerSet) {
	if path == "" {
		logging.Warn("reload requested without -config")
		return
	}
	next, err := config.Reload(path)
	if err != nil {
		logging.Error("config reload failed", logging.F("path", path, "error", err.Error()))
		return
	}
	logging.SetLevel(logging.ParseLevel(next.LogLevel))
	sc.SetMaxPeers(next.PeerStoreMaxEntries)
	if err := sc.ApplyConfig(next.Peers); err != nil {
		logging.Warn("reloaded peer configuration incomplete", logging.F("error", err.Error()))
	}
	peers.Store(next.Peers)
	logging.Info("config reloaded", logging.F("path", path, "peers", len(next.Peers)))
}

func setMemoryLimit(ratio float64) {
	if ratio <= 0 {
		return
	}
	limit, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(ratio),
		memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
	)
	if err != nil {
		logging.Warn("GOMEMLIMIT not set", logging.F("error", err.Error()))
		return
	}
	logging.Info("GOMEMLIMIT set", logging.F("limit_bytes", limit, "ratio", ratio))
}
