// Package telemetry pushes the process's own metrics and logs over OTLP.
// Metrics are read from a Prometheus gatherer through the OpenTelemetry
// bridge, so everything exposed on /metrics is also exported; log records
// arrive through a logging hook.
package telemetry

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	prombridge "go.opentelemetry.io/contrib/bridges/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"

	defaultPushInterval    = 30 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Retry mirrors the OTLP exporters' retry settings. Zero durations keep the
// SDK defaults.
type Retry struct {
	Enabled     bool
	Initial     time.Duration
	MaxInterval time.Duration
	MaxElapsed  time.Duration
}

// Config holds the OTLP export settings. An empty Endpoint disables export.
type Config struct {
	Endpoint        string
	Protocol        string // "grpc" (default) or "http"
	Insecure        bool
	TLS             *tls.Config // used unless Insecure; nil selects the system roots
	Timeout         time.Duration
	PushInterval    time.Duration
	Compression     string // "gzip" or ""
	Headers         map[string]string
	ShutdownTimeout time.Duration
	Retry           Retry
}

// Service identifies the exporting process.
type Service struct {
	Name    string
	Version string
	// Workers is recorded as a resource attribute.
	Workers int
}

// Telemetry owns the OTLP providers.
type Telemetry struct {
	logProvider     *sdklog.LoggerProvider
	meterProvider   *metric.MeterProvider
	logger          otellog.Logger
	shutdown        []func(context.Context) error
	shutdownTimeout time.Duration
}

// Init starts the log and metric exporters. It returns nil, nil when
// cfg.Endpoint is empty. A nil gatherer selects prometheus.DefaultGatherer.
func Init(ctx context.Context, cfg Config, svc Service, gatherer prometheus.Gatherer) (*Telemetry, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	switch cfg.Protocol {
	case "":
		cfg.Protocol = ProtocolGRPC
	case ProtocolGRPC, ProtocolHTTP:
	default:
		return nil, fmt.Errorf("telemetry: unknown protocol %q", cfg.Protocol)
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(svc.Name),
		semconv.ServiceVersion(svc.Version),
		semconv.ServiceInstanceID(uuid.NewString()),
		attribute.Int("lf.workers", svc.Workers),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	t := &Telemetry{shutdownTimeout: cfg.ShutdownTimeout}

	logExp, err := newLogExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: log exporter: %w", err)
	}
	t.logProvider = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
	)
	t.shutdown = append(t.shutdown, t.logProvider.Shutdown)
	t.logger = t.logProvider.Logger(svc.Name)

	metricExp, err := newMetricExporter(ctx, cfg)
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}
	interval := cfg.PushInterval
	if interval <= 0 {
		interval = defaultPushInterval
	}
	t.meterProvider = metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(metricExp,
			metric.WithInterval(interval),
			metric.WithProducer(prombridge.NewMetricProducer(prombridge.WithGatherer(gatherer))),
		)),
	)
	t.shutdown = append(t.shutdown, t.meterProvider.Shutdown)
	return t, nil
}

// Enabled reports whether export is running.
func (t *Telemetry) Enabled() bool { return t != nil && t.logger != nil }

// Logger returns the OTLP logger, or nil.
func (t *Telemetry) Logger() otellog.Logger {
	if t == nil {
		return nil
	}
	return t.logger
}

// ShutdownTimeout is the grace period callers should give Shutdown.
func (t *Telemetry) ShutdownTimeout() time.Duration {
	if t == nil || t.shutdownTimeout <= 0 {
		return defaultShutdownTimeout
	}
	return t.shutdownTimeout
}

// Shutdown flushes and stops the providers. Safe on a nil Telemetry.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
