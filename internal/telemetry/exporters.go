package telemetry

import (
	"context"
	"crypto/tls"
	"time"

	"google.golang.org/grpc/credentials"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
)

// optionSet maps Config onto one exporter package's option constructors.
// The four OTLP exporters share the settings but not the option type.
type optionSet[O any] struct {
	endpoint func(string) O
	insecure func() O
	tls      func(*tls.Config) O
	timeout  func(time.Duration) O
	gzip     func() O
	headers  func(map[string]string) O
	retry    func(Retry) O
}

func (s optionSet[O]) options(cfg Config) []O {
	opts := []O{s.endpoint(cfg.Endpoint)}
	switch {
	case cfg.Insecure:
		opts = append(opts, s.insecure())
	case cfg.TLS != nil:
		opts = append(opts, s.tls(cfg.TLS))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, s.timeout(cfg.Timeout))
	}
	if cfg.Compression == "gzip" {
		opts = append(opts, s.gzip())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, s.headers(cfg.Headers))
	}
	if cfg.Retry.Enabled {
		opts = append(opts, s.retry(cfg.Retry))
	}
	return opts
}

var (
	logHTTPOptions = optionSet[otlploghttp.Option]{
		endpoint: otlploghttp.WithEndpoint,
		insecure: otlploghttp.WithInsecure,
		tls:      otlploghttp.WithTLSClientConfig,
		timeout:  otlploghttp.WithTimeout,
		gzip:     func() otlploghttp.Option { return otlploghttp.WithCompression(otlploghttp.GzipCompression) },
		headers:  otlploghttp.WithHeaders,
		retry: func(r Retry) otlploghttp.Option {
			return otlploghttp.WithRetry(otlploghttp.RetryConfig{
				Enabled: true, InitialInterval: r.Initial, MaxInterval: r.MaxInterval, MaxElapsedTime: r.MaxElapsed,
			})
		},
	}
	logGRPCOptions = optionSet[otlploggrpc.Option]{
		endpoint: otlploggrpc.WithEndpoint,
		insecure: otlploggrpc.WithInsecure,
		tls: func(c *tls.Config) otlploggrpc.Option {
			return otlploggrpc.WithTLSCredentials(credentials.NewTLS(c))
		},
		timeout: otlploggrpc.WithTimeout,
		gzip:    func() otlploggrpc.Option { return otlploggrpc.WithCompressor("gzip") },
		headers: otlploggrpc.WithHeaders,
		retry: func(r Retry) otlploggrpc.Option {
			return otlploggrpc.WithRetry(otlploggrpc.RetryConfig{
				Enabled: true, InitialInterval: r.Initial, MaxInterval: r.MaxInterval, MaxElapsedTime: r.MaxElapsed,
			})
		},
	}
	metricHTTPOptions = optionSet[otlpmetrichttp.Option]{
		endpoint: otlpmetrichttp.WithEndpoint,
		insecure: otlpmetrichttp.WithInsecure,
		tls:      otlpmetrichttp.WithTLSClientConfig,
		timeout:  otlpmetrichttp.WithTimeout,
		gzip:     func() otlpmetrichttp.Option { return otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression) },
		headers:  otlpmetrichttp.WithHeaders,
		retry: func(r Retry) otlpmetrichttp.Option {
			return otlpmetrichttp.WithRetry(otlpmetrichttp.RetryConfig{
				Enabled: true, InitialInterval: r.Initial, MaxInterval: r.MaxInterval, MaxElapsedTime: r.MaxElapsed,
			})
		},
	}
	metricGRPCOptions = optionSet[otlpmetricgrpc.Option]{
		endpoint: otlpmetricgrpc.WithEndpoint,
		insecure: otlpmetricgrpc.WithInsecure,
		tls: func(c *tls.Config) otlpmetricgrpc.Option {
			return otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(c))
		},
		timeout: otlpmetricgrpc.WithTimeout,
		gzip:    func() otlpmetricgrpc.Option { return otlpmetricgrpc.WithCompressor("gzip") },
		headers: otlpmetricgrpc.WithHeaders,
		retry: func(r Retry) otlpmetricgrpc.Option {
			return otlpmetricgrpc.WithRetry(otlpmetricgrpc.RetryConfig{
				Enabled: true, InitialInterval: r.Initial, MaxInterval: r.MaxInterval, MaxElapsedTime: r.MaxElapsed,
			})
		},
	}
)

func newLogExporter(ctx context.Context, cfg Config) (sdklog.Exporter, error) {
	if cfg.Protocol == ProtocolHTTP {
		return otlploghttp.New(ctx, logHTTPOptions.options(cfg)...)
	}
	return otlploggrpc.New(ctx, logGRPCOptions.options(cfg)...)
}

func newMetricExporter(ctx context.Context, cfg Config) (metric.Exporter, error) {
	if cfg.Protocol == ProtocolHTTP {
		return otlpmetrichttp.New(ctx, metricHTTPOptions.options(cfg)...)
	}
	return otlpmetricgrpc.New(ctx, metricGRPCOptions.options(cfg)...)
}
