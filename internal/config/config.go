// Package config builds the runtime configuration from defaults, an
// optional YAML file and command line flags, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/szibis/lf-telemetry/internal/auth"
	"github.com/szibis/lf-telemetry/internal/cardinality"
	"github.com/szibis/lf-telemetry/internal/logging"
	"github.com/szibis/lf-telemetry/internal/peer"
	"github.com/szibis/lf-telemetry/internal/stats"
	"github.com/szibis/lf-telemetry/internal/telemetry"
	lftls "github.com/szibis/lf-telemetry/internal/tls"
)

// Config holds the application configuration.
type Config struct {
	ConfigFile string

	// Workers
	Workers    int
	WorkerCPUs []int
	BurstSize  int

	// Peers
	Peers               []peer.Key
	PeerStoreSize       int
	PeerStoreMaxEntries int

	// Statistics endpoint and maintenance
	StatsAddr           string
	StatsMaxConnections int
	ReclaimInterval     time.Duration
	StatsLogInterval    time.Duration
	ReclaimBacklogLimit int

	StatsTLSEnabled    bool
	StatsTLSCertFile   string
	StatsTLSKeyFile    string
	StatsTLSCAFile     string
	StatsTLSClientAuth bool

	StatsAuthBearerToken   string
	StatsAuthBasicUsername string
	StatsAuthBasicPassword string

	// Untracked peer accounting
	UntrackedMode          string
	UntrackedWindow        time.Duration
	UntrackedExpectedItems uint
	UntrackedFPRate        float64

	LogLevel         string
	MemoryLimitRatio float64

	// Synthetic traffic
	Simulate                 bool
	SimulateInterval         time.Duration
	SimulateSeed             uint64
	SimulateUnknownPeerRatio float64

	// OTLP self-telemetry
	TelemetryEndpoint         string
	TelemetryProtocol         string
	TelemetryInsecure         bool
	TelemetryTimeout          time.Duration
	TelemetryPushInterval     time.Duration
	TelemetryCompression      string
	TelemetryHeaders          map[string]string
	TelemetryShutdownTimeout  time.Duration
	TelemetryRetryEnabled     bool
	TelemetryRetryInitial     time.Duration
	TelemetryRetryMaxInterval time.Duration
	TelemetryRetryMaxElapsed  time.Duration

	TelemetryTLSCAFile         string
	TelemetryTLSCertFile       string
	TelemetryTLSKeyFile        string
	TelemetryTLSServerName     string
	TelemetryTLSSkipVerify     bool
	TelemetryAuthBearerToken   string
	TelemetryAuthBasicUser     string
	TelemetryAuthBasicPassword string

	ValidateOnly bool
	ShowHelp     bool
	ShowVersion  bool
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers:                   1,
		BurstSize:                 32,
		PeerStoreSize:             stats.DefaultPeerStoreSize,
		StatsAddr:                 ":9090",
		StatsMaxConnections:       64,
		ReclaimInterval:           100 * time.Millisecond,
		StatsLogInterval:          time.Minute,
		ReclaimBacklogLimit:       65536,
		UntrackedMode:             cardinality.ModeHLL.String(),
		UntrackedWindow:           cardinality.DefaultConfig().Window,
		UntrackedExpectedItems:    cardinality.DefaultConfig().ExpectedItems,
		UntrackedFPRate:           cardinality.DefaultConfig().FalsePositiveRate,
		LogLevel:                  "info",
		MemoryLimitRatio:          0.9,
		SimulateInterval:          time.Millisecond,
		SimulateSeed:              1,
		SimulateUnknownPeerRatio:  0.01,
		TelemetryProtocol:         telemetry.ProtocolGRPC,
		TelemetryInsecure:         true,
		TelemetryTimeout:          10 * time.Second,
		TelemetryPushInterval:     30 * time.Second,
		TelemetryShutdownTimeout:  5 * time.Second,
		TelemetryRetryEnabled:     true,
		TelemetryRetryInitial:     5 * time.Second,
		TelemetryRetryMaxInterval: 30 * time.Second,
		TelemetryRetryMaxElapsed:  time.Minute,
	}
}

// binder registers flags on a scratch Config and remembers how to copy each
// flag's field onto another Config, so explicitly set flags can override
// values loaded from a file.
type binder struct {
	fs    *flag.FlagSet
	src   *Config
	apply map[string]func(dst *Config)
}

func bind[T any](b *binder, define func(*T, string, T, string), name string, field func(*Config) *T, usage string) {
	p := field(b.src)
	define(p, name, *p, usage)
	b.apply[name] = func(dst *Config) { *field(dst) = *field(b.src) }
}

func (b *binder) fn(name, usage string, parse func(string) error, copyField func(dst *Config)) {
	b.fs.Func(name, usage, parse)
	b.apply[name] = copyField
}

func newFlagSet(name string, cfg *Config) *binder {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	b := &binder{fs: fs, src: cfg, apply: make(map[string]func(*Config))}

	bind(b, fs.StringVar, "config", func(c *Config) *string { return &c.ConfigFile }, "Path to a YAML configuration file")

	bind(b, fs.IntVar, "workers", func(c *Config) *int { return &c.Workers }, "Number of packet workers")
	b.fn("worker-cpus", "Comma-separated CPU per worker, -1 for no pinning", func(s string) error {
		cpus, err := ParseCPUList(s)
		cfg.WorkerCPUs = cpus
		return err
	}, func(dst *Config) { dst.WorkerCPUs = append([]int(nil), cfg.WorkerCPUs...) })
	bind(b, fs.IntVar, "burst-size", func(c *Config) *int { return &c.BurstSize }, "Receive burst size per worker")

	b.fn("peer", "Tracked peer as \"ISD-AS, protocol\" (repeatable)", func(s string) error {
		k, err := peer.ParseKey(s)
		if err != nil {
			return err
		}
		cfg.Peers = append(cfg.Peers, k)
		return nil
	}, func(dst *Config) { dst.Peers = append([]peer.Key(nil), cfg.Peers...) })
	bind(b, fs.IntVar, "peer-store-size", func(c *Config) *int { return &c.PeerStoreSize }, "Initial peer store size per worker")
	bind(b, fs.IntVar, "peer-store-max-entries", func(c *Config) *int { return &c.PeerStoreMaxEntries }, "Peer cap per worker (0 = unbounded)")

	bind(b, fs.StringVar, "stats-addr", func(c *Config) *string { return &c.StatsAddr }, "Listen address of the statistics endpoint")
	bind(b, fs.IntVar, "stats-max-connections", func(c *Config) *int { return &c.StatsMaxConnections }, "Concurrent statistics connections (0 = unlimited)")
	bind(b, fs.DurationVar, "reclaim-interval", func(c *Config) *time.Duration { return &c.ReclaimInterval }, "Retired peer reclamation interval (0 = disabled)")
	bind(b, fs.DurationVar, "stats-log-interval", func(c *Config) *time.Duration { return &c.StatsLogInterval }, "Statistics summary log interval (0 = disabled)")
	bind(b, fs.IntVar, "reclaim-backlog-limit", func(c *Config) *int { return &c.ReclaimBacklogLimit }, "Pending reclamations before readiness fails (0 = no limit)")

	bind(b, fs.BoolVar, "stats-tls-enabled", func(c *Config) *bool { return &c.StatsTLSEnabled }, "Serve the statistics endpoint over HTTPS")
	bind(b, fs.StringVar, "stats-tls-cert-file", func(c *Config) *string { return &c.StatsTLSCertFile }, "Statistics endpoint certificate")
	bind(b, fs.StringVar, "stats-tls-key-file", func(c *Config) *string { return &c.StatsTLSKeyFile }, "Statistics endpoint private key")
	bind(b, fs.StringVar, "stats-tls-ca-file", func(c *Config) *string { return &c.StatsTLSCAFile }, "CA for client certificate verification")
	bind(b, fs.BoolVar, "stats-tls-client-auth", func(c *Config) *bool { return &c.StatsTLSClientAuth }, "Require client certificates")
	bind(b, fs.StringVar, "stats-auth-bearer-token", func(c *Config) *string { return &c.StatsAuthBearerToken }, "Bearer token required on /metrics and /telemetry")
	bind(b, fs.StringVar, "stats-auth-basic-username", func(c *Config) *string { return &c.StatsAuthBasicUsername }, "Basic auth username for /metrics and /telemetry")
	bind(b, fs.StringVar, "stats-auth-basic-password", func(c *Config) *string { return &c.StatsAuthBasicPassword }, "Basic auth password for /metrics and /telemetry")

	bind(b, fs.StringVar, "untracked-peers-mode", func(c *Config) *string { return &c.UntrackedMode }, "Untracked peer counting: hll, bloom, exact or off")
	bind(b, fs.DurationVar, "untracked-peers-window", func(c *Config) *time.Duration { return &c.UntrackedWindow }, "Untracked peer counting window")
	bind(b, fs.UintVar, "untracked-peers-expected-items", func(c *Config) *uint { return &c.UntrackedExpectedItems }, "Bloom filter sizing for the bloom mode")
	bind(b, fs.Float64Var, "untracked-peers-fp-rate", func(c *Config) *float64 { return &c.UntrackedFPRate }, "Bloom filter false positive rate for the bloom mode")

	bind(b, fs.StringVar, "log-level", func(c *Config) *string { return &c.LogLevel }, "Log level: debug, info, warn, error")
	bind(b, fs.Float64Var, "memory-limit-ratio", func(c *Config) *float64 { return &c.MemoryLimitRatio }, "GOMEMLIMIT as a fraction of the container limit (0 = disabled)")

	bind(b, fs.BoolVar, "simulate", func(c *Config) *bool { return &c.Simulate }, "Drive the workers with synthetic traffic")
	bind(b, fs.DurationVar, "simulate-interval", func(c *Config) *time.Duration { return &c.SimulateInterval }, "Pause between synthetic bursts")
	bind(b, fs.Uint64Var, "simulate-seed", func(c *Config) *uint64 { return &c.SimulateSeed }, "Seed of the synthetic traffic generator")
	bind(b, fs.Float64Var, "simulate-unknown-peer-ratio", func(c *Config) *float64 { return &c.SimulateUnknownPeerRatio }, "Share of inbound packets from untracked peers")

	bind(b, fs.StringVar, "telemetry-endpoint", func(c *Config) *string { return &c.TelemetryEndpoint }, "OTLP endpoint for self-telemetry (empty = disabled)")
	bind(b, fs.StringVar, "telemetry-protocol", func(c *Config) *string { return &c.TelemetryProtocol }, "OTLP protocol: grpc or http")
	bind(b, fs.BoolVar, "telemetry-insecure", func(c *Config) *bool { return &c.TelemetryInsecure }, "Disable TLS for the OTLP connection")
	bind(b, fs.DurationVar, "telemetry-timeout", func(c *Config) *time.Duration { return &c.TelemetryTimeout }, "OTLP export timeout")
	bind(b, fs.DurationVar, "telemetry-push-interval", func(c *Config) *time.Duration { return &c.TelemetryPushInterval }, "OTLP metric push interval")
	bind(b, fs.StringVar, "telemetry-compression", func(c *Config) *string { return &c.TelemetryCompression }, "OTLP compression: gzip or none")
	b.fn("telemetry-headers", "OTLP headers as key=value pairs separated by commas", func(s string) error {
		h, err := ParseHeaders(s)
		cfg.TelemetryHeaders = h
		return err
	}, func(dst *Config) { dst.TelemetryHeaders = cfg.TelemetryHeaders })
	bind(b, fs.DurationVar, "telemetry-shutdown-timeout", func(c *Config) *time.Duration { return &c.TelemetryShutdownTimeout }, "Flush timeout on shutdown")
	bind(b, fs.BoolVar, "telemetry-retry-enabled", func(c *Config) *bool { return &c.TelemetryRetryEnabled }, "Retry failed OTLP exports")
	bind(b, fs.DurationVar, "telemetry-retry-initial", func(c *Config) *time.Duration { return &c.TelemetryRetryInitial }, "First retry delay")
	bind(b, fs.DurationVar, "telemetry-retry-max-interval", func(c *Config) *time.Duration { return &c.TelemetryRetryMaxInterval }, "Maximum retry delay")
	bind(b, fs.DurationVar, "telemetry-retry-max-elapsed", func(c *Config) *time.Duration { return &c.TelemetryRetryMaxElapsed }, "Give up after this long")

	bind(b, fs.StringVar, "telemetry-tls-ca-file", func(c *Config) *string { return &c.TelemetryTLSCAFile }, "CA for the OTLP collector certificate")
	bind(b, fs.StringVar, "telemetry-tls-cert-file", func(c *Config) *string { return &c.TelemetryTLSCertFile }, "OTLP client certificate")
	bind(b, fs.StringVar, "telemetry-tls-key-file", func(c *Config) *string { return &c.TelemetryTLSKeyFile }, "OTLP client private key")
	bind(b, fs.StringVar, "telemetry-tls-server-name", func(c *Config) *string { return &c.TelemetryTLSServerName }, "Override the collector's expected server name")
	bind(b, fs.BoolVar, "telemetry-tls-skip-verify", func(c *Config) *bool { return &c.TelemetryTLSSkipVerify }, "Skip collector certificate verification")
	bind(b, fs.StringVar, "telemetry-auth-bearer-token", func(c *Config) *string { return &c.TelemetryAuthBearerToken }, "Bearer token sent to the collector")
	bind(b, fs.StringVar, "telemetry-auth-basic-username", func(c *Config) *string { return &c.TelemetryAuthBasicUser }, "Basic auth username sent to the collector")
	bind(b, fs.StringVar, "telemetry-auth-basic-password", func(c *Config) *string { return &c.TelemetryAuthBasicPassword }, "Basic auth password sent to the collector")

	bind(b, fs.BoolVar, "validate", func(c *Config) *bool { return &c.ValidateOnly }, "Validate the configuration file and exit")
	bind(b, fs.BoolVar, "version", func(c *Config) *bool { return &c.ShowVersion }, "Show version and exit")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help and exit")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help and exit")
	b.apply["help"] = func(dst *Config) { dst.ShowHelp = cfg.ShowHelp }
	b.apply["h"] = b.apply["help"]
	return b
}

// ParseFlags parses args (without the program name). When -config is given
// the file is loaded first and only flags set explicitly override it.
// Parse errors are reported without printing usage; -help sets ShowHelp.
func ParseFlags(name string, args []string) (*Config, error) {
	b := newFlagSet(name, DefaultConfig())
	b.fs.SetOutput(io.Discard)
	b.fs.Usage = func() {}
	if err := b.fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			b.src.ShowHelp = true
			return b.src, nil
		}
		return nil, err
	}
	if b.fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(b.fs.Args(), " "))
	}
	if b.src.ConfigFile == "" || b.src.ShowHelp || b.src.ShowVersion {
		return b.src, nil
	}

	y, err := LoadYAML(b.src.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", b.src.ConfigFile, err)
	}
	cfg, err := y.ToConfig()
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", b.src.ConfigFile, err)
	}
	b.fs.Visit(func(f *flag.Flag) {
		if apply, ok := b.apply[f.Name]; ok {
			apply(cfg)
		}
	})
	return cfg, nil
}

// PrintUsage writes the flag summary to w.
func PrintUsage(w io.Writer, name string) {
	b := newFlagSet(name, DefaultConfig())
	fmt.Fprintf(w, "Usage: %s [flags]\n\nFlags:\n", name)
	b.fs.SetOutput(w)
	b.fs.PrintDefaults()
}

// Validate checks the values that would make startup fail.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if len(c.WorkerCPUs) > 0 && len(c.WorkerCPUs) != c.Workers {
		errs = append(errs, fmt.Errorf("worker_cpus lists %d CPUs for %d workers", len(c.WorkerCPUs), c.Workers))
	}
	for i, cpu := range c.WorkerCPUs {
		if cpu < -1 {
			errs = append(errs, fmt.Errorf("worker_cpus[%d]: invalid CPU %d", i, cpu))
		}
	}
	if c.BurstSize <= 0 {
		errs = append(errs, fmt.Errorf("burst_size must be positive, got %d", c.BurstSize))
	}
	if c.PeerStoreSize < 8 {
		errs = append(errs, fmt.Errorf("peer_store.size must be at least 8, got %d", c.PeerStoreSize))
	}
	if c.PeerStoreMaxEntries < 0 {
		errs = append(errs, fmt.Errorf("peer_store.max_entries must not be negative, got %d", c.PeerStoreMaxEntries))
	}
	if c.StatsAddr == "" {
		errs = append(errs, errors.New("stats.addr is required"))
	}
	if c.StatsMaxConnections < 0 {
		errs = append(errs, fmt.Errorf("stats.max_connections must not be negative, got %d", c.StatsMaxConnections))
	}
	if c.ReclaimInterval < 0 || c.StatsLogInterval < 0 {
		errs = append(errs, errors.New("stats intervals must not be negative"))
	}
	if c.StatsTLSEnabled && (c.StatsTLSCertFile == "" || c.StatsTLSKeyFile == "") {
		errs = append(errs, errors.New("stats.tls: cert_file and key_file are required"))
	}
	if c.StatsTLSClientAuth && c.StatsTLSCAFile == "" {
		errs = append(errs, errors.New("stats.tls: client_auth needs ca_file"))
	}
	if (c.StatsAuthBasicUsername == "") != (c.StatsAuthBasicPassword == "") {
		errs = append(errs, errors.New("stats.auth: basic_username and basic_password must be set together"))
	}
	if mode, err := cardinality.ParseMode(c.UntrackedMode); err != nil {
		errs = append(errs, fmt.Errorf("untracked_peers.mode: %w", err))
	} else if mode != cardinality.ModeOff {
		if c.UntrackedWindow <= 0 {
			errs = append(errs, fmt.Errorf("untracked_peers.window must be positive, got %s", c.UntrackedWindow))
		}
		if mode == cardinality.ModeBloom && (c.UntrackedExpectedItems == 0 || c.UntrackedFPRate <= 0 || c.UntrackedFPRate >= 1) {
			errs = append(errs, errors.New("untracked_peers: bloom mode needs expected_items > 0 and false_positive_rate within (0, 1)"))
		}
	}
	if !validLogLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level: unknown level %q", c.LogLevel))
	}
	if c.MemoryLimitRatio < 0 || c.MemoryLimitRatio > 1 {
		errs = append(errs, fmt.Errorf("memory.limit_ratio must be within [0, 1], got %g", c.MemoryLimitRatio))
	}
	if c.Simulate && c.SimulateInterval < 0 {
		errs = append(errs, errors.New("simulate.interval must not be negative"))
	}
	if c.SimulateUnknownPeerRatio < 0 || c.SimulateUnknownPeerRatio > 1 {
		errs = append(errs, fmt.Errorf("simulate.unknown_peer_ratio must be within [0, 1], got %g", c.SimulateUnknownPeerRatio))
	}
	if c.TelemetryEndpoint != "" {
		switch c.TelemetryProtocol {
		case telemetry.ProtocolGRPC, telemetry.ProtocolHTTP:
		default:
			errs = append(errs, fmt.Errorf("telemetry.protocol must be grpc or http, got %q", c.TelemetryProtocol))
		}
		switch c.TelemetryCompression {
		case "", "none", "gzip":
		default:
			errs = append(errs, fmt.Errorf("telemetry.compression must be gzip or none, got %q", c.TelemetryCompression))
		}
	}
	return errors.Join(errs...)
}

// StatsOptions returns the statistics context options.
func (c *Config) StatsOptions() stats.Options {
	return stats.Options{
		Workers:       c.Workers,
		Placement:     c.WorkerCPUs,
		PeerStoreSize: c.PeerStoreSize,
		MaxPeers:      c.PeerStoreMaxEntries,
	}
}

// UntrackedConfig returns the untracked peer tracker settings. An invalid
// mode disables tracking.
func (c *Config) UntrackedConfig() cardinality.Config {
	mode, err := cardinality.ParseMode(c.UntrackedMode)
	if err != nil {
		mode = cardinality.ModeOff
	}
	return cardinality.Config{
		Mode:              mode,
		ExpectedItems:     c.UntrackedExpectedItems,
		FalsePositiveRate: c.UntrackedFPRate,
		Window:            c.UntrackedWindow,
		Workers:           c.Workers,
	}
}

// StatsTLS returns the statistics endpoint TLS settings.
func (c *Config) StatsTLS() lftls.ServerConfig {
	return lftls.ServerConfig{
		Enabled:    c.StatsTLSEnabled,
		CertFile:   c.StatsTLSCertFile,
		KeyFile:    c.StatsTLSKeyFile,
		CAFile:     c.StatsTLSCAFile,
		ClientAuth: c.StatsTLSClientAuth,
	}
}

// StatsAuth returns the credentials required on the statistics endpoint.
func (c *Config) StatsAuth() auth.ServerConfig {
	return auth.ServerConfig{
		BearerToken:       c.StatsAuthBearerToken,
		BasicAuthUsername: c.StatsAuthBasicUsername,
		BasicAuthPassword: c.StatsAuthBasicPassword,
	}
}

// TelemetryTLS returns the OTLP client TLS settings. TLS is off when the
// connection is insecure.
func (c *Config) TelemetryTLS() lftls.ClientConfig {
	return lftls.ClientConfig{
		Enabled:            !c.TelemetryInsecure,
		CertFile:           c.TelemetryTLSCertFile,
		KeyFile:            c.TelemetryTLSKeyFile,
		CAFile:             c.TelemetryTLSCAFile,
		InsecureSkipVerify: c.TelemetryTLSSkipVerify,
		ServerName:         c.TelemetryTLSServerName,
	}
}

// TelemetryConfig returns the OTLP export settings without TLS material;
// see TelemetryTLS.
func (c *Config) TelemetryConfig() telemetry.Config {
	compression := c.TelemetryCompression
	if compression == "none" {
		compression = ""
	}
	headers := auth.ClientConfig{
		BearerToken:       c.TelemetryAuthBearerToken,
		BasicAuthUsername: c.TelemetryAuthBasicUser,
		BasicAuthPassword: c.TelemetryAuthBasicPassword,
		Headers:           c.TelemetryHeaders,
	}.HeaderMap()
	return telemetry.Config{
		Endpoint:        c.TelemetryEndpoint,
		Protocol:        c.TelemetryProtocol,
		Insecure:        c.TelemetryInsecure,
		Timeout:         c.TelemetryTimeout,
		PushInterval:    c.TelemetryPushInterval,
		Compression:     compression,
		Headers:         headers,
		ShutdownTimeout: c.TelemetryShutdownTimeout,
		Retry: telemetry.Retry{
			Enabled:     c.TelemetryRetryEnabled,
			Initial:     c.TelemetryRetryInitial,
			MaxInterval: c.TelemetryRetryMaxInterval,
			MaxElapsed:  c.TelemetryRetryMaxElapsed,
		},
	}
}

func validLogLevel(s string) bool {
	switch logging.ParseLevel(s) {
	case logging.LevelInfo:
		v := strings.ToLower(strings.TrimSpace(s))
		return v == "info" || v == ""
	case logging.LevelFatal:
		return false
	}
	return true
}

// ParseCPUList parses "0,2,-1". An empty string yields nil.
func ParseCPUList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	cpus := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid CPU %q", p)
		}
		cpus = append(cpus, n)
	}
	return cpus, nil
}

// ParseHeaders parses "k1=v1,k2=v2".
func ParseHeaders(s string) (map[string]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	h := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid header %q, expected key=value", pair)
		}
		h[k] = strings.TrimSpace(v)
	}
	return h, nil
}
