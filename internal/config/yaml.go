package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/szibis/lf-telemetry/internal/peer"
)

// YAMLConfig is the configuration file layout.
type YAMLConfig struct {
	Workers    int   `yaml:"workers"`
	WorkerCPUs []int `yaml:"worker_cpus"`
	BurstSize  int   `yaml:"burst_size"`

	Peers     []PeerYAMLConfig    `yaml:"peers"`
	PeerStore PeerStoreYAMLConfig `yaml:"peer_store"`
	Stats     StatsYAMLConfig     `yaml:"stats"`
	Untracked UntrackedYAMLConfig `yaml:"untracked_peers"`
	LogLevel  string              `yaml:"log_level"`
	Memory    MemoryYAMLConfig    `yaml:"memory"`
	Simulate  SimulateYAMLConfig  `yaml:"simulate"`
	Telemetry TelemetryYAMLConfig `yaml:"telemetry"`
}

// PeerYAMLConfig is one tracked peer.
type PeerYAMLConfig struct {
	ISDAS         string `yaml:"isd_as"`
	DRKeyProtocol uint16 `yaml:"drkey_protocol"`
}

// PeerStoreYAMLConfig sizes the per-worker peer stores.
type PeerStoreYAMLConfig struct {
	Size       int `yaml:"size"`
	MaxEntries int `yaml:"max_entries"`
}

// StatsYAMLConfig configures the statistics endpoint and maintenance loop.
type StatsYAMLConfig struct {
	Addr                string              `yaml:"addr"`
	MaxConnections      *int                `yaml:"max_connections"`
	ReclaimInterval     *Duration           `yaml:"reclaim_interval"`
	LogInterval         *Duration           `yaml:"log_interval"`
	ReclaimBacklogLimit *int                `yaml:"reclaim_backlog_limit"`
	TLS                 TLSServerYAMLConfig `yaml:"tls"`
	Auth                AuthYAMLConfig      `yaml:"auth"`
}

// TLSServerYAMLConfig enables HTTPS on the statistics endpoint.
type TLSServerYAMLConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	CAFile     string `yaml:"ca_file"`
	ClientAuth bool   `yaml:"client_auth"`
}

// TLSClientYAMLConfig holds the OTLP client TLS material.
type TLSClientYAMLConfig struct {
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// AuthYAMLConfig holds a bearer token or basic auth credentials.
type AuthYAMLConfig struct {
	BearerToken   string `yaml:"bearer_token"`
	BasicUsername string `yaml:"basic_username"`
	BasicPassword string `yaml:"basic_password"`
}

// UntrackedYAMLConfig configures the untracked peer counter.
type UntrackedYAMLConfig struct {
	Mode              string   `yaml:"mode"`
	Window            Duration `yaml:"window"`
	ExpectedItems     uint     `yaml:"expected_items"`
	FalsePositiveRate float64  `yaml:"false_positive_rate"`
}

// MemoryYAMLConfig sets GOMEMLIMIT relative to the container limit.
type MemoryYAMLConfig struct {
	LimitRatio *float64 `yaml:"limit_ratio"`
}

// SimulateYAMLConfig drives the workers with synthetic traffic.
type SimulateYAMLConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Interval         Duration `yaml:"interval"`
	Seed             uint64   `yaml:"seed"`
	UnknownPeerRatio *float64 `yaml:"unknown_peer_ratio"`
}

// TelemetryYAMLConfig configures OTLP self-telemetry.
type TelemetryYAMLConfig struct {
	Endpoint        string              `yaml:"endpoint"`
	Protocol        string              `yaml:"protocol"`
	Insecure        *bool               `yaml:"insecure"`
	Timeout         Duration            `yaml:"timeout"`
	PushInterval    Duration            `yaml:"push_interval"`
	Compression     string              `yaml:"compression"`
	Headers         map[string]string   `yaml:"headers"`
	ShutdownTimeout Duration            `yaml:"shutdown_timeout"`
	Retry           TelemetryRetryYAML  `yaml:"retry"`
	TLS             TLSClientYAMLConfig `yaml:"tls"`
	Auth            AuthYAMLConfig      `yaml:"auth"`
}

// TelemetryRetryYAML holds the OTLP retry settings.
type TelemetryRetryYAML struct {
	Enabled     *bool    `yaml:"enabled"`
	Initial     Duration `yaml:"initial"`
	MaxInterval Duration `yaml:"max_interval"`
	MaxElapsed  Duration `yaml:"max_elapsed"`
}

// Duration accepts Go duration strings such as "100ms" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// LoadYAML reads and parses a configuration file.
func LoadYAML(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseYAML(data)
}

// ParseYAML parses a configuration document and fills in defaults.
// Unknown keys are rejected.
func ParseYAML(data []byte) (*YAMLConfig, error) {
	cfg := &YAMLConfig{}
	if len(data) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills unset fields from DefaultConfig.
func (y *YAMLConfig) ApplyDefaults() {
	d := DefaultConfig()
	if y.Workers == 0 {
		y.Workers = d.Workers
	}
	if y.BurstSize == 0 {
		y.BurstSize = d.BurstSize
	}
	if y.PeerStore.Size == 0 {
		y.PeerStore.Size = d.PeerStoreSize
	}
	if y.Stats.Addr == "" {
		y.Stats.Addr = d.StatsAddr
	}
	if y.Stats.MaxConnections == nil {
		y.Stats.MaxConnections = &d.StatsMaxConnections
	}
	if y.Stats.ReclaimInterval == nil {
		v := Duration(d.ReclaimInterval)
		y.Stats.ReclaimInterval = &v
	}
	if y.Stats.LogInterval == nil {
		v := Duration(d.StatsLogInterval)
		y.Stats.LogInterval = &v
	}
	if y.Stats.ReclaimBacklogLimit == nil {
		y.Stats.ReclaimBacklogLimit = &d.ReclaimBacklogLimit
	}
	if y.Untracked.Mode == "" {
		y.Untracked.Mode = d.UntrackedMode
	}
	if y.Untracked.Window == 0 {
		y.Untracked.Window = Duration(d.UntrackedWindow)
	}
	if y.Untracked.ExpectedItems == 0 {
		y.Untracked.ExpectedItems = d.UntrackedExpectedItems
	}
	if y.Untracked.FalsePositiveRate == 0 {
		y.Untracked.FalsePositiveRate = d.UntrackedFPRate
	}
	if y.LogLevel == "" {
		y.LogLevel = d.LogLevel
	}
	if y.Memory.LimitRatio == nil {
		y.Memory.LimitRatio = &d.MemoryLimitRatio
	}
	if y.Simulate.Interval == 0 {
		y.Simulate.Interval = Duration(d.SimulateInterval)
	}
	if y.Simulate.Seed == 0 {
		y.Simulate.Seed = d.SimulateSeed
	}
	if y.Simulate.UnknownPeerRatio == nil {
		y.Simulate.UnknownPeerRatio = &d.SimulateUnknownPeerRatio
	}

	t := &y.Telemetry
	if t.Protocol == "" {
		t.Protocol = d.TelemetryProtocol
	}
	if t.Insecure == nil {
		t.Insecure = &d.TelemetryInsecure
	}
	if t.Timeout == 0 {
		t.Timeout = Duration(d.TelemetryTimeout)
	}
	if t.PushInterval == 0 {
		t.PushInterval = Duration(d.TelemetryPushInterval)
	}
	if t.ShutdownTimeout == 0 {
		t.ShutdownTimeout = Duration(d.TelemetryShutdownTimeout)
	}
	if t.Retry.Enabled == nil {
		t.Retry.Enabled = &d.TelemetryRetryEnabled
	}
	if t.Retry.Initial == 0 {
		t.Retry.Initial = Duration(d.TelemetryRetryInitial)
	}
	if t.Retry.MaxInterval == 0 {
		t.Retry.MaxInterval = Duration(d.TelemetryRetryMaxInterval)
	}
	if t.Retry.MaxElapsed == 0 {
		t.Retry.MaxElapsed = Duration(d.TelemetryRetryMaxElapsed)
	}
}

// PeerKeys converts the peers section. Duplicates are kept; the peer
// stores ignore them.
func (y *YAMLConfig) PeerKeys() ([]peer.Key, error) {
	keys := make([]peer.Key, 0, len(y.Peers))
	for i, p := range y.Peers {
		ia, err := peer.ParseISDAS(p.ISDAS)
		if err != nil {
			return nil, fmt.Errorf("peers[%d]: %w", i, err)
		}
		keys = append(keys, peer.NewKey(ia, p.DRKeyProtocol))
	}
	return keys, nil
}

// ToConfig converts the file layout to a Config. ApplyDefaults must have
// run.
func (y *YAMLConfig) ToConfig() (*Config, error) {
	peers, err := y.PeerKeys()
	if err != nil {
		return nil, err
	}
	t := y.Telemetry
	return &Config{
		Workers:                    y.Workers,
		WorkerCPUs:                 y.WorkerCPUs,
		BurstSize:                  y.BurstSize,
		Peers:                      peers,
		PeerStoreSize:              y.PeerStore.Size,
		PeerStoreMaxEntries:        y.PeerStore.MaxEntries,
		StatsAddr:                  y.Stats.Addr,
		StatsMaxConnections:        *y.Stats.MaxConnections,
		ReclaimInterval:            time.Duration(*y.Stats.ReclaimInterval),
		StatsLogInterval:           time.Duration(*y.Stats.LogInterval),
		ReclaimBacklogLimit:        *y.Stats.ReclaimBacklogLimit,
		StatsTLSEnabled:            y.Stats.TLS.Enabled,
		StatsTLSCertFile:           y.Stats.TLS.CertFile,
		StatsTLSKeyFile:            y.Stats.TLS.KeyFile,
		StatsTLSCAFile:             y.Stats.TLS.CAFile,
		StatsTLSClientAuth:         y.Stats.TLS.ClientAuth,
		StatsAuthBearerToken:       y.Stats.Auth.BearerToken,
		StatsAuthBasicUsername:     y.Stats.Auth.BasicUsername,
		StatsAuthBasicPassword:     y.Stats.Auth.BasicPassword,
		UntrackedMode:              y.Untracked.Mode,
		UntrackedWindow:            time.Duration(y.Untracked.Window),
		UntrackedExpectedItems:     y.Untracked.ExpectedItems,
		UntrackedFPRate:            y.Untracked.FalsePositiveRate,
		LogLevel:                   y.LogLevel,
		MemoryLimitRatio:           *y.Memory.LimitRatio,
		Simulate:                   y.Simulate.Enabled,
		SimulateInterval:           time.Duration(y.Simulate.Interval),
		SimulateSeed:               y.Simulate.Seed,
		SimulateUnknownPeerRatio:   *y.Simulate.UnknownPeerRatio,
		TelemetryEndpoint:          t.Endpoint,
		TelemetryProtocol:          t.Protocol,
		TelemetryInsecure:          *t.Insecure,
		TelemetryTimeout:           time.Duration(t.Timeout),
		TelemetryPushInterval:      time.Duration(t.PushInterval),
		TelemetryCompression:       t.Compression,
		TelemetryHeaders:           t.Headers,
		TelemetryShutdownTimeout:   time.Duration(t.ShutdownTimeout),
		TelemetryRetryEnabled:      *t.Retry.Enabled,
		TelemetryRetryInitial:      time.Duration(t.Retry.Initial),
		TelemetryRetryMaxInterval:  time.Duration(t.Retry.MaxInterval),
		TelemetryRetryMaxElapsed:   time.Duration(t.Retry.MaxElapsed),
		TelemetryTLSCAFile:         t.TLS.CAFile,
		TelemetryTLSCertFile:       t.TLS.CertFile,
		TelemetryTLSKeyFile:        t.TLS.KeyFile,
		TelemetryTLSServerName:     t.TLS.ServerName,
		TelemetryTLSSkipVerify:     t.TLS.InsecureSkipVerify,
		TelemetryAuthBearerToken:   t.Auth.BearerToken,
		TelemetryAuthBasicUser:     t.Auth.BasicUsername,
		TelemetryAuthBasicPassword: t.Auth.BasicPassword,
	}, nil
}

// Reload re-reads path for a running process. Only the peer set, the peer
// cap and the log level take effect without a restart.
func Reload(path string) (*Config, error) {
	y, err := LoadYAML(path)
	if err != nil {
		return nil, err
	}
	cfg, err := y.ToConfig()
	if err != nil {
		return nil, err
	}
	cfg.ConfigFile = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
