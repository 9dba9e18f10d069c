package worker

import (
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/szibis/lf-telemetry/internal/counter"
	"github.com/szibis/lf-telemetry/internal/peer"
)

// Source delivers received packets to one worker. Receive fills buf and
// returns the number of packets written; 0 means nothing is pending. A Source
// is used by a single worker goroutine.
type Source interface {
	Receive(buf []Packet) int
}

// PeerSet is a concurrently replaceable list of peers that synthetic
// traffic is attributed to.
type PeerSet struct {
	keys atomic.Pointer[[]peer.Key]
}

// NewPeerSet returns a set holding keys.
func NewPeerSet(keys []peer.Key) *PeerSet {
	s := &PeerSet{}
	s.Store(keys)
	return s
}

// Store replaces the set.
func (s *PeerSet) Store(keys []peer.Key) {
	cp := append([]peer.Key(nil), keys...)
	s.keys.Store(&cp)
}

// Load returns the current set. The slice must not be modified.
func (s *PeerSet) Load() []peer.Key {
	if p := s.keys.Load(); p != nil {
		return *p
	}
	return nil
}

// SyntheticConfig tunes generated traffic.
type SyntheticConfig struct {
	Seed uint64
	// Peers supplies inbound source peers. Nil generates outbound traffic
	// only.
	Peers *PeerSet
	// MaxBurst bounds the packets returned per Receive. Defaults to 32.
	MaxBurst int
	// Interval is the minimum time between two bursts. Zero disables pacing.
	Interval time.Duration
	// UnknownPeerRatio is the share of inbound packets from a peer that is
	// not configured.
	UnknownPeerRatio float64
}

// verdictWeights is the distribution of inbound check results, in
// per-mille.
var verdictWeights = []struct {
	field  counter.Field
	weight int
}{
	{counter.Valid, 900},
	{counter.RateLimitBestEffort, 30},
	{counter.InvalidMAC, 15},
	{counter.OutdatedTimestamp, 15},
	{counter.Duplicate, 10},
	{counter.RateLimitAS, 10},
	{counter.RateLimitSystem, 5},
	{counter.NoKey, 5},
	{counter.InvalidHash, 5},
	{counter.PeerError, 5},
}

var unknownPeer = peer.NewKey(0xffff_ffff_ffff_fffe, 0xfffe)

// SyntheticSource generates seeded packet outcomes. It stands in for a NIC
// queue when the binary runs without a data plane.
type SyntheticSource struct {
	cfg  SyntheticConfig
	rng  *rand.Rand
	now  func() time.Time
	next time.Time
}

// NewSyntheticSource returns a generator for one worker. Sources created
// with the same seed produce the same sequence.
func NewSyntheticSource(cfg SyntheticConfig) *SyntheticSource {
	if cfg.MaxBurst <= 0 {
		cfg.MaxBurst = 32
	}
	return &SyntheticSource{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
}

// Receive implements Source.
func (s *SyntheticSource) Receive(buf []Packet) int {
	if s.cfg.Interval > 0 {
		now := s.now()
		if now.Before(s.next) {
			return 0
		}
		s.next = now.Add(s.cfg.Interval)
	}
	n := 1 + s.rng.IntN(s.cfg.MaxBurst)
	if n > len(buf) {
		n = len(buf)
	}
	var peers []peer.Key
	if s.cfg.Peers != nil {
		peers = s.cfg.Peers.Load()
	}
	for i := 0; i < n; i++ {
		s.fill(&buf[i], peers)
	}
	return n
}

func (s *SyntheticSource) fill(p *Packet, peers []peer.Key) {
	*p = Packet{Len: 64 + s.rng.IntN(1437)}

	if len(peers) == 0 || s.rng.IntN(4) == 0 {
		s.outbound(p)
		return
	}

	p.HasPeer = true
	if s.cfg.UnknownPeerRatio > 0 && s.rng.Float64() < s.cfg.UnknownPeerRatio {
		p.Peer = unknownPeer
	} else {
		p.Peer = peers[s.rng.IntN(len(peers))]
	}
	p.Verdict = s.verdict()
	switch p.Verdict {
	case counter.Valid:
		p.Action = InboundForward
	case counter.RateLimitBestEffort:
		p.Action = InboundForward
		p.BestEffort = true
	case counter.PeerError:
		p.Action = InboundDrop
		p.HasError = true
		p.Error = counter.WorkerError
	default:
		p.Action = InboundDrop
	}
}

func (s *SyntheticSource) outbound(p *Packet) {
	switch r := s.rng.IntN(1000); {
	case r < 5:
		p.Action = OutboundDrop
		p.HasError = true
		p.Error = counter.OutboundNoKey
	case r < 8:
		p.Action = OutboundDrop
		p.HasError = true
		p.Error = counter.OutboundError
	case r < 20:
		p.Action = UnknownForward
	case r < 25:
		p.Action = UnknownDrop
	default:
		p.Action = OutboundForward
	}
}

func (s *SyntheticSource) verdict() counter.Field {
	r := s.rng.IntN(1000)
	for _, v := range verdictWeights {
		if r < v.weight {
			return v.field
		}
		r -= v.weight
	}
	return counter.Valid
}
