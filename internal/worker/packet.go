package worker

import (
	"github.com/szibis/lf-telemetry/internal/counter"
	"github.com/szibis/lf-telemetry/internal/peer"
	"github.com/szibis/lf-telemetry/internal/stats"
)

// Action is the forwarding decision taken for a packet.
type Action uint8

const (
	UnknownDrop Action = iota
	UnknownForward
	OutboundDrop
	OutboundForward
	InboundDrop
	InboundForward
)

var actionFields = [...]counter.Field{
	UnknownDrop:     counter.UnknownDrop,
	UnknownForward:  counter.UnknownForward,
	OutboundDrop:    counter.OutboundDrop,
	OutboundForward: counter.OutboundForward,
	InboundDrop:     counter.InboundDrop,
	InboundForward:  counter.InboundForward,
}

var actionNames = [...]string{
	UnknownDrop:     "unknown_drop",
	UnknownForward:  "unknown_forward",
	OutboundDrop:    "outbound_drop",
	OutboundForward: "outbound_forward",
	InboundDrop:     "inbound_drop",
	InboundForward:  "inbound_forward",
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "invalid"
}

// Forwarded reports whether the packet leaves the filter.
func (a Action) Forwarded() bool {
	return a == UnknownForward || a == OutboundForward || a == InboundForward
}

// Packet is the outcome of processing one received packet.
type Packet struct {
	Len    int
	Action Action
	// BestEffort marks forwarded packets that passed on the best-effort
	// rate limit.
	BestEffort bool

	// HasPeer is set for inbound packets attributed to a source peer.
	HasPeer bool
	Peer    peer.Key
	// Verdict is the peer counter field for the packet's check result.
	Verdict counter.Field

	// HasError is set when Error names a worker counter for a packet-level
	// failure.
	HasError bool
	Error    counter.Field
}

// Record updates the worker's counters for one packet. It reports whether a
// peer verdict was attributed; verdicts for untracked peers are dropped.
func Record(w *stats.Worker, p *Packet) bool {
	n := uint64(p.Len)
	w.Inc(counter.RxPkts)
	w.Add(counter.RxBytes, n)

	switch {
	case p.Action.Forwarded():
		w.Inc(counter.TxPkts)
		w.Add(counter.TxBytes, n)
		if p.BestEffort {
			w.Inc(counter.BestEffortPkts)
			w.Add(counter.BestEffortBytes, n)
		}
	default:
		w.Inc(counter.DropPkts)
		w.Add(counter.DropBytes, n)
	}
	if int(p.Action) < len(actionFields) {
		w.Inc(actionFields[p.Action])
	}
	if p.HasError {
		w.Inc(p.Error)
	}

	if !p.HasPeer {
		return false
	}
	return w.AddPeer(p.Peer, p.Verdict, 1)
}
