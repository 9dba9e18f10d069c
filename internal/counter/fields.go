package counter

// Worker counter fields. The order must match WorkerSchema.
const (
	// traffic
	RxPkts Field = iota
	RxBytes
	TxPkts
	TxBytes
	DropPkts
	DropBytes
	BestEffortPkts
	BestEffortBytes

	// burst size
	RxBurst1To5
	RxBurst6To10
	RxBurst11To15
	RxBurst16To20
	RxBurst21To25
	RxBurst26To30
	RxBurst31Plus

	// direction and action
	UnknownDrop
	UnknownForward
	OutboundDrop
	OutboundForward
	InboundDrop
	InboundForward

	// inbound packet
	WorkerError

	// outbound packet
	OutboundError
	OutboundNoKey
)

// WorkerSchema is the per-worker outcome counter.
var WorkerSchema = NewSchema("worker",
	"rx_pkts",
	"rx_bytes",
	"tx_pkts",
	"tx_bytes",
	"drop_pkts",
	"drop_bytes",
	"besteffort_pkts",
	"besteffort_bytes",

	"rx_burst_1_5",
	"rx_burst_6_10",
	"rx_burst_11_15",
	"rx_burst_16_20",
	"rx_burst_21_25",
	"rx_burst_26_30",
	"rx_burst_31_",

	"unknown_drop",
	"unknown_forward",
	"outbound_drop",
	"outbound_forward",
	"inbound_drop",
	"inbound_forward",

	"error",

	"outbound_error",
	"outbound_no_key",
)

// Peer counter fields. The order must match PeerSchema.
const (
	PeerError Field = iota
	NoKey
	InvalidMAC
	InvalidHash
	OutdatedTimestamp
	Duplicate
	RateLimitAS
	RateLimitSystem
	RateLimitBestEffort
	Valid
)

// PeerSchema is the per-peer security verdict counter.
var PeerSchema = NewSchema("peer",
	"error",
	"no_key",
	"invalid_mac",
	"invalid_hash",
	"outdated_timestamp",
	"duplicate",
	"ratelimit_as",
	"ratelimit_system",
	"ratelimit_be",
	"valid",
)

// burstFields maps bucket index (0 for 1-5, ... 6 for 31+) to its field.
var burstFields = [...]Field{
	RxBurst1To5,
	RxBurst6To10,
	RxBurst11To15,
	RxBurst16To20,
	RxBurst21To25,
	RxBurst26To30,
	RxBurst31Plus,
}

// BurstField returns the histogram field for a received burst of n packets.
// The buckets are 1-5, 6-10, 11-15, 16-20, 21-25, 26-30 and 31+.
func BurstField(n int) Field {
	if n <= 5 {
		return burstFields[0]
	}
	i := (n - 1) / 5
	if i >= len(burstFields) {
		i = len(burstFields) - 1
	}
	return burstFields[i]
}
