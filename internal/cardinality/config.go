// Package cardinality counts the distinct untracked peers seen by the
// workers: sources whose verdicts were dropped because no peer store holds
// them. A burst of new untracked peers usually means a missing entry in the
// peer configuration.
package cardinality

import (
	"fmt"
	"time"
)

// Mode selects the tracker implementation.
type Mode int

const (
	// ModeHLL estimates the count with a HyperLogLog sketch. Memory is
	// fixed at about 12KB.
	ModeHLL Mode = iota
	// ModeBloom counts first sightings through a Bloom filter. It may
	// slightly undercount because of false positives.
	ModeBloom
	// ModeExact keeps every key.
	ModeExact
	// ModeOff disables tracking.
	ModeOff
)

func (m Mode) String() string {
	switch m {
	case ModeHLL:
		return "hll"
	case ModeBloom:
		return "bloom"
	case ModeExact:
		return "exact"
	case ModeOff:
		return "off"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name. The empty string selects ModeHLL.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "hll":
		return ModeHLL, nil
	case "bloom":
		return ModeBloom, nil
	case "exact":
		return ModeExact, nil
	case "off":
		return ModeOff, nil
	}
	return ModeOff, fmt.Errorf("unknown cardinality mode %q (want hll, bloom, exact or off)", s)
}

// Config configures a Tracker.
type Config struct {
	Mode Mode
	// ExpectedItems sizes the Bloom filter.
	ExpectedItems uint
	// FalsePositiveRate is the Bloom filter target, e.g. 0.01.
	FalsePositiveRate float64
	// Window is how long counts accumulate before the tracker resets.
	Window time.Duration
	// Workers is the number of worker queues feeding the tracker.
	Workers int
}

// DefaultConfig returns the HLL mode over five minute windows, with Bloom
// sizing for 10K peers.
func DefaultConfig() Config {
	return Config{
		Mode:              ModeHLL,
		ExpectedItems:     10000,
		FalsePositiveRate: 0.01,
		Window:            5 * time.Minute,
	}
}
