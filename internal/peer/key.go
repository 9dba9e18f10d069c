// Package peer identifies monitored peers: an ISD-AS number combined with a
// DRKey protocol number.
package peer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidISDAS is returned when an ISD-AS string cannot be parsed.
	ErrInvalidISDAS = errors.New("invalid ISD-AS")
	// ErrInvalidProtocol is returned when a DRKey protocol number cannot be
	// parsed or exceeds 16 bits.
	ErrInvalidProtocol = errors.New("invalid DRKey protocol")
	// ErrInvalidKey is returned when a "<isd-as>,<protocol>" string does not
	// have exactly two components.
	ErrInvalidKey = errors.New("invalid peer key: expected <ISD-AS>,<DRKey protocol>")
)

const (
	asBits   = 48
	maxISD   = 1<<16 - 1
	maxAS    = 1<<asBits - 1
	maxBGPAS = 1<<32 - 1
)

// Size is the length of a key's wire form.
const Size = 10

// Key identifies a peer. Both fields are held in network byte order so the
// key hashes identically regardless of host endianness. Key is comparable and
// safe to use as a map key.
type Key struct {
	ia       [8]byte
	protocol [2]byte
}

// NewKey builds a key from a host-order ISD-AS and DRKey protocol.
func NewKey(isdAS uint64, protocol uint16) Key {
	var k Key
	binary.BigEndian.PutUint64(k.ia[:], isdAS)
	binary.BigEndian.PutUint16(k.protocol[:], protocol)
	return k
}

// ISDAS returns the ISD-AS in host order.
func (k Key) ISDAS() uint64 { return binary.BigEndian.Uint64(k.ia[:]) }

// Protocol returns the DRKey protocol in host order.
func (k Key) Protocol() uint16 { return binary.BigEndian.Uint16(k.protocol[:]) }

// AppendBytes appends the Size-byte wire form of k to b.
func (k Key) AppendBytes(b []byte) []byte {
	return append(append(b, k.ia[:]...), k.protocol[:]...)
}

// Compare orders keys by ISD-AS, then protocol. Big-endian storage makes
// byte order equal numeric order.
func (k Key) Compare(o Key) int {
	if c := bytes.Compare(k.ia[:], o.ia[:]); c != 0 {
		return c
	}
	return bytes.Compare(k.protocol[:], o.protocol[:])
}

// String formats the key as "<isd-as>, <protocol>", the form used by the
// peer list command. ParseKey accepts it back.
func (k Key) String() string {
	return FormatISDAS(k.ISDAS()) + ", " + strconv.FormatUint(uint64(k.Protocol()), 10)
}

// FormatISDAS formats an ISD-AS as "<isd>-<hex>:<hex>:<hex>".
func FormatISDAS(isdAS uint64) string {
	isd := isdAS >> asBits
	as := isdAS & maxAS
	return fmt.Sprintf("%d-%x:%x:%x", isd, (as>>32)&0xffff, (as>>16)&0xffff, as&0xffff)
}

// ParseISDAS parses "<isd>-<as>". The AS part is either three colon
// separated 16-bit hex groups or a decimal BGP-style AS number.
func ParseISDAS(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	isdStr, asStr, ok := strings.Cut(s, "-")
	if !ok || isdStr == "" || asStr == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidISDAS, s)
	}
	isd, err := strconv.ParseUint(isdStr, 10, 16)
	if err != nil || isd > maxISD {
		return 0, fmt.Errorf("%w: ISD %q", ErrInvalidISDAS, isdStr)
	}
	as, err := parseAS(asStr)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidISDAS, s, err)
	}
	return isd<<asBits | as, nil
}

func parseAS(s string) (uint64, error) {
	if !strings.Contains(s, ":") {
		as, err := strconv.ParseUint(s, 10, 32)
		if err != nil || as > maxBGPAS {
			return 0, fmt.Errorf("decimal AS out of range")
		}
		return as, nil
	}
	groups := strings.Split(s, ":")
	if len(groups) != 3 {
		return 0, fmt.Errorf("expected 3 hex groups, got %d", len(groups))
	}
	var as uint64
	for _, g := range groups {
		if g == "" || len(g) > 4 {
			return 0, fmt.Errorf("bad hex group %q", g)
		}
		v, err := strconv.ParseUint(g, 16, 16)
		if err != nil {
			return 0, fmt.Errorf("bad hex group %q", g)
		}
		as = as<<16 | v
	}
	return as, nil
}

// ParseProtocol parses a DRKey protocol number. Decimal, 0x-hex and 0-octal
// notations are accepted; values above 65535 are rejected.
func ParseProtocol(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidProtocol, s)
	}
	if v > 1<<16-1 {
		return 0, fmt.Errorf("%w: %d exceeds 16 bits", ErrInvalidProtocol, v)
	}
	return uint16(v), nil
}

// ParseKey parses "<isd-as>,<protocol>". Whitespace around either component
// is ignored, so the output of Key.String parses back.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	ia, err := ParseISDAS(parts[0])
	if err != nil {
		return Key{}, err
	}
	proto, err := ParseProtocol(parts[1])
	if err != nil {
		return Key{}, err
	}
	return NewKey(ia, proto), nil
}
