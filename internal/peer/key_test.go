package peer

import (
	"errors"
	"testing"
)

func TestKeyByteOrder(t *testing.T) {
	k := NewKey(0x1ff0000000110, 0x0102)
	if k.ia != [8]byte{0x00, 0x01, 0xff, 0x00, 0x00, 0x00, 0x01, 0x10} {
		t.Errorf("ia not stored big-endian: %x", k.ia)
	}
	if k.protocol != [2]byte{0x01, 0x02} {
		t.Errorf("protocol not stored big-endian: %x", k.protocol)
	}
	if k.ISDAS() != 0x1ff0000000110 || k.Protocol() != 0x0102 {
		t.Errorf("accessors returned %x, %x", k.ISDAS(), k.Protocol())
	}
	b := k.AppendBytes([]byte{0xee})
	if want := []byte{0xee, 0x00, 0x01, 0xff, 0x00, 0x00, 0x00, 0x01, 0x10, 0x01, 0x02}; string(b) != string(want) {
		t.Errorf("AppendBytes = %x", b)
	}
}

func TestFormatISDAS(t *testing.T) {
	tests := []struct {
		ia   uint64
		want string
	}{
		{0x1ff0000000110, "1-ff00:0:110"},
		{0, "0-0:0:0"},
		{0xffffffffffffffff, "65535-ffff:ffff:ffff"},
		{1<<48 | 64512, "1-0:0:fc00"},
	}
	for _, tt := range tests {
		if got := FormatISDAS(tt.ia); got != tt.want {
			t.Errorf("FormatISDAS(%#x) = %q, want %q", tt.ia, got, tt.want)
		}
	}
}

func TestParseISDAS(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"1-ff00:0:110", 0x1ff0000000110, false},
		{" 1-ff00:0:110 ", 0x1ff0000000110, false},
		{"1-64512", 1<<48 | 64512, false},
		{"65535-ffff:ffff:ffff", 0xffffffffffffffff, false},
		{"abc", 0, true},
		{"1-", 0, true},
		{"-ff00:0:110", 0, true},
		{"65536-0:0:1", 0, true},
		{"1-ff00:0", 0, true},
		{"1-ff00:0:110:1", 0, true},
		{"1-fffff:0:1", 0, true},
		{"1-ff00::110", 0, true},
		{"1-4294967296", 0, true},
		{"1-zz:0:1", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseISDAS(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidISDAS) {
				t.Errorf("ParseISDAS(%q) err = %v, want ErrInvalidISDAS", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseISDAS(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseISDAS(%q) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		in      string
		want    uint16
		wantErr bool
	}{
		{"0", 0, false},
		{" 3 ", 3, false},
		{"65535", 65535, false},
		{"0x10", 16, false},
		{"65536", 0, true},
		{"-1", 0, true},
		{"x", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseProtocol(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidProtocol) {
				t.Errorf("ParseProtocol(%q) err = %v, want ErrInvalidProtocol", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseProtocol(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("1-ff00:0:110,0")
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if k != NewKey(0x1ff0000000110, 0) {
		t.Errorf("unexpected key %v", k)
	}

	for _, in := range []string{"abc", "1-ff00:0:110", "1-ff00:0:110,0,1", ",0", "1-ff00:0:110,", ""} {
		if _, err := ParseKey(in); err == nil {
			t.Errorf("ParseKey(%q) expected error", in)
		}
	}
	if _, err := ParseKey("1-ff00:0:110,70000"); !errors.Is(err, ErrInvalidProtocol) {
		t.Errorf("expected ErrInvalidProtocol, got %v", err)
	}
	if _, err := ParseKey("abc"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for missing protocol, got %v", err)
	}
}

func TestKeyStringRoundTrip(t *testing.T) {
	keys := []Key{
		NewKey(0x1ff0000000110, 0),
		NewKey(0x2ff0000000222, 3),
		NewKey(0xffffffffffffffff, 65535),
	}
	for _, k := range keys {
		s := k.String()
		back, err := ParseKey(s)
		if err != nil {
			t.Errorf("ParseKey(%q): %v", s, err)
			continue
		}
		if back != k {
			t.Errorf("round trip %q: got %v", s, back)
		}
	}
	if got := NewKey(0x1ff0000000110, 0).String(); got != "1-ff00:0:110, 0" {
		t.Errorf("String() = %q", got)
	}
}

func TestKeyCompare(t *testing.T) {
	a := NewKey(0x1ff0000000110, 5)
	b := NewKey(0x1ff0000000110, 0x100)
	c := NewKey(0x2ff0000000001, 0)
	if a.Compare(b) >= 0 || b.Compare(c) >= 0 || a.Compare(c) >= 0 {
		t.Error("keys not ordered by ISD-AS then protocol")
	}
	if c.Compare(a) <= 0 || a.Compare(a) != 0 {
		t.Error("Compare is not antisymmetric")
	}
}
