package stats

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/szibis/lf-telemetry/internal/buildinfo"
	"github.com/szibis/lf-telemetry/internal/command"
	"github.com/szibis/lf-telemetry/internal/counter"
	"github.com/szibis/lf-telemetry/internal/peer"
)

var testInfo = buildinfo.Info{
	Major:        2,
	Version:      "2.1.0",
	Git:          "0123abcd",
	Worker:       "go",
	DRKeyFetcher: "mock",
	CBCMAC:       "aesni",
	LogDPLevel:   3,
	GoVersion:    "go1.25.7",
	Flags:        "-tags \"netgo\"\nstatic",
}

func newTestRegistry(t *testing.T, c *Context) *command.Registry {
	t.Helper()
	reg := command.NewRegistry()
	if err := RegisterCommands(reg, c, testInfo); err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestRegisterCommandsTwice(t *testing.T) {
	c := newTestContext(t, Options{Workers: 1})
	reg := newTestRegistry(t, c)
	if err := RegisterCommands(reg, c, testInfo); err == nil {
		t.Error("second registration accepted")
	}
	cmds := reg.Commands()
	for _, want := range []string{CmdVersion, CmdWorkerStats, CmdPeerStats, CmdPeerStatsList} {
		found := false
		for _, got := range cmds {
			if got == want {
				found = true
			}
		}
		if !found {
			t.Errorf("%s not registered (have %v)", want, cmds)
		}
	}
}

func TestCommandsOnFreshContext(t *testing.T) {
	c := newTestContext(t, Options{Workers: 2})
	reg := newTestRegistry(t, c)

	out := reg.Handle(CmdWorkerStats)
	ws := gjson.GetBytes(out, CmdWorkerStats)
	if !ws.IsObject() {
		t.Fatalf("worker stats = %s", out)
	}
	n := 0
	ws.ForEach(func(k, v gjson.Result) bool {
		if v.Uint() != 0 {
			t.Errorf("%s = %d on fresh context", k, v.Uint())
		}
		n++
		return true
	})
	if n != counter.WorkerSchema.Len() {
		t.Errorf("%d worker fields, want %d", n, counter.WorkerSchema.Len())
	}

	out = reg.Handle(CmdPeerStats)
	ps := gjson.GetBytes(out, CmdPeerStats)
	if !ps.IsObject() || ps.Get("valid").Uint() != 0 {
		t.Errorf("peer stats = %s", out)
	}

	out = reg.Handle(CmdPeerStatsList)
	if string(out) != `{"`+CmdPeerStatsList+`":[]}` {
		t.Errorf("peer list = %s", out)
	}
}

func TestPeerListAfterApply(t *testing.T) {
	c := newTestContext(t, Options{Workers: 2})
	reg := newTestRegistry(t, c)
	if err := c.ApplyConfig([]peer.Key{peer.NewKey(0x1ff0000000110, 0)}); err != nil {
		t.Fatal(err)
	}

	out := reg.Handle(CmdPeerStatsList)
	list := gjson.GetBytes(out, CmdPeerStatsList).Array()
	if len(list) != 1 || list[0].String() != "1-ff00:0:110, 0" {
		t.Fatalf("peer list = %s", out)
	}

	// The list entry is accepted back as a peer stats parameter.
	out = reg.Handle(CmdPeerStats + "," + list[0].String())
	if !gjson.GetBytes(out, CmdPeerStats).IsObject() {
		t.Errorf("peer stats for listed peer = %s", out)
	}
}

func TestPeerListBeyondDictionaryLimit(t *testing.T) {
	c := newTestContext(t, Options{Workers: 2})
	reg := newTestRegistry(t, c)
	keys := make([]peer.Key, command.MaxEntries+904)
	for i := range keys {
		keys[i] = peer.NewKey(0x1ff0000000000|uint64(i), uint16(i%2))
	}
	if err := c.ApplyConfig(keys); err != nil {
		t.Fatal(err)
	}

	out := reg.Handle(CmdPeerStatsList)
	list := gjson.GetBytes(out, CmdPeerStatsList).Array()
	if len(list) != len(keys) {
		t.Fatalf("listed %d of %d peers", len(list), len(keys))
	}
	last := list[len(list)-1].String()
	if got := gjson.GetBytes(reg.Handle(CmdPeerStats+","+last), CmdPeerStats); !got.IsObject() {
		t.Errorf("peer stats for %q = %s", last, got.Raw)
	}
}

func TestWorkerStatsCommand(t *testing.T) {
	c := newTestContext(t, Options{Workers: 2})
	reg := newTestRegistry(t, c)
	c.Worker(0).Add(counter.RxPkts, 5)
	c.Worker(1).Add(counter.RxPkts, 3)

	path := CmdWorkerStats + ".rx_pkts"
	tests := []struct {
		line string
		want int64
	}{
		{CmdWorkerStats, 8},
		{CmdWorkerStats + ",0", 5},
		{CmdWorkerStats + ",1", 3},
		{CmdWorkerStats + ", 1 ", 3},
	}
	for _, tt := range tests {
		out := reg.Handle(tt.line)
		got := gjson.GetBytes(out, path)
		if !got.Exists() || got.Int() != tt.want {
			t.Errorf("%q: rx_pkts = %s (response %s), want %d", tt.line, got.Raw, out, tt.want)
		}
	}

	for _, bad := range []string{",2", ",-1", ",abc", ",0x1"} {
		out := reg.Handle(CmdWorkerStats + bad)
		if string(out) != `{"`+CmdWorkerStats+`":null}` {
			t.Errorf("%q: response %s, want null", bad, out)
		}
	}
}

func TestPeerStatsCommand(t *testing.T) {
	c := newTestContext(t, Options{Workers: 2})
	reg := newTestRegistry(t, c)
	a := peer.NewKey(0x1ff0000000110, 0)
	b := peer.NewKey(0x1ff0000000111, 1)
	if err := c.ApplyConfig([]peer.Key{a, b}); err != nil {
		t.Fatal(err)
	}
	c.Worker(0).AddPeer(a, counter.Valid, 2)
	c.Worker(1).AddPeer(a, counter.Valid, 1)
	c.Worker(1).AddPeer(b, counter.InvalidMAC, 4)

	base := CmdPeerStats
	out := reg.Handle(CmdPeerStats + ",1-ff00:0:110,0")
	if got := gjson.GetBytes(out, base+".valid").Int(); got != 3 {
		t.Errorf("valid = %d (response %s)", got, out)
	}
	out = reg.Handle(CmdPeerStats)
	if got := gjson.GetBytes(out, base+".valid").Int(); got != 3 {
		t.Errorf("aggregate valid = %d", got)
	}
	if got := gjson.GetBytes(out, base+".invalid_mac").Int(); got != 4 {
		t.Errorf("aggregate invalid_mac = %d", got)
	}

	for _, bad := range []string{"abc", "1-ff00:0:110", "1-ff00:0:112,0", "1-ff00:0:110,70000"} {
		out := reg.Handle(CmdPeerStats + "," + bad)
		if string(out) != `{"`+CmdPeerStats+`":null}` {
			t.Errorf("%q: response %s, want null", bad, out)
		}
	}

	if err := c.ApplyConfig([]peer.Key{b}); err != nil {
		t.Fatal(err)
	}
	out = reg.Handle(CmdPeerStats + ",1-ff00:0:110,0")
	if string(out) != `{"`+CmdPeerStats+`":null}` {
		t.Errorf("removed peer response %s", out)
	}
	out = reg.Handle(CmdPeerStatsList)
	if strings.Contains(string(out), "1-ff00:0:110,") {
		t.Errorf("removed peer still listed: %s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	c := newTestContext(t, Options{Workers: 1})
	reg := newTestRegistry(t, c)
	base := CmdVersion

	out := reg.Handle(CmdVersion)
	major := gjson.GetBytes(out, base+".version major")
	if major.Type != gjson.Number || major.Int() != 2 {
		t.Errorf("version major = %s (response %s)", major.Raw, out)
	}
	for field, want := range map[string]string{
		"version":       "2.1.0",
		"git":           "0123abcd",
		"worker":        "go",
		"drkey_fetcher": "mock",
		"cbc_mac":       "aesni",
	} {
		if got := gjson.GetBytes(out, base+"."+field).String(); got != want {
			t.Errorf("%s = %q, want %q", field, got, want)
		}
	}
	if got := gjson.GetBytes(out, base+".log_dp_level").Int(); got != 3 {
		t.Errorf("log_dp_level = %d", got)
	}

	out = reg.Handle(CmdVersion + ",all")
	all := gjson.GetBytes(out, base+".all")
	if !all.Exists() {
		t.Fatalf("all missing: %s", out)
	}
	if gjson.GetBytes(out, base+".version").Exists() {
		t.Error("extended version repeats the short fields")
	}
	// The blob is escaped before it is stored, so a JSON decoder gets the
	// escaped text back, not the raw blob.
	want, err := command.EscapeJSON(testInfo.All(), versionAllMaxLen)
	if err != nil {
		t.Fatal(err)
	}
	if all.String() != want {
		t.Errorf("all = %q, want %q", all.String(), want)
	}
	if !strings.Contains(all.String(), `\n`) || strings.Contains(all.String(), "\n") {
		t.Errorf("all = %q", all.String())
	}

	out = reg.Handle(CmdVersion + ",bogus")
	if string(out) != `{"`+CmdVersion+`":null}` {
		t.Errorf("bogus parameter response %s", out)
	}
}

func TestCommandsAfterClose(t *testing.T) {
	c := newTestContext(t, Options{Workers: 1})
	reg := newTestRegistry(t, c)
	c.Close()
	for _, cmd := range []string{CmdWorkerStats, CmdPeerStats, CmdPeerStatsList} {
		if out := reg.Handle(cmd); string(out) != `{"`+cmd+`":null}` {
			t.Errorf("%s after Close = %s", cmd, out)
		}
	}
}
