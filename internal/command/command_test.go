package command

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestEscapeJSON(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		maxLen int
		want   string
		err    bool
	}{
		{"plain", "lightning filter 1.2", 64, "lightning filter 1.2", false},
		{"empty", "", 0, "", false},
		{"newline", "a\nb", 64, `a\nb`, false},
		{"backslash", `a\b`, 64, `a\\b`, false},
		{"quote", `say "hi"`, 64, `say \"hi\"`, false},
		{"all specials", "\n\\\"", 64, `\n\\\"`, false},
		{"stops at NUL", "abc\x00def\n", 64, "abc", false},
		{"tab untouched", "a\tb", 64, "a\tb", false},
		{"exact fit", "ab\n", 4, `ab\n`, false},
		{"one short", "ab\n", 3, "", true},
		{"escape split at bound", "abc\"", 4, "", true},
		{"plain overflow", "abcdef", 5, "", true},
		{"negative bound", "a", -1, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EscapeJSON(tt.in, tt.maxLen)
			if tt.err {
				if !errors.Is(err, ErrEscapeOverflow) {
					t.Fatalf("err = %v, want ErrEscapeOverflow", err)
				}
				if got != "" {
					t.Errorf("partial output %q returned on overflow", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("EscapeJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEscapeJSONLengthBound(t *testing.T) {
	inputs := []string{"", "x", "\n\n\n", `\"\"`, strings.Repeat("a\"b\n", 50), "no specials at all"}
	for _, in := range inputs {
		out, err := EscapeJSON(in, 2*len(in))
		if err != nil {
			t.Errorf("EscapeJSON(%q, 2n): %v", in, err)
			continue
		}
		if len(out) > 2*len(in) {
			t.Errorf("output %d bytes for %d input bytes", len(out), len(in))
		}
		specials := strings.Count(in, "\n") + strings.Count(in, `\`) + strings.Count(in, `"`)
		if len(out) != len(in)+specials {
			t.Errorf("EscapeJSON(%q) length %d, want %d", in, len(out), len(in)+specials)
		}
		// The escaped form must decode back as a JSON string.
		if gjson.Parse(`"`+out+`"`).String() != in {
			t.Errorf("EscapeJSON(%q) does not round-trip through JSON", in)
		}
	}
}

func TestDataEncoding(t *testing.T) {
	var d Data
	if b, _ := d.MarshalJSON(); string(b) != "null" {
		t.Errorf("unset data = %s", b)
	}

	d.StartDict()
	_ = d.AddDictInt("version major", -1)
	_ = d.AddDictUint("rx_pkts", 1<<63)
	_ = d.AddDictString("git", `a"b`)
	b, _ := d.MarshalJSON()
	if want := `{"version major":-1,"rx_pkts":9223372036854775808,"git":"a\"b"}`; string(b) != want {
		t.Errorf("dict = %s, want %s", b, want)
	}

	d.StartArray()
	_ = d.AddArrayString("1-ff00:0:110, 0")
	_ = d.AddArrayUint(3)
	b, _ = d.MarshalJSON()
	if want := `["1-ff00:0:110, 0",3]`; string(b) != want {
		t.Errorf("array = %s, want %s", b, want)
	}
}

func TestDataErrors(t *testing.T) {
	var d Data
	if err := d.AddDictUint("x", 1); err == nil {
		t.Error("adding to unset data must fail")
	}
	d.StartArray()
	if err := d.AddDictUint("x", 1); err == nil {
		t.Error("dict add on array must fail")
	}
	d.StartDict()
	for _, name := range []string{"", `a"b`, "a\nb", strings.Repeat("n", MaxNameLen+1)} {
		if err := d.AddDictUint(name, 1); err == nil {
			t.Errorf("name %q accepted", name)
		}
	}
	for i := 0; i < MaxEntries; i++ {
		if err := d.AddDictUint(fmt.Sprintf("f%d", i), 1); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.AddDictUint("overflow", 1); err == nil {
		t.Error("entry limit not enforced")
	}
}

func TestDataArrayHasNoEntryLimit(t *testing.T) {
	var d Data
	d.StartArray()
	for i := 0; i < MaxEntries+10; i++ {
		if err := d.AddArrayUint(uint64(i)); err != nil {
			t.Fatalf("element %d: %v", i, err)
		}
	}
	if d.Len() != MaxEntries+10 {
		t.Errorf("Len = %d", d.Len())
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	err := r.Register("/test/echo", "Echoes its parameter.", func(cmd, params string, d *Data) error {
		if params == "" {
			return ErrInvalidParams
		}
		d.StartDict()
		return d.AddDictString("params", params)
	})
	if err != nil {
		t.Fatal(err)
	}
	err = r.Register("/test/big", "Large array.", func(_, _ string, d *Data) error {
		d.StartArray()
		for i := 0; i < 300; i++ {
			if err := d.AddArrayString(fmt.Sprintf("entry-%04d-padding", i)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()
	noop := func(string, string, *Data) error { return nil }
	for _, name := range []string{"", "/", "lf/version", "/lf version", "/lf,x", "/" + strings.Repeat("a", MaxCommandLen)} {
		if err := r.Register(name, "", noop); !errors.Is(err, ErrInvalidCommand) {
			t.Errorf("Register(%q) err = %v, want ErrInvalidCommand", name, err)
		}
	}
	if err := r.Register("/lf/version", "", noop); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("/lf/version", "", noop); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate err = %v", err)
	}
	if err := r.Register("/lf/nil", "", nil); err == nil {
		t.Error("nil handler accepted")
	}
}

func TestHandle(t *testing.T) {
	r := newTestRegistry(t)

	out := r.Handle("/test/echo,1-ff00:0:110,0")
	if got := gjson.GetBytes(out, "/test/echo.params").String(); got != "1-ff00:0:110,0" {
		t.Errorf("params = %q (response %s)", got, out)
	}

	out = r.Handle("/test/echo")
	if string(out) != `{"/test/echo":null}` {
		t.Errorf("error response = %s", out)
	}

	out = r.Handle("/nope")
	if string(out) != `{"/nope":null}` {
		t.Errorf("unknown command response = %s", out)
	}

	out = r.Handle("/")
	cmds := gjson.GetBytes(out, "/").Array()
	if len(cmds) != 4 || cmds[0].String() != "/" || cmds[3].String() != "/test/echo" {
		t.Errorf("command list = %s", out)
	}

	out = r.Handle("/help,/test/echo")
	if got := gjson.GetBytes(out, "/help./help").String(); got != "Echoes its parameter." {
		t.Errorf("help = %s", out)
	}
	if out := r.Handle("/help,/missing"); string(out) != `{"/help":null}` {
		t.Errorf("help for missing command = %s", out)
	}

	if out := r.Handle(strings.Repeat("x", MaxLineLen+1)); !strings.HasSuffix(string(out), "null}") {
		t.Errorf("oversized line = %s", out)
	}
}

func TestServeHTTP(t *testing.T) {
	r := newTestRegistry(t)
	srv := httptest.NewServer(r.HTTPHandler())
	defer srv.Close()

	get := func(q string) (*http.Response, []byte) {
		t.Helper()
		resp, err := http.Get(srv.URL + "/telemetry?q=" + q)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatal(err)
		}
		return resp, body
	}

	resp, body := get("/test/echo,abc")
	if resp.StatusCode != http.StatusOK || gjson.GetBytes(body, "/test/echo.params").String() != "abc" {
		t.Errorf("status %d body %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	if resp, body = get("/test/echo"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status %d body %s", resp.StatusCode, body)
	}
	if resp, _ = get("/missing"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown command status %d", resp.StatusCode)
	}
	if _, body = get(""); !gjson.GetBytes(body, "/").IsArray() {
		t.Errorf("empty query must list commands: %s", body)
	}

	post, err := http.Post(srv.URL+"/telemetry", "text/plain", strings.NewReader("/test/echo,xyz"))
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(post.Body)
	post.Body.Close()
	if gjson.GetBytes(body, "/test/echo.params").String() != "xyz" {
		t.Errorf("POST body %s", body)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/telemetry", nil)
	del, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	del.Body.Close()
	if del.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("DELETE status %d", del.StatusCode)
	}
}

func TestServeHTTPCompressesLargeResponses(t *testing.T) {
	r := newTestRegistry(t)
	srv := httptest.NewServer(r.HTTPHandler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/telemetry?q=/test/big", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q", resp.Header.Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(gjson.GetBytes(body, "/test/big").Array()); n != 300 {
		t.Errorf("decoded %d entries, want 300", n)
	}
}
