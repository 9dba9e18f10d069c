package auth

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func do(h http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/telemetry", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTTPMiddlewareDisabled(t *testing.T) {
	for _, cfg := range []ServerConfig{{}, {BasicAuthUsername: "only-user"}} {
		if cfg.Enabled() {
			t.Errorf("%+v reported enabled", cfg)
		}
		if rec := do(HTTPMiddleware(cfg, okHandler), ""); rec.Code != http.StatusOK {
			t.Errorf("%+v: status %d", cfg, rec.Code)
		}
	}
}

func TestHTTPMiddleware(t *testing.T) {
	bearer := HTTPMiddleware(ServerConfig{BearerToken: "s3cret", BasicAuthUsername: "u", BasicAuthPassword: "p"}, okHandler)
	basic := HTTPMiddleware(ServerConfig{BasicAuthUsername: "ops", BasicAuthPassword: "pw"}, okHandler)

	for _, tc := range []struct {
		name   string
		h      http.Handler
		header string
		code   int
		reason string
	}{
		{"bearer ok", bearer, "Bearer s3cret", http.StatusOK, ""},
		{"bearer wrong", bearer, "Bearer nope", http.StatusUnauthorized, "credentials"},
		{"bearer missing", bearer, "", http.StatusUnauthorized, "missing"},
		{"bearer wins over basic", bearer, "Basic " + basicAuthEncoded("u", "p"), http.StatusUnauthorized, "scheme"},
		{"basic ok", basic, "Basic " + basicAuthEncoded("ops", "pw"), http.StatusOK, ""},
		{"basic wrong", basic, "Basic " + basicAuthEncoded("ops", "bad"), http.StatusUnauthorized, "credentials"},
		{"basic raw token", basic, "s3cret", http.StatusUnauthorized, "scheme"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var before float64
			if tc.reason != "" {
				before = testutil.ToFloat64(authFailuresTotal.WithLabelValues(tc.reason))
			}
			rec := do(tc.h, tc.header)
			if rec.Code != tc.code {
				t.Fatalf("status %d, want %d", rec.Code, tc.code)
			}
			if tc.reason == "" {
				return
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate")
			}
			if got := testutil.ToFloat64(authFailuresTotal.WithLabelValues(tc.reason)) - before; got != 1 {
				t.Errorf("failure counter delta %v", got)
			}
		})
	}
}

func TestClientHeaderMap(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  ClientConfig
		want map[string]string
	}{
		{"empty", ClientConfig{}, nil},
		{"bearer", ClientConfig{BearerToken: "tok"}, map[string]string{"Authorization": "Bearer tok"}},
		{"basic", ClientConfig{BasicAuthUsername: "a", BasicAuthPassword: "b"}, map[string]string{"Authorization": "Basic YTpi"}},
		{"headers", ClientConfig{BearerToken: "tok", Headers: map[string]string{"x-tenant": "lf"}},
			map[string]string{"Authorization": "Bearer tok", "x-tenant": "lf"}},
		{"explicit header wins", ClientConfig{BearerToken: "tok", Headers: map[string]string{"Authorization": "Custom x"}},
			map[string]string{"Authorization": "Custom x"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cfg.HeaderMap(); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("HeaderMap() = %v, want %v", got, tc.want)
			}
		})
	}
}
