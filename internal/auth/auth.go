// Package auth guards the statistics endpoint and builds the credentials
// sent to the OTLP collector.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

var authFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "lf_http_auth_failures_total",
	Help: "Rejected statistics endpoint requests by reason",
}, []string{"reason"})

func init() {
	prometheus.MustRegister(authFailuresTotal)
}

// ServerConfig holds the accepted credentials. A bearer token takes
// precedence over basic auth. With neither set requests pass through.
type ServerConfig struct {
	BearerToken       string
	BasicAuthUsername string
	BasicAuthPassword string
}

// Enabled reports whether any credential is configured.
func (c ServerConfig) Enabled() bool {
	return c.BearerToken != "" || (c.BasicAuthUsername != "" && c.BasicAuthPassword != "")
}

// HTTPMiddleware rejects requests without the configured credentials.
func HTTPMiddleware(cfg ServerConfig, next http.Handler) http.Handler {
	if !cfg.Enabled() {
		return next
	}
	var (
		scheme   string
		expected []byte
	)
	if cfg.BearerToken != "" {
		scheme, expected = "Bearer", []byte(cfg.BearerToken)
	} else {
		scheme, expected = "Basic", []byte(basicAuthEncoded(cfg.BasicAuthUsername, cfg.BasicAuthPassword))
	}

	reject := func(w http.ResponseWriter, reason, msg string) {
		authFailuresTotal.WithLabelValues(reason).Inc()
		w.Header().Set("WWW-Authenticate", scheme+` realm="lf-telemetry"`)
		http.Error(w, msg, http.StatusUnauthorized)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			reject(w, "missing", "missing authorization header")
			return
		}
		got, ok := strings.CutPrefix(header, scheme+" ")
		if !ok {
			reject(w, "scheme", "unsupported authorization scheme")
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			reject(w, "credentials", "invalid credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientConfig holds the credentials sent with OTLP exports.
type ClientConfig struct {
	BearerToken       string
	BasicAuthUsername string
	BasicAuthPassword string
	Headers           map[string]string
}

// HeaderMap returns Headers plus the Authorization header, if any. An
// explicit Authorization entry in Headers wins.
func (c ClientConfig) HeaderMap() map[string]string {
	h := make(map[string]string, len(c.Headers)+1)
	switch {
	case c.BearerToken != "":
		h["Authorization"] = "Bearer " + c.BearerToken
	case c.BasicAuthUsername != "" && c.BasicAuthPassword != "":
		h["Authorization"] = "Basic " + basicAuthEncoded(c.BasicAuthUsername, c.BasicAuthPassword)
	}
	for k, v := range c.Headers {
		h[k] = v
	}
	if len(h) == 0 {
		return nil
	}
	return h
}

func basicAuthEncoded(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
