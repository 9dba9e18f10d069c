// Package health serves the /live and /ready probes.
package health

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Status is the state of the process or of one component.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusStarting Status = "starting"
)

// ComponentCheck is the result of one readiness check.
type ComponentCheck struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the JSON body of both probes.
type Response struct {
	Status     Status                    `json:"status"`
	Components map[string]ComponentCheck `json:"components,omitempty"`
	Timestamp  string                    `json:"timestamp"`
}

// CheckFunc returns nil when the component is healthy.
type CheckFunc func() error

// Checker holds the readiness checks and the process lifecycle state.
// Readiness stays down until MarkStarted is called.
type Checker struct {
	mu           sync.RWMutex
	checks       map[string]CheckFunc
	started      atomic.Bool
	shuttingDown atomic.Bool
	now          func() time.Time
}

// New returns a Checker with no readiness checks.
func New() *Checker {
	return &Checker{checks: make(map[string]CheckFunc), now: time.Now}
}

// RegisterReadiness adds or replaces a named check run on every /ready.
func (c *Checker) RegisterReadiness(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// MarkStarted is called once the initial peer configuration is applied.
func (c *Checker) MarkStarted() { c.started.Store(true) }

// SetShuttingDown makes both probes fail.
func (c *Checker) SetShuttingDown() { c.shuttingDown.Store(true) }

func (c *Checker) timestamp() string { return c.now().UTC().Format(time.RFC3339) }

func (c *Checker) shutdownResponse() Response {
	return Response{
		Status:     StatusDown,
		Components: map[string]ComponentCheck{"process": {Status: StatusDown, Message: "shutting down"}},
		Timestamp:  c.timestamp(),
	}
}

// LiveHandler reports whether the process is running and not stopping.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if c.shuttingDown.Load() {
			writeJSON(w, http.StatusServiceUnavailable, c.shutdownResponse())
			return
		}
		writeJSON(w, http.StatusOK, Response{Status: StatusUp, Timestamp: c.timestamp()})
	}
}

// Ready runs every check and returns the aggregated response.
func (c *Checker) Ready() Response {
	if c.shuttingDown.Load() {
		return c.shutdownResponse()
	}
	if !c.started.Load() {
		return Response{
			Status:     StatusStarting,
			Components: map[string]ComponentCheck{"process": {Status: StatusStarting}},
			Timestamp:  c.timestamp(),
		}
	}

	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	checks := make([]CheckFunc, len(names))
	sort.Strings(names)
	for i, name := range names {
		checks[i] = c.checks[name]
	}
	c.mu.RUnlock()

	resp := Response{
		Status:     StatusUp,
		Components: make(map[string]ComponentCheck, len(names)),
		Timestamp:  c.timestamp(),
	}
	for i, name := range names {
		if err := checks[i](); err != nil {
			resp.Status = StatusDown
			resp.Components[name] = ComponentCheck{Status: StatusDown, Message: err.Error()}
			continue
		}
		resp.Components[name] = ComponentCheck{Status: StatusUp}
	}
	return resp
}

// ReadyHandler serves Ready, with 503 unless every check passed.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := c.Ready()
		code := http.StatusOK
		if resp.Status != StatusUp {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

func writeJSON(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// StatsContext is the part of stats.Context the readiness checks read.
type StatsContext interface {
	Divergent() bool
	CheckMirrored() error
	Pending() int
}

// ErrDivergent is reported while the workers' peer stores disagree with the
// last applied configuration.
var ErrDivergent = errors.New("peer stores diverge from the applied configuration")

// PeerStoresCheck fails while a partial apply is unrepaired or the worker
// peer stores are not mirrored.
func PeerStoresCheck(s StatsContext) CheckFunc {
	return func() error {
		if s.Divergent() {
			return ErrDivergent
		}
		return s.CheckMirrored()
	}
}

// ReclaimBacklogCheck fails when more than limit retired peer entries wait
// for reclamation, which means a worker stopped reporting quiescent states.
// A limit of zero disables the check.
func ReclaimBacklogCheck(s StatsContext, limit int) CheckFunc {
	return func() error {
		if limit <= 0 {
			return nil
		}
		if n := s.Pending(); n > limit {
			return fmt.Errorf("%d retired peer entries pending reclamation (limit %d)", n, limit)
		}
		return nil
	}
}
