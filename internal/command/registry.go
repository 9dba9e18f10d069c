// Package command implements a registry of named read-only query commands
// with telemetry-socket semantics: a request line "<command>[,<params>]"
// yields {"<command>": <data>} on success and {"<command>": null} on error.
package command

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzhttp"

	"github.com/szibis/lf-telemetry/internal/logging"
)

// Request limits.
const (
	MaxCommandLen = 56
	MaxLineLen    = 1024
)

var (
	ErrInvalidParams  = errors.New("invalid parameters")
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidCommand = errors.New("invalid command name")
	ErrDuplicate      = errors.New("command already registered")
)

// Handler fills d for one invocation of cmd. params is empty when the caller
// passed none. A non-nil error discards d and yields a null response.
type Handler func(cmd, params string, d *Data) error

type entry struct {
	fn   Handler
	help string
}

// Registry maps command names to handlers. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	cmds map[string]entry
}

// NewRegistry returns a registry with the built-in "/" (list commands) and
// "/help" commands.
func NewRegistry() *Registry {
	r := &Registry{cmds: make(map[string]entry)}
	r.cmds["/"] = entry{fn: r.listCommands, help: "Returns the list of available commands. Takes no parameters"}
	r.cmds["/help"] = entry{fn: r.helpCommand, help: "Returns help text for a command. Parameters: string command"}
	return r
}

func validCommand(name string) error {
	if len(name) < 2 || len(name) > MaxCommandLen || name[0] != '/' {
		return fmt.Errorf("%w: %q", ErrInvalidCommand, name)
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '/':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidCommand, name)
		}
	}
	return nil
}

// Register adds a command. Names start with "/" and contain only letters,
// digits, "_" and "/".
func (r *Registry) Register(name, help string, fn Handler) error {
	if err := validCommand(name); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("command %s: nil handler", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cmds[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.cmds[name] = entry{fn: fn, help: help}
	return nil
}

// Commands returns the registered command names in sorted order.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.cmds))
	for name := range r.cmds {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *Registry) listCommands(_, _ string, d *Data) error {
	d.StartArray()
	for _, name := range r.Commands() {
		if err := d.AddArrayString(name); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) helpCommand(cmd, params string, d *Data) error {
	if params == "" {
		return fmt.Errorf("%w: %s requires a command name", ErrInvalidParams, cmd)
	}
	r.mu.RLock()
	e, ok := r.cmds[params]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, params)
	}
	d.StartDict()
	return d.AddDictString(cmd, e.help)
}

// SplitLine separates a request line into command and parameters.
func SplitLine(line string) (cmd, params string) {
	line = strings.TrimSpace(line)
	cmd, params, _ = strings.Cut(line, ",")
	return cmd, params
}

// Execute runs one request line and returns the command name and its
// response data.
func (r *Registry) Execute(line string) (string, *Data, error) {
	if len(line) > MaxLineLen {
		return "", nil, fmt.Errorf("%w: request longer than %d bytes", ErrInvalidParams, MaxLineLen)
	}
	cmd, params := SplitLine(line)
	r.mu.RLock()
	e, ok := r.cmds[cmd]
	r.mu.RUnlock()
	if !ok {
		return cmd, nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
	d := &Data{}
	if err := e.fn(cmd, params, d); err != nil {
		return cmd, nil, err
	}
	return cmd, d, nil
}

// encode renders {"<cmd>": <data>}; nil data encodes as null.
func encode(cmd string, d *Data) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	value{str: cmd}.appendJSON(&buf)
	buf.WriteByte(':')
	if d == nil {
		buf.WriteString("null")
	} else {
		d.appendJSON(&buf)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// Handle runs a request line and returns the encoded response. Failures are
// logged and produce a null payload.
func (r *Registry) Handle(line string) []byte {
	cmd, d, err := r.Execute(line)
	if err != nil {
		logging.Warn("command failed", logging.F(
			"component", "telemetry",
			"command", cmd,
			"error", err.Error(),
		))
	}
	return encode(cmd, d)
}

// ServeHTTP answers GET ?q=<line> and POST with the line as body. An empty
// request lists the available commands.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var line string
	switch req.Method {
	case http.MethodGet, http.MethodHead:
		line = req.URL.Query().Get("q")
	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(req.Body, MaxLineLen+1))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		line = string(body)
	default:
		w.Header().Set("Allow", "GET, HEAD, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(line) == "" {
		line = "/"
	}

	cmd, d, err := r.Execute(line)
	status := http.StatusOK
	switch {
	case errors.Is(err, ErrUnknownCommand):
		status = http.StatusNotFound
	case err != nil:
		status = http.StatusBadRequest
	}
	if err != nil {
		logging.Warn("command failed", logging.F(
			"component", "telemetry",
			"command", cmd,
			"error", err.Error(),
		))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if req.Method != http.MethodHead {
		_, _ = w.Write(encode(cmd, d))
	}
}

// HTTPHandler returns r wrapped with gzip response compression.
func (r *Registry) HTTPHandler() http.Handler {
	return gzhttp.GzipHandler(r)
}
