package logging

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Level represents log severity level.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
	LevelFatal Level = "FATAL"
)

// severityNumbers maps OTEL severity text to OTEL severity number.
// See https://opentelemetry.io/docs/specs/otel/logs/data-model/#severity-fields
var severityNumbers = map[Level]int{
	LevelDebug: 5,  // DEBUG
	LevelInfo:  9,  // INFO
	LevelWarn:  13, // WARN
	LevelError: 17, // ERROR
	LevelFatal: 21, // FATAL
}

// SeverityNumber returns the OTEL severity number for a level.
func SeverityNumber(level Level) int {
	return severityNumbers[level]
}

// ParseLevel converts a case-insensitive level name to a Level.
// Unknown or empty names map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	default:
		return LevelInfo
	}
}

var logMessagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lf_log_messages_total",
		Help: "Log messages by level, emitting package and operation (counted even when suppressed by the level)",
	},
	[]string{"level", "component", "operation"},
)

func init() {
	prometheus.MustRegister(logMessagesTotal)
}

// LogHook is called for every log entry, allowing secondary log sinks
// (e.g., OTLP log export) without the logging package importing them.
type LogHook func(level Level, msg string, attrs map[string]interface{})

// Logger provides JSON structured logging in OTEL-compatible format.
type Logger struct {
	mu       sync.Mutex
	output   io.Writer
	resource map[string]string
	hook     LogHook
	minLevel Level
}

// LogEntry represents a single log entry in OTEL-compatible JSON format.
type LogEntry struct {
	Timestamp      string                 `json:"Timestamp"`
	SeverityText   string                 `json:"SeverityText"`
	SeverityNumber int                    `json:"SeverityNumber"`
	Body           string                 `json:"Body"`
	Attributes     map[string]interface{} `json:"Attributes,omitempty"`
	Resource       map[string]string      `json:"Resource,omitempty"`
}

var defaultLogger = &Logger{output: os.Stdout, minLevel: LevelInfo}

// SetOutput sets the output writer for the default logger.
func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.output = w
}

// SetLevel sets the minimum level written by the default logger.
// Suppressed messages are still counted in lf_log_messages_total.
func SetLevel(level Level) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.minLevel = level
}

// GetLevel returns the minimum level of the default logger.
func GetLevel() Level {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	if defaultLogger.minLevel == "" {
		return LevelInfo
	}
	return defaultLogger.minLevel
}

// SetResource sets the OTEL resource attributes (service.name, service.version, etc.)
// for the default logger. Should be called once at startup.
func SetResource(resource map[string]string) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.resource = resource
}

// SetHook registers a hook that is called for every log entry.
// Used by the telemetry package to forward logs via OTLP.
func SetHook(hook LogHook) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.hook = hook
}

// operationKeywords is scanned in order; the first keyword found in the
// lower-cased message names the operation.
var operationKeywords = []struct {
	keyword   string
	operation string
}{
	{"reclaim", "reclaim"},
	{"quiescen", "reclaim"},
	{"apply", "apply"},
	{"applied", "apply"},
	{"reconcil", "apply"},
	{"peer", "peers"},
	{"command", "command"},
	{"telemetry", "telemetry"},
	{"worker", "worker"},
	{"config", "config"},
	{"reload", "config"},
	{"startup", "lifecycle"},
	{"shutdown", "lifecycle"},
	{"started", "lifecycle"},
	{"stopped", "lifecycle"},
}

func detectOperation(msg string) string {
	lower := strings.ToLower(msg)
	for _, k := range operationKeywords {
		if strings.Contains(lower, k.keyword) {
			return k.operation
		}
	}
	return "general"
}

// callerComponent returns the directory name of the source file skip frames
// above it, which is the package name for this repository's layout.
func callerComponent(skip int) string {
	_, file, _, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	return filepath.Base(filepath.Dir(file))
}

func stringAttr(attrs map[string]interface{}, key string) (string, bool) {
	if attrs == nil {
		return "", false
	}
	v, ok := attrs[key].(string)
	return v, ok && v != ""
}

// log writes a structured log entry in OTEL-compatible JSON format.
// It must be called directly by the exported level functions so the caller
// frame lookup resolves to the logging package's caller.
func (l *Logger) log(level Level, msg string, attrs map[string]interface{}) {
	component, ok := stringAttr(attrs, "component")
	if !ok {
		component = callerComponent(2)
	}
	operation, ok := stringAttr(attrs, "operation")
	if !ok {
		operation = detectOperation(msg)
	}
	logMessagesTotal.WithLabelValues(string(level), component, operation).Inc()

	l.mu.Lock()
	min := l.minLevel
	if min == "" {
		min = LevelInfo
	}
	if severityNumbers[level] < severityNumbers[min] {
		l.mu.Unlock()
		return
	}

	entry := LogEntry{
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		SeverityText:   string(level),
		SeverityNumber: severityNumbers[level],
		Body:           msg,
		Attributes:     attrs,
	}
	if l.resource != nil {
		entry.Resource = l.resource
	}
	hook := l.hook
	data, err := json.Marshal(entry)
	if err != nil {
		entry.Attributes = map[string]interface{}{"marshal_error": err.Error()}
		data, _ = json.Marshal(entry)
	}
	if l.output != nil {
		_, _ = l.output.Write(append(data, '\n'))
	}
	l.mu.Unlock()

	// Call hook outside the lock to avoid deadlocks
	if hook != nil {
		hook(level, msg, attrs)
	}
}

func fieldsOf(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// Debug logs a debug level message.
func Debug(msg string, fields ...map[string]interface{}) {
	defaultLogger.log(LevelDebug, msg, fieldsOf(fields))
}

// Info logs an info level message.
func Info(msg string, fields ...map[string]interface{}) {
	defaultLogger.log(LevelInfo, msg, fieldsOf(fields))
}

// Warn logs a warning level message.
func Warn(msg string, fields ...map[string]interface{}) {
	defaultLogger.log(LevelWarn, msg, fieldsOf(fields))
}

// Error logs an error level message.
func Error(msg string, fields ...map[string]interface{}) {
	defaultLogger.log(LevelError, msg, fieldsOf(fields))
}

// Fatal logs a fatal level message and exits.
func Fatal(msg string, fields ...map[string]interface{}) {
	defaultLogger.log(LevelFatal, msg, fieldsOf(fields))
	os.Exit(1)
}

// F is a helper to create fields map.
func F(keyvals ...interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keyvals)/2)
	for i := 0; i < len(keyvals)-1; i += 2 {
		if key, ok := keyvals[i].(string); ok {
			fields[key] = keyvals[i+1]
		}
	}
	return fields
}
