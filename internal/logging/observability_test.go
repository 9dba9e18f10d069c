package logging

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func getCounterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := cv.WithLabelValues(labels...).Write(m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestLogMetrics_AutoComponent(t *testing.T) {
	captureOutput(t)

	base := getCounterValue(t, logMessagesTotal, "WARN", "logging", "general")
	Warn("something odd")
	if d := getCounterValue(t, logMessagesTotal, "WARN", "logging", "general") - base; d != 1 {
		t.Errorf("counter delta = %v, want 1", d)
	}
}

func TestLogMetrics_ExplicitLabels(t *testing.T) {
	captureOutput(t)

	base := getCounterValue(t, logMessagesTotal, "ERROR", "statistics", "custom")
	Error("x", F("component", "statistics", "operation", "custom"))
	if d := getCounterValue(t, logMessagesTotal, "ERROR", "statistics", "custom") - base; d != 1 {
		t.Errorf("counter delta = %v, want 1", d)
	}
}

func TestSetLevel_SuppressesOutputAndHookButCounts(t *testing.T) {
	buf := captureOutput(t)

	hookCalls := 0
	SetHook(func(Level, string, map[string]interface{}) { hookCalls++ })
	SetLevel(LevelError)

	base := getCounterValue(t, logMessagesTotal, "INFO", "logging", "general")
	Info("hidden")
	Warn("hidden")
	Error("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "visible") {
		t.Errorf("unexpected output: %q", out)
	}
	if hookCalls != 1 {
		t.Errorf("hook calls = %d, want 1", hookCalls)
	}
	if d := getCounterValue(t, logMessagesTotal, "INFO", "logging", "general") - base; d != 1 {
		t.Error("suppressed messages must still be counted")
	}
}

func TestDebugHiddenByDefault(t *testing.T) {
	buf := captureOutput(t)
	Debug("noisy")
	if buf.Len() != 0 {
		t.Errorf("debug written at INFO level: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{" warn ", LevelWarn},
		{"WARNING", LevelWarn},
		{"error", LevelError},
		{"FATAL", LevelFatal},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestGetLevel(t *testing.T) {
	captureOutput(t)

	SetLevel(LevelWarn)
	if got := GetLevel(); got != LevelWarn {
		t.Errorf("GetLevel() = %q, want WARN", got)
	}
	SetLevel("")
	if got := GetLevel(); got != LevelInfo {
		t.Errorf("GetLevel() for unset level = %q, want INFO", got)
	}
}

func TestDetectOperation(t *testing.T) {
	tests := []struct {
		msg      string
		expected string
	}{
		{"reclaimed retired peer counters", "reclaim"},
		{"waiting for quiescent state", "reclaim"},
		{"peer configuration applied", "apply"},
		{"failed to apply peer configuration", "apply"},
		{"reconciling divergent stores", "apply"},
		{"peer counter skipped", "peers"},
		{"command failed", "command"},
		{"telemetry exporter ready", "telemetry"},
		{"worker 3 started", "worker"},
		{"config file unreadable", "config"},
		{"reload requested", "config"},
		{"shutdown complete", "lifecycle"},
		{"http server started", "lifecycle"},
		{"nothing special", "general"},
	}
	for _, tt := range tests {
		if got := detectOperation(tt.msg); got != tt.expected {
			t.Errorf("detectOperation(%q) = %q, want %q", tt.msg, got, tt.expected)
		}
	}
}
