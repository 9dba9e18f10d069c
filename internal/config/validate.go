package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/szibis/lf-telemetry/internal/peer"
)

// ValidationSeverity is the severity of a validation issue.
type ValidationSeverity string

const (
	// SeverityError prevents startup.
	SeverityError ValidationSeverity = "error"
	// SeverityWarning is reported but does not prevent startup.
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is one finding.
type ValidationIssue struct {
	Severity ValidationSeverity `json:"severity"`
	Field    string             `json:"field"`
	Message  string             `json:"message"`
}

// ValidationResult is the output of ValidateFile.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	File   string            `json:"file"`
	Peers  int               `json:"peers"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// JSON returns the result as indented JSON.
func (r *ValidationResult) JSON() string {
	data, _ := json.MarshalIndent(r, "", "  ")
	return string(data)
}

func (r *ValidationResult) add(sev ValidationSeverity, field, msg string) {
	if sev == SeverityError {
		r.Valid = false
	}
	r.Issues = append(r.Issues, ValidationIssue{Severity: sev, Field: field, Message: msg})
}

// ValidateFile loads a configuration file and reports every problem found
// instead of stopping at the first.
func ValidateFile(path string) *ValidationResult {
	result := &ValidationResult{Valid: true, File: path}

	info, err := os.Stat(path)
	if err != nil {
		result.add(SeverityError, "file", fmt.Sprintf("cannot access file: %v", err))
		return result
	}
	if info.IsDir() {
		result.add(SeverityError, "file", "path is a directory, expected a file")
		return result
	}

	y, err := LoadYAML(path)
	if err != nil {
		result.add(SeverityError, "yaml", fmt.Sprintf("YAML parse error: %v", err))
		return result
	}
	cfg, err := y.ToConfig()
	if err != nil {
		field, msg := splitFieldError(err.Error())
		result.add(SeverityError, field, msg)
		return result
	}
	result.Peers = len(cfg.Peers)

	if err := cfg.Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			field, msg := splitFieldError(line)
			result.add(SeverityError, field, msg)
		}
	}
	addWarnings(cfg, result)
	return result
}

// splitFieldError splits "field: message" and "field must ..." errors.
func splitFieldError(s string) (string, string) {
	if field, msg, ok := strings.Cut(s, ": "); ok && !strings.Contains(field, " ") {
		return field, msg
	}
	if field, _, ok := strings.Cut(s, " "); ok {
		return field, s
	}
	return "config", s
}

func addWarnings(cfg *Config, result *ValidationResult) {
	seen := make(map[peer.Key]bool, len(cfg.Peers))
	for _, k := range cfg.Peers {
		if seen[k] {
			result.add(SeverityWarning, "peers", fmt.Sprintf("peer %s is listed more than once", k))
		}
		seen[k] = true
	}
	if limit := cfg.PeerStoreMaxEntries; limit > 0 && len(seen) > limit {
		result.add(SeverityWarning, "peer_store.max_entries",
			fmt.Sprintf("%d distinct peers exceed the cap of %d; the apply will be partial", len(seen), limit))
	}
	if len(seen) == 0 && !cfg.Simulate {
		result.add(SeverityWarning, "peers", "no peers configured; only worker counters will be reported")
	}
	if cfg.ReclaimInterval == 0 {
		result.add(SeverityWarning, "stats.reclaim_interval", "periodic reclamation is disabled; removed peers are only released on the next apply")
	}
	if cfg.TelemetryEndpoint != "" && !cfg.TelemetryInsecure && isLocalhost(cfg.TelemetryEndpoint) {
		result.add(SeverityWarning, "telemetry.insecure", "TLS is enabled for a localhost endpoint")
	}
}

func isLocalhost(endpoint string) bool {
	return strings.HasPrefix(endpoint, "localhost") ||
		strings.HasPrefix(endpoint, "127.0.0.1") ||
		strings.HasPrefix(endpoint, "[::1]")
}
