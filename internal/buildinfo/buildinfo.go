// Package buildinfo describes the running binary for the version command.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
)

// Set at link time with -ldflags "-X github.com/szibis/lf-telemetry/internal/buildinfo.version=...".
var (
	version      = "0.0.0-dev"
	gitRevision  = ""
	workerKind   = "go"
	drkeyFetcher = "none"
	cbcMAC       = "none"
	logDPLevel   = "0"
	buildFlags   = ""
)

// Info is a snapshot of the build metadata.
type Info struct {
	Major        int
	Version      string
	Git          string
	Worker       string
	DRKeyFetcher string
	CBCMAC       string
	LogDPLevel   int
	GoVersion    string
	Flags        string
}

// Get returns the build metadata of the running binary. The git revision
// falls back to the VCS stamp embedded by the go tool.
func Get() Info {
	info := Info{
		Major:        parseMajor(version),
		Version:      version,
		Git:          gitRevision,
		Worker:       workerKind,
		DRKeyFetcher: drkeyFetcher,
		CBCMAC:       cbcMAC,
		GoVersion:    runtime.Version(),
		Flags:        buildFlags,
	}
	info.LogDPLevel, _ = strconv.Atoi(logDPLevel)
	if info.Git == "" {
		info.Git = vcsRevision()
	}
	return info
}

func vcsRevision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	rev, dirty := "", false
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return "unknown"
	}
	if dirty {
		rev += "-dirty"
	}
	return rev
}

// parseMajor extracts the leading integer of a version such as "v2.1.0".
func parseMajor(v string) int {
	v = strings.TrimPrefix(v, "v")
	end := strings.IndexFunc(v, func(r rune) bool { return r < '0' || r > '9' })
	if end == 0 {
		return 0
	}
	if end > 0 {
		v = v[:end]
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// All renders the extended, multi-line version description.
func (i Info) All() string {
	var b strings.Builder
	fmt.Fprintf(&b, "lf-telemetry %s\n", i.Version)
	fmt.Fprintf(&b, "git: %s\n", i.Git)
	fmt.Fprintf(&b, "go: %s %s/%s\n", i.GoVersion, runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "worker: %s\n", i.Worker)
	fmt.Fprintf(&b, "drkey_fetcher: %s\n", i.DRKeyFetcher)
	fmt.Fprintf(&b, "cbc_mac: %s\n", i.CBCMAC)
	fmt.Fprintf(&b, "log_dp_level: %d\n", i.LogDPLevel)
	if i.Flags != "" {
		fmt.Fprintf(&b, "build flags: \"%s\"\n", i.Flags)
	}
	return b.String()
}

// String returns the short version line printed by --version.
func (i Info) String() string {
	return fmt.Sprintf("lf-telemetry %s (git %s, %s)", i.Version, i.Git, i.GoVersion)
}
