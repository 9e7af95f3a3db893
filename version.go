package quillsign

import (
	"fmt"
	"runtime"
)

var (
	// Version is the SDK semantic version (injected at build time optionally).
	Version = "v0.4.0"
	// GitCommit is the git SHA (inject via -ldflags at build time).
	GitCommit = "unknown"
	// GoVersion records the Go toolchain version used.
	GoVersion = runtime.Version()
)

// userAgent returns the default User-Agent header value.
func userAgent() string {
	return fmt.Sprintf("quillsign-go/%s (%s)", Version, GoVersion)
}

// GetVersionInfo returns version metadata as a map for logging.
func GetVersionInfo() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     GitCommit,
		"go_version": GoVersion,
	}
}
