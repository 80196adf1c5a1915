package core

// Version is the service version, set at build time via ldflags:
//
//	go build -ldflags "-X refinery/core.Version=$(git describe --tags --always)" .
//
// Defaults to "dev" when not injected.
var Version = "dev"

// BuildTime is the build timestamp, set at build time via ldflags:
//
//	go build -ldflags "-X refinery/core.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" .
var BuildTime = "unknown"

// GitCommit is the git commit hash, set at build time via ldflags:
//
//	go build -ldflags "-X refinery/core.GitCommit=$(git rev-parse --short HEAD)" .
var GitCommit = "unknown"

// GetVersion returns the service version string.
func GetVersion() string {
	return Version
}

// GetVersionInfo returns a formatted version information string.
//
// Examples:
//   - "v1.0.0 (built 2026-01-15T10:30:00Z, commit abc1234)"
//   - "dev (built unknown, commit unknown)"
func GetVersionInfo() string {
	return Version + " (built " + BuildTime + ", commit " + GitCommit + ")"
}
