// Package version holds build metadata injected at link time.
package version

// Set with -ldflags "-X github.com/aristath/quantumfolio/internal/version.Version=..."
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)
