package version

import "fmt"

// Set via -ldflags "-X mcpd/internal/version.Version=... -X mcpd/internal/version.Commit=...".
var (
	Version = "0.1.0-dev"
	Commit  = "unknown"
)

func String() string {
	return fmt.Sprintf("mcpd %s (%s)", Version, Commit)
}
