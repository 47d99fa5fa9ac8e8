// Package version carries build metadata injected with -ldflags -X.
package version

import "fmt"

var (
	// Version is the semantic version of the binary.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// String renders the build description printed by `ratebot version`.
func String() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s", Version, Commit, BuildDate)
}

// UserAgent identifies the binary to rate providers.
func UserAgent() string {
	return "ratebot/" + Version
}
