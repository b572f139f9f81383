// Package version holds build-time identifiers for the binaries and the
// offline shell cache.
package version

import "fmt"

// Version, Commit and ShellVersion are injected with -ldflags at build time.
//
// ShellVersion is the deploy-time suffix of the shell cache name. Bumping it
// on every release of the static assets makes the next install create a fresh
// cache store and the following activation purge the old one.
var (
	Version      = "0.1.0"
	Commit       = "dev"
	ShellVersion = "v1"
)

// Full returns the version string printed on startup.
func Full() string {
	return fmt.Sprintf("fairway-edge %s (%s)", Version, Commit)
}
