// Package version holds build metadata injected via -ldflags.
package version

var (
	// Version is the release tag, e.g. "v1.2.0".
	Version = "dev"
	// Commit is the short git hash of the build.
	Commit = "unknown"
	// BuildDate is the UTC build timestamp.
	BuildDate = ""
)
