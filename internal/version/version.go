// Package version holds build-time identifiers, overridden via -ldflags.
package version

var (
	// Version is the released version, e.g. "1.4.0". Set via -ldflags.
	Version = "dev"
	// Commit is the short git commit SHA the binary was built from.
	Commit = "unknown"
)
