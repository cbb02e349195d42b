// Package version holds build-time identifiers injected via -ldflags.
package version

// Version and Commit are overridden at build time with
// -ldflags "-X github.com/verseforge/verseforge/internal/version.Version=... -X .../Commit=...".
var (
	Version = "dev"
	Commit  = "unknown"
)
