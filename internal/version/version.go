// Package version provides build-time version information.
package version

import (
	"fmt"
	"runtime"
)

// Name is the program name reported by the binary and in User-Agent headers.
const Name = "open-accountability"

// Build-time variables set via ldflags.
// Example: go build -ldflags="-X github.com/ac-freeman/open-accountability/internal/version.Version=v1.0.0"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func shortCommit() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}

// Short returns the version string (e.g., "v1.2.3" or "dev").
func Short() string {
	return Version
}

// Info returns a single-line version string.
// Format: "open-accountability v1.2.3 (commit: abc1234, built: 2024-01-15T10:30:00Z, go: go1.24.x)"
func Info() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s)",
		Name, Version, shortCommit(), BuildDate, runtime.Version())
}

// Full returns a multi-line verbose version output.
func Full() string {
	return fmt.Sprintf(`%s %s
  Commit:     %s
  Built:      %s
  Go version: %s
  OS/Arch:    %s/%s`,
		Name, Version, Commit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent identifies the agent to the backend, e.g.
// "open-accountability/v1.2.3 (linux; commit abc1234)".
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s; commit %s)", Name, Version, runtime.GOOS, shortCommit())
}
