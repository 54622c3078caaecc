// Package version holds build information injected with -ldflags, e.g.
//
//	go build -ldflags "-X chatgate/internal/version.Version=v1.2.0 -X chatgate/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a one-line description of the build.
func Info() string {
	return fmt.Sprintf("chatgate %s (commit %s, built %s)", Version, Commit, Date)
}
