// Package version holds build metadata stamped in at link time:
//
//	go build -ldflags "-X github.com/dmelnik/streamgather/internal/version.Version=1.0.0 \
//	                   -X github.com/dmelnik/streamgather/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/dmelnik/streamgather/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	// Version is the release version, "dev" for unstamped builds.
	Version = "dev"

	// Commit is the short git revision.
	Commit = "unknown"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// String renders the full build identifier.
func String() string {
	return Version + "+" + Commit + " (" + BuildTime + ")"
}
