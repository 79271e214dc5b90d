// Package version carries build metadata stamped in via -ldflags.
package version

// Example: go build -ldflags "-X github.com/pysugar/workspace-mirror/internal/version.Version=v0.2.0" ./cmd/mirror
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// UserAgent is sent on every remote API call.
func UserAgent() string {
	return "workspace-mirror/" + Version
}
