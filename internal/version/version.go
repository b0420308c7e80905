// Package version holds build metadata set via -ldflags, e.g.
//
//	go build -ldflags "-X github.com/pysugar/cloud-nexus/internal/version.Version=v0.2.0"
package version

import "runtime"

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// Info is the build metadata reported by the version command and endpoint.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildTime: BuildTime, GoVersion: runtime.Version()}
}

func (i Info) String() string {
	return i.Version + " (commit " + i.Commit + ", built " + i.BuildTime + ", " + i.GoVersion + ")"
}
