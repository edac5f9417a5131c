// Package version exposes build metadata stamped in via ldflags.
package version

import "runtime"

var (
	// Version is the release version, overridden at build time.
	Version = "dev"
	// GitCommit is the short commit hash, overridden at build time.
	GitCommit = "unknown"
	// BuildDate is the build timestamp, overridden at build time.
	BuildDate = "unknown"
)

// Info is the full build description served over the API.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get assembles the build description from the stamped variables and
// the running toolchain.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
