// Package version exposes the build identity of a checkpulse binary.
package version

import (
	"fmt"
	"runtime"
)

// Stamped at build time via -ldflags; the defaults describe a plain
// `go build` with no stamping.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Info is a point-in-time snapshot of the build identity, including the
// toolchain and platform the binary was compiled with.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: shortCommit(GitCommit),
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String renders the one-line form printed by `checkpulse version`.
func (i Info) String() string {
	return fmt.Sprintf("CheckPulse %s (%s) built at %s on %s",
		i.Version, i.GitCommit, i.BuildTime, i.Platform)
}

// shortCommit abbreviates a full git sha to the familiar 8 characters.
func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}
