// Package version reports build information for the pagesync binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/Masterminds/semver/v3"
)

// Set at build time via -ldflags "-X github.com/teranos/pagesync/version.Version=...".
var (
	CommitHash = "dev"
	BuildTime  = "unknown"
	Version    = "dev"
)

// Info describes the running binary.
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
	Release    bool   `json:"release"`
}

// Get returns the build information. When ldflags were not set, the VCS
// stamp recorded by the Go toolchain fills in the commit and time.
func Get() Info {
	info := Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if info.CommitHash == "dev" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				switch s.Key {
				case "vcs.revision":
					info.CommitHash = s.Value
				case "vcs.time":
					info.BuildTime = s.Value
				}
			}
		}
	}
	_, err := Semver(info.Version)
	info.Release = err == nil
	return info
}

// Semver parses v as a semantic version. A leading "v" is accepted.
func Semver(v string) (*semver.Version, error) {
	return semver.NewVersion(v)
}

// AtLeast reports whether the running version is min or newer. Development
// builds satisfy every constraint.
func AtLeast(min string) (bool, error) {
	c, err := semver.NewConstraint(">= " + min)
	if err != nil {
		return false, err
	}
	cur, err := Semver(Version)
	if err != nil {
		return true, nil
	}
	return c.Check(cur), nil
}

func (i Info) String() string {
	if i.Release {
		return fmt.Sprintf("pagesync %s (commit %s, built %s)", i.Version, i.Short(), i.BuildTime)
	}
	return fmt.Sprintf("pagesync dev (commit %s, built %s)", i.Short(), i.BuildTime)
}

// Short returns the abbreviated commit hash.
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}
