package utils

import (
	"fmt"
	"runtime/debug"
)

// Version is overridden at build time with -ldflags "-X arksync/backend/pkg/utils.Version=...".
//
//nolint:gochecknoglobals // Set by the linker
var Version = "0.1.0"

// GetVersionShort returns "v<version> (<commit>)".
func GetVersionShort() string {
	commit, _, modified := getVCSInfo()
	if modified == "true" {
		commit += "-dirty"
	}

	return fmt.Sprintf("v%s (%s)", Version, commit)
}

// GetBuildVersion returns the short version with the build time appended.
func GetBuildVersion() string {
	_, buildTime, _ := getVCSInfo()

	return fmt.Sprintf("%s built at %s", GetVersionShort(), buildTime)
}

// GetBuildInfo returns version metadata suitable for a health or info response.
func GetBuildInfo() map[string]string {
	commit, buildTime, modified := getVCSInfo()
	info := map[string]string{
		"version":      Version,
		"commit":       commit,
		"build_time":   buildTime,
		"vcs_modified": modified,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		info["go_version"] = bi.GoVersion
	}

	return info
}

func getVCSInfo() (commit, buildTime, modified string) {
	commit, buildTime, modified = "unknown", "unknown", "false"

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return commit, buildTime, modified
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
			if len(commit) > 7 {
				commit = commit[:7]
			}
		case "vcs.time":
			buildTime = s.Value
		case "vcs.modified":
			modified = s.Value
		}
	}

	return commit, buildTime, modified
}
