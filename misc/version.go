// Package misc keeps program identity: name, version and source revision.
package misc

import (
	"runtime/debug"
)

// set with -ldflags "-X pxtorem/misc.version=... -X pxtorem/misc.gitHash=..."
var (
	version = "dev"
	gitHash = ""
)

const appName = "pxtorem"

func GetAppName() string {
	return appName
}

// GetVersion returns program version, module version is used when it was not
// set at link time.
func GetVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}

// GetGitHash returns source revision program was built from.
func GetGitHash() string {
	if gitHash != "" {
		return gitHash
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
