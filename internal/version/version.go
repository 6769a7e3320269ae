// Package version reports the khcheck build version.
package version

import (
	"runtime/debug"
)

// Set with -ldflags "-X github.com/khcheck/khcheck/internal/version.version=v1.2.3"
var version = ""

var readBuildInfo = debug.ReadBuildInfo

// BuildVersion prefers the linker-set version, then the module version,
// then "dev"
func BuildVersion() string {
	if version != "" {
		return version
	}
	info, ok := readBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}

// Revision is the short VCS commit, "" when not stamped
func Revision() string {
	info, ok := readBuildInfo()
	if !ok {
		return ""
	}
	rev, dirty := "", false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev != "" && dirty {
		rev += "-dirty"
	}
	return rev
}
