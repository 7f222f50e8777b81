package version

import (
	"runtime/debug"
	"strings"
)

// Build metadata, set with -ldflags "-X github.com/floegence/d2dpair/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String returns "version (commit) date". Placeholder values are filled from
// the module build info when available and omitted otherwise.
func String() string {
	return format(Version, Commit, Date, readBuildInfo)
}

func readBuildInfo() (*debug.BuildInfo, bool) { return debug.ReadBuildInfo() }

func format(v, c, d string, info func() (*debug.BuildInfo, bool)) string {
	v, c, d = strings.TrimSpace(v), strings.TrimSpace(c), strings.TrimSpace(d)
	if bi, ok := info(); ok && bi != nil {
		if isPlaceholder(v) && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			v = bi.Main.Version
		}
		if isPlaceholder(c) {
			c = setting(bi, "vcs.revision")
		}
		if isPlaceholder(d) {
			d = setting(bi, "vcs.time")
		}
	}
	if isPlaceholder(v) {
		v = "dev"
	}
	out := v
	if !isPlaceholder(c) {
		out += " (" + c + ")"
	}
	if !isPlaceholder(d) {
		out += " " + d
	}
	return out
}

func isPlaceholder(s string) bool {
	return s == "" || s == "dev" || s == "unknown" || s == "(devel)"
}

func setting(bi *debug.BuildInfo, key string) string {
	for _, s := range bi.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}
