package config

import "runtime/debug"

// Set at link time, for example:
//
//	go build -ldflags "-X vega/internal/config.version=1.2.3 \
//	    -X vega/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X vega/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected metadata. Commit and build time
// fall back to the VCS stamp the Go toolchain embeds when ldflags were not
// given.
func NewBuildInfo() BuildInfo {
	info := BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = withVCSFallback(info, bi)
	}
	return info
}

func withVCSFallback(info BuildInfo, bi *debug.BuildInfo) BuildInfo {
	fromVCS, dirty := false, false
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "none" && s.Value != "" {
				info.Commit = s.Value[:min(len(s.Value), 12)]
				fromVCS = true
			}
		case "vcs.time":
			if info.BuildTime == "unknown" && s.Value != "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if fromVCS && dirty {
		info.Commit += "-dirty"
	}
	return info
}

// String renders "version (commit, buildTime)".
func (b BuildInfo) String() string {
	return b.Version + " (" + b.Commit + ", " + b.BuildTime + ")"
}
