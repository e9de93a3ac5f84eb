// Package version reports build metadata for the heycam binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Populated by the release build via -ldflags. Defaults describe a
// source build.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return fmt.Sprintf("heycam %s (commit=%s, date=%s, go=%s)",
		Version, resolveCommit(), Date, runtime.Version())
}

// resolveCommit falls back to the revision embedded by the Go toolchain
// when the build skipped -ldflags, as `go install` builds do.
func resolveCommit() string {
	if Commit != "none" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Commit
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			if len(setting.Value) > 12 {
				return setting.Value[:12]
			}
			return setting.Value
		}
	}
	return Commit
}
