// Package version exposes build metadata for the bot binary.
package version

import (
	"fmt"
	"runtime/debug"
)

// Version is the release version, overridable by ldflags at build time.
var Version = "dev"

// CommitHash is the git revision, overridable by ldflags at build time.
var CommitHash = ""

// GetInfo returns "version (shorthash)", falling back to the VCS info
// embedded by the Go toolchain when no ldflags were set.
func GetInfo() string {
	if CommitHash == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" {
					CommitHash = setting.Value
					break
				}
			}
		}
	}

	if CommitHash == "" {
		return Version
	}
	short := CommitHash
	if len(short) > 7 {
		short = short[:7]
	}
	return fmt.Sprintf("%s (%s)", Version, short)
}
