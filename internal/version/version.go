// Package version carries the build stamp injected through ldflags by the
// release pipeline. A local build reports "dev".
package version

import (
	"fmt"
	"runtime"
)

var (
	GitVersion    = "dev"
	BuildMetadata = ""
	GitCommit     = ""
	GitTreeState  = ""
)

func GetVersion() string {
	if BuildMetadata != "" {
		return fmt.Sprintf("%s+%s", GitVersion, BuildMetadata)
	}
	return GitVersion
}

// GetVersionInfo is the full stamp printed by --version.
func GetVersionInfo() map[string]string {
	return map[string]string{
		"version":      GetVersion(),
		"gitCommit":    GitCommit,
		"gitTreeState": GitTreeState,
		"goVersion":    runtime.Version(),
		"platform":     fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
