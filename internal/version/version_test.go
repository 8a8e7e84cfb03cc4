package version

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersion_AppendsBuildMetadata(t *testing.T) {
	origVersion, origMeta := GitVersion, BuildMetadata
	t.Cleanup(func() { GitVersion, BuildMetadata = origVersion, origMeta })

	GitVersion, BuildMetadata = "1.4.0", ""
	assert.Equal(t, "1.4.0", GetVersion())

	BuildMetadata = "20260826.3"
	assert.Equal(t, "1.4.0+20260826.3", GetVersion())
}

func TestGetVersionInfo_CarriesRuntimeDetails(t *testing.T) {
	info := GetVersionInfo()

	assert.Equal(t, GetVersion(), info["version"])
	assert.Equal(t, runtime.Version(), info["goVersion"])
	assert.Equal(t, fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH), info["platform"])
}
