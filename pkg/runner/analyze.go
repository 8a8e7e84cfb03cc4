package runner

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/mightora/playwright-powerplatform/internal/logger"
)

// Caps on how many artifacts of each kind the failure summary lists. A broken
// environment can produce hundreds of screenshots; the first few tell the
// story.
const (
	maxResultFiles = 3
	maxScreenshots = 5
	maxTraces      = 3
	maxVideos      = 3
)

// configEnvVars are the variables the test framework reads. The failure
// summary reports presence or absence only, never values.
var configEnvVars = []string{
	"APP_URL",
	"APP_NAME",
	"O365_USERNAME",
	"O365_PASSWORD",
	"TENANT_ID",
	"DYNAMICS_URL",
	"CLIENT_ID",
	"ROLE",
	"TEAM",
	"BUSINESS_UNIT",
}

// FailureReport is the diagnostic summary built after a failed run.
type FailureReport struct {
	Results     []string
	Screenshots []string
	Traces      []string
	Videos      []string
	EnvHints    []string
}

// AnalyzeFailure walks the results directory for diagnostic artifacts. env
// is the map that was serialized into the test subprocess; the report notes
// which of the known variables it carried. Purely best-effort: walk errors
// are ignored and it never fails the run.
func AnalyzeFailure(resultsDir string, env map[string]string) *FailureReport {
	var files []string
	_ = filepath.WalkDir(resultsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})

	report := &FailureReport{
		Results:     firstN(lo.Filter(files, hasExt(".json")), maxResultFiles),
		Screenshots: firstN(lo.Filter(files, hasExt(".png", ".jpg", ".jpeg")), maxScreenshots),
		Traces:      firstN(lo.Filter(files, hasExt(".zip")), maxTraces),
		Videos:      firstN(lo.Filter(files, hasExt(".webm")), maxVideos),
	}

	for _, name := range configEnvVars {
		if _, ok := env[name]; ok {
			report.EnvHints = append(report.EnvHints, name+" is set")
		} else {
			report.EnvHints = append(report.EnvHints, name+" is not set")
		}
	}
	return report
}

// Log writes the report as warnings so it lands next to the failing exit
// code in the pipeline log.
func (r *FailureReport) Log() {
	logCategory("result file", r.Results)
	logCategory("screenshot", r.Screenshots)
	logCategory("trace", r.Traces)
	logCategory("video", r.Videos)
	for _, hint := range r.EnvHints {
		logger.Warnf("env: %s", hint)
	}
}

func logCategory(kind string, paths []string) {
	if len(paths) == 0 {
		logger.Warnf("no %ss found", kind)
		return
	}
	for _, p := range paths {
		logger.Warnf("%s: %s", kind, p)
	}
}

func hasExt(exts ...string) func(string, int) bool {
	return func(path string, _ int) bool {
		ext := strings.ToLower(filepath.Ext(path))
		for _, e := range exts {
			if ext == e {
				return true
			}
		}
		return false
	}
}

func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
