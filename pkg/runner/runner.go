package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mightora/playwright-powerplatform/pkg/cmdexec"
)

const (
	// defaultWorkers keeps test parallelism low; shared CI hosts run out of
	// memory well before a Playwright run saturates its workers.
	defaultWorkers = 2
	// defaultMaxFailures stops the suite early once it is clear the
	// environment, not the tests, is broken.
	defaultMaxFailures = 5

	resultsDirName = "test-results"
	reportDirName  = "playwright-report"
)

// RunSpec is one test-runner invocation.
type RunSpec struct {
	Browser   string
	TraceMode string
	Workers   int
	MaxFail   int
	// Env is serialized into the subprocess environment at launch; this is
	// the only boundary where configuration leaves the process.
	Env map[string]string
	// PathPrefix is an optional bin directory to prepend to PATH.
	PathPrefix string
}

// TestRunResult carries the runner's exit code, the authoritative pass/fail
// signal. The report directories are side effects.
type TestRunResult struct {
	ExitCode   int
	ResultsDir string
	ReportDir  string
}

// Driver shells out to the cloned framework's own Playwright installation.
type Driver struct {
	exec         cmdexec.Runner
	frameworkDir string
}

func NewDriver(exec cmdexec.Runner, frameworkDir string) *Driver {
	return &Driver{exec: exec, frameworkDir: frameworkDir}
}

// Run executes one `npx playwright test` invocation scoped to a single
// browser. Launch failure is an error; a non-zero test exit is a normal
// result.
func (d *Driver) Run(ctx context.Context, spec RunSpec) (*TestRunResult, error) {
	workers := spec.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	maxFail := spec.MaxFail
	if maxFail <= 0 {
		maxFail = defaultMaxFailures
	}

	args := []string{
		"playwright", "test",
		"--project", spec.Browser,
		fmt.Sprintf("--workers=%d", workers),
		fmt.Sprintf("--max-failures=%d", maxFail),
	}
	if spec.TraceMode != "" && spec.TraceMode != "off" {
		args = append(args, "--trace", spec.TraceMode)
	}

	res, err := d.exec.Run(ctx, cmdexec.Command{
		Name: "npx",
		Args: args,
		Dir:  d.frameworkDir,
		Env:  buildEnv(spec),
	})
	if err != nil {
		return nil, err
	}

	return &TestRunResult{
		ExitCode:   res.ExitCode,
		ResultsDir: filepath.Join(d.frameworkDir, resultsDirName),
		ReportDir:  filepath.Join(d.frameworkDir, reportDirName),
	}, nil
}

func buildEnv(spec RunSpec) []string {
	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		env = append(env, k+"="+spec.Env[k])
	}
	if spec.PathPrefix != "" {
		env = append(env, "PATH="+spec.PathPrefix+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
	return env
}
