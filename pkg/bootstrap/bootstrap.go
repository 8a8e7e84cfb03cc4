package bootstrap

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/mightora/playwright-powerplatform/pkg/cmdexec"
)

const (
	// DefaultFrameworkRepo is the pinned Playwright framework the task clones
	// when no custom repository is configured.
	DefaultFrameworkRepo = "https://github.com/mightora/playwright-powerplatform-framework.git"
	DefaultFrameworkRef  = "main"

	frameworkDirName = "playwright-framework"
)

// Error is a fatal environment-setup failure.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bootstrap %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Bootstrap prepares the agent for a test run: Node runtime, framework
// checkout, npm dependencies and the browser binary.
type Bootstrap struct {
	runner  cmdexec.Runner
	workDir string
	httpc   *http.Client

	// nodeBinDir is set when this run installed Node itself; subsequent
	// commands get it prepended to PATH.
	nodeBinDir string
}

func New(runner cmdexec.Runner, workDir string) *Bootstrap {
	if workDir == "" {
		workDir = "."
	}
	return &Bootstrap{
		runner:  runner,
		workDir: workDir,
		httpc:   http.DefaultClient,
	}
}

// FrameworkDir is where the test framework is cloned. Known before the clone
// happens so collaborators can be wired up front.
func (b *Bootstrap) FrameworkDir() string {
	return filepath.Join(b.workDir, frameworkDirName)
}

// PathPrefix returns the directory to prepend to PATH for subprocesses, or
// empty when the agent's own Node installation is in use.
func (b *Bootstrap) PathPrefix() string {
	return b.nodeBinDir
}

// env returns the environment additions for commands that must see the Node
// installation performed by this run.
func (b *Bootstrap) env() []string {
	if b.nodeBinDir == "" {
		return nil
	}
	return []string{"PATH=" + b.nodeBinDir + string(os.PathListSeparator) + os.Getenv("PATH")}
}
