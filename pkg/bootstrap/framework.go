package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mightora/playwright-powerplatform/internal/logger"
	"github.com/mightora/playwright-powerplatform/pkg/cmdexec"
)

// FetchFramework clones the test framework repository into FrameworkDir,
// replacing any checkout left over from a previous run. A non-empty ref
// selects that branch or tag; otherwise the default branch is used.
func (b *Bootstrap) FetchFramework(ctx context.Context, repoURL, ref string) error {
	if !b.runner.Available("git") {
		return &Error{Stage: "clone", Err: errors.New("git is not installed on this agent")}
	}
	if repoURL == "" {
		repoURL = DefaultFrameworkRepo
	}

	dir := b.FrameworkDir()
	if err := os.RemoveAll(dir); err != nil {
		return &Error{Stage: "clone", Err: fmt.Errorf("remove stale checkout: %w", err)}
	}

	args := []string{"clone", "--depth", "1"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, repoURL, dir)

	logger.Infof("cloning %s (ref %q)", repoURL, ref)
	res, err := b.runner.Run(ctx, cmdexec.Command{
		Name:    "git",
		Args:    args,
		Env:     b.env(),
		Timeout: 10 * time.Minute,
	})
	if err != nil {
		return &Error{Stage: "clone", Err: err}
	}
	if res.ExitCode != 0 {
		return &Error{Stage: "clone", Err: fmt.Errorf("git clone exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))}
	}
	return nil
}

// InstallDependencies installs the framework's locked npm packages and the
// browser binary for exactly the requested browser. Installing one browser
// instead of all three is a deliberate setup-time optimization.
func (b *Bootstrap) InstallDependencies(ctx context.Context, browser string) error {
	dir := b.FrameworkDir()

	res, err := b.runner.Run(ctx, cmdexec.Command{
		Name:    "npm",
		Args:    []string{"ci"},
		Dir:     dir,
		Env:     b.env(),
		Timeout: 15 * time.Minute,
	})
	if err != nil || res.ExitCode != 0 {
		logger.Warnf("npm ci failed, falling back to npm install")
		res, err = b.runner.Run(ctx, cmdexec.Command{
			Name:    "npm",
			Args:    []string{"install"},
			Dir:     dir,
			Env:     b.env(),
			Timeout: 15 * time.Minute,
		})
		if err != nil {
			return &Error{Stage: "dependencies", Err: err}
		}
		if res.ExitCode != 0 {
			return &Error{Stage: "dependencies", Err: fmt.Errorf("npm install exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))}
		}
	}

	res, err = b.runner.Run(ctx, cmdexec.Command{
		Name:    "npx",
		Args:    []string{"playwright", "install", browser},
		Dir:     dir,
		Env:     b.env(),
		Timeout: 15 * time.Minute,
	})
	if err != nil {
		return &Error{Stage: "browser install", Err: err}
	}
	if res.ExitCode != 0 {
		return &Error{Stage: "browser install", Err: fmt.Errorf("playwright install %s exited %d: %s", browser, res.ExitCode, strings.TrimSpace(res.Stderr))}
	}

	// OS-level dependencies are a warning only: most CI images already have
	// them and the install needs root.
	res, err = b.runner.Run(ctx, cmdexec.Command{
		Name:    "npx",
		Args:    []string{"playwright", "install-deps", browser},
		Dir:     dir,
		Env:     b.env(),
		Timeout: 15 * time.Minute,
	})
	if err != nil {
		logger.Warnf("playwright install-deps failed: %v", err)
	} else if res.ExitCode != 0 {
		logger.Warnf("playwright install-deps exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	return nil
}
