package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/mightora/playwright-powerplatform/internal/logger"
	"github.com/mightora/playwright-powerplatform/pkg/cmdexec"
)

// nodeVersion is the runtime installed when the agent has none. Hosted Azure
// DevOps agents ship Node, so the install path is mostly for self-hosted
// agents.
const nodeVersion = "v20.18.1"

// EnsureRuntime verifies a usable Node installation, installing the pinned
// version when none is on PATH. Post-install verification must report a
// version or the whole run fails.
func (b *Bootstrap) EnsureRuntime(ctx context.Context) error {
	if b.runner.Available("node") {
		res, err := b.runner.Run(ctx, cmdexec.Command{
			Name:    "node",
			Args:    []string{"--version"},
			Timeout: time.Minute,
		})
		if err == nil && res.ExitCode == 0 && strings.TrimSpace(res.Stdout) != "" {
			logger.Infof("node %s already installed", strings.TrimSpace(res.Stdout))
			return nil
		}
		logger.Warnf("node is on PATH but did not report a version; reinstalling")
	}

	if err := b.installNode(ctx); err != nil {
		return err
	}

	res, err := b.runner.Run(ctx, cmdexec.Command{
		Name:    "node",
		Args:    []string{"--version"},
		Env:     b.env(),
		Timeout: time.Minute,
	})
	if err != nil {
		return &Error{Stage: "runtime", Err: err}
	}
	if res.ExitCode != 0 || strings.TrimSpace(res.Stdout) == "" {
		return &Error{Stage: "runtime", Err: errors.New("node did not report a version after installation")}
	}
	logger.Infof("installed node %s", strings.TrimSpace(res.Stdout))
	return nil
}

func (b *Bootstrap) installNode(ctx context.Context) error {
	if runtime.GOOS == "windows" {
		return &Error{Stage: "runtime", Err: fmt.Errorf("node is not on PATH and automatic installation is not supported on windows; preinstall node %s on the agent", nodeVersion)}
	}

	arch := ""
	switch runtime.GOARCH {
	case "amd64":
		arch = "x64"
	case "arm64":
		arch = "arm64"
	default:
		return &Error{Stage: "runtime", Err: fmt.Errorf("unsupported architecture %s; preinstall node %s on the agent", runtime.GOARCH, nodeVersion)}
	}

	dist := fmt.Sprintf("node-%s-%s-%s", nodeVersion, runtime.GOOS, arch)
	url := fmt.Sprintf("https://nodejs.org/dist/%s/%s.tar.gz", nodeVersion, dist)
	archive := filepath.Join(b.workDir, dist+".tar.gz")

	logger.Infof("downloading %s", url)
	if err := b.download(ctx, url, archive); err != nil {
		return &Error{Stage: "runtime", Err: err}
	}
	defer os.Remove(archive)

	res, err := b.runner.Run(ctx, cmdexec.Command{
		Name:    "tar",
		Args:    []string{"-xzf", archive, "-C", b.workDir},
		Timeout: 5 * time.Minute,
	})
	if err != nil {
		return &Error{Stage: "runtime", Err: err}
	}
	if res.ExitCode != 0 {
		return &Error{Stage: "runtime", Err: fmt.Errorf("tar exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))}
	}

	b.nodeBinDir = filepath.Join(b.workDir, dist, "bin")
	return nil
}

func (b *Bootstrap) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := b.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: HTTP %d", url, resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, resp.Body)
	return err
}
