package cmdexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Command describes a single external process invocation. Arguments are
// passed as an argv vector, never through a shell.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env entries are appended to the parent environment at launch. This is
	// the only point where configuration crosses into a subprocess.
	Env []string
	// Timeout of zero means no deadline beyond the caller's context.
	Timeout time.Duration
}

type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner runs external commands. The default implementation execs the real
// binary; tests substitute a stub.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
	Available(name string) bool
}

// LaunchError reports that a process could not be started at all, as opposed
// to starting and exiting non-zero.
type LaunchError struct {
	Name string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %q: %v", e.Name, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

type ExecRunner struct {
	MaxOutputSize int64
}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		MaxOutputSize: 10 * 1024 * 1024,
	}
}

func (r *ExecRunner) Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// Run executes the command and captures its output. A non-zero exit status is
// reported through Result.ExitCode, not as an error; errors are reserved for
// launch failures, timeouts and oversized output.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	startTime := time.Now()

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	proc := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	if cmd.Dir != "" {
		proc.Dir = cmd.Dir
	}
	if len(cmd.Env) > 0 {
		proc.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	err := proc.Run()
	duration := time.Since(startTime)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		// A killed-on-deadline process also surfaces as ExitError, so the
		// deadline check has to come first. The deadline may belong to the
		// caller's context rather than cmd.Timeout, so report elapsed time.
		case ctx.Err() == context.DeadlineExceeded:
			return nil, fmt.Errorf("%s timed out after %s", cmd.Name, duration.Round(time.Millisecond))
		case errors.As(err, &exitErr):
			exitCode = exitErr.ExitCode()
		default:
			return nil, &LaunchError{Name: cmd.Name, Err: err}
		}
	}

	if r.MaxOutputSize > 0 && int64(stdout.Len()) > r.MaxOutputSize {
		return nil, fmt.Errorf("%s produced %d bytes of output, limit is %d", cmd.Name, stdout.Len(), r.MaxOutputSize)
	}

	return &Result{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}, nil
}
