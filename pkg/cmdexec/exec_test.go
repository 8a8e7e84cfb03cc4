package cmdexec

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("relies on POSIX shell utilities")
	}
}

func TestExecRunner_CapturesOutputAndExitCode(t *testing.T) {
	skipOnWindows(t)
	r := NewExecRunner()

	res, err := r.Run(context.Background(), Command{Name: "echo", Args: []string{"hello"}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello", strings.TrimSpace(res.Stdout))
	assert.Greater(t, res.Duration, time.Duration(0))
}

func TestExecRunner_NonZeroExitIsNotAnError(t *testing.T) {
	skipOnWindows(t)
	r := NewExecRunner()

	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "exit 3"}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestExecRunner_LaunchFailureIsDistinct(t *testing.T) {
	r := NewExecRunner()

	_, err := r.Run(context.Background(), Command{Name: "definitely-not-a-binary-xyz"})
	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Equal(t, "definitely-not-a-binary-xyz", launchErr.Name)
}

func TestExecRunner_Timeout(t *testing.T) {
	skipOnWindows(t)
	r := NewExecRunner()

	_, err := r.Run(context.Background(), Command{
		Name:    "sleep",
		Args:    []string{"5"},
		Timeout: 50 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestExecRunner_OuterContextDeadlineReportsElapsedTime(t *testing.T) {
	skipOnWindows(t)
	r := NewExecRunner()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, Command{Name: "sleep", Args: []string{"5"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.NotContains(t, err.Error(), "after 0s", "a caller-supplied deadline has no Command.Timeout to report")
}

func TestExecRunner_EnvAppended(t *testing.T) {
	skipOnWindows(t)
	r := NewExecRunner()

	res, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo $STAGE_MARKER"},
		Env:  []string{"STAGE_MARKER=present"},
	})
	require.NoError(t, err)
	assert.Equal(t, "present", strings.TrimSpace(res.Stdout))
}

func TestExecRunner_Available(t *testing.T) {
	skipOnWindows(t)
	r := NewExecRunner()
	assert.True(t, r.Available("sh"))
	assert.False(t, r.Available("definitely-not-a-binary-xyz"))
}
