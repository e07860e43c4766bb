//go:build linux

package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T, script string) (*exec.Cmd, <-chan error) {
	t.Helper()
	cmd := exec.Command("sh", "-c", script)
	Set(cmd)
	require.NoError(t, cmd.Start())

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	// Give the shell time to fork its children.
	time.Sleep(100 * time.Millisecond)
	return cmd, waitCh
}

func requireGroupGone(t *testing.T, pgid int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return errors.Is(syscall.Kill(-pgid, syscall.Signal(0)), syscall.ESRCH)
	}, 2*time.Second, 20*time.Millisecond, "process group %d still exists", pgid)
}

func TestSet_GroupLeader(t *testing.T) {
	cmd, waitCh := start(t, "sleep 10")
	pid := cmd.Process.Pid
	pgid, err := syscall.Getpgid(pid)
	require.NoError(t, err)
	assert.Equal(t, pid, pgid, "process should lead its own group")

	_ = Terminate(cmd, waitCh, time.Second)
	requireGroupGone(t, pgid)
}

func TestTerminate_SIGTERM(t *testing.T) {
	cmd, waitCh := start(t, "sleep 100 & sleep 100")
	pgid := cmd.Process.Pid

	begin := time.Now()
	err := Terminate(cmd, waitCh, 5*time.Second)
	assert.Error(t, err, "terminated process should report a signal exit")
	assert.Less(t, time.Since(begin), 5*time.Second, "SIGTERM alone should stop sleep")
	requireGroupGone(t, pgid)
}

func TestTerminate_EscalatesToSIGKILL(t *testing.T) {
	// Ignored dispositions are inherited, so both the shell and sleep
	// survive SIGTERM.
	cmd, waitCh := start(t, `trap "" TERM; sleep 100 & sleep 100`)
	pgid := cmd.Process.Pid

	grace := 200 * time.Millisecond
	begin := time.Now()
	err := Terminate(cmd, waitCh, grace)
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(begin), grace)

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			assert.True(t, status.Signaled())
			assert.Equal(t, syscall.SIGKILL, status.Signal())
		}
	}
	requireGroupGone(t, pgid)
}

func TestTerminate_AlreadyExited(t *testing.T) {
	cmd, waitCh := start(t, "exit 0")
	time.Sleep(50 * time.Millisecond)
	assert.NoError(t, Terminate(cmd, waitCh, 50*time.Millisecond))
}

func TestTerminate_NilCmd(t *testing.T) {
	assert.NoError(t, Terminate(nil, nil, time.Millisecond))
	assert.NoError(t, Kill(nil, syscall.SIGKILL))
}

func TestKill_WithoutSetSignalsChildOnly(t *testing.T) {
	cmd := exec.Command("sleep", "100")
	require.NoError(t, cmd.Start())
	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	// The child shares the test's group; signalling it must not reach us.
	require.NoError(t, Kill(cmd, syscall.SIGKILL))
	select {
	case err := <-waitCh:
		var exitErr *exec.ExitError
		require.ErrorAs(t, err, &exitErr)
		status, ok := exitErr.Sys().(syscall.WaitStatus)
		require.True(t, ok)
		assert.Equal(t, syscall.SIGKILL, status.Signal())
	case <-time.After(2 * time.Second):
		t.Fatal("child did not exit after SIGKILL")
	}

	assert.NoError(t, Kill(cmd, syscall.SIGKILL), "exited child is not an error")
}
