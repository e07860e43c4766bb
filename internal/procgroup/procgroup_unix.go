//go:build unix

package procgroup

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// Set makes cmd the leader of a fresh process group once started.
func Set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Kill delivers sig to cmd. When cmd was started under Set the whole group
// (pgid == pid) is signalled; otherwise only the child itself, so the
// caller's own group is never hit. A child that is already gone is not an
// error.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	var err error
	if cmd.SysProcAttr != nil && cmd.SysProcAttr.Setpgid {
		err = syscall.Kill(-cmd.Process.Pid, sig)
	} else {
		err = cmd.Process.Signal(sig)
	}
	if errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
