// Package procgroup starts encoder children in their own process group and
// tears the whole group down on timeout or cancellation, so helper
// processes an encoder forks never outlive the request.
package procgroup

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/backmassage/sizefit/internal/metrics"
)

// escalation is the signal ladder Terminate walks. Each step but the last
// is followed by the grace period.
var escalation = []struct {
	sig  syscall.Signal
	name string
}{
	{syscall.SIGTERM, "SIGTERM"},
	{syscall.SIGKILL, "SIGKILL"},
}

// Terminate stops cmd (and its group when Set was used). Each escalation
// step signals the child and then gives it grace to exit through waitCh,
// the result of cmd.Wait. It returns the Wait error. A nil or unstarted
// cmd returns nil.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	for i, step := range escalation {
		if Kill(cmd, step.sig) == nil {
			metrics.RecordKill(step.name)
		}
		if i == len(escalation)-1 {
			break
		}
		if err, ok := waitFor(waitCh, grace); ok {
			return err
		}
	}
	return <-waitCh
}

func waitFor(waitCh <-chan error, d time.Duration) (error, bool) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case err := <-waitCh:
		return err, true
	case <-t.C:
		return nil, false
	}
}
