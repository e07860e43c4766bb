package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/backmassage/sizefit/internal/config"
	"github.com/backmassage/sizefit/internal/failure"
	"github.com/backmassage/sizefit/internal/logging"
	"github.com/backmassage/sizefit/internal/metrics"
	"github.com/backmassage/sizefit/internal/procgroup"
)

const stderrLines = 40

// Output is a successfully produced file. Size is the on-disk byte count.
type Output struct {
	Path    string
	Size    int64
	Elapsed time.Duration
}

// Invoker runs encoder commands.
type Invoker struct {
	cfg     *config.Config
	log     *logging.Logger
	timeout time.Duration
	grace   time.Duration
}

// NewInvoker returns an Invoker using cfg's binaries, timeout and kill
// grace.
func NewInvoker(cfg *config.Config, log *logging.Logger) *Invoker {
	if log == nil {
		log = logging.Nop()
	}
	return &Invoker{cfg: cfg, log: log, timeout: cfg.InvokeTimeout, grace: cfg.KillGrace}
}

// Invoke builds the command for job and runs it. See Run.
func (inv *Invoker) Invoke(ctx context.Context, job Job) (Output, error) {
	param := job.Params.Describe()
	argv, err := Build(inv.cfg, job)
	if err != nil {
		return Output{}, &failure.Error{Kind: failure.InvalidRequest, Op: "encode", Param: param, Err: err}
	}
	return inv.Run(ctx, string(job.Params.Kind), argv, job.Output, param)
}

// Run executes argv, which must write output, and returns the produced
// file's size. The child runs in its own process group; on timeout or
// cancellation the group is terminated (SIGTERM, grace, SIGKILL) and the
// error is failure.Timeout or failure.Cancelled. Non-zero exit, a missing
// output or an empty output is failure.EncodeFailed with the stderr tail.
// Partial output is removed on every failure path.
func (inv *Invoker) Run(ctx context.Context, kind string, argv []string, output, param string) (Output, error) {
	if len(argv) == 0 {
		return Output{}, &failure.Error{Kind: failure.InvalidRequest, Op: "encode", Param: param, Err: errors.New("empty command")}
	}
	if err := ctx.Err(); err != nil {
		return Output{}, &failure.Error{Kind: failure.Cancelled, Op: "encode", Param: param, Err: err}
	}

	log := inv.log
	if id := logging.RequestIDFromContext(ctx); id != "" {
		log = log.WithRequestID(id)
	}
	log.Debug("exec %q", argv)

	runCtx := ctx
	if inv.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	ring := NewLineRing(stderrLines)
	cmd := exec.Command(argv[0], argv[1:]...)
	procgroup.Set(cmd)
	cmd.Stdout = io.Discard
	cmd.Stderr = ring
	cmd.WaitDelay = inv.grace + time.Second

	fail := func(k failure.Kind, err error) (Output, error) {
		_ = os.Remove(output)
		return Output{}, &failure.Error{Kind: k, Op: "encode", Param: param, Stderr: ring.String(), Err: err}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		metrics.RecordInvocation(kind, "failed", time.Since(start))
		if h := startHint(err); h != "" {
			err = fmt.Errorf("%w (%s)", err, h)
		}
		return fail(failure.EncodeFailed, err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-waitCh:
	case <-runCtx.Done():
		_ = procgroup.Terminate(cmd, waitCh, inv.grace)
		elapsed := time.Since(start)
		if ctx.Err() != nil {
			metrics.RecordInvocation(kind, "cancelled", elapsed)
			log.Warn("encoder cancelled after %s (%s)", elapsed.Round(time.Millisecond), param)
			return fail(failure.Cancelled, ctx.Err())
		}
		metrics.RecordInvocation(kind, "timeout", elapsed)
		log.Warn("encoder timed out after %s (%s)", inv.timeout, param)
		return fail(failure.Timeout, fmt.Errorf("no result within %s", inv.timeout))
	}
	elapsed := time.Since(start)

	if waitErr != nil {
		metrics.RecordInvocation(kind, "failed", elapsed)
		stderr := ring.String()
		if h := Classify(stderr); h != "" {
			waitErr = fmt.Errorf("%w (%s)", waitErr, h)
		}
		return fail(failure.EncodeFailed, waitErr)
	}

	fi, err := os.Stat(output)
	if err != nil {
		metrics.RecordInvocation(kind, "failed", elapsed)
		return fail(failure.EncodeFailed, fmt.Errorf("encoder exited cleanly but produced no output: %w", err))
	}
	if fi.Size() == 0 {
		metrics.RecordInvocation(kind, "failed", elapsed)
		return fail(failure.EncodeFailed, errors.New("encoder produced an empty file"))
	}

	metrics.RecordInvocation(kind, "ok", elapsed)
	log.Debug("%s -> %d bytes in %s", param, fi.Size(), elapsed.Round(time.Millisecond))
	return Output{Path: output, Size: fi.Size(), Elapsed: elapsed}, nil
}
