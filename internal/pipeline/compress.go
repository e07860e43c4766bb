package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/backmassage/sizefit/internal/config"
	"github.com/backmassage/sizefit/internal/display"
	"github.com/backmassage/sizefit/internal/encoder"
	"github.com/backmassage/sizefit/internal/failure"
	"github.com/backmassage/sizefit/internal/logging"
	"github.com/backmassage/sizefit/internal/metrics"
	"github.com/backmassage/sizefit/internal/planner"
	"github.com/backmassage/sizefit/internal/probe"
)

// WorkspacePrefix names the per-request scratch directory created next to
// the output.
const WorkspacePrefix = ".sizefit-"

// Encoder runs one encode. *encoder.Invoker implements it.
type Encoder interface {
	Invoke(ctx context.Context, job encoder.Job) (encoder.Output, error)
}

// DurationProber reports media durations. *probe.Prober implements it.
type DurationProber interface {
	ProbeDuration(ctx context.Context, path string, kind config.MediaKind) (probe.DurationEstimate, error)
}

// Request is one file to compress.
type Request = planner.Request

// Result describes a finished compression.
type Result struct {
	RequestID string           `json:"request_id"`
	Input     string           `json:"input"`
	Output    string           `json:"output"`
	Kind      config.MediaKind `json:"kind"`
	Mode      string           `json:"mode"`

	InputSize int64 `json:"input_size"`
	Size      int64 `json:"size"`
	Target    int64 `json:"target,omitempty"`

	ParamKind   string `json:"param_kind"` // "quality" or "bitrate"
	Param       int64  `json:"param"`
	Invocations int    `json:"invocations"`

	Duration *probe.DurationEstimate `json:"duration,omitempty"`

	Clamped         bool `json:"clamped,omitempty"`
	Resized         bool `json:"resized,omitempty"`
	ContainerSwitch bool `json:"container_switched,omitempty"`

	Attempts []planner.Attempt `json:"attempts"`
	Warning  string            `json:"warning,omitempty"`
	Elapsed  time.Duration     `json:"elapsed_ns"`
}

// Compressor turns Requests into Results. It holds no per-request state,
// so one Compressor may serve concurrent Compress calls.
type Compressor struct {
	Config  *config.Config
	Log     *logging.Logger
	Encoder Encoder
	Prober  DurationProber
}

// NewCompressor wires the ffmpeg/ImageMagick invoker and the ffprobe
// duration chain from cfg.
func NewCompressor(cfg *config.Config, log *logging.Logger) *Compressor {
	if log == nil {
		log = logging.Nop()
	}
	return &Compressor{
		Config:  cfg,
		Log:     log,
		Encoder: encoder.NewInvoker(cfg, log),
		Prober:  probe.NewProber(cfg.FFprobeBin, log),
	}
}

// Compress validates req, runs the matching algorithm and moves the chosen
// attempt to the output path. It returns either a complete Result or a
// *failure.Error; the single exception is UnachievableTarget, which comes
// with the best Result found. Scratch files never outlive the call.
func (c *Compressor) Compress(ctx context.Context, req Request) (*Result, error) {
	id := uuid.NewString()
	log := c.Log.WithRequestID(id).WithInput(req.Input)
	ctx = logging.ContextWithRequestID(ctx, id)
	start := time.Now()

	res, err := c.compress(ctx, log, id, req)

	outcome := outcomeOf(err)
	kind := string(req.Kind)
	var invocations int
	var size, target int64
	if res != nil {
		res.Elapsed = time.Since(start)
		kind, invocations, size, target = string(res.Kind), res.Invocations, res.Size, res.Target
	}
	metrics.RecordRequest(kind, outcome, invocations, size, target)
	return res, err
}

func (c *Compressor) compress(ctx context.Context, log *logging.Logger, id string, req Request) (*Result, error) {
	plan, err := planner.BuildPlan(c.Config, req)
	if err != nil {
		return nil, err
	}
	req = plan.Request

	// --- Validate filesystem state ---
	fi, err := os.Stat(req.Input)
	if err != nil {
		return nil, failure.New(failure.InvalidRequest, "compress", err)
	}
	if fi.IsDir() {
		return nil, failure.Errorf(failure.InvalidRequest, "compress", "%s is a directory", req.Input)
	}
	if !c.Config.Force {
		if _, err := os.Stat(req.Output); err == nil {
			return nil, failure.Errorf(failure.InvalidRequest, "compress", "%s exists (use --force to overwrite)", req.Output)
		}
	}
	if plan.OutputSwitched {
		log.Warn("AAC cannot be stored in .mp3; writing %s", filepath.Base(req.Output))
	}

	// --- Workspace ---
	outDir := filepath.Dir(req.Output)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, failure.New(failure.InvalidRequest, "compress", err)
	}
	ws := filepath.Join(outDir, WorkspacePrefix+id)
	if err := os.Mkdir(ws, 0o700); err != nil {
		return nil, failure.New(failure.InvalidRequest, "compress", err)
	}
	defer func() {
		if err := os.RemoveAll(ws); err != nil {
			log.Warn("cannot remove workspace %s: %v", ws, err)
		}
	}()

	res := &Result{
		RequestID:       id,
		Input:           req.Input,
		Output:          req.Output,
		Kind:            req.Kind,
		Mode:            plan.Mode.String(),
		InputSize:       fi.Size(),
		Target:          req.TargetSize,
		ParamKind:       plan.ParamKind(),
		ContainerSwitch: plan.OutputSwitched,
	}
	o := &attemptOracle{enc: c.Encoder, plan: plan, dir: ws, ext: filepath.Ext(req.Output), log: log}

	log.Info("%s %s (%s)", req.Kind, filepath.Base(req.Input), plan.Mode)
	var best planner.Attempt
	var warning error

	// --- Dispatch ---
	switch plan.Mode {
	case planner.ModeFixed:
		value := plan.FixedValue()
		out, err := o.Encode(ctx, value)
		if err != nil {
			return nil, err
		}
		best = planner.Attempt{Index: 1, Value: value, Size: out.Size, Elapsed: out.Elapsed, Path: out.Path}
		res.Attempts = []planner.Attempt{best}

	case planner.ModeQualitySearch:
		st := plan.Search.NewState()
		if err := plan.Search.Continue(ctx, st, o); err != nil {
			return nil, err
		}
		if st.NeedsResize() && plan.ResizePercent > 0 {
			log.Warn("quality %d still exceeds %s; retrying at %d%% size",
				planner.MinQuality, display.FormatBytes(req.TargetSize), plan.ResizePercent)
			st.BeginResize()
			o.resized = true
			if err := plan.Search.Continue(ctx, st, o); err != nil {
				return nil, err
			}
		}
		b, ok := st.Best()
		if !ok {
			return nil, failure.Errorf(failure.EncodeFailed, "quality search", "no attempt produced output")
		}
		best, res.Resized, res.Attempts = b, b.Resized, st.Attempts
		warning = st.Warning(plan.Search.Tolerance)

	case planner.ModeBitrateEstimate:
		d, err := c.Prober.ProbeDuration(ctx, req.Input, req.Kind)
		if err != nil {
			return nil, err
		}
		res.Duration = &d
		log.Debug("duration %s via %s", display.FormatSeconds(d.Seconds), d.Strategy)

		e := plan.Estimator
		e.Duration = d.Seconds
		est, err := e.Run(ctx, o)
		if err != nil {
			return nil, err
		}
		if est.Clamped {
			log.Warn("bitrate clamped to the %s floor; output may exceed the target", display.FormatBitrate(e.Floor))
		}
		b, ok := est.Best()
		if !ok {
			return nil, failure.Errorf(failure.EncodeFailed, "bitrate estimate", "no attempt produced output")
		}
		best, res.Clamped, res.Attempts = b, est.Clamped, est.Attempts
		warning = est.Warning(e.Tolerance)
	}

	// --- Finalize ---
	if err := os.Rename(best.Path, req.Output); err != nil {
		return nil, failure.New(failure.EncodeFailed, "compress", fmt.Errorf("move result into place: %w", err))
	}
	res.Size, res.Param, res.Invocations = best.Size, best.Value, len(res.Attempts)

	if warning != nil {
		res.Warning = warning.Error()
		log.Warn("%v", warning)
		return res, warning
	}
	return res, nil
}

// attemptOracle writes each attempt into the request workspace.
type attemptOracle struct {
	enc     Encoder
	plan    *planner.Plan
	dir     string
	ext     string
	resized bool
	n       int
	log     *logging.Logger
}

func (o *attemptOracle) Encode(ctx context.Context, value int64) (encoder.Output, error) {
	o.n++
	job := encoder.Job{
		Input:  o.plan.Request.Input,
		Output: filepath.Join(o.dir, fmt.Sprintf("attempt-%02d%s", o.n, o.ext)),
		Params: o.plan.Params(value, o.resized),
	}
	out, err := o.enc.Invoke(ctx, job)
	if err != nil {
		return out, err
	}
	o.log.Debug("attempt %d %s -> %s", o.n, job.Params.Describe(), display.FormatBytes(out.Size))
	return out, nil
}

func (o *attemptOracle) Discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		o.log.Warn("cannot remove superseded attempt %s: %v", path, err)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case failure.IsWarning(err):
		return "warning"
	}
	return failure.KindOf(err).String()
}
