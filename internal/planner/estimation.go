package planner

import (
	"context"
	"math"

	"github.com/backmassage/sizefit/internal/config"
	"github.com/backmassage/sizefit/internal/failure"
)

// MaxBitrateInvocations is the hard bound on encodes per bitrate estimate:
// the initial estimate plus one proportional correction.
const MaxBitrateInvocations = 2

// BitrateEstimator computes the bitrate that lands a video or audio encode
// on Target, given the probed Duration.
type BitrateEstimator struct {
	Target    int64   // Bytes.
	Duration  float64 // Seconds; must be finite and > 0.
	Overhead  int64   // bits/sec subtracted for container and side streams.
	Floor     int64   // Minimum bits/sec.
	Tolerance Tolerance
}

// Estimate is the outcome of BitrateEstimator.Run.
type Estimate struct {
	History

	Initial   int64 // First bitrate tried.
	Clamped   bool  // A bitrate was raised to Floor.
	Converged bool
}

// Initial returns Target*8/Duration - Overhead in bits/sec, raised to Floor
// when smaller. clamped reports the raise.
func (e BitrateEstimator) Initial() (bps int64, clamped bool) {
	raw := float64(e.Target)*8/e.Duration - float64(e.Overhead)
	return e.clamp(raw)
}

// Correct scales bps by Target/actual, clamped to Floor.
func (e BitrateEstimator) Correct(bps, actual int64) (int64, bool) {
	if actual <= 0 {
		return bps, false
	}
	return e.clamp(float64(bps) * float64(e.Target) / float64(actual))
}

func (e BitrateEstimator) clamp(raw float64) (int64, bool) {
	floor := e.Floor
	if floor < 1 {
		floor = 1
	}
	if math.IsNaN(raw) || raw < float64(floor) {
		return floor, true
	}
	if raw > math.MaxInt64/2 {
		return math.MaxInt64 / 2, false
	}
	return int64(math.Floor(raw)), false
}

// Run encodes at the initial bitrate and, when the result misses the
// tolerance window (target±margin), once more at the corrected bitrate.
// It never invokes the encoder more than MaxBitrateInvocations times and
// never at all without a valid duration.
func (e BitrateEstimator) Run(ctx context.Context, o Oracle) (*Estimate, error) {
	if !(e.Duration > 0) || math.IsInf(e.Duration, 0) {
		return nil, failure.Errorf(failure.DurationUnavailable, "bitrate estimate", "no usable duration (%v)", e.Duration)
	}
	if e.Target <= 0 {
		return nil, failure.Errorf(failure.InvalidRequest, "bitrate estimate", "target size must be positive")
	}

	est := &Estimate{History: newHistory(e.Target, config.PolicyClosest)}
	bps, clamped := e.Initial()
	est.Initial, est.Clamped = bps, clamped

	for n := 0; n < MaxBitrateInvocations; n++ {
		if err := ctx.Err(); err != nil {
			return nil, failure.New(failure.Cancelled, "bitrate estimate", err)
		}
		out, err := o.Encode(ctx, bps)
		a := Attempt{Value: bps}
		if err != nil {
			a.Err = err
			est.record(a, o)
			return nil, err
		}
		a.Path, a.Size, a.Elapsed = out.Path, out.Size, out.Elapsed
		est.record(a, o)

		if e.Tolerance.Within(out.Size, e.Target, config.PolicyClosest) {
			est.Converged = true
			break
		}
		if n+1 == MaxBitrateInvocations {
			break
		}
		next, c := e.Correct(bps, out.Size)
		if next == bps {
			break // Clamped at the floor again; re-encoding changes nothing.
		}
		bps = next
		est.Clamped = est.Clamped || c
	}
	return est, nil
}

// Warning returns the UnachievableTarget warning when neither invocation
// landed inside the tolerance window, or nil.
func (est *Estimate) Warning(tol Tolerance) error {
	if est.Converged {
		return nil
	}
	return est.unachieved("bitrate estimate", tol)
}
