package planner

import (
	"context"

	"github.com/backmassage/sizefit/internal/config"
	"github.com/backmassage/sizefit/internal/failure"
)

// Image quality bounds searched by QualitySearch.
const (
	MinQuality = 1
	MaxQuality = 100

	// DefaultMaxAttempts bounds the search when the size/quality curve is not
	// monotonic. A monotonic curve needs at most 7 probes over 1-100.
	DefaultMaxAttempts = 10
)

// QualitySearch finds the JPEG quality whose output size best fits Target.
type QualitySearch struct {
	Target      int64
	Tolerance   Tolerance
	MaxAttempts int // Per search pass; <= 0 means DefaultMaxAttempts.
	Policy      config.SearchPolicy
}

// SearchState is the state of one request's quality search. It survives a
// resize fallback so the attempt history continues across both passes.
type SearchState struct {
	History

	Lo, Hi    int
	Converged bool
	Resized   bool // Attempts from now on use the fallback resize.

	passStart int // First attempt of the current pass.
}

// NewState returns an empty search state for q.
func (q QualitySearch) NewState() *SearchState {
	return &SearchState{
		History: newHistory(q.Target, q.Policy),
		Lo:      MinQuality,
		Hi:      MaxQuality,
	}
}

// Run performs one full search pass on a fresh state.
func (q QualitySearch) Run(ctx context.Context, o Oracle) (*SearchState, error) {
	st := q.NewState()
	return st, q.Continue(ctx, st, o)
}

// Continue runs a search pass over [MinQuality, MaxQuality] on st,
// appending to its history. It stops on convergence, when the bounds cross
// or after MaxAttempts invocations in this pass. Encoder failures are
// returned immediately; an unconverged pass is not an error.
func (q QualitySearch) Continue(ctx context.Context, st *SearchState, o Oracle) error {
	limit := q.MaxAttempts
	if limit <= 0 {
		limit = DefaultMaxAttempts
	}
	st.Lo, st.Hi = MinQuality, MaxQuality
	st.passStart = len(st.Attempts)

	for n := 0; n < limit && st.Lo <= st.Hi; n++ {
		if err := ctx.Err(); err != nil {
			return failure.New(failure.Cancelled, "quality search", err)
		}
		mid := (st.Lo + st.Hi) / 2
		out, err := o.Encode(ctx, int64(mid))
		a := Attempt{Value: int64(mid), Resized: st.Resized}
		if err != nil {
			a.Err = err
			st.record(a, o)
			return err
		}
		a.Path, a.Size, a.Elapsed = out.Path, out.Size, out.Elapsed
		st.record(a, o)

		if q.Tolerance.Within(out.Size, q.Target, q.Policy) {
			st.Converged = true
			return nil
		}
		if out.Size > q.Target {
			st.Hi = mid - 1
		} else {
			st.Lo = mid + 1
		}
	}
	return nil
}

// NeedsResize reports whether the current pass reached MinQuality and the
// output was still larger than the target, so quality alone cannot fit.
func (st *SearchState) NeedsResize() bool {
	if st.Converged {
		return false
	}
	for _, a := range st.Attempts[st.passStart:] {
		if a.Value == MinQuality && !a.Failed() && a.Size > st.Target {
			return true
		}
	}
	return false
}

// BeginResize marks the following attempts as resized. Call it once, before
// the second Continue.
func (st *SearchState) BeginResize() { st.Resized = true }

// Warning returns the UnachievableTarget warning for an unconverged search,
// or nil.
func (st *SearchState) Warning(tol Tolerance) error {
	if st.Converged {
		return nil
	}
	return st.unachieved("quality search", tol)
}
