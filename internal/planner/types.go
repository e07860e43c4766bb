package planner

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/backmassage/sizefit/internal/config"
	"github.com/backmassage/sizefit/internal/display"
	"github.com/backmassage/sizefit/internal/encoder"
	"github.com/backmassage/sizefit/internal/failure"
)

// Oracle performs one encode with the size-driving parameter set to value
// (JPEG quality or bits/sec) and reports the measured output.
// Discard removes an attempt's output once it can no longer be chosen.
type Oracle interface {
	Encode(ctx context.Context, value int64) (encoder.Output, error)
	Discard(path string)
}

// Attempt is one encoder invocation. Attempts are appended to a History in
// invocation order and never changed afterwards.
type Attempt struct {
	Index   int           `json:"index"` // 1-based, strictly increasing.
	Value   int64         `json:"value"` // Quality or bits/sec.
	Size    int64         `json:"size,omitempty"`
	Resized bool          `json:"resized,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns,omitempty"`
	Path    string        `json:"-"`
	Err     error         `json:"-"`
}

// Failed reports whether the invocation produced no output.
func (a Attempt) Failed() bool { return a.Err != nil }

// Tolerance is the accepted distance from the target. Bytes wins when set;
// otherwise the margin is Ratio of the target.
type Tolerance struct {
	Ratio float64
	Bytes int64
}

// ToleranceFromConfig returns the tolerance configured in cfg.
func ToleranceFromConfig(cfg *config.Config) Tolerance {
	return Tolerance{Ratio: cfg.Tolerance, Bytes: cfg.ToleranceBytes}
}

// Margin returns the allowed distance in bytes for target.
func (t Tolerance) Margin(target int64) int64 {
	if t.Bytes > 0 {
		return t.Bytes
	}
	return int64(math.Round(t.Ratio * float64(target)))
}

// Within reports whether size is acceptable for target. Under
// PolicyNeverExceed the window is [target-margin, target]; under
// PolicyClosest it is target±margin.
func (t Tolerance) Within(size, target int64, policy config.SearchPolicy) bool {
	m := t.Margin(target)
	if policy == config.PolicyClosest {
		return abs(size-target) <= m
	}
	return size <= target && size >= target-m
}

// History is the append-only attempt log of one request together with the
// best attempt so far.
type History struct {
	Target   int64
	Policy   config.SearchPolicy
	Attempts []Attempt

	best int // Index into Attempts; -1 while nothing succeeded.
}

func newHistory(target int64, policy config.SearchPolicy) History {
	return History{Target: target, Policy: policy, best: -1}
}

// Best returns the best successful attempt: the closest one not exceeding
// the target, else the closest overall. Under PolicyClosest it is simply the
// closest. ok is false when no attempt succeeded.
func (h *History) Best() (a Attempt, ok bool) {
	if h.best < 0 {
		return Attempt{}, false
	}
	return h.Attempts[h.best], true
}

// Invocations returns the number of encoder runs recorded.
func (h *History) Invocations() int { return len(h.Attempts) }

// record appends a, updates the best attempt and discards whichever output
// lost: the previous best or a itself.
func (h *History) record(a Attempt, o Oracle) Attempt {
	a.Index = len(h.Attempts) + 1
	h.Attempts = append(h.Attempts, a)
	if a.Failed() {
		return a
	}
	idx := len(h.Attempts) - 1
	if h.best < 0 {
		h.best = idx
		return a
	}
	prev := h.Attempts[h.best]
	if h.better(a, prev) {
		h.best = idx
		discard(o, prev.Path)
	} else {
		discard(o, a.Path)
	}
	return a
}

// better reports whether a should replace b as the best attempt. Ties keep b.
func (h *History) better(a, b Attempt) bool {
	da, db := abs(a.Size-h.Target), abs(b.Size-h.Target)
	if h.Policy == config.PolicyClosest {
		if da != db {
			return da < db
		}
		return a.Size <= h.Target && b.Size > h.Target
	}
	aUnder, bUnder := a.Size <= h.Target, b.Size <= h.Target
	if aUnder != bUnder {
		return aUnder
	}
	return da < db
}

// unachieved builds the non-fatal warning returned when no attempt landed
// inside the tolerance window.
func (h *History) unachieved(op string, tol Tolerance) error {
	best, ok := h.Best()
	if !ok {
		return failure.Errorf(failure.UnachievableTarget, op, "no successful attempt for target %s", display.FormatBytes(h.Target))
	}
	return &failure.Error{
		Kind:  failure.UnachievableTarget,
		Op:    op,
		Param: fmt.Sprintf("%d", best.Value),
		Err: fmt.Errorf("closest size %s is %s from target %s (tolerance %s) after %d attempts",
			display.FormatBytes(best.Size), display.FormatBytesWithSign(best.Size-h.Target),
			display.FormatBytes(h.Target), display.FormatBytes(tol.Margin(h.Target)), len(h.Attempts)),
	}
}

func discard(o Oracle, path string) {
	if path != "" {
		o.Discard(path)
	}
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
