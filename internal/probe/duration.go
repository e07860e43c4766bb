package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/backmassage/sizefit/internal/config"
	"github.com/backmassage/sizefit/internal/failure"
	"github.com/backmassage/sizefit/internal/logging"
	"github.com/backmassage/sizefit/internal/metrics"
)

// Prober determines media durations by trying Strategies in order.
type Prober struct {
	Bin        string     // ffprobe executable.
	Strategies []Strategy // Tried in order; first valid answer wins.
	Log        *logging.Logger

	run func(ctx context.Context, bin, path string) (*ProbeResult, error)
}

// NewProber returns a Prober using bin and the default strategy chain.
func NewProber(bin string, log *logging.Logger) *Prober {
	if log == nil {
		log = logging.Nop()
	}
	return &Prober{Bin: bin, Strategies: DefaultStrategies(), Log: log, run: Probe}
}

func (p *Prober) runner() func(ctx context.Context, bin, path string) (*ProbeResult, error) {
	if p.run != nil {
		return p.run
	}
	return Probe
}

// ProbeDuration returns the duration of path. Every strategy must yield a
// finite positive value; the first one that does wins. When all fail the
// error is a failure.DurationUnavailable listing each strategy's reason.
// Context cancellation stops the chain with failure.Cancelled.
func (p *Prober) ProbeDuration(ctx context.Context, path string, kind config.MediaKind) (DurationEstimate, error) {
	run := p.runner()
	src := NewSource(path, kind, func(ctx context.Context, path string) (*ProbeResult, error) {
		return run(ctx, p.Bin, path)
	})
	log := p.Log
	if log == nil {
		log = logging.Nop()
	}

	var reasons []string
	for _, s := range p.Strategies {
		d, err := s.Duration(ctx, src)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return DurationEstimate{}, failure.New(failure.Cancelled, "probe", ctxErr)
		}
		if err == nil && !valid(d) {
			err = fmt.Errorf("invalid duration %v", d)
		}
		if err != nil {
			metrics.RecordProbeStrategy(s.Name(), false)
			log.Debug("duration strategy %s failed for %s: %v", s.Name(), path, err)
			reasons = append(reasons, s.Name()+": "+err.Error())
			continue
		}
		metrics.RecordProbeStrategy(s.Name(), true)
		log.Debug("duration %.3fs from %s strategy for %s", d, s.Name(), path)
		return DurationEstimate{Seconds: d, Strategy: s.Name()}, nil
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "no strategies configured")
	}
	return DurationEstimate{}, &failure.Error{
		Kind: failure.DurationUnavailable,
		Op:   "probe",
		Err:  errors.New(strings.Join(reasons, "; ")),
	}
}
