package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/dhowden/tag"

	"github.com/backmassage/sizefit/internal/config"
)

// Strategy names reported in DurationEstimate.
const (
	StrategyContainer = "container"
	StrategyFrames    = "frames"
	StrategyTags      = "tags"
)

// DurationEstimate is a validated media duration and the strategy that
// produced it.
type DurationEstimate struct {
	Seconds  float64 `json:"seconds"`
	Strategy string  `json:"strategy"`
}

// Strategy is one way of determining duration. Implementations return an
// error (never a zero or negative duration) when they cannot answer.
type Strategy interface {
	Name() string
	Duration(ctx context.Context, src *Source) (float64, error)
}

// Source is the file being probed. It runs ffprobe at most once and shares
// the result between strategies.
type Source struct {
	Path string
	Kind config.MediaKind

	run    func(ctx context.Context, path string) (*ProbeResult, error)
	done   bool
	result *ProbeResult
	err    error
}

// NewSource returns a Source whose ffprobe call is run(ctx, path).
func NewSource(path string, kind config.MediaKind, run func(ctx context.Context, path string) (*ProbeResult, error)) *Source {
	return &Source{Path: path, Kind: kind, run: run}
}

// Probe returns the memoized ffprobe result.
func (s *Source) Probe(ctx context.Context) (*ProbeResult, error) {
	if !s.done {
		s.result, s.err = s.run(ctx, s.Path)
		s.done = true
	}
	return s.result, s.err
}

// DefaultStrategies returns container → frames → tags.
func DefaultStrategies() []Strategy {
	return []Strategy{ContainerStrategy{}, FrameStrategy{}, TagStrategy{}}
}

var errNoDuration = errors.New("no duration reported")

// ContainerStrategy reads the container duration, falling back to the
// duration of the first stream matching the media kind.
type ContainerStrategy struct{}

func (ContainerStrategy) Name() string { return StrategyContainer }

func (ContainerStrategy) Duration(ctx context.Context, src *Source) (float64, error) {
	pr, err := src.Probe(ctx)
	if err != nil {
		return 0, err
	}
	if valid(pr.Format.Duration) {
		return pr.Format.Duration, nil
	}
	switch src.Kind {
	case config.KindAudio:
		if a := pr.PrimaryAudio(); a != nil && valid(a.Duration) {
			return a.Duration, nil
		}
	default:
		if v := pr.PrimaryVideo; v != nil && valid(v.Duration) {
			return v.Duration, nil
		}
	}
	return 0, errNoDuration
}

// FrameStrategy derives duration from counters: frame count over frame rate
// for video, duration_ts times time_base for audio.
type FrameStrategy struct{}

func (FrameStrategy) Name() string { return StrategyFrames }

func (FrameStrategy) Duration(ctx context.Context, src *Source) (float64, error) {
	pr, err := src.Probe(ctx)
	if err != nil {
		return 0, err
	}
	if src.Kind == config.KindAudio {
		a := pr.PrimaryAudio()
		if a == nil {
			return 0, errors.New("no audio stream")
		}
		d := float64(a.DurationTS) * parseRational(a.TimeBase)
		if !valid(d) {
			return 0, fmt.Errorf("duration_ts=%d time_base=%q unusable", a.DurationTS, a.TimeBase)
		}
		return d, nil
	}

	v := pr.PrimaryVideo
	if v == nil {
		return 0, errors.New("no video stream")
	}
	if v.NbFrames <= 0 {
		return 0, errors.New("frame count unknown")
	}
	fps := parseRational(v.AvgFrameRate)
	if !valid(fps) {
		fps = parseRational(v.RFrameRate)
	}
	if !valid(fps) {
		return 0, errors.New("frame rate unknown")
	}
	d := float64(v.NbFrames) / fps
	if !valid(d) {
		return 0, errNoDuration
	}
	return d, nil
}

// TagStrategy reads durations stored as metadata: the ID3v2 TLEN frame
// (milliseconds), then Matroska-style DURATION tags ("01:02:03.250").
type TagStrategy struct{}

func (TagStrategy) Name() string { return StrategyTags }

func (TagStrategy) Duration(ctx context.Context, src *Source) (float64, error) {
	d, id3Err := id3Length(src.Path)
	if id3Err == nil {
		return d, nil
	}
	pr, err := src.Probe(ctx)
	if err != nil {
		return 0, fmt.Errorf("%v; %w", id3Err, err)
	}
	for _, tags := range durationTagSets(pr) {
		for k, v := range tags {
			key := strings.ToUpper(k)
			if key != "DURATION" && !strings.HasPrefix(key, "DURATION-") {
				continue
			}
			if d, err := parseClock(v); err == nil && valid(d) {
				return d, nil
			}
		}
	}
	return 0, fmt.Errorf("%v; no DURATION tag", id3Err)
}

func durationTagSets(pr *ProbeResult) []map[string]string {
	sets := []map[string]string{pr.Format.Tags}
	if pr.PrimaryVideo != nil {
		sets = append(sets, pr.PrimaryVideo.Tags)
	}
	for i := range pr.AudioStreams {
		sets = append(sets, pr.AudioStreams[i].Tags)
	}
	return sets
}

// id3Length returns the TLEN (ID3v2.3/2.4) or TLE (ID3v2.2) value in seconds.
func id3Length(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return 0, fmt.Errorf("read tags: %w", err)
	}
	raw := m.Raw()
	for _, key := range []string{"TLEN", "TLE"} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		ms, err := strconv.ParseFloat(strings.Trim(strings.TrimSpace(s), "\x00"), 64)
		if err != nil {
			return 0, fmt.Errorf("%s %q: %w", key, s, err)
		}
		if d := ms / 1000; valid(d) {
			return d, nil
		}
		return 0, fmt.Errorf("%s %q not positive", key, s)
	}
	return 0, fmt.Errorf("no length tag in %s metadata", m.Format())
}

// parseClock parses "HH:MM:SS(.frac)" or plain seconds.
func parseClock(s string) (float64, error) {
	s = strings.TrimSpace(strings.Trim(s, "\x00"))
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("bad clock %q", s)
	}
	var total float64
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil || f < 0 {
			return 0, fmt.Errorf("bad clock %q", s)
		}
		total = total*60 + f
	}
	return total, nil
}

// valid reports whether d is a usable duration: finite and positive.
func valid(d float64) bool {
	return d > 0 && !math.IsInf(d, 0) && !math.IsNaN(d)
}
