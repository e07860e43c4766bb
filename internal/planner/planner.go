package planner

import (
	"path/filepath"

	"github.com/backmassage/sizefit/internal/config"
	"github.com/backmassage/sizefit/internal/encoder"
	"github.com/backmassage/sizefit/internal/failure"
	"github.com/backmassage/sizefit/internal/naming"
)

// Request is one file to compress. A positive TargetSize drives the final
// parameter and overrides Quality or the bitrates.
type Request struct {
	Input  string           `json:"input"`
	Output string           `json:"output,omitempty"` // Derived next to Input when empty.
	Kind   config.MediaKind `json:"kind"`

	VideoCodec   string `json:"video_codec,omitempty"`
	AudioCodec   string `json:"audio_codec,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	FPS          int    `json:"fps,omitempty"`
	SampleRate   int    `json:"sample_rate,omitempty"`
	Channels     int    `json:"channels,omitempty"`
	Quality      int    `json:"quality,omitempty"`
	VideoBitrate int64  `json:"video_bitrate,omitempty"`
	AudioBitrate int64  `json:"audio_bitrate,omitempty"`
	TargetSize   int64  `json:"target_size,omitempty"`
}

// RequestFromConfig builds the request the CLI flags describe for input.
func RequestFromConfig(cfg *config.Config, input, output string) Request {
	return Request{
		Input:        input,
		Output:       output,
		Kind:         cfg.Kind,
		VideoCodec:   cfg.VideoCodec,
		AudioCodec:   cfg.AudioCodec,
		Width:        cfg.Width,
		Height:       cfg.Height,
		FPS:          cfg.FPS,
		SampleRate:   cfg.SampleRate,
		Channels:     cfg.Channels,
		Quality:      cfg.Quality,
		VideoBitrate: cfg.VideoBitrate,
		AudioBitrate: cfg.AudioBitrate,
		TargetSize:   cfg.TargetSize,
	}
}

// Mode is how the size-driving parameter is chosen.
type Mode int

const (
	ModeFixed           Mode = iota // Single encode at the explicit quality or bitrate.
	ModeQualitySearch               // Image with a target size.
	ModeBitrateEstimate             // Video or audio with a target size.
)

func (m Mode) String() string {
	switch m {
	case ModeQualitySearch:
		return "quality-search"
	case ModeBitrateEstimate:
		return "bitrate-estimate"
	}
	return "fixed"
}

// Plan holds every decision made before the first encode.
type Plan struct {
	Request        Request // Kind resolved, Output derived.
	Mode           Mode
	OutputSwitched bool // .mp3 output became .m4a for an AAC encode.

	// Base carries everything except the value the search varies.
	Base encoder.Params

	Search        QualitySearch    // ModeQualitySearch.
	ResizePercent int              // Fallback resize; 0 disables it.
	Estimator     BitrateEstimator // ModeBitrateEstimate; Duration is filled after probing.
}

// BuildPlan validates req against cfg and produces its Plan. Every
// rejection is a failure.InvalidRequest.
func BuildPlan(cfg *config.Config, req Request) (*Plan, error) {
	if req.Input == "" {
		return nil, invalid("no input path")
	}
	if req.TargetSize < 0 {
		return nil, invalid("target size must not be negative (got %d)", req.TargetSize)
	}

	// --- 1. Kind ---
	if req.Kind == "" || req.Kind == config.KindAuto {
		kind, ok := naming.DetectKind(req.Input)
		if !ok {
			return nil, invalid("cannot detect media kind of %s (use --kind)", filepath.Base(req.Input))
		}
		req.Kind = kind
	}

	// --- 2. Output path and container ---
	plan := &Plan{}
	if req.Output == "" {
		req.Output = naming.OutputPath(req.Input, req.Kind, req.AudioCodec)
	}
	if req.Kind == config.KindAudio {
		req.Output, plan.OutputSwitched = naming.SubstituteContainer(req.Output, req.AudioCodec)
	}
	if sameFile(req.Input, req.Output) {
		return nil, invalid("output %s would overwrite the input", req.Output)
	}
	if err := naming.CheckContainer(req.Output, req.Kind, req.VideoCodec, req.AudioCodec); err != nil {
		return nil, failure.New(failure.InvalidRequest, "plan", err)
	}

	// --- 3. Parameters ---
	plan.Base = encoder.Params{
		Kind:         req.Kind,
		Quality:      req.Quality,
		VideoCodec:   req.VideoCodec,
		VideoBitrate: req.VideoBitrate,
		AudioCodec:   req.AudioCodec,
		AudioBitrate: req.AudioBitrate,
		FPS:          req.FPS,
		SampleRate:   req.SampleRate,
		Channels:     req.Channels,
		Width:        req.Width,
		Height:       req.Height,
	}
	tol := ToleranceFromConfig(cfg)

	switch req.Kind {
	case config.KindImage:
		if req.TargetSize == 0 {
			if req.Quality < MinQuality || req.Quality > MaxQuality {
				return nil, invalid("quality must be %d-%d (got %d)", MinQuality, MaxQuality, req.Quality)
			}
			break
		}
		if !naming.IsJPEG(req.Output) {
			return nil, invalid("target size needs JPEG output; quality does not drive %s size", naming.Ext(req.Output))
		}
		plan.Mode = ModeQualitySearch
		plan.Search = QualitySearch{
			Target:      req.TargetSize,
			Tolerance:   tol,
			MaxAttempts: cfg.MaxAttempts,
			Policy:      cfg.Policy,
		}
		if cfg.ResizeFallback {
			plan.ResizePercent = cfg.ResizeFallbackPercent
		}

	case config.KindVideo:
		if req.VideoCodec == "" {
			return nil, invalid("no video codec")
		}
		if req.TargetSize == 0 {
			if req.VideoBitrate <= 0 {
				return nil, invalid("video bitrate must be positive")
			}
			// Without a size budget the soundtrack is kept as is.
			plan.Base.AudioCopy = true
			break
		}
		if req.AudioBitrate <= 0 {
			return nil, invalid("audio bitrate must be positive")
		}
		plan.Mode = ModeBitrateEstimate
		plan.Estimator = BitrateEstimator{
			Target:    req.TargetSize,
			Overhead:  cfg.VideoOverhead,
			Floor:     cfg.MinVideoBitrate,
			Tolerance: tol,
		}

	case config.KindAudio:
		if req.AudioCodec == "" {
			return nil, invalid("no audio codec")
		}
		if req.TargetSize == 0 {
			if req.AudioBitrate <= 0 {
				return nil, invalid("audio bitrate must be positive")
			}
			break
		}
		plan.Mode = ModeBitrateEstimate
		plan.Estimator = BitrateEstimator{
			Target:    req.TargetSize,
			Overhead:  cfg.AudioOverhead,
			Floor:     cfg.MinAudioBitrate,
			Tolerance: tol,
		}

	default:
		return nil, invalid("unsupported media kind %q", req.Kind)
	}

	plan.Request = req
	return plan, nil
}

// Params returns the encoder parameters for one attempt. value is the
// quality (image) or bits/sec (video, audio); resized applies the fallback.
func (p *Plan) Params(value int64, resized bool) encoder.Params {
	params := p.Base
	switch p.Request.Kind {
	case config.KindImage:
		params.Quality = int(value)
		if resized {
			params.ResizePercent = p.ResizePercent
		}
	case config.KindVideo:
		params.VideoBitrate = value
	case config.KindAudio:
		params.AudioBitrate = value
	}
	return params
}

// FixedValue returns the explicit parameter used in ModeFixed.
func (p *Plan) FixedValue() int64 {
	switch p.Request.Kind {
	case config.KindImage:
		return int64(p.Request.Quality)
	case config.KindVideo:
		return p.Request.VideoBitrate
	}
	return p.Request.AudioBitrate
}

// ParamKind names the size-driving parameter ("quality" or "bitrate").
func (p *Plan) ParamKind() string {
	if p.Request.Kind == config.KindImage {
		return "quality"
	}
	return "bitrate"
}

func invalid(format string, args ...any) error {
	return failure.Errorf(failure.InvalidRequest, "plan", format, args...)
}

func sameFile(a, b string) bool {
	pa, errA := filepath.Abs(a)
	pb, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return pa == pb
}
