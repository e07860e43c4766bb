// Package config holds runtime configuration: defaults, optional YAML file
// overlay, CLI flag parsing, and validation.
package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// --- Enum types for validated string fields ---

// MediaKind selects the compression strategy family.
type MediaKind string

const (
	KindAuto  MediaKind = "auto"  // Detect from the input extension (default).
	KindImage MediaKind = "image" // Still image: quality search.
	KindVideo MediaKind = "video" // Video: bitrate estimation.
	KindAudio MediaKind = "audio" // Audio: bitrate estimation.
)

// SearchPolicy controls how the image quality search treats overshoot.
type SearchPolicy string

const (
	PolicyNeverExceed SearchPolicy = "never-exceed" // Highest quality not above target (default).
	PolicyClosest     SearchPolicy = "closest"      // Closest size on either side.
)

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// Config holds all runtime settings. It is populated by [DefaultConfig],
// overlaid by [LoadFile] when --config is given, and then mutated by
// [ParseFlags] before being passed (by pointer) to packages that need it.
type Config struct {
	// Paths (set from positional args).
	Input  string // File or directory.
	Output string // Optional; derived next to the input when empty.

	// Request shape.
	Kind          MediaKind
	TargetSize    int64  // Bytes. 0 means explicit quality/bitrate drives the encode.
	VideoCodec    string // Default: "libx264".
	AudioCodec    string // Default: "aac".
	Quality       int    // Default: 85. Image quality when no target is set.
	VideoBitrate  int64  // Default: 1000 kbit/s. Used when no target is set.
	AudioBitrate  int64  // Default: 128 kbit/s. Audio-only output and video soundtrack.
	Width, Height int    // Optional resize; 0 keeps the source dimension.
	FPS           int    // Optional frame rate; 0 keeps the source rate.
	SampleRate    int    // Default: 44100 Hz (audio output).
	Channels      int    // Default: 2 (audio output).

	// Search tuning.
	Tolerance             float64      // Default: 0.05 (5% of target).
	ToleranceBytes        int64        // Fixed margin; wins over Tolerance when > 0.
	MaxAttempts           int          // Default: 10 quality probes per search.
	Policy                SearchPolicy // Default: never-exceed.
	ResizeFallback        bool         // Default: true. One-shot resize when quality 1 is too big.
	ResizeFallbackPercent int          // Default: 50.
	VideoOverhead         int64        // Default: 128000 bit/s (audio track + muxing).
	AudioOverhead         int64        // Default: 0 bit/s.
	MinVideoBitrate       int64        // Default: 100 kbit/s floor.
	MinAudioBitrate       int64        // Default: 32 kbit/s floor.

	// Process control.
	InvokeTimeout time.Duration // Default: 30m per encoder invocation.
	KillGrace     time.Duration // Default: 2s between SIGTERM and SIGKILL.
	Jobs          int           // Default: 1 concurrent request in batch mode.

	// External binaries.
	FFmpegBin  string // Default: "ffmpeg".
	FFprobeBin string // Default: "ffprobe".
	MagickBin  string // Default: "magick".

	// Behavior flags.
	Force       bool   // Overwrite existing outputs.
	Analyze     bool   // Probe and report durations only.
	CheckOnly   bool   // Run --check diagnostics and exit.
	ReportFile  string // Optional JSON report path.
	MetricsFile string // Optional Prometheus textfile path.
	ConfigFile  string // Optional YAML config path.

	// Display and logging.
	Verbose   bool
	LogLevel  string    // Default: "info". Forced to "debug" by --verbose.
	LogFile   string    // Optional JSON-lines log file path.
	ColorMode ColorMode // Default: "auto".
}

// DefaultConfig returns a Config with all defaults. Used as the base before
// [LoadFile] and [ParseFlags] apply overrides.
func DefaultConfig() Config {
	return Config{
		Kind:                  KindAuto,
		VideoCodec:            "libx264",
		AudioCodec:            "aac",
		Quality:               85,
		VideoBitrate:          1_000_000,
		AudioBitrate:          128_000,
		SampleRate:            44100,
		Channels:              2,
		Tolerance:             0.05,
		MaxAttempts:           10,
		Policy:                PolicyNeverExceed,
		ResizeFallback:        true,
		ResizeFallbackPercent: 50,
		VideoOverhead:         128_000,
		AudioOverhead:         0,
		MinVideoBitrate:       100_000,
		MinAudioBitrate:       32_000,
		InvokeTimeout:         30 * time.Minute,
		KillGrace:             2 * time.Second,
		Jobs:                  1,
		FFmpegBin:             "ffmpeg",
		FFprobeBin:            "ffprobe",
		MagickBin:             "magick",
		LogLevel:              "info",
		ColorMode:             ColorAuto,
	}
}

// Validate checks enum fields and numeric ranges. When not in CheckOnly
// mode, it also requires an input path.
func (c *Config) Validate() error {
	switch c.Kind {
	case KindAuto, KindImage, KindVideo, KindAudio:
		// valid
	default:
		return fmt.Errorf("invalid kind %q (use auto, image, video or audio)", c.Kind)
	}

	switch c.Policy {
	case PolicyNeverExceed, PolicyClosest:
		// valid
	default:
		return fmt.Errorf("invalid policy %q (use never-exceed or closest)", c.Policy)
	}

	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return fmt.Errorf("invalid color mode %q", c.ColorMode)
	}

	if c.TargetSize < 0 {
		return errors.New("target size must not be negative")
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("quality must be 1-100 (got %d)", c.Quality)
	}
	if c.VideoBitrate <= 0 || c.AudioBitrate <= 0 {
		return errors.New("bitrates must be positive")
	}
	if c.Width < 0 || c.Height < 0 || c.FPS < 0 || c.SampleRate < 0 || c.Channels < 0 {
		return errors.New("dimensions, frame rate, sample rate and channels must not be negative")
	}
	if c.Tolerance <= 0 || c.Tolerance >= 1 || math.IsNaN(c.Tolerance) {
		return fmt.Errorf("tolerance must be between 0 and 1 exclusive (got %g)", c.Tolerance)
	}
	if c.ToleranceBytes < 0 {
		return errors.New("tolerance bytes must not be negative")
	}
	if c.MaxAttempts < 1 {
		return errors.New("max attempts must be at least 1")
	}
	if c.ResizeFallbackPercent < 1 || c.ResizeFallbackPercent > 99 {
		return fmt.Errorf("resize fallback percent must be 1-99 (got %d)", c.ResizeFallbackPercent)
	}
	if c.VideoOverhead < 0 || c.AudioOverhead < 0 {
		return errors.New("overhead bitrates must not be negative")
	}
	if c.MinVideoBitrate <= 0 || c.MinAudioBitrate <= 0 {
		return errors.New("bitrate floors must be positive")
	}
	if c.InvokeTimeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.KillGrace < 0 {
		return errors.New("kill grace must not be negative")
	}
	if c.Jobs < 1 {
		return errors.New("jobs must be at least 1")
	}

	if c.CheckOnly {
		return nil
	}
	if c.Input == "" {
		return errors.New("need an input file or directory")
	}
	return nil
}

// ParseSize converts a human size into bytes. Accepted forms are anything
// go-humanize understands ("1.5MiB", "20MB", "800 KiB"); a bare number is
// read as MiB (multiplied by 1024*1024).
func ParseSize(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errors.New("size must not be empty")
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, fmt.Errorf("invalid size %q (must be positive)", raw)
		}
		b := f * (1 << 20)
		if b < 1 || b >= math.MaxInt64 {
			return 0, fmt.Errorf("invalid size %q (must be between 1 byte and 8 EiB)", raw)
		}
		return int64(b), nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", raw, err)
	}
	if n == 0 || n > math.MaxInt64 {
		return 0, fmt.Errorf("invalid size %q (must be positive)", raw)
	}
	return int64(n), nil
}

// ParseBitrate validates and converts user bitrate input to bits/sec.
// Accepted forms: "256" (kbps), "256k", "256K", "256kbps", "1.5M", "128000bps".
func ParseBitrate(raw string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, errors.New("bitrate must not be empty")
	}
	mult := 1000.0
	switch {
	case strings.HasSuffix(s, "kbps"):
		s = strings.TrimSuffix(s, "kbps")
	case strings.HasSuffix(s, "mbps"):
		s, mult = strings.TrimSuffix(s, "mbps"), 1_000_000
	case strings.HasSuffix(s, "bps"):
		s, mult = strings.TrimSuffix(s, "bps"), 1
	case strings.HasSuffix(s, "k"):
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		s, mult = strings.TrimSuffix(s, "m"), 1_000_000
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f <= 0 || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid bitrate %q (use positive kbps value, e.g. 128k)", raw)
	}
	bps := int64(f * mult)
	if bps <= 0 {
		return 0, fmt.Errorf("invalid bitrate %q (rounds to zero)", raw)
	}
	return bps, nil
}
