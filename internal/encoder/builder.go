package encoder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/backmassage/sizefit/internal/config"
	"github.com/backmassage/sizefit/internal/naming"
)

// Params are the encoder settings for one invocation.
type Params struct {
	Kind config.MediaKind

	// Still images.
	Quality       int // 1-100 (JPEG/WebP quality).
	ResizePercent int // Downscale to this percent; 0 keeps the size.

	// Video and audio.
	VideoCodec   string
	VideoBitrate int64 // bits/sec
	AudioCodec   string
	AudioBitrate int64 // bits/sec
	AudioCopy    bool  // Video only: copy the source soundtrack.
	FPS          int
	SampleRate   int
	Channels     int

	// Shared resize target; 0 keeps the source dimension.
	Width, Height int
}

// Describe renders the size-driving parameter for logs and errors
// ("quality=42", "bitrate=1270101").
func (p Params) Describe() string {
	switch p.Kind {
	case config.KindImage:
		s := "quality=" + strconv.Itoa(p.Quality)
		if p.ResizePercent > 0 {
			s += " resize=" + strconv.Itoa(p.ResizePercent) + "%"
		}
		return s
	case config.KindVideo:
		return "bitrate=" + strconv.FormatInt(p.VideoBitrate, 10)
	default:
		return "bitrate=" + strconv.FormatInt(p.AudioBitrate, 10)
	}
}

// Job is one encode: read Input, write Output with Params.
type Job struct {
	Input  string
	Output string
	Params Params
}

// Build constructs the complete argument vector (binary first) for job.
func Build(cfg *config.Config, job Job) ([]string, error) {
	switch job.Params.Kind {
	case config.KindImage:
		return buildImage(cfg, job)
	case config.KindVideo:
		return buildVideo(cfg, job)
	case config.KindAudio:
		return buildAudio(cfg, job)
	}
	return nil, fmt.Errorf("unsupported media kind %q", job.Params.Kind)
}

// ffmpegPreamble is shared by every ffmpeg invocation.
func ffmpegPreamble(cfg *config.Config, input string) []string {
	loglevel := "error"
	if cfg.Verbose {
		loglevel = "info"
	}
	return []string{cfg.FFmpegBin, "-hide_banner", "-nostdin", "-y", "-loglevel", loglevel, "-i", input}
}

func buildVideo(cfg *config.Config, job Job) ([]string, error) {
	p := job.Params
	if p.VideoBitrate <= 0 {
		return nil, fmt.Errorf("video bitrate must be positive (got %d)", p.VideoBitrate)
	}
	args := ffmpegPreamble(cfg, job.Input)
	args = append(args, "-c:v", p.VideoCodec, "-b:v", bitrate(p.VideoBitrate))
	if vf := scaleFilter(p.Width, p.Height); vf != "" {
		args = append(args, "-vf", vf)
	}
	if p.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(p.FPS))
	}
	if p.AudioCopy {
		args = append(args, "-c:a", "copy")
	} else {
		args = append(args, "-c:a", p.AudioCodec, "-b:a", bitrate(p.AudioBitrate))
	}
	if strings.EqualFold(naming.Ext(job.Output), ".mp4") {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, job.Output), nil
}

func buildAudio(cfg *config.Config, job Job) ([]string, error) {
	p := job.Params
	if p.AudioBitrate <= 0 {
		return nil, fmt.Errorf("audio bitrate must be positive (got %d)", p.AudioBitrate)
	}
	args := ffmpegPreamble(cfg, job.Input)
	args = append(args, "-vn", "-c:a", p.AudioCodec, "-b:a", bitrate(p.AudioBitrate))
	if p.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(p.SampleRate))
	}
	if p.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(p.Channels))
	}
	return append(args, job.Output), nil
}

func buildImage(cfg *config.Config, job Job) ([]string, error) {
	p := job.Params
	if p.Quality < 1 || p.Quality > 100 {
		return nil, fmt.Errorf("quality must be 1-100 (got %d)", p.Quality)
	}
	// [0] selects the first frame of animated or multi-page inputs.
	args := []string{cfg.MagickBin, job.Input + "[0]"}
	switch {
	case p.Width > 0 || p.Height > 0:
		geom := dim(p.Width) + "x" + dim(p.Height)
		if p.ResizePercent > 0 {
			// Resize fallback after an explicit resize: shrink the explicit box.
			geom = dim(scale(p.Width, p.ResizePercent)) + "x" + dim(scale(p.Height, p.ResizePercent))
		}
		args = append(args, "-resize", geom)
	case p.ResizePercent > 0:
		args = append(args, "-resize", strconv.Itoa(p.ResizePercent)+"%")
	}
	args = append(args, "-strip")
	if naming.Ext(job.Output) == ".png" {
		// Quality does not drive PNG size; save with maximum compression.
		args = append(args, "-define", "png:compression-level=9")
	} else {
		args = append(args, "-quality", strconv.Itoa(p.Quality))
	}
	return append(args, job.Output), nil
}

// scaleFilter returns an ffmpeg scale filter, or "" when neither dimension
// is set. A single dimension keeps the aspect ratio with an even size.
func scaleFilter(w, h int) string {
	if w <= 0 && h <= 0 {
		return ""
	}
	sw, sh := "-2", "-2"
	if w > 0 {
		sw = strconv.Itoa(w)
	}
	if h > 0 {
		sh = strconv.Itoa(h)
	}
	return "scale=" + sw + ":" + sh
}

// bitrate renders bits/sec exactly; ffmpeg reads a bare number as bit/s.
func bitrate(bps int64) string {
	return strconv.FormatInt(bps, 10)
}

func dim(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func scale(n, percent int) int {
	if n <= 0 {
		return 0
	}
	if s := n * percent / 100; s > 0 {
		return s
	}
	return 1
}
