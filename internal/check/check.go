// Package check provides system diagnostics (--check mode) and pre-run
// dependency validation (CheckDeps) for ffmpeg, ffprobe and ImageMagick.
package check

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/backmassage/sizefit/internal/config"
)

// Sentinel errors returned by CheckDeps when a required tool or encoder is missing.
var (
	ErrFfmpegNotFound  = errors.New("ffmpeg not found")
	ErrFfprobeNotFound = errors.New("ffprobe not found")
	ErrMagickNotFound  = errors.New("ImageMagick (magick) not found")
	ErrEncoderMissing  = errors.New("ffmpeg lacks the requested encoder")
)

// Logger is the subset of *logging.Logger that RunCheck writes to.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
}

// RunCheck prints availability of every external tool and runs a tiny test
// encode with each configured codec. It reports whether everything works.
func RunCheck(cfg *config.Config, log Logger) bool {
	log.Info("=== System Check ===")

	ok := checkVersion(log, cfg.FFmpegBin, "-version")
	ok = checkVersion(log, cfg.FFprobeBin, "-version") && ok
	ok = checkVersion(log, cfg.MagickBin, "-version") && ok
	if !ok {
		return false
	}

	log.Info("Testing video encoder %s...", cfg.VideoCodec)
	if runSilent(cfg.FFmpegBin, videoTestArgs(cfg.VideoCodec)...) {
		log.Success("%s works", cfg.VideoCodec)
	} else {
		log.Error("%s test encode failed", cfg.VideoCodec)
		ok = false
	}

	log.Info("Testing audio encoder %s...", cfg.AudioCodec)
	if runSilent(cfg.FFmpegBin, audioTestArgs(cfg.AudioCodec)...) {
		log.Success("%s works", cfg.AudioCodec)
	} else {
		log.Error("%s test encode failed", cfg.AudioCodec)
		ok = false
	}

	log.Info("Testing JPEG output...")
	if runSilent(cfg.MagickBin, "-size", "16x16", "xc:gray", "-quality", "50", "jpg:-") {
		log.Success("JPEG encoding works")
	} else {
		log.Error("JPEG test encode failed")
		ok = false
	}
	return ok
}

// checkVersion verifies bin resolves and logs the first line of its
// version output.
func checkVersion(log Logger, bin, flag string) bool {
	if _, err := exec.LookPath(bin); err != nil {
		log.Error("%s not found", bin)
		return false
	}
	out, err := exec.Command(bin, flag).Output()
	if err != nil {
		log.Warn("%s found but %s failed: %v", bin, flag, err)
		return false
	}
	log.Success("%s: %s", bin, firstLine(string(out)))
	return true
}

// CheckDeps is the pre-run validation for the media kinds about to be
// compressed: images need magick; video and audio need ffmpeg with the
// configured encoders, plus ffprobe for duration probing. Returns a
// sentinel error (possibly wrapped) on failure.
func CheckDeps(cfg *config.Config, kinds ...config.MediaKind) error {
	var needImage, needAV, needVideo bool
	for _, k := range kinds {
		switch k {
		case config.KindImage:
			needImage = true
		case config.KindVideo:
			needAV, needVideo = true, true
		case config.KindAudio:
			needAV = true
		}
	}

	if needImage {
		if _, err := exec.LookPath(cfg.MagickBin); err != nil {
			return ErrMagickNotFound
		}
	}
	if !needAV {
		return nil
	}
	if _, err := exec.LookPath(cfg.FFmpegBin); err != nil {
		return ErrFfmpegNotFound
	}
	if _, err := exec.LookPath(cfg.FFprobeBin); err != nil {
		return ErrFfprobeNotFound
	}

	out, err := exec.Command(cfg.FFmpegBin, "-hide_banner", "-encoders").Output()
	if err != nil {
		return fmt.Errorf("list ffmpeg encoders: %w", err)
	}
	encoders := parseEncoders(string(out))
	codecs := []string{cfg.AudioCodec}
	if needVideo {
		codecs = append(codecs, cfg.VideoCodec)
	}
	for _, c := range codecs {
		if c != "copy" && !encoders[c] {
			return fmt.Errorf("%w: %s", ErrEncoderMissing, c)
		}
	}
	return nil
}

// CheckProbe is the pre-run validation for --analyze, which only needs
// ffprobe.
func CheckProbe(cfg *config.Config) error {
	if _, err := exec.LookPath(cfg.FFprobeBin); err != nil {
		return ErrFfprobeNotFound
	}
	return nil
}

// --- internal helpers ---

// parseEncoders extracts encoder names from "ffmpeg -encoders" output:
// lines of the form " V....D libx264   H.264 ...", after the "------" rule.
func parseEncoders(out string) map[string]bool {
	names := make(map[string]bool)
	started := false
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if !started {
			started = len(fields) > 0 && strings.HasPrefix(fields[0], "---")
			continue
		}
		if len(fields) >= 2 {
			names[fields[1]] = true
		}
	}
	return names
}

func videoTestArgs(codec string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=black:s=64x64:d=0.1",
		"-c:v", codec,
		"-f", "null", "-",
	}
}

func audioTestArgs(codec string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", "lavfi", "-i", "sine=frequency=1000:duration=0.1",
		"-c:a", codec,
		"-f", "null", "-",
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "\n"); idx > 0 {
		s = s[:idx]
	}
	return s
}

// runSilent runs a command and returns true if it exits with status 0.
// Both stdout and stderr are discarded.
func runSilent(name string, args ...string) bool {
	cmd := exec.Command(name, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}
