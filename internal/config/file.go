package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML shape accepted by --config. Pointer fields
// distinguish "unset" from zero so the file only overrides what it names.
type FileConfig struct {
	Kind         *string `yaml:"kind"`
	Target       *string `yaml:"target"`
	VideoCodec   *string `yaml:"video_codec"`
	AudioCodec   *string `yaml:"audio_codec"`
	Quality      *int    `yaml:"quality"`
	VideoBitrate *string `yaml:"video_bitrate"`
	AudioBitrate *string `yaml:"audio_bitrate"`
	Width        *int    `yaml:"width"`
	Height       *int    `yaml:"height"`
	FPS          *int    `yaml:"fps"`
	SampleRate   *int    `yaml:"sample_rate"`
	Channels     *int    `yaml:"channels"`

	Search struct {
		Tolerance             *float64 `yaml:"tolerance"`
		ToleranceBytes        *int64   `yaml:"tolerance_bytes"`
		MaxAttempts           *int     `yaml:"max_attempts"`
		Policy                *string  `yaml:"policy"`
		ResizeFallback        *bool    `yaml:"resize_fallback"`
		ResizeFallbackPercent *int     `yaml:"resize_fallback_percent"`
		VideoOverhead         *string  `yaml:"video_overhead"`
		AudioOverhead         *string  `yaml:"audio_overhead"`
		MinVideoBitrate       *string  `yaml:"min_video_bitrate"`
		MinAudioBitrate       *string  `yaml:"min_audio_bitrate"`
	} `yaml:"search"`

	Process struct {
		Timeout   *string `yaml:"timeout"`
		KillGrace *string `yaml:"kill_grace"`
		Jobs      *int    `yaml:"jobs"`
	} `yaml:"process"`

	Binaries struct {
		FFmpeg  *string `yaml:"ffmpeg"`
		FFprobe *string `yaml:"ffprobe"`
		Magick  *string `yaml:"magick"`
	} `yaml:"binaries"`

	Log struct {
		Level *string `yaml:"level"`
		File  *string `yaml:"file"`
		Color *string `yaml:"color"`
	} `yaml:"log"`
}

// LoadFile reads a YAML config file and overlays its values onto cfg.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %q: %w", path, err)
	}
	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		// An empty file decodes to io.EOF; treat it as "no overrides".
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := fc.apply(cfg); err != nil {
		return fmt.Errorf("config %q: %w", path, err)
	}
	cfg.ConfigFile = path
	return nil
}

func (fc *FileConfig) apply(cfg *Config) error {
	setString(&cfg.VideoCodec, fc.VideoCodec)
	setString(&cfg.AudioCodec, fc.AudioCodec)
	setInt(&cfg.Quality, fc.Quality)
	setInt(&cfg.Width, fc.Width)
	setInt(&cfg.Height, fc.Height)
	setInt(&cfg.FPS, fc.FPS)
	setInt(&cfg.SampleRate, fc.SampleRate)
	setInt(&cfg.Channels, fc.Channels)
	if fc.Kind != nil {
		cfg.Kind = MediaKind(*fc.Kind)
	}
	if fc.Target != nil {
		n, err := ParseSize(*fc.Target)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		cfg.TargetSize = n
	}
	if err := setBitrate(&cfg.VideoBitrate, fc.VideoBitrate, "video_bitrate"); err != nil {
		return err
	}
	if err := setBitrate(&cfg.AudioBitrate, fc.AudioBitrate, "audio_bitrate"); err != nil {
		return err
	}

	s := &fc.Search
	if s.Tolerance != nil {
		cfg.Tolerance = *s.Tolerance
	}
	if s.ToleranceBytes != nil {
		cfg.ToleranceBytes = *s.ToleranceBytes
	}
	setInt(&cfg.MaxAttempts, s.MaxAttempts)
	if s.Policy != nil {
		cfg.Policy = SearchPolicy(*s.Policy)
	}
	if s.ResizeFallback != nil {
		cfg.ResizeFallback = *s.ResizeFallback
	}
	setInt(&cfg.ResizeFallbackPercent, s.ResizeFallbackPercent)
	for _, b := range []struct {
		dst  *int64
		src  *string
		name string
	}{
		{&cfg.VideoOverhead, s.VideoOverhead, "search.video_overhead"},
		{&cfg.AudioOverhead, s.AudioOverhead, "search.audio_overhead"},
		{&cfg.MinVideoBitrate, s.MinVideoBitrate, "search.min_video_bitrate"},
		{&cfg.MinAudioBitrate, s.MinAudioBitrate, "search.min_audio_bitrate"},
	} {
		if err := setBitrateOrZero(b.dst, b.src, b.name); err != nil {
			return err
		}
	}

	p := &fc.Process
	if err := setDuration(&cfg.InvokeTimeout, p.Timeout, "process.timeout"); err != nil {
		return err
	}
	if err := setDuration(&cfg.KillGrace, p.KillGrace, "process.kill_grace"); err != nil {
		return err
	}
	setInt(&cfg.Jobs, p.Jobs)

	setString(&cfg.FFmpegBin, fc.Binaries.FFmpeg)
	setString(&cfg.FFprobeBin, fc.Binaries.FFprobe)
	setString(&cfg.MagickBin, fc.Binaries.Magick)

	setString(&cfg.LogLevel, fc.Log.Level)
	setString(&cfg.LogFile, fc.Log.File)
	if fc.Log.Color != nil {
		cfg.ColorMode = ColorMode(*fc.Log.Color)
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBitrate(dst *int64, src *string, name string) error {
	if src == nil {
		return nil
	}
	n, err := ParseBitrate(*src)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

// setBitrateOrZero accepts "0" for overhead values that may be disabled.
func setBitrateOrZero(dst *int64, src *string, name string) error {
	if src != nil && (*src == "0" || *src == "0k") {
		*dst = 0
		return nil
	}
	return setBitrate(dst, src, name)
}

func setDuration(dst *time.Duration, src *string, name string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}
