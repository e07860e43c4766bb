package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Probe runs a single ffprobe JSON call against path and returns the
// parsed result. bin is the ffprobe executable.
func Probe(ctx context.Context, bin, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)
	cmd.WaitDelay = 2 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("ffprobe %q: %w: %s", path, err, lastLine(msg))
		}
		return nil, fmt.Errorf("ffprobe %q: %w", path, err)
	}

	return ParseJSON(out)
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// ParseJSON converts raw ffprobe JSON output into a ProbeResult.
// Exported for testing without a real ffprobe binary.
func ParseJSON(data []byte) (*ProbeResult, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}
	if raw.Format.FormatName == "" && len(raw.Streams) == 0 {
		return nil, errors.New("parse ffprobe JSON: no format or streams")
	}
	return buildResult(&raw), nil
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename   string            `json:"filename"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

type ffprobeStream struct {
	Index        int               `json:"index"`
	CodecName    string            `json:"codec_name"`
	CodecType    string            `json:"codec_type"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	BitRate      string            `json:"bit_rate"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	RFrameRate   string            `json:"r_frame_rate"`
	NbFrames     string            `json:"nb_frames"`
	Duration     string            `json:"duration"`
	DurationTS   json.Number       `json:"duration_ts"`
	TimeBase     string            `json:"time_base"`
	Channels     int               `json:"channels"`
	SampleRate   string            `json:"sample_rate"`
	Disposition  map[string]int    `json:"disposition"`
	Tags         map[string]string `json:"tags"`
}

// --- Conversion from wire types to domain types ---

func buildResult(raw *ffprobeOutput) *ProbeResult {
	pr := &ProbeResult{
		Format: FormatInfo{
			Filename:   raw.Format.Filename,
			FormatName: raw.Format.FormatName,
			Duration:   parseFloat(raw.Format.Duration),
			Size:       parseInt64(raw.Format.Size),
			BitRate:    parseInt64(raw.Format.BitRate),
			Tags:       raw.Format.Tags,
		},
	}

	for i := range raw.Streams {
		s := &raw.Streams[i]
		switch s.CodecType {
		case "video":
			vs := convertVideo(s)
			if !vs.IsAttachedPic && pr.PrimaryVideo == nil {
				pr.PrimaryVideo = &vs
			}
		case "audio":
			pr.AudioStreams = append(pr.AudioStreams, convertAudio(s))
		}
	}
	return pr
}

func convertVideo(s *ffprobeStream) VideoStream {
	return VideoStream{
		Index:         s.Index,
		Codec:         s.CodecName,
		Width:         s.Width,
		Height:        s.Height,
		BitRate:       parseInt64(s.BitRate),
		AvgFrameRate:  s.AvgFrameRate,
		RFrameRate:    s.RFrameRate,
		NbFrames:      parseInt64(s.NbFrames),
		Duration:      parseFloat(s.Duration),
		IsAttachedPic: s.Disposition["attached_pic"] == 1,
		Tags:          s.Tags,
	}
}

func convertAudio(s *ffprobeStream) AudioStream {
	return AudioStream{
		Index:      s.Index,
		Codec:      s.CodecName,
		Channels:   s.Channels,
		SampleRate: parseInt(s.SampleRate),
		BitRate:    parseInt64(s.BitRate),
		Duration:   parseFloat(s.Duration),
		DurationTS: parseInt64(s.DurationTS.String()),
		TimeBase:   s.TimeBase,
		Tags:       s.Tags,
	}
}

// --- Numeric parsing helpers (ffprobe returns numbers as strings) ---

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

// parseRational converts "num/den" (or a plain number) to a float.
// It returns 0 for "0/0", malformed input or a zero denominator.
func parseRational(s string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	if !found {
		return parseFloat(num)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}
