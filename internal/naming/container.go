package naming

import (
	"fmt"
	"strings"

	"github.com/backmassage/sizefit/internal/config"
)

type codecFamily int

const (
	familyUnknown codecFamily = iota
	familyAAC
	familyMP3
	familyOpus
	familyVorbis
	familyFLAC
	familyPCM
)

func audioFamily(codec string) codecFamily {
	c := strings.ToLower(codec)
	switch {
	case c == "aac" || c == "libfdk_aac" || c == "aac_at":
		return familyAAC
	case c == "libmp3lame" || c == "mp3" || c == "libshine":
		return familyMP3
	case c == "libopus" || c == "opus":
		return familyOpus
	case c == "libvorbis" || c == "vorbis":
		return familyVorbis
	case c == "flac":
		return familyFLAC
	case strings.HasPrefix(c, "pcm_"):
		return familyPCM
	}
	return familyUnknown
}

// audioContainers lists the codec families each audio container can hold.
// Containers missing from the table are not checked.
var audioContainers = map[string][]codecFamily{
	".mp3":  {familyMP3},
	".m4a":  {familyAAC},
	".aac":  {familyAAC},
	".opus": {familyOpus},
	".ogg":  {familyVorbis, familyOpus, familyFLAC},
	".oga":  {familyVorbis, familyOpus, familyFLAC},
	".flac": {familyFLAC},
	".wav":  {familyPCM},
}

// SubstituteContainer switches an .mp3 output to .m4a when the audio codec
// is AAC, since AAC cannot be muxed into an MP3 file. It reports whether
// the path changed. The extension's case is normalized only when replaced.
func SubstituteContainer(output, audioCodec string) (string, bool) {
	if Ext(output) != ".mp3" || audioFamily(audioCodec) != familyAAC {
		return output, false
	}
	return output[:len(output)-len(".mp3")] + ".m4a", true
}

// CheckContainer rejects codec/container combinations that the encoder
// cannot mux. Call it after SubstituteContainer.
func CheckContainer(output string, kind config.MediaKind, videoCodec, audioCodec string) error {
	ext := Ext(output)
	switch kind {
	case config.KindAudio:
		allowed, known := audioContainers[ext]
		fam := audioFamily(audioCodec)
		if !known || fam == familyUnknown {
			return nil
		}
		for _, f := range allowed {
			if f == fam {
				return nil
			}
		}
		return fmt.Errorf("audio codec %q cannot be stored in a %s file", audioCodec, ext)
	case config.KindVideo:
		if ext == ".webm" {
			v := strings.ToLower(videoCodec)
			if !strings.Contains(v, "vp8") && !strings.Contains(v, "vp9") && !strings.Contains(v, "av1") && !strings.Contains(v, "aom") {
				return fmt.Errorf("video codec %q cannot be stored in a .webm file", videoCodec)
			}
		}
		if audioExts[ext] || imageExts[ext] {
			return fmt.Errorf("video output needs a video container, got %s", ext)
		}
	case config.KindImage:
		if !imageExts[ext] {
			return fmt.Errorf("image output needs an image extension, got %q", ext)
		}
	}
	return nil
}
