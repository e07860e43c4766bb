package naming

import (
	"path/filepath"
	"strings"

	"github.com/backmassage/sizefit/internal/config"
)

// OutputSuffix is inserted between the stem and the extension of derived
// output paths.
const OutputSuffix = ".compressed"

// OutputPath builds the default output path for input when the caller gave
// none. The file sits next to the input:
//
//	image: <dir>/<stem>.compressed.jpg
//	video: <dir>/<stem>.compressed.mp4
//	audio: <dir>/<stem>.compressed.<ext for audioCodec>
func OutputPath(input string, kind config.MediaKind, audioCodec string) string {
	dir := filepath.Dir(input)
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+OutputSuffix+"."+ContainerFor(kind, audioCodec))
}

// ContainerFor returns the default container extension (without dot) for
// kind. Audio containers follow the codec.
func ContainerFor(kind config.MediaKind, audioCodec string) string {
	switch kind {
	case config.KindImage:
		return "jpg"
	case config.KindVideo:
		return "mp4"
	}
	switch audioFamily(audioCodec) {
	case familyMP3:
		return "mp3"
	case familyOpus:
		return "opus"
	case familyVorbis:
		return "ogg"
	case familyFLAC:
		return "flac"
	case familyPCM:
		return "wav"
	default:
		return "m4a"
	}
}
