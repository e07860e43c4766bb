package naming

import (
	"path/filepath"
	"strings"

	"github.com/backmassage/sizefit/internal/config"
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".bmp": true,
	".tif": true, ".tiff": true, ".gif": true, ".heic": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".mkv": true, ".mov": true, ".avi": true, ".webm": true,
	".m4v": true, ".wmv": true, ".flv": true, ".ts": true, ".mpg": true, ".mpeg": true,
}

var audioExts = map[string]bool{
	".mp3": true, ".wav": true, ".aac": true, ".m4a": true, ".flac": true,
	".ogg": true, ".oga": true, ".opus": true, ".wma": true,
}

// Ext returns the lower-cased extension of path including the dot.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// DetectKind classifies path by extension. ok is false for unknown types.
func DetectKind(path string) (kind config.MediaKind, ok bool) {
	ext := Ext(path)
	switch {
	case imageExts[ext]:
		return config.KindImage, true
	case videoExts[ext]:
		return config.KindVideo, true
	case audioExts[ext]:
		return config.KindAudio, true
	}
	return "", false
}

// IsMedia reports whether path has any recognized media extension.
func IsMedia(path string) bool {
	_, ok := DetectKind(path)
	return ok
}

// IsJPEG reports whether path names a JPEG file.
func IsJPEG(path string) bool {
	ext := Ext(path)
	return ext == ".jpg" || ext == ".jpeg"
}
