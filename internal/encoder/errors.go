package encoder

import (
	"errors"
	"io/fs"
	"os/exec"
	"regexp"
)

// Stderr patterns mapped to short hints, checked in order.
var hints = []struct {
	re   *regexp.Regexp
	hint string
}{
	{regexp.MustCompile(`(?i)Unknown encoder|Encoder not found|encoder .* not found`), "unknown encoder (check --vcodec/--acodec)"},
	{regexp.MustCompile(`(?i)No such file or directory|unable to open image`), "input or output path not found"},
	{regexp.MustCompile(`(?i)Permission denied`), "permission denied"},
	{regexp.MustCompile(`(?i)no decode delegate|Invalid data found when processing input|not supported|could not find codec parameters`), "unsupported input format"},
	{regexp.MustCompile(`(?i)Invalid argument|Error parsing|Unrecognized option|Option .* not found|unrecognized option`), "invalid encoder argument"},
	{regexp.MustCompile(`(?i)No space left on device`), "disk full"},
}

// Classify returns a short hint for stderr, or "" when nothing matches.
func Classify(stderr string) string {
	for _, h := range hints {
		if h.re.MatchString(stderr) {
			return h.hint
		}
	}
	return ""
}

// startHint explains a failure to start the encoder binary.
func startHint(err error) string {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return "encoder binary not found (run --check)"
	}
	return ""
}
