package encoder

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineRing(t *testing.T) {
	r := NewLineRing(3)

	_, _ = fmt.Fprintf(r, "line1\n")
	_, _ = fmt.Fprintf(r, "line2\n")
	assert.Equal(t, []string{"line1", "line2"}, r.Lines())

	_, _ = fmt.Fprintf(r, "line3\n")
	assert.Equal(t, []string{"line1", "line2", "line3"}, r.Lines())

	// Wrap
	_, _ = fmt.Fprintf(r, "line4\n")
	assert.Equal(t, []string{"line2", "line3", "line4"}, r.Lines())
}

func TestLineRing_PartialWrites(t *testing.T) {
	r := NewLineRing(5)
	_, _ = r.Write([]byte("Unknown enc"))
	_, _ = r.Write([]byte("oder 'libfoo'\nsecond"))
	assert.Equal(t, []string{"Unknown encoder 'libfoo'", "second"}, r.Lines())
	assert.Equal(t, "Unknown encoder 'libfoo'\nsecond", r.String())
}

func TestLineRing_ProgressAndBlanks(t *testing.T) {
	r := NewLineRing(5)
	_, _ = r.Write([]byte("frame=1\rframe=2\rframe=3\n\n   \nError\n"))
	assert.Equal(t, []string{"frame=3", "Error"}, r.Lines())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		stderr string
		want   string
	}{
		{"Unknown encoder 'libx999'", "unknown encoder (check --vcodec/--acodec)"},
		{"in.mp4: No such file or directory", "input or output path not found"},
		{"magick: no decode delegate for this image format `XYZ'", "unsupported input format"},
		{"Unrecognized option 'foo'.", "invalid encoder argument"},
		{"everything is fine", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.stderr), tt.stderr)
	}
}
