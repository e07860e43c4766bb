package encoder

import (
	"strings"
	"sync"
)

// LineRing keeps the last N lines written to it. It is an io.Writer so it
// can sit directly on a child's stderr. Partial lines are buffered until
// their newline arrives (or until Lines is called).
type LineRing struct {
	mu      sync.Mutex
	lines   []string
	head    int
	count   int
	partial strings.Builder
}

// NewLineRing creates a LineRing holding up to capacity lines.
func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 40
	}
	return &LineRing{lines: make([]string, capacity)}
}

// Write implements io.Writer.
func (r *LineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := string(p)
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			r.partial.WriteString(s)
			break
		}
		r.partial.WriteString(s[:i])
		r.push(r.partial.String())
		r.partial.Reset()
		s = s[i+1:]
	}
	return len(p), nil
}

// push stores line, dropping blank lines and carriage-return progress output.
func (r *LineRing) push(line string) {
	if i := strings.LastIndexByte(line, '\r'); i >= 0 {
		line = line[i+1:]
	}
	line = strings.TrimRight(line, " \t")
	if line == "" {
		return
	}
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	}
}

// Lines returns the retained lines in chronological order, including any
// unterminated trailing line.
func (r *LineRing) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.partial.Len() > 0 {
		r.push(r.partial.String())
		r.partial.Reset()
	}
	out := make([]string, 0, r.count)
	start := (r.head - r.count + len(r.lines)) % len(r.lines)
	for i := 0; i < r.count; i++ {
		out = append(out, r.lines[(start+i)%len(r.lines)])
	}
	return out
}

// String joins Lines with newlines.
func (r *LineRing) String() string {
	return strings.Join(r.Lines(), "\n")
}
