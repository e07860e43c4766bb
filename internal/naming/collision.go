package naming

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// CollisionResolver hands out output paths in batch mode so two inputs
// never write the same file (photo.png and photo.jpg both derive
// photo.compressed.jpg). Later claimants get a "-N" suffix before the
// extension. All methods are goroutine-safe.
type CollisionResolver struct {
	mu       sync.Mutex
	owners   map[string]string // output path → input that claimed it
	counters map[string]int    // requested path → next suffix to try
}

// NewCollisionResolver creates a ready-to-use resolver.
func NewCollisionResolver() *CollisionResolver {
	return &CollisionResolver{
		owners:   make(map[string]string),
		counters: make(map[string]int),
	}
}

// Resolve returns the output path input should write. The requested path is
// returned unchanged when it is free or already owned by input.
func (cr *CollisionResolver) Resolve(input, requested string) string {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if owner, taken := cr.owners[requested]; !taken || owner == input {
		cr.owners[requested] = input
		return requested
	}

	dir := filepath.Dir(requested)
	base := filepath.Base(requested)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	n := cr.counters[requested]
	if n < 2 {
		n = 2
	}
	for {
		candidate := filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
		if owner, taken := cr.owners[candidate]; !taken || owner == input {
			cr.counters[requested] = n + 1
			cr.owners[candidate] = input
			return candidate
		}
		n++
	}
}
