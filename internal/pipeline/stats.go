package pipeline

import (
	"sync"

	"github.com/backmassage/sizefit/internal/failure"
)

// RunStats tracks aggregate counters and byte totals across a batch run.
type RunStats struct {
	Total            int   `json:"total"`
	Compressed       int   `json:"compressed"`
	Warned           int   `json:"warned"` // Compressed, but outside the tolerance window.
	Failed           int   `json:"failed"`
	Cancelled        int   `json:"cancelled"`
	Invocations      int   `json:"invocations"`
	TotalInputBytes  int64 `json:"total_input_bytes"`
	TotalOutputBytes int64 `json:"total_output_bytes"`
}

// SpaceSaved returns the aggregate byte difference between inputs and outputs.
// Positive means outputs are smaller; negative means they grew.
func (s *RunStats) SpaceSaved() int64 {
	return s.TotalInputBytes - s.TotalOutputBytes
}

// statsCollector serializes updates from concurrent workers.
type statsCollector struct {
	mu    sync.Mutex
	stats RunStats
}

func (c *statsCollector) add(res *Result, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if res != nil {
		c.stats.Compressed++
		c.stats.Invocations += res.Invocations
		c.stats.TotalInputBytes += res.InputSize
		c.stats.TotalOutputBytes += res.Size
	}
	switch {
	case err == nil:
	case failure.IsWarning(err):
		c.stats.Warned++
	case failure.KindOf(err) == failure.Cancelled:
		c.stats.Cancelled++
	default:
		c.stats.Failed++
	}
}

func (c *statsCollector) snapshot() RunStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
