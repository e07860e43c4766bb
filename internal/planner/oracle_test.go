package planner

import (
	"context"
	"fmt"

	"github.com/backmassage/sizefit/internal/encoder"
)

// fakeOracle maps a parameter value to an output size without encoding.
type fakeOracle struct {
	size      func(v int64) int64
	failOn    int // 1-based call that fails; 0 never.
	failErr   error
	calls     []int64
	discarded []string
}

func (f *fakeOracle) Encode(ctx context.Context, v int64) (encoder.Output, error) {
	f.calls = append(f.calls, v)
	if f.failOn == len(f.calls) {
		return encoder.Output{}, f.failErr
	}
	return encoder.Output{Path: fmt.Sprintf("attempt-%d", len(f.calls)), Size: f.size(v)}, nil
}

func (f *fakeOracle) Discard(path string) { f.discarded = append(f.discarded, path) }

func linear(perUnit int64) func(int64) int64 {
	return func(v int64) int64 { return v * perUnit }
}
