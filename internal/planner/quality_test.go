package planner

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/sizefit/internal/config"
	"github.com/backmassage/sizefit/internal/failure"
)

func search(target int64, tol Tolerance, policy config.SearchPolicy) QualitySearch {
	return QualitySearch{Target: target, Tolerance: tol, MaxAttempts: DefaultMaxAttempts, Policy: policy}
}

func values(st *SearchState) []int64 {
	var out []int64
	for _, a := range st.Attempts {
		out = append(out, a.Value)
	}
	return out
}

func TestQualitySearch_ConvergesOnTenPercent(t *testing.T) {
	// A 10 MB source whose size is proportional to quality, squeezed to 1 MB.
	o := &fakeOracle{size: linear(100_000)}
	st, err := search(1_000_000, Tolerance{Ratio: 0.05}, config.PolicyNeverExceed).Run(context.Background(), o)
	require.NoError(t, err)

	assert.True(t, st.Converged)
	assert.Equal(t, []int64{50, 25, 12, 6, 9, 10}, values(st))
	best, ok := st.Best()
	require.True(t, ok)
	assert.Equal(t, int64(10), best.Value)
	assert.Equal(t, int64(1_000_000), best.Size)
	assert.Nil(t, st.Warning(Tolerance{Ratio: 0.05}))
}

func TestQualitySearch_MonotonicBoundsAndBest(t *testing.T) {
	curve := func(q int64) int64 { return 2_000 + q*q*50 }
	for target := int64(1_000); target <= 520_000; target += 3_517 {
		o := &fakeOracle{size: curve}
		st, err := search(target, Tolerance{Bytes: 1}, config.PolicyNeverExceed).Run(context.Background(), o)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(st.Attempts), 7, "target %d", target)

		// Highest quality whose size fits.
		want := int64(0)
		for q := int64(MinQuality); q <= MaxQuality; q++ {
			if curve(q) <= target {
				want = q
			}
		}
		best, ok := st.Best()
		require.True(t, ok)
		if want == 0 {
			assert.Equal(t, int64(MinQuality), best.Value, "nothing fits: smallest output wins")
			assert.True(t, st.NeedsResize())
			continue
		}
		assert.Equal(t, want, best.Value, "target %d", target)
		assert.LessOrEqual(t, best.Size, target)
	}
}

func TestQualitySearch_NeverExceedVersusClosest(t *testing.T) {
	tol := Tolerance{Ratio: 0.01}

	o := &fakeOracle{size: linear(100_000)}
	st, err := search(995_000, tol, config.PolicyNeverExceed).Run(context.Background(), o)
	require.NoError(t, err)
	assert.False(t, st.Converged)
	best, _ := st.Best()
	assert.Equal(t, int64(9), best.Value, "900 kB under target beats 1 MB over it")
	warn := st.Warning(tol)
	assert.ErrorIs(t, warn, failure.ErrUnachievableTarget)
	assert.True(t, failure.IsWarning(warn))

	o = &fakeOracle{size: linear(100_000)}
	st, err = search(995_000, tol, config.PolicyClosest).Run(context.Background(), o)
	require.NoError(t, err)
	assert.True(t, st.Converged)
	best, _ = st.Best()
	assert.Equal(t, int64(10), best.Value)
	assert.Greater(t, best.Size, int64(995_000))
}

func TestQualitySearch_NonMonotonicTerminates(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		sizes := make(map[int64]int64)
		o := &fakeOracle{size: func(q int64) int64 {
			if s, ok := sizes[q]; ok {
				return s
			}
			s := rng.Int63n(2_000_000)
			sizes[q] = s
			return s
		}}
		q := search(1_000_000, Tolerance{Bytes: 1}, config.PolicyNeverExceed)
		q.MaxAttempts = 5
		st, err := q.Run(context.Background(), o)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(st.Attempts), 5)
		for j, a := range st.Attempts {
			assert.Equal(t, j+1, a.Index)
			assert.GreaterOrEqual(t, a.Value, int64(MinQuality))
			assert.LessOrEqual(t, a.Value, int64(MaxQuality))
		}
	}
}

func TestQualitySearch_DiscardsSuperseded(t *testing.T) {
	o := &fakeOracle{size: linear(100_000)}
	st, err := search(1_000_000, Tolerance{Ratio: 0.05}, config.PolicyNeverExceed).Run(context.Background(), o)
	require.NoError(t, err)

	best, _ := st.Best()
	assert.Len(t, o.discarded, len(st.Attempts)-1, "only the best output survives")
	assert.NotContains(t, o.discarded, best.Path)
}

func TestQualitySearch_ResizeFallbackContinuesHistory(t *testing.T) {
	q := search(1_000_000, Tolerance{Ratio: 0.05}, config.PolicyNeverExceed)
	st := q.NewState()

	big := &fakeOracle{size: func(v int64) int64 { return 5_000_000 + v*1_000 }}
	require.NoError(t, q.Continue(context.Background(), st, big))
	assert.Equal(t, []int64{50, 25, 12, 6, 3, 1}, values(st))
	assert.True(t, st.NeedsResize())

	st.BeginResize()
	small := &fakeOracle{size: linear(10_000)}
	require.NoError(t, q.Continue(context.Background(), st, small))
	assert.True(t, st.Converged)
	assert.False(t, st.NeedsResize())

	require.Len(t, st.Attempts, 11)
	for i, a := range st.Attempts {
		assert.Equal(t, i+1, a.Index)
		assert.Equal(t, i >= 6, a.Resized, "attempt %d", a.Index)
	}
	best, _ := st.Best()
	assert.True(t, best.Resized)
	assert.Equal(t, int64(97), best.Value)
	// The unresized best is dropped once a resized attempt fits.
	assert.Contains(t, small.discarded, "attempt-6")
}

func TestQualitySearch_EncodeFailurePropagates(t *testing.T) {
	boom := failure.Errorf(failure.EncodeFailed, "encode", "exit status 1")
	o := &fakeOracle{size: linear(100_000), failOn: 2, failErr: boom}
	st, err := search(1_000_000, Tolerance{Ratio: 0.05}, config.PolicyNeverExceed).Run(context.Background(), o)
	require.ErrorIs(t, err, failure.ErrEncodeFailed)
	assert.Len(t, o.calls, 2, "no retry after a failed encode")
	require.Len(t, st.Attempts, 2)
	assert.True(t, st.Attempts[1].Failed())
}

func TestQualitySearch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := &fakeOracle{size: linear(1)}
	_, err := search(100, Tolerance{Ratio: 0.05}, config.PolicyNeverExceed).Run(ctx, o)
	assert.ErrorIs(t, err, failure.ErrCancelled)
	assert.Empty(t, o.calls)
}
