package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomevolve/atomevolve-go/internal/types"
)

func testCandidates(n int) []*types.Candidate {
	out := make([]*types.Candidate, n)
	for i := range out {
		out[i] = &types.Candidate{
			ID: fmt.Sprintf("cand-%d", i),
			Structure: &types.Structure{
				Numbers:   []int{29},
				Positions: []float64{0, 0, 0},
			},
		}
	}
	return out
}

func TestRelaxAllSuccess(t *testing.T) {
	relaxer := RelaxerFunc(func(_ context.Context, cand *types.Candidate) (*types.RelaxResult, error) {
		return &types.RelaxResult{Energy: -5.0}, nil
	})
	pool := NewPool(relaxer, types.RelaxConfig{Workers: 4}, nil)

	cands := testCandidates(10)
	results := pool.RelaxAll(context.Background(), cands)

	require.Len(t, results, 10)
	for i, res := range results {
		assert.Equal(t, cands[i].ID, res.ID)
		assert.True(t, res.Success)
		assert.Equal(t, -5.0, res.Energy)
		// Raw score defaults to the negative energy
		require.NotNil(t, res.RawScore)
		assert.Equal(t, 5.0, *res.RawScore)
	}
}

func TestRelaxAllExplicitRawScore(t *testing.T) {
	score := 42.0
	relaxer := RelaxerFunc(func(_ context.Context, cand *types.Candidate) (*types.RelaxResult, error) {
		return &types.RelaxResult{Energy: -5.0, RawScore: &score}, nil
	})
	pool := NewPool(relaxer, types.RelaxConfig{}, nil)

	res := pool.RelaxOne(context.Background(), testCandidates(1)[0])
	require.NotNil(t, res.RawScore)
	assert.Equal(t, 42.0, *res.RawScore)
}

func TestRelaxOneZeroRawScorePreserved(t *testing.T) {
	// An explicit score of zero is a legitimate value, not "unset"; the
	// negated energy must not overwrite it
	zero := 0.0
	relaxer := RelaxerFunc(func(_ context.Context, cand *types.Candidate) (*types.RelaxResult, error) {
		return &types.RelaxResult{Energy: -5.0, RawScore: &zero}, nil
	})
	pool := NewPool(relaxer, types.RelaxConfig{}, nil)

	res := pool.RelaxOne(context.Background(), testCandidates(1)[0])
	require.True(t, res.Success)
	require.NotNil(t, res.RawScore)
	assert.Equal(t, 0.0, *res.RawScore)
}

func TestRelaxAllFailuresDoNotAbortBatch(t *testing.T) {
	var calls atomic.Int64
	relaxer := RelaxerFunc(func(_ context.Context, cand *types.Candidate) (*types.RelaxResult, error) {
		if calls.Add(1)%2 == 0 {
			return nil, errors.New("did not converge")
		}
		return &types.RelaxResult{Energy: -1.0}, nil
	})
	pool := NewPool(relaxer, types.RelaxConfig{Workers: 2}, nil)

	results := pool.RelaxAll(context.Background(), testCandidates(8))

	ok, failed := 0, 0
	for _, res := range results {
		require.NotNil(t, res)
		if res.Success {
			ok++
		} else {
			failed++
			assert.Equal(t, "did not converge", res.Error)
		}
	}
	assert.Equal(t, 4, ok)
	assert.Equal(t, 4, failed)
}

func TestRelaxOnePanicRecovered(t *testing.T) {
	relaxer := RelaxerFunc(func(_ context.Context, cand *types.Candidate) (*types.RelaxResult, error) {
		panic("bad geometry")
	})
	pool := NewPool(relaxer, types.RelaxConfig{}, nil)

	res := pool.RelaxOne(context.Background(), testCandidates(1)[0])
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "bad geometry")
}

func TestRelaxOneTimeout(t *testing.T) {
	relaxer := RelaxerFunc(func(ctx context.Context, cand *types.Candidate) (*types.RelaxResult, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Second):
			return &types.RelaxResult{}, nil
		}
	})
	pool := NewPool(relaxer, types.RelaxConfig{Timeout: 1}, nil)
	// Shrink the timeout further for the test
	pool.timeout = 50 * time.Millisecond

	start := time.Now()
	res := pool.RelaxOne(context.Background(), testCandidates(1)[0])
	assert.False(t, res.Success)
	assert.Less(t, time.Since(start), 5*time.Second)
}
