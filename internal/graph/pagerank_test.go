package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(m map[int64]float64) float64 {
	var s float64
	for _, v := range m {
		s += v
	}
	return s
}

func TestPageRankEmptyGraph(t *testing.T) {
	res, err := PageRank(context.Background(), FromEdges(nil), DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, res.Scores)
	assert.True(t, res.Converged)
}

func TestPageRankTwoCycleIsUniform(t *testing.T) {
	g := FromEdges([]Edge{{1, 2}, {2, 1}})
	res, err := PageRank(context.Background(), g, DefaultOptions())
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.Scores[1], 1e-9)
	assert.InDelta(t, 0.5, res.Scores[2], 1e-9)
	assert.True(t, res.Converged)
}

func TestPageRankWithDanglingNodeSumsToOne(t *testing.T) {
	// 1 <-> 2, 2 -> 3, and 3 has no out-links.
	g := FromEdges([]Edge{{1, 2}, {2, 1}, {2, 3}})
	res, err := PageRank(context.Background(), g, DefaultOptions())
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.InDelta(t, 1.0, sum(res.Scores), 1e-9)
	assert.InDelta(t, 0.3936, res.Scores[2], 1e-3)
	assert.InDelta(t, 0.3032, res.Scores[1], 1e-3)
	assert.InDelta(t, res.Scores[1], res.Scores[3], 1e-6)
	for id, v := range res.Scores {
		assert.GreaterOrEqual(t, v, 0.0, "node %d", id)
	}
}

func TestPageRankStarAndSelfLoop(t *testing.T) {
	g := FromEdges([]Edge{{1, 10}, {2, 10}, {3, 10}, {10, 10}})
	res, err := PageRank(context.Background(), g, DefaultOptions())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sum(res.Scores), 1e-9)
	for _, id := range []int64{1, 2, 3} {
		assert.Greater(t, res.Scores[10], res.Scores[id])
	}
}

func TestPageRankIterationBound(t *testing.T) {
	g := FromEdges([]Edge{{1, 2}, {2, 3}, {3, 1}, {3, 2}})
	opts := DefaultOptions()
	opts.MaxIterations = 1
	res, err := PageRank(context.Background(), g, opts)
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.InDelta(t, 1.0, sum(res.Scores), 1e-9)
}

func TestPageRankCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := PageRank(ctx, FromEdges([]Edge{{1, 2}}), DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}
