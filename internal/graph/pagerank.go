package graph

import (
	"context"
	"fmt"
	"math"
)

// Options bound the power iterations of PageRank and HITS.
type Options struct {
	Damping       float64
	MaxIterations int
	Tolerance     float64
}

func DefaultOptions() Options {
	return Options{Damping: 0.85, MaxIterations: 1000, Tolerance: 1e-6}
}

// PageRankResult holds the stationary distribution, or the last iterate
// when the iteration bound was hit first.
type PageRankResult struct {
	Scores     map[int64]float64
	Iterations int
	Converged  bool
	Delta      float64
}

// PageRank runs power iteration with uniform teleport. The mass of nodes
// without out-links is spread uniformly over all nodes, so the scores sum to
// 1. Iteration stops once the L1 change drops below n*Tolerance. ctx is
// checked between iterations.
func PageRank(ctx context.Context, g *Graph, opts Options) (PageRankResult, error) {
	n := g.NodeCount()
	if n == 0 {
		return PageRankResult{Scores: map[int64]float64{}, Converged: true}, nil
	}

	alpha := opts.Damping
	inv := 1 / float64(n)
	x := make([]float64, n)
	next := make([]float64, n)
	for i := range x {
		x[i] = inv
	}

	res := PageRankResult{}
	for iter := 1; iter <= opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return PageRankResult{}, fmt.Errorf("pagerank interrupted after %d iterations: %w", iter-1, err)
		}

		var dangling float64
		for i := range x {
			if len(g.out[i]) == 0 {
				dangling += x[i]
			}
		}
		base := (1-alpha)*inv + alpha*dangling*inv
		for i := range next {
			next[i] = base
		}
		for i, succ := range g.out {
			if len(succ) == 0 {
				continue
			}
			share := alpha * x[i] / float64(len(succ))
			for _, j := range succ {
				next[j] += share
			}
		}

		var delta float64
		for i := range x {
			delta += math.Abs(next[i] - x[i])
		}
		x, next = next, x
		res.Iterations = iter
		res.Delta = delta
		if delta < float64(n)*opts.Tolerance {
			res.Converged = true
			break
		}
	}

	res.Scores = g.toMap(x)
	return res, nil
}
