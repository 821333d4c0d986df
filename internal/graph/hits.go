package graph

import (
	"context"
	"fmt"
	"math"
)

// HITSResult holds hub and authority scores, each summing to 1.
type HITSResult struct {
	Hubs        map[int64]float64
	Authorities map[int64]float64
	Iterations  int
	Converged   bool
	Delta       float64
}

// HITS alternates authority(v) = sum of hub(u) over predecessors u and
// hub(u) = sum of authority(v) over successors v, L1-normalizing both after
// each step. It stops when the L1 change of the hub vector drops below
// n*Tolerance. Damping is ignored.
func HITS(ctx context.Context, g *Graph, opts Options) (HITSResult, error) {
	n := g.NodeCount()
	if n == 0 {
		return HITSResult{
			Hubs:        map[int64]float64{},
			Authorities: map[int64]float64{},
			Converged:   true,
		}, nil
	}

	hub := make([]float64, n)
	auth := make([]float64, n)
	next := make([]float64, n)
	for i := range hub {
		hub[i] = 1 / float64(n)
	}

	res := HITSResult{}
	for iter := 1; iter <= opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return HITSResult{}, fmt.Errorf("hits interrupted after %d iterations: %w", iter-1, err)
		}

		for v, preds := range g.in {
			var s float64
			for _, u := range preds {
				s += hub[u]
			}
			auth[v] = s
		}
		normalizeL1(auth)

		for u, succ := range g.out {
			var s float64
			for _, v := range succ {
				s += auth[v]
			}
			next[u] = s
		}
		normalizeL1(next)

		var delta float64
		for i := range hub {
			delta += math.Abs(next[i] - hub[i])
		}
		hub, next = next, hub
		res.Iterations = iter
		res.Delta = delta
		if delta < float64(n)*opts.Tolerance {
			res.Converged = true
			break
		}
	}

	res.Hubs = g.toMap(hub)
	res.Authorities = g.toMap(auth)
	return res, nil
}

// normalizeL1 scales v to sum to 1. A zero vector is left unchanged.
func normalizeL1(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x
	}
	if sum == 0 {
		return
	}
	for i := range v {
		v[i] /= sum
	}
}
