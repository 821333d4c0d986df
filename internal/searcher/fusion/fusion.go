// Package fusion normalizes the BM25, PageRank and HITS authority signals
// and blends them into one ranked list.
package fusion

import (
	"math"
	"sort"
)

// Weights are the blend factors for BM25, PageRank and HITS authority. They
// are not required to sum to 1 here.
type Weights struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// Sum returns Alpha+Beta+Gamma.
func (w Weights) Sum() float64 { return w.Alpha + w.Beta + w.Gamma }

// Scored is a document with its hybrid score.
type Scored struct {
	DocID int64   `json:"doc_id"`
	Score float64 `json:"score"`
}

// Normalize min-max scales m into a new map. When every value is equal the
// result is all zeros.
func Normalize(m map[int64]float64) map[int64]float64 {
	out := make(map[int64]float64, len(m))
	if len(m) == 0 {
		return out
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range m {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	for id, v := range m {
		if span == 0 {
			out[id] = 0
			continue
		}
		out[id] = (v - lo) / span
	}
	return out
}

// Blend scores every BM25 candidate as alpha*bm25 + beta*pagerank +
// gamma*hits. PageRank and HITS entries for other documents are ignored and
// missing entries count as zero. The result is unordered.
func Blend(bm25, pagerank, hits map[int64]float64, w Weights) []Scored {
	out := make([]Scored, 0, len(bm25))
	for id, lexical := range bm25 {
		out = append(out, Scored{
			DocID: id,
			Score: w.Alpha*lexical + w.Beta*pagerank[id] + w.Gamma*hits[id],
		})
	}
	return out
}

// Combine blends the normalized signals and sorts by score descending, ties
// broken by ascending doc id.
func Combine(bm25, pagerank, hits map[int64]float64, w Weights) []Scored {
	out := Blend(bm25, pagerank, hits, w)
	sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// Less reports whether a ranks before b.
func Less(a, b Scored) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}
