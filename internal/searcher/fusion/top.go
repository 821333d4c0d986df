package fusion

import (
	"container/heap"
	"sort"
)

// Top returns the first limit entries of scored in ranked order without
// sorting the whole slice. A limit of zero or less, or one covering the
// whole input, sorts everything.
func Top(scored []Scored, limit int) []Scored {
	if limit <= 0 || limit >= len(scored) {
		out := make([]Scored, len(scored))
		copy(out, scored)
		sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
		return out
	}

	h := make(scoredHeap, 0, limit+1)
	for _, s := range scored {
		heap.Push(&h, s)
		if h.Len() > limit {
			heap.Pop(&h)
		}
	}
	result := make([]Scored, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&h).(Scored)
	}
	return result
}

// scoredHeap is a min-heap on rank: the root is the worst-ranked entry.
type scoredHeap []Scored

func (h scoredHeap) Len() int           { return len(h) }
func (h scoredHeap) Less(i, j int) bool { return Less(h[j], h[i]) }
func (h scoredHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *scoredHeap) Push(x any) {
	*h = append(*h, x.(Scored))
}

func (h *scoredHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
