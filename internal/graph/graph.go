// Package graph builds the document link graph and computes the offline
// PageRank and HITS authority scores consumed by the ranking service.
package graph

import (
	"context"
	"sort"
)

// Record is one document's outbound links as stored by the indexer.
type Record struct {
	DocID int64
	URL   string
	Links []string
}

// LinkSource yields the link records of the whole corpus.
type LinkSource interface {
	LinkRecords(ctx context.Context) ([]Record, error)
}

// Resolver maps a link URL to a document id.
type Resolver func(url string) (int64, bool)

// ResolverFromRecords resolves URLs against the documents in records. When
// two documents share a URL the lowest id wins.
func ResolverFromRecords(records []Record) Resolver {
	ids := make(map[string]int64, len(records))
	for _, r := range records {
		if r.URL == "" {
			continue
		}
		if prev, ok := ids[r.URL]; ok && prev <= r.DocID {
			continue
		}
		ids[r.URL] = r.DocID
	}
	return func(url string) (int64, bool) {
		id, ok := ids[url]
		return id, ok
	}
}

// Edge is a directed link between two documents.
type Edge struct {
	From int64
	To   int64
}

// Graph is an immutable simple digraph over document ids. Node indices
// follow ascending id order.
type Graph struct {
	nodes   []int64
	index   map[int64]int
	out     [][]int
	in      [][]int
	edges   int
	Dropped int
}

// Build reduces the records to a simple digraph. Duplicate links collapse,
// self-loops stay, and links that resolve to no document are counted in
// Dropped. Only ids that take part in at least one edge become nodes.
func Build(records []Record, resolve Resolver) *Graph {
	seen := make(map[Edge]struct{})
	var dropped int
	for _, r := range records {
		for _, link := range r.Links {
			to, ok := resolve(link)
			if !ok {
				dropped++
				continue
			}
			seen[Edge{From: r.DocID, To: to}] = struct{}{}
		}
	}
	edges := make([]Edge, 0, len(seen))
	for e := range seen {
		edges = append(edges, e)
	}
	g := FromEdges(edges)
	g.Dropped = dropped
	return g
}

// FromEdges builds a graph from an explicit edge list.
func FromEdges(edges []Edge) *Graph {
	index := make(map[int64]int)
	for _, e := range edges {
		index[e.From] = 0
		index[e.To] = 0
	}
	nodes := make([]int64, 0, len(index))
	for id := range index {
		nodes = append(nodes, id)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	for i, id := range nodes {
		index[id] = i
	}

	g := &Graph{
		nodes: nodes,
		index: index,
		out:   make([][]int, len(nodes)),
		in:    make([][]int, len(nodes)),
	}
	seen := make(map[[2]int]struct{}, len(edges))
	for _, e := range edges {
		k := [2]int{index[e.From], index[e.To]}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		g.out[k[0]] = append(g.out[k[0]], k[1])
		g.in[k[1]] = append(g.in[k[1]], k[0])
		g.edges++
	}
	for i := range nodes {
		sort.Ints(g.out[i])
		sort.Ints(g.in[i])
	}
	return g
}

// Nodes returns the node ids in ascending order.
func (g *Graph) Nodes() []int64 {
	out := make([]int64, len(g.nodes))
	copy(out, g.nodes)
	return out
}

func (g *Graph) NodeCount() int { return len(g.nodes) }

func (g *Graph) EdgeCount() int { return g.edges }

// Successors returns the ids that id links to.
func (g *Graph) Successors(id int64) []int64 {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	out := make([]int64, len(g.out[i]))
	for k, j := range g.out[i] {
		out[k] = g.nodes[j]
	}
	return out
}

func (g *Graph) toMap(values []float64) map[int64]float64 {
	m := make(map[int64]float64, len(values))
	for i, v := range values {
		m[g.nodes[i]] = v
	}
	return m
}
