// Package index holds an in-memory inverted index over cleaned documents.
// It serves the same read interfaces as the Postgres store and backs tests,
// local runs and the offline evaluation tooling.
package index

import (
	"context"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/document"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/graph"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/ranker"
)

type docEntry struct {
	meta   document.Meta
	length int
	terms  map[string]int
	links  []string
}

// MemoryIndex is safe for concurrent use.
type MemoryIndex struct {
	mu          sync.RWMutex
	postings    map[string]map[int64]int
	docs        map[int64]*docEntry
	totalTokens int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		postings: make(map[string]map[int64]int),
		docs:     make(map[int64]*docEntry),
	}
}

// AddDocument tokenizes doc.Text and indexes it, replacing any earlier
// version of the same id. It returns the document length in tokens.
func (m *MemoryIndex) AddDocument(doc document.Document) int {
	terms := tokenizer.Terms(doc.Text)
	freq := tokenizer.Frequencies(terms)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(doc.ID)
	for term, f := range freq {
		docs, ok := m.postings[term]
		if !ok {
			docs = make(map[int64]int)
			m.postings[term] = docs
		}
		docs[doc.ID] = f
	}
	m.docs[doc.ID] = &docEntry{
		meta:   document.Meta{URL: doc.URL, Title: doc.Title},
		length: len(terms),
		terms:  freq,
		links:  append([]string(nil), doc.Links...),
	}
	m.totalTokens += int64(len(terms))
	return len(terms)
}

// Remove deletes a document from the index.
func (m *MemoryIndex) Remove(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
}

func (m *MemoryIndex) removeLocked(id int64) {
	old, ok := m.docs[id]
	if !ok {
		return
	}
	for term := range old.terms {
		delete(m.postings[term], id)
		if len(m.postings[term]) == 0 {
			delete(m.postings, term)
		}
	}
	m.totalTokens -= int64(old.length)
	delete(m.docs, id)
}

// CorpusStats implements ranker.Statistics.
func (m *MemoryIndex) CorpusStats(ctx context.Context) (ranker.CorpusStats, error) {
	if err := ctx.Err(); err != nil {
		return ranker.CorpusStats{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := ranker.CorpusStats{DocCount: int64(len(m.docs))}
	if len(m.docs) > 0 {
		stats.AvgDocLength = float64(m.totalTokens) / float64(len(m.docs))
	}
	return stats, nil
}

// Postings implements ranker.Statistics. Postings are ordered by doc id.
func (m *MemoryIndex) Postings(ctx context.Context, terms []string) (map[string][]ranker.Posting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]ranker.Posting, len(terms))
	for _, term := range terms {
		docs, ok := m.postings[term]
		if !ok {
			continue
		}
		list := make([]ranker.Posting, 0, len(docs))
		for id, f := range docs {
			list = append(list, ranker.Posting{DocID: id, Frequency: f, DocLength: m.docs[id].length})
		}
		sort.Slice(list, func(i, j int) bool { return list[i].DocID < list[j].DocID })
		out[term] = list
	}
	return out, nil
}

// DocumentFrequency returns the number of documents containing term.
func (m *MemoryIndex) DocumentFrequency(_ context.Context, term string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.postings[term]), nil
}

// LinkRecords implements graph.LinkSource. Records are ordered by doc id.
func (m *MemoryIndex) LinkRecords(ctx context.Context) ([]graph.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]graph.Record, 0, len(m.docs))
	for id, d := range m.docs {
		out = append(out, graph.Record{DocID: id, URL: d.meta.URL, Links: append([]string(nil), d.links...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocID < out[j].DocID })
	return out, nil
}

// Metadata returns title and URL for the known ids.
func (m *MemoryIndex) Metadata(ctx context.Context, ids []int64) (map[int64]document.Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]document.Meta, len(ids))
	for _, id := range ids {
		if d, ok := m.docs[id]; ok {
			out[id] = d.meta
		}
	}
	return out, nil
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// TermCount returns the vocabulary size.
func (m *MemoryIndex) TermCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.postings)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postings = make(map[string]map[int64]int)
	m.docs = make(map[int64]*docEntry)
	m.totalTokens = 0
}
