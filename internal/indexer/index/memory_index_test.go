package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/document"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/ranker"
)

func TestAddDocumentAndPostings(t *testing.T) {
	idx := NewMemoryIndex()
	assert.Equal(t, 3, idx.AddDocument(document.Document{ID: 1, URL: "u1", Title: "one", Text: "fire fire smoke"}))
	assert.Equal(t, 2, idx.AddDocument(document.Document{ID: 2, URL: "u2", Title: "two", Text: "fire ash"}))

	ctx := context.Background()
	stats, err := idx.CorpusStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, ranker.CorpusStats{DocCount: 2, AvgDocLength: 2.5}, stats)

	postings, err := idx.Postings(ctx, []string{"fire", "missing"})
	require.NoError(t, err)
	assert.Equal(t, []ranker.Posting{
		{DocID: 1, Frequency: 2, DocLength: 3},
		{DocID: 2, Frequency: 1, DocLength: 2},
	}, postings["fire"])
	assert.NotContains(t, postings, "missing")

	df, err := idx.DocumentFrequency(ctx, "fire")
	require.NoError(t, err)
	assert.Equal(t, 2, df)
}

func TestAddDocumentReplacesPreviousVersion(t *testing.T) {
	idx := NewMemoryIndex()
	idx.AddDocument(document.Document{ID: 1, Text: "fire fire"})
	idx.AddDocument(document.Document{ID: 1, Text: "smoke"})

	ctx := context.Background()
	postings, err := idx.Postings(ctx, []string{"fire", "smoke"})
	require.NoError(t, err)
	assert.NotContains(t, postings, "fire")
	assert.Len(t, postings["smoke"], 1)

	stats, err := idx.CorpusStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, ranker.CorpusStats{DocCount: 1, AvgDocLength: 1}, stats)
	assert.Equal(t, 1, idx.TermCount())
}

func TestLinkRecordsAndMetadata(t *testing.T) {
	idx := NewMemoryIndex()
	idx.AddDocument(document.Document{ID: 2, URL: "https://x/2", Title: "Two", Links: []string{"https://x/1"}})
	idx.AddDocument(document.Document{ID: 1, URL: "https://x/1", Title: "One"})

	ctx := context.Background()
	records, err := idx.LinkRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0].DocID)
	assert.Equal(t, []string{"https://x/1"}, records[1].Links)

	meta, err := idx.Metadata(ctx, []int64{1, 99})
	require.NoError(t, err)
	assert.Equal(t, map[int64]document.Meta{1: {URL: "https://x/1", Title: "One"}}, meta)

	idx.Remove(2)
	assert.Equal(t, 1, idx.DocCount())
	idx.Reset()
	assert.Equal(t, 0, idx.DocCount())
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryIndex().Postings(ctx, []string{"fire"})
	assert.ErrorIs(t, err, context.Canceled)
}
