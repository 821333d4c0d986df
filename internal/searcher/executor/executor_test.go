package executor

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/document"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/graph"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/fusion"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

// fireCorpus: doc 1 mentions "fire" twice, doc 2 once, doc 3 never.
// Links: 1 -> 2, 2 -> 1, 2 -> 3.
func fireCorpus() *index.MemoryIndex {
	idx := index.NewMemoryIndex()
	idx.AddDocument(document.Document{
		ID: 1, URL: "https://news.example/1", Title: "Forest fire",
		Text:  "fire fire",
		Links: []string{"https://news.example/2"},
	})
	idx.AddDocument(document.Document{
		ID: 2, URL: "https://news.example/2", Title: "Fire brigade",
		Text:  "fire",
		Links: []string{"https://news.example/1", "https://news.example/3", "https://external.example/"},
	})
	idx.AddDocument(document.Document{
		ID: 3, URL: "https://news.example/3", Title: "Weather",
		Text: "rain",
	})
	return idx
}

func snapshotFor(t *testing.T, src graph.LinkSource) *graph.SnapshotStore {
	t.Helper()
	ctx := context.Background()
	records, err := src.LinkRecords(ctx)
	require.NoError(t, err)
	g := graph.Build(records, graph.ResolverFromRecords(records))
	pr, err := graph.PageRank(ctx, g, graph.DefaultOptions())
	require.NoError(t, err)
	hits, err := graph.HITS(ctx, g, graph.DefaultOptions())
	require.NoError(t, err)

	store := graph.NewSnapshotStore(nil, nil)
	store.Swap(&graph.Snapshot{PageRank: pr.Scores, Authority: hits.Authorities})
	return store
}

func newService(t *testing.T, idx *index.MemoryIndex, perPage int) *Service {
	t.Helper()
	return New(idx, snapshotFor(t, idx), idx, Options{PerPage: perPage}, nil)
}

func ids(hits []Hit) []int64 {
	out := make([]int64, len(hits))
	for i, h := range hits {
		out[i] = h.DocID
	}
	return out
}

func TestSearchFireScenarioLexical(t *testing.T) {
	svc := newService(t, fireCorpus(), 10)

	res, err := svc.Search(context.Background(), Query{
		Text:    "fire",
		Weights: fusion.Weights{Alpha: 1},
		Page:    1,
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2}, ids(res.Results))
	assert.Equal(t, "Forest fire", res.Results[0].Title)
	assert.Equal(t, "https://news.example/1", res.Results[0].URL)
	assert.InDelta(t, 1.0, res.Results[0].Score, 1e-12)
	assert.InDelta(t, 0.0, res.Results[1].Score, 1e-12)
	assert.Equal(t, Pagination{CurrentPage: 1, TotalPages: 1, TotalResults: 2, PerPage: 10}, res.Pagination)
}

func TestSearchFireScenarioPageRankOnly(t *testing.T) {
	idx := fireCorpus()
	snaps := snapshotFor(t, idx)
	snap, err := snaps.Current()
	require.NoError(t, err)
	require.Contains(t, snap.PageRank, int64(3), "doc 3 is in the graph")
	require.Greater(t, snap.PageRank[2], snap.PageRank[1])

	svc := New(idx, snaps, idx, Options{PerPage: 10}, nil)
	res, err := svc.Search(context.Background(), Query{
		Text:    "fire",
		Weights: fusion.Weights{Beta: 1},
		Page:    1,
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 1}, ids(res.Results), "doc 3 is not a BM25 candidate")
	assert.Equal(t, 2, res.Pagination.TotalResults)
}

func TestSearchPagination(t *testing.T) {
	idx := index.NewMemoryIndex()
	for i := int64(1); i <= 7; i++ {
		text := "fire"
		for j := int64(0); j < i; j++ {
			text += " fire"
		}
		idx.AddDocument(document.Document{ID: i, Text: text})
	}
	svc := newService(t, idx, 3)
	ctx := context.Background()

	full, err := New(idx, snapshotFor(t, idx), idx, Options{PerPage: 100}, nil).
		Search(ctx, Query{Text: "fire", Weights: fusion.Weights{Alpha: 1}, Page: 1})
	require.NoError(t, err)
	require.Len(t, full.Results, 7)

	var collected []Hit
	for page := 1; page <= 3; page++ {
		res, err := svc.Search(ctx, Query{Text: "fire", Weights: fusion.Weights{Alpha: 1}, Page: page})
		require.NoError(t, err)
		assert.Equal(t, 3, res.Pagination.TotalPages)
		assert.Equal(t, 7, res.Pagination.TotalResults)
		collected = append(collected, res.Results...)
	}
	assert.Equal(t, full.Results, collected)

	past, err := svc.Search(ctx, Query{Text: "fire", Weights: fusion.Weights{Alpha: 1}, Page: 9})
	require.NoError(t, err)
	assert.Empty(t, past.Results)
	assert.NotNil(t, past.Results)
	assert.Equal(t, 3, past.Pagination.TotalPages)
	assert.Equal(t, 9, past.Pagination.CurrentPage)
}

func TestSearchHugePageIsEmpty(t *testing.T) {
	svc := newService(t, fireCorpus(), 10)
	for _, page := range []int{922337203685477582, math.MaxInt} {
		res, err := svc.Search(context.Background(), Query{Text: "fire", Weights: fusion.Weights{Alpha: 1}, Page: page})
		require.NoError(t, err)
		assert.Empty(t, res.Results)
		assert.Equal(t, 2, res.Pagination.TotalResults)
		assert.Equal(t, 1, res.Pagination.TotalPages)
		assert.Equal(t, page, res.Pagination.CurrentPage)
	}
}

func TestSearchIgnoresQueryCase(t *testing.T) {
	svc := newService(t, fireCorpus(), 10)
	ctx := context.Background()

	lower, err := svc.Search(ctx, Query{Text: "fire", Weights: fusion.Weights{Alpha: 1}, Page: 1})
	require.NoError(t, err)
	for _, q := range []string{"FIRE", "Fire", "FİRE"} {
		res, err := svc.Search(ctx, Query{Text: q, Weights: fusion.Weights{Alpha: 1}, Page: 1})
		require.NoError(t, err, q)
		assert.Equal(t, ids(lower.Results), ids(res.Results), q)
		assert.Equal(t, 2, res.Pagination.TotalResults, q)
	}
}

func TestSearchNoMatches(t *testing.T) {
	svc := newService(t, fireCorpus(), 10)
	for _, q := range []string{"volcano", "the", ""} {
		res, err := svc.Search(context.Background(), Query{Text: q, Weights: fusion.Weights{Alpha: 1}, Page: 1})
		require.NoError(t, err, q)
		assert.Empty(t, res.Results, q)
		assert.Equal(t, 0, res.Pagination.TotalPages, q)
	}
}

func TestSearchWithoutSnapshot(t *testing.T) {
	idx := fireCorpus()
	svc := New(idx, graph.NewSnapshotStore(nil, nil), idx, Options{}, nil)
	_, err := svc.Search(context.Background(), Query{Text: "fire", Weights: fusion.Weights{Alpha: 1}, Page: 1})
	assert.ErrorIs(t, err, apperrors.ErrSnapshotMissing)
}

type failingStats struct{}

func (failingStats) CorpusStats(context.Context) (ranker.CorpusStats, error) {
	return ranker.CorpusStats{}, errors.New("connection refused")
}

func (failingStats) Postings(context.Context, []string) (map[string][]ranker.Posting, error) {
	return nil, errors.New("connection refused")
}

func TestSearchStoreFailure(t *testing.T) {
	idx := fireCorpus()
	svc := New(failingStats{}, snapshotFor(t, idx), idx, Options{}, nil)
	_, err := svc.Search(context.Background(), Query{Text: "fire", Weights: fusion.Weights{Alpha: 1}, Page: 1})
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}

type countingMeta struct {
	inner MetadataStore
	calls atomic.Int32
	asked [][]int64
}

func (c *countingMeta) Metadata(ctx context.Context, ids []int64) (map[int64]document.Meta, error) {
	c.calls.Add(1)
	c.asked = append(c.asked, ids)
	return c.inner.Metadata(ctx, ids)
}

type countingStats struct {
	ranker.Statistics
	corpusCalls atomic.Int32
}

func (c *countingStats) CorpusStats(ctx context.Context) (ranker.CorpusStats, error) {
	c.corpusCalls.Add(1)
	return c.Statistics.CorpusStats(ctx)
}

func TestSearchCachesMetadataAndCorpusStats(t *testing.T) {
	idx := fireCorpus()
	meta := &countingMeta{inner: idx}
	stats := &countingStats{Statistics: idx}
	svc := New(stats, snapshotFor(t, idx), meta, Options{PerPage: 1, StatsTTL: time.Hour}, nil)
	ctx := context.Background()

	q := Query{Text: "fire", Weights: fusion.Weights{Alpha: 1}, Page: 1}
	_, err := svc.Search(ctx, q)
	require.NoError(t, err)
	_, err = svc.Search(ctx, q)
	require.NoError(t, err)

	assert.Equal(t, int32(1), meta.calls.Load())
	assert.Equal(t, [][]int64{{1}}, meta.asked, "only the page's ids are looked up")
	assert.Equal(t, int32(1), stats.corpusCalls.Load())

	svc.InvalidateCaches()
	_, err = svc.Search(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int32(2), meta.calls.Load())
	assert.Equal(t, int32(2), stats.corpusCalls.Load())
}

func TestServiceScoresLikeRanker(t *testing.T) {
	idx := fireCorpus()
	svc := newService(t, idx, 10)
	ctx := context.Background()
	tokens := []string{"fire", "fire", "rain"}

	want, err := ranker.Score(ctx, idx, tokens, ranker.DefaultParams())
	require.NoError(t, err)
	got, err := svc.score(ctx, tokens)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCorpusStatsFetchSurvivesCancelledCaller(t *testing.T) {
	c := &corpusStatsCache{ttl: time.Hour, now: time.Now}
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fetch := func(ctx context.Context) (ranker.CorpusStats, error) {
		once.Do(func() { close(started) })
		select {
		case <-release:
			return ranker.CorpusStats{DocCount: 3, AvgDocLength: 1.5}, nil
		case <-ctx.Done():
			return ranker.CorpusStats{}, ctx.Err()
		}
	}

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.get(first, fetch)
		firstErr <- err
	}()
	<-started
	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	type result struct {
		stats ranker.CorpusStats
		err   error
	}
	second := make(chan result, 1)
	go func() {
		stats, err := c.get(context.Background(), fetch)
		second <- result{stats, err}
	}()
	close(release)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, int64(3), res.stats.DocCount)

	stats, ok := c.cached()
	assert.True(t, ok, "the shared fetch completes and fills the cache")
	assert.Equal(t, int64(3), stats.DocCount)
}
