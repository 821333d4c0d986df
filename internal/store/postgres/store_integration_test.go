//go:build integration

package postgres

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/document"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/graph"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
	pkgpostgres "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/postgres"
)

func skipIfNoPostgres(t *testing.T) *Store {
	t.Helper()
	db, err := pkgpostgres.New(config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "hybridsearch_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "hybridsearch"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := New(db)
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))
	_, err = db.DB.ExecContext(ctx, `TRUNCATE pages, pages_cleaned, doc_lengths, inverted_index, pagerank, hits`)
	require.NoError(t, err)
	return s
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func TestIndexAndQuery(t *testing.T) {
	s := skipIfNoPostgres(t)
	ctx := context.Background()

	docs := []document.Document{
		{ID: 1, URL: "https://x/1", Title: "One", Text: "forest fire burning", Links: []string{"https://x/2"}},
		{ID: 2, URL: "https://x/2", Title: "Two", Text: "fire safety fire", Links: []string{"https://x/1", "https://x/3"}},
		{ID: 3, URL: "https://x/3", Title: "Three", Text: "ocean waves"},
	}
	for _, d := range docs {
		_, err := s.IndexDocument(ctx, d)
		require.NoError(t, err)
	}

	stats, err := s.CorpusStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.DocCount)

	postings, err := s.Postings(ctx, []string{"fire", "missing"})
	require.NoError(t, err)
	require.Len(t, postings["fire"], 2)
	assert.Equal(t, ranker.Posting{DocID: 2, Frequency: 2, DocLength: 3}, postings["fire"][1])
	assert.Empty(t, postings["missing"])

	df, err := s.DocumentFrequency(ctx, "fire")
	require.NoError(t, err)
	assert.Equal(t, 2, df)

	records, err := s.LinkRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"https://x/1", "https://x/3"}, records[1].Links)
	assert.Empty(t, records[2].Links)

	meta, err := s.Metadata(ctx, []int64{2, 99})
	require.NoError(t, err)
	assert.Equal(t, map[int64]document.Meta{2: {URL: "https://x/2", Title: "Two"}}, meta)

	// Reindexing replaces the previous postings.
	_, err = s.IndexDocument(ctx, document.Document{ID: 2, URL: "https://x/2", Title: "Two", Text: "ocean"})
	require.NoError(t, err)
	postings, err = s.Postings(ctx, []string{"fire"})
	require.NoError(t, err)
	assert.Len(t, postings["fire"], 1)
}

func TestReplaceAndLoadScores(t *testing.T) {
	s := skipIfNoPostgres(t)
	ctx := context.Background()

	require.NoError(t, s.ReplacePageRank(ctx, map[int64]float64{1: 0.3, 2: 0.7}))
	require.NoError(t, s.ReplacePageRank(ctx, map[int64]float64{3: 1}))
	pr, err := s.LoadPageRank(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{3: 1}, pr)

	require.NoError(t, s.ReplaceHits(ctx, map[int64]float64{1: 1}, map[int64]float64{1: 0.5, 3: 0.5}))
	hubs, auth, err := s.LoadHits(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{1: 1, 3: 0}, hubs)
	assert.Equal(t, map[int64]float64{1: 0.5, 3: 0.5}, auth)

	snaps := graph.NewSnapshotStore(s, nil)
	require.NoError(t, snaps.Reload(ctx, "test"))
	snap, err := snaps.Current()
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap.PageRank[3])
}
