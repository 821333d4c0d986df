// Package executor is the ranking service: it turns a query into a page of
// hybrid-ranked hits.
package executor

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/graph"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/fusion"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/tracing"
)

// Query is a validated search request.
type Query struct {
	Text    string
	Weights fusion.Weights
	Page    int
}

type Hit struct {
	DocID int64   `json:"doc_id"`
	Score float64 `json:"score"`
	Title string  `json:"title"`
	URL   string  `json:"url"`
}

type Pagination struct {
	CurrentPage  int `json:"current_page"`
	TotalPages   int `json:"total_pages"`
	TotalResults int `json:"total_results"`
	PerPage      int `json:"per_page"`
}

type Result struct {
	Results    []Hit      `json:"results"`
	Pagination Pagination `json:"pagination"`
}

// SnapshotSource provides the current PageRank/HITS snapshot.
type SnapshotSource interface {
	Current() (*graph.Snapshot, error)
}

// Options configure a Service.
type Options struct {
	Params            ranker.Params
	PerPage           int
	StatsTTL          time.Duration
	MetadataCacheSize int
	MetadataCacheTTL  time.Duration
}

// OptionsFromConfig maps the ranking config section to Options.
func OptionsFromConfig(cfg config.RankingConfig) Options {
	return Options{
		Params:            ranker.Params{K1: cfg.K1, B: cfg.B},
		PerPage:           cfg.PerPage,
		StatsTTL:          cfg.StatsTTL,
		MetadataCacheSize: cfg.MetadataCacheSize,
		MetadataCacheTTL:  cfg.MetadataCacheTTL,
	}
}

// Service ranks queries. It is safe for concurrent use; per-query state is
// local to Search.
type Service struct {
	stats     *guardedStats
	snapshots SnapshotSource
	meta      *metadataCache
	opts      Options
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New builds a Service. m may be nil.
func New(stats ranker.Statistics, snapshots SnapshotSource, meta MetadataStore, opts Options, m *metrics.Metrics) *Service {
	if opts.PerPage < 1 {
		opts.PerPage = 10
	}
	if opts.Params == (ranker.Params{}) {
		opts.Params = ranker.DefaultParams()
	}
	breaker := resilience.NewCircuitBreaker("index-statistics", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     10 * time.Second,
		OnStateChange: func(name string, _, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return &Service{
		stats: &guardedStats{
			inner:   stats,
			corpus:  &corpusStatsCache{ttl: opts.StatsTTL, now: time.Now},
			breaker: breaker,
		},
		snapshots: snapshots,
		meta:      newMetadataCache(meta, opts.MetadataCacheSize, opts.MetadataCacheTTL),
		opts:      opts,
		metrics:   m,
		logger:    slog.Default().With("component", "ranking-service"),
	}
}

// PerPage is the fixed page size.
func (s *Service) PerPage() int { return s.opts.PerPage }

// Search tokenizes the query, scores BM25 candidates, fuses them with the
// graph snapshot and returns the requested page. An empty result is not an
// error.
func (s *Service) Search(ctx context.Context, q Query) (res *Result, err error) {
	ctx, end := tracing.StartSpan(ctx, "executor.Search", attribute.Int("page", q.Page))
	defer func() { end(err) }()
	start := time.Now()

	tokens := tokenizer.Terms(q.Text)
	bm25, err := s.score(ctx, tokens)
	if err != nil {
		s.observe("error", start, 0)
		return nil, err
	}

	snap, err := s.snapshots.Current()
	if err != nil {
		s.observe("error", start, len(bm25))
		return nil, err
	}
	candidates := make([]int64, 0, len(bm25))
	for id := range bm25 {
		candidates = append(candidates, id)
	}
	pagerank, authority := snap.Lookup(candidates)

	blended := fusion.Blend(
		fusion.Normalize(bm25),
		fusion.Normalize(pagerank),
		fusion.Normalize(authority),
		q.Weights,
	)
	from, to, totalPages := Paginate(len(blended), q.Page, s.opts.PerPage)

	hits := make([]Hit, 0, to-from)
	if from < to {
		page := fusion.Top(blended, to)[from:to]
		ids := make([]int64, len(page))
		for i, sc := range page {
			ids[i] = sc.DocID
		}
		meta, err := s.meta.lookup(ctx, ids)
		if err != nil {
			s.observe("error", start, len(bm25))
			return nil, apperrors.Unavailable("document metadata", err)
		}
		for _, sc := range page {
			m := meta[sc.DocID]
			hits = append(hits, Hit{DocID: sc.DocID, Score: sc.Score, Title: m.Title, URL: m.URL})
		}
	}

	resultType := "ok"
	if len(blended) == 0 {
		resultType = "zero_result"
	}
	s.observe(resultType, start, len(bm25))
	tracing.SetAttributes(ctx,
		attribute.Int("search.candidates", len(bm25)),
		attribute.Int("search.tokens", len(tokens)),
	)
	logger.FromContext(ctx).Debug("search executed",
		"tokens", tokens,
		"candidates", len(bm25),
		"page", q.Page,
		"returned", len(hits),
		"elapsed", time.Since(start),
	)

	return &Result{
		Results: hits,
		Pagination: Pagination{
			CurrentPage:  q.Page,
			TotalPages:   totalPages,
			TotalResults: len(blended),
			PerPage:      s.opts.PerPage,
		},
	}, nil
}

// score runs BM25 against the guarded statistics: cached corpus stats and
// one batched postings fetch, both concurrently.
func (s *Service) score(ctx context.Context, tokens []string) (scores map[int64]float64, err error) {
	ctx, end := tracing.StartSpan(ctx, "bm25.score")
	defer func() { end(err) }()
	return ranker.Score(ctx, s.stats, tokens, s.opts.Params)
}

// InvalidateCaches drops cached corpus stats and document metadata, for use
// after the index changes.
func (s *Service) InvalidateCaches() {
	s.stats.corpus.invalidate()
	s.meta.purge()
}

func (s *Service) observe(resultType string, start time.Time, candidates int) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	s.metrics.SearchLatency.WithLabelValues("miss").Observe(time.Since(start).Seconds())
	s.metrics.SearchCandidates.Observe(float64(candidates))
}
