package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/graph"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/fusion"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/logger"
)

type SearchExecutor interface {
	Search(ctx context.Context, q executor.Query) (*executor.Result, error)
	PerPage() int
}

type SnapshotInfoer interface {
	Info() graph.SnapshotInfo
}

// Tracker receives one analytics event per served search.
type Tracker interface {
	Track(event interface{})
}

// Defaults are applied to parameters the client leaves out.
type Defaults struct {
	Weights   fusion.Weights
	Tolerance float64
}

func DefaultsFromConfig(cfg config.RankingConfig) Defaults {
	return Defaults{
		Weights: fusion.Weights{
			Alpha: cfg.DefaultAlpha,
			Beta:  cfg.DefaultBeta,
			Gamma: cfg.DefaultGamma,
		},
		Tolerance: cfg.WeightTolerance,
	}
}

type Handler struct {
	executor  SearchExecutor
	cache     *cache.QueryCache
	snapshots SnapshotInfoer
	tracker   Tracker
	defaults  Defaults
	logger    *slog.Logger
}

// New builds the search handler. queryCache, snapshots and tracker may be nil.
func New(exec SearchExecutor, queryCache *cache.QueryCache, snapshots SnapshotInfoer, tracker Tracker, defaults Defaults) *Handler {
	if defaults.Tolerance <= 0 {
		defaults.Tolerance = 1e-5
	}
	return &Handler{
		executor:  exec,
		cache:     queryCache,
		snapshots: snapshots,
		tracker:   tracker,
		defaults:  defaults,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Search serves GET /search?query=&alpha=&beta=&gamma=&page=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	q, err := h.parseQuery(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var result *executor.Result
	cacheHit := false
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, q, h.executor.PerPage(), func() (*executor.Result, error) {
			return h.executor.Search(ctx, q)
		})
	} else {
		result, err = h.executor.Search(ctx, q)
	}
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("search failed", "query", q.Text, "status", status, "error", err)
		h.writeError(w, status, searchErrorMessage(err, status))
		return
	}

	latencyMs := time.Since(start).Milliseconds()
	log.Info("search completed",
		"query", q.Text,
		"page", q.Page,
		"total_results", result.Pagination.TotalResults,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)

	if h.tracker != nil {
		eventType := analytics.EventCacheMiss
		if cacheHit {
			eventType = analytics.EventCacheHit
		}
		h.tracker.Track(analytics.SearchEvent{
			Type:         eventType,
			Query:        q.Text,
			Terms:        tokenizer.Terms(q.Text),
			Alpha:        q.Weights.Alpha,
			Beta:         q.Weights.Beta,
			Gamma:        q.Weights.Gamma,
			Page:         q.Page,
			TotalResults: result.Pagination.TotalResults,
			Returned:     len(result.Results),
			LatencyMs:    latencyMs,
			CacheHit:     cacheHit,
			Timestamp:    time.Now().UTC(),
			RequestID:    logger.RequestIDFromContext(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) parseQuery(r *http.Request) (executor.Query, error) {
	params := r.URL.Query()
	q := executor.Query{
		Text:    params.Get("query"),
		Weights: h.defaults.Weights,
		Page:    1,
	}
	if q.Text == "" {
		return q, errors.New("query parameter 'query' is required")
	}

	var err error
	if q.Weights.Alpha, err = parseWeight(params.Get("alpha"), "alpha", q.Weights.Alpha); err != nil {
		return q, err
	}
	if q.Weights.Beta, err = parseWeight(params.Get("beta"), "beta", q.Weights.Beta); err != nil {
		return q, err
	}
	if q.Weights.Gamma, err = parseWeight(params.Get("gamma"), "gamma", q.Weights.Gamma); err != nil {
		return q, err
	}
	if sum := q.Weights.Sum(); math.Abs(sum-1) >= h.defaults.Tolerance {
		return q, fmt.Errorf("alpha, beta and gamma must sum to 1, got %g", sum)
	}

	if raw := params.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return q, errors.New("page must be an integer")
		}
		if page < 1 {
			return q, errors.New("page must be >= 1")
		}
		q.Page = page
	}
	return q, nil
}

func parseWeight(raw, name string, fallback float64) (float64, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return v, nil
}

func searchErrorMessage(err error, status int) string {
	switch {
	case errors.Is(err, apperrors.ErrSnapshotMissing):
		return "ranking scores are not loaded yet"
	case status == http.StatusServiceUnavailable:
		return "search backend unavailable"
	case status == http.StatusGatewayTimeout:
		return "search timed out"
	}
	return "search failed"
}

// AreYouAlive is the plain liveness route kept for existing clients.
func (h *Handler) AreYouAlive(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "I'm alive!"})
}

func (h *Handler) SnapshotInfo(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.writeError(w, http.StatusServiceUnavailable, "snapshot store not configured")
		return
	}
	h.writeJSON(w, http.StatusOK, h.snapshots.Info())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
