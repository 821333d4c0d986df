package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/graph"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/fusion"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

type fakeExecutor struct {
	mu      sync.Mutex
	queries []executor.Query
	result  *executor.Result
	err     error
}

func (f *fakeExecutor) Search(_ context.Context, q executor.Query) (*executor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeExecutor) PerPage() int { return 10 }

type recordingTracker struct {
	events []interface{}
}

func (r *recordingTracker) Track(event interface{}) { r.events = append(r.events, event) }

type fixedSnapshot struct{ info graph.SnapshotInfo }

func (f fixedSnapshot) Info() graph.SnapshotInfo { return f.info }

var defaults = Defaults{Weights: fusion.Weights{Alpha: 0.6, Beta: 0.3, Gamma: 0.1}, Tolerance: 1e-5}

func okResult() *executor.Result {
	return &executor.Result{
		Results: []executor.Hit{
			{DocID: 2, Score: 0.9, Title: "Fire safety", URL: "https://example.org/2"},
			{DocID: 1, Score: 0.4, Title: "Forest fire", URL: "https://example.org/1"},
		},
		Pagination: executor.Pagination{CurrentPage: 1, TotalPages: 1, TotalResults: 2, PerPage: 10},
	}
}

func do(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestSearchDefaults(t *testing.T) {
	exec := &fakeExecutor{result: okResult()}
	tracker := &recordingTracker{}
	h := New(exec, nil, nil, tracker, defaults)

	rec := do(h.Search, "/search?query=fire")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, exec.queries, 1)
	assert.Equal(t, executor.Query{Text: "fire", Weights: defaults.Weights, Page: 1}, exec.queries[0])

	var body struct {
		Results []struct {
			DocID int64   `json:"doc_id"`
			Score float64 `json:"score"`
			Title string  `json:"title"`
			URL   string  `json:"url"`
		} `json:"results"`
		Pagination struct {
			CurrentPage  int `json:"current_page"`
			TotalPages   int `json:"total_pages"`
			TotalResults int `json:"total_results"`
			PerPage      int `json:"per_page"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 2)
	assert.Equal(t, int64(2), body.Results[0].DocID)
	assert.Equal(t, 2, body.Pagination.TotalResults)
	assert.Equal(t, 10, body.Pagination.PerPage)

	require.Len(t, tracker.events, 1)
	event := tracker.events[0].(analytics.SearchEvent)
	assert.Equal(t, analytics.EventCacheMiss, event.Type)
	assert.Equal(t, 2, event.TotalResults)
	assert.Equal(t, []string{"fire"}, event.Terms)
}

func TestSearchExplicitParameters(t *testing.T) {
	exec := &fakeExecutor{result: okResult()}
	h := New(exec, nil, nil, nil, defaults)

	rec := do(h.Search, "/search?query=forest+fire&alpha=0&beta=1&gamma=0&page=3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, executor.Query{
		Text:    "forest fire",
		Weights: fusion.Weights{Alpha: 0, Beta: 1, Gamma: 0},
		Page:    3,
	}, exec.queries[0])
}

func TestSearchValidation(t *testing.T) {
	cases := []struct {
		name   string
		target string
	}{
		{"missing query", "/search"},
		{"empty query", "/search?query="},
		{"weights do not sum to one", "/search?query=fire&alpha=0.5&beta=0.3&gamma=0.1"},
		{"negative weight", "/search?query=fire&alpha=1.2&beta=-0.2&gamma=0"},
		{"unparseable weight", "/search?query=fire&alpha=abc"},
		{"nan weight", "/search?query=fire&alpha=NaN"},
		{"page zero", "/search?query=fire&page=0"},
		{"negative page", "/search?query=fire&page=-1"},
		{"unparseable page", "/search?query=fire&page=two"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := &fakeExecutor{result: okResult()}
			h := New(exec, nil, nil, nil, defaults)

			rec := do(h.Search, tc.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, exec.queries)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestSearchWeightTolerance(t *testing.T) {
	exec := &fakeExecutor{result: okResult()}
	h := New(exec, nil, nil, nil, defaults)

	rec := do(h.Search, "/search?query=fire&alpha=0.333333&beta=0.333333&gamma=0.333334")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSearchErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"store unavailable", apperrors.Unavailable("fetching postings", fmt.Errorf("connection refused")), http.StatusServiceUnavailable},
		{"snapshot missing", apperrors.ErrSnapshotMissing, http.StatusServiceUnavailable},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := New(&fakeExecutor{err: tc.err}, nil, nil, nil, defaults)
			rec := do(h.Search, "/search?query=fire")
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestSearchEmptyResultIsOK(t *testing.T) {
	exec := &fakeExecutor{result: &executor.Result{
		Results:    []executor.Hit{},
		Pagination: executor.Pagination{CurrentPage: 1, PerPage: 10},
	}}
	h := New(exec, nil, nil, nil, defaults)

	rec := do(h.Search, "/search?query=zzz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"results":[],"pagination":{"current_page":1,"total_pages":0,"total_results":0,"per_page":10}}`,
		rec.Body.String())
}

func TestAreYouAlive(t *testing.T) {
	h := New(&fakeExecutor{}, nil, nil, nil, defaults)
	rec := do(h.AreYouAlive, "/are-you-alive")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"I'm alive!"}`, rec.Body.String())
}

func TestSnapshotInfo(t *testing.T) {
	h := New(&fakeExecutor{}, nil, nil, nil, defaults)
	assert.Equal(t, http.StatusServiceUnavailable, do(h.SnapshotInfo, "/api/v1/graph/snapshot").Code)

	h = New(&fakeExecutor{}, nil, fixedSnapshot{info: graph.SnapshotInfo{Loaded: true, PageRankNodes: 3, AuthorityNodes: 3}}, nil, defaults)
	rec := do(h.SnapshotInfo, "/api/v1/graph/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)

	var info graph.SnapshotInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.True(t, info.Loaded)
	assert.Equal(t, 3, info.PageRankNodes)
}

func TestCacheEndpointsWithoutCache(t *testing.T) {
	h := New(&fakeExecutor{}, nil, nil, nil, defaults)
	assert.JSONEq(t, `{"status":"disabled"}`, do(h.CacheStats, "/api/v1/cache/stats").Body.String())
	assert.Equal(t, http.StatusServiceUnavailable, do(h.CacheInvalidate, "/api/v1/cache/invalidate").Code)
}
