package cache

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"path"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/fusion"
)

type memBackend struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string]string)}
}

func (m *memBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memBackend) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func query(text string, page int) executor.Query {
	return executor.Query{Text: text, Weights: fusion.Weights{Alpha: 0.6, Beta: 0.3, Gamma: 0.1}, Page: page}
}

func TestBuildKey(t *testing.T) {
	assert.Equal(t, BuildKey(query("forest fire", 1), 10), BuildKey(query("Fire FOREST", 1), 10))
	assert.NotEqual(t, BuildKey(query("fire", 1), 10), BuildKey(query("fire", 2), 10))
	assert.NotEqual(t, BuildKey(query("fire", 1), 10), BuildKey(query("fire fire", 1), 10))

	q := query("fire", 1)
	q.Weights = fusion.Weights{Alpha: 1}
	assert.NotEqual(t, BuildKey(query("fire", 1), 10), BuildKey(q, 10))
}

func TestGetOrCompute(t *testing.T) {
	backend := newMemBackend()
	c := New(backend, time.Minute, nil)
	ctx := context.Background()
	want := &executor.Result{
		Results:    []executor.Hit{{DocID: 1, Score: 1, Title: "Forest fire", URL: "https://x/1"}},
		Pagination: executor.Pagination{CurrentPage: 1, TotalPages: 1, TotalResults: 1, PerPage: 10},
	}

	calls := 0
	compute := func() (*executor.Result, error) {
		calls++
		return want, nil
	}

	got, hit, err := c.GetOrCompute(ctx, query("fire", 1), 10, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, want, got)

	got, hit, err = c.GetOrCompute(ctx, query("fire", 1), 10, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	deleted, err := c.Invalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	_, hit, err = c.GetOrCompute(ctx, query("fire", 1), 10, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)
}

func TestGetOrComputeErrorsAreNotCached(t *testing.T) {
	c := New(newMemBackend(), time.Minute, nil)
	boom := errors.New("store unavailable")
	_, _, err := c.GetOrCompute(context.Background(), query("fire", 1), 10, func() (*executor.Result, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get(context.Background(), query("fire", 1), 10)
	assert.False(t, ok)
}

func TestBackendFailureDegradesToCompute(t *testing.T) {
	backend := newMemBackend()
	backend.err = errors.New("redis down")
	c := New(backend, time.Minute, nil)

	got, hit, err := c.GetOrCompute(context.Background(), query("fire", 1), 10, func() (*executor.Result, error) {
		return &executor.Result{Results: []executor.Hit{}}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotNil(t, got)
}

func TestBuildKeyUsesExactWeights(t *testing.T) {
	a := query("fire", 1)
	b := query("fire", 1)
	b.Weights.Alpha += 1e-9
	assert.NotEqual(t, BuildKey(a, 10), BuildKey(b, 10))

	zero := executor.Query{Text: "fire", Weights: fusion.Weights{Alpha: 1}, Page: 1}
	negZero := zero
	negZero.Weights.Beta = math.Copysign(0, -1)
	assert.Equal(t, BuildKey(zero, 10), BuildKey(negZero, 10))
}

// racingBackend stores page on the first Get, as if another flight for the
// same key completed right after the caller's miss.
type racingBackend struct {
	*memBackend
	once sync.Once
	page []byte
}

func (r *racingBackend) Get(ctx context.Context, key string) (string, error) {
	v, err := r.memBackend.Get(ctx, key)
	r.once.Do(func() {
		_ = r.memBackend.Set(ctx, key, r.page, time.Minute)
	})
	return v, err
}

func TestGetOrComputeRechecksInsideFlight(t *testing.T) {
	want := &executor.Result{
		Results:    []executor.Hit{{DocID: 2, Score: 1, Title: "Fire brigade", URL: "https://x/2"}},
		Pagination: executor.Pagination{CurrentPage: 1, TotalPages: 1, TotalResults: 1, PerPage: 10},
	}
	page, err := json.Marshal(want)
	require.NoError(t, err)
	c := New(&racingBackend{memBackend: newMemBackend(), page: page}, time.Minute, nil)

	calls := 0
	got, hit, err := c.GetOrCompute(context.Background(), query("fire", 1), 10, func() (*executor.Result, error) {
		calls++
		return &executor.Result{}, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, got)
	assert.Zero(t, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Zero(t, misses)
}
