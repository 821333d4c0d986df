// Package cache stores rendered search pages in Redis. Keys are derived from
// the query's terms, the fusion weights and the page, so equivalent queries
// share an entry. Entries are dropped when a new score snapshot lands.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/redis"
)

const keyPrefix = "search:"

// Backend is the subset of the Redis client the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache over backend. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached page for q. Backend failures count as misses.
func (c *QueryCache) Get(ctx context.Context, q executor.Query, perPage int) (*executor.Result, bool) {
	result, ok := c.lookup(ctx, BuildKey(q, perPage))
	if ok {
		c.recordHit()
	} else {
		c.recordMiss()
	}
	return result, ok
}

func (c *QueryCache) lookup(ctx context.Context, key string) (*executor.Result, bool) {
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var result executor.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, q executor.Query, perPage int, result *executor.Result) {
	key := BuildKey(q, perPage)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

type flight struct {
	result *executor.Result
	hit    bool
}

// GetOrCompute serves q from the cache or computes it once for all
// concurrent callers with the same key. The bool reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	q executor.Query,
	perPage int,
	compute func() (*executor.Result, error),
) (*executor.Result, bool, error) {
	key := BuildKey(q, perPage)
	if result, ok := c.lookup(ctx, key); ok {
		c.recordHit()
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A flight that finished between the lookup above and Do has
		// already stored the page.
		if result, ok := c.lookup(ctx, key); ok {
			return flight{result: result, hit: true}, nil
		}
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, q, perPage, result)
		return flight{result: result}, nil
	})
	if err != nil {
		c.recordMiss()
		return nil, false, err
	}
	f := val.(flight)
	if f.hit {
		c.recordHit()
	} else {
		c.recordMiss()
	}
	return f.result, f.hit, nil
}

// Invalidate deletes every cached page.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey hashes the sorted query terms with the exact weights and page.
// Term order does not change BM25, so it does not change the key.
func BuildKey(q executor.Query, perPage int) string {
	terms := tokenizer.Terms(q.Text)
	sort.Strings(terms)
	raw := fmt.Sprintf("%s|a=%s|b=%s|g=%s|p=%d|k=%d",
		strings.Join(terms, ","),
		formatWeight(q.Weights.Alpha), formatWeight(q.Weights.Beta), formatWeight(q.Weights.Gamma),
		q.Page, perPage,
	)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// formatWeight prints the shortest exact representation of w; -0 and 0 share
// a key.
func formatWeight(w float64) string {
	if w == 0 {
		w = 0
	}
	return strconv.FormatFloat(w, 'g', -1, 64)
}
