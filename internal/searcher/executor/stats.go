package executor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/resilience"
)

const defaultStatsFetchTimeout = 5 * time.Second

// guardedStats is the ranker.Statistics the service scores against: corpus
// stats come from the TTL cache, and every store call passes the breaker.
type guardedStats struct {
	inner   ranker.Statistics
	corpus  *corpusStatsCache
	breaker *resilience.CircuitBreaker
}

func (g *guardedStats) CorpusStats(ctx context.Context) (ranker.CorpusStats, error) {
	return g.corpus.get(ctx, func(ctx context.Context) (ranker.CorpusStats, error) {
		var stats ranker.CorpusStats
		err := g.breaker.Execute(func() error {
			var err error
			stats, err = g.inner.CorpusStats(ctx)
			return err
		})
		return stats, err
	})
}

func (g *guardedStats) Postings(ctx context.Context, terms []string) (map[string][]ranker.Posting, error) {
	var postings map[string][]ranker.Posting
	err := g.breaker.Execute(func() error {
		var err error
		postings, err = g.inner.Postings(ctx, terms)
		return err
	})
	return postings, err
}

// corpusStatsCache keeps N and avgdl for ttl so most queries only fetch
// postings. Concurrent refreshes share one store call, which runs detached
// from the caller that started it.
type corpusStatsCache struct {
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time

	mu      sync.RWMutex
	value   ranker.CorpusStats
	fetched time.Time
	valid   bool

	group singleflight.Group
}

func (c *corpusStatsCache) cached() (ranker.CorpusStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.valid && c.now().Sub(c.fetched) < c.ttl {
		return c.value, true
	}
	return ranker.CorpusStats{}, false
}

func (c *corpusStatsCache) get(ctx context.Context, fetch func(context.Context) (ranker.CorpusStats, error)) (ranker.CorpusStats, error) {
	if v, ok := c.cached(); ok {
		return v, nil
	}

	timeout := c.fetchTimeout
	if timeout <= 0 {
		timeout = defaultStatsFetchTimeout
	}
	flightCtx := context.WithoutCancel(ctx)

	ch := c.group.DoChan("corpus", func() (any, error) {
		if v, ok := c.cached(); ok {
			return v, nil
		}
		fctx, cancel := context.WithTimeout(flightCtx, timeout)
		defer cancel()
		stats, err := fetch(fctx)
		if err != nil {
			return ranker.CorpusStats{}, err
		}
		c.mu.Lock()
		c.value, c.fetched, c.valid = stats, c.now(), true
		c.mu.Unlock()
		return stats, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return ranker.CorpusStats{}, res.Err
		}
		return res.Val.(ranker.CorpusStats), nil
	case <-ctx.Done():
		return ranker.CorpusStats{}, ctx.Err()
	}
}

func (c *corpusStatsCache) invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}
