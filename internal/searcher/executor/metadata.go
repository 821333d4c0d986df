package executor

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/document"
)

// MetadataStore resolves titles and URLs for ranked documents. Unknown ids
// are absent from the result.
type MetadataStore interface {
	Metadata(ctx context.Context, ids []int64) (map[int64]document.Meta, error)
}

// metadataCache fronts a MetadataStore with an expiring LRU. Only the ids
// on the requested page are ever looked up.
type metadataCache struct {
	store MetadataStore
	lru   *expirable.LRU[int64, document.Meta]
}

func newMetadataCache(store MetadataStore, size int, ttl time.Duration) *metadataCache {
	if size <= 0 {
		size = 10000
	}
	return &metadataCache{
		store: store,
		lru:   expirable.NewLRU[int64, document.Meta](size, nil, ttl),
	}
}

func (c *metadataCache) lookup(ctx context.Context, ids []int64) (map[int64]document.Meta, error) {
	out := make(map[int64]document.Meta, len(ids))
	missing := make([]int64, 0, len(ids))
	for _, id := range ids {
		if m, ok := c.lru.Get(id); ok {
			out[id] = m
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.store.Metadata(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, m := range fetched {
		c.lru.Add(id, m)
		out[id] = m
	}
	return out, nil
}

func (c *metadataCache) purge() {
	c.lru.Purge()
}
