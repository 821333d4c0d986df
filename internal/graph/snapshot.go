package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/metrics"
)

// ScoreStore persists the batch results. Replace calls swap the whole table
// at once so readers never observe a partial table.
type ScoreStore interface {
	LoadPageRank(ctx context.Context) (map[int64]float64, error)
	LoadHits(ctx context.Context) (hubs, authorities map[int64]float64, err error)
	ReplacePageRank(ctx context.Context, scores map[int64]float64) error
	ReplaceHits(ctx context.Context, hubs, authorities map[int64]float64) error
}

// Snapshot is an immutable copy of the persisted graph scores. Hub scores
// are not loaded since ranking only uses authority.
type Snapshot struct {
	PageRank  map[int64]float64
	Authority map[int64]float64
	LoadedAt  time.Time
}

// Lookup returns the scores of the given candidates only. Candidates absent
// from the graph are left out.
func (s *Snapshot) Lookup(candidates []int64) (pagerank, authority map[int64]float64) {
	pagerank = make(map[int64]float64, len(candidates))
	authority = make(map[int64]float64, len(candidates))
	for _, id := range candidates {
		if v, ok := s.PageRank[id]; ok {
			pagerank[id] = v
		}
		if v, ok := s.Authority[id]; ok {
			authority[id] = v
		}
	}
	return pagerank, authority
}

// SnapshotInfo summarises the current snapshot for operators.
type SnapshotInfo struct {
	Loaded         bool      `json:"loaded"`
	PageRankNodes  int       `json:"pagerank_nodes"`
	AuthorityNodes int       `json:"authority_nodes"`
	LoadedAt       time.Time `json:"loaded_at,omitempty"`
}

// SnapshotStore serves the current Snapshot to concurrent readers without
// locking. Reload builds a new snapshot and swaps the pointer.
type SnapshotStore struct {
	store   ScoreStore
	current atomic.Pointer[Snapshot]
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	hooksMu sync.RWMutex
	hooks   []func(ctx context.Context, trigger string)
}

func NewSnapshotStore(store ScoreStore, m *metrics.Metrics) *SnapshotStore {
	return &SnapshotStore{
		store:   store,
		metrics: m,
		logger:  slog.Default().With("component", "score-snapshot"),
		now:     time.Now,
	}
}

// Current returns the loaded snapshot or ErrSnapshotMissing.
func (s *SnapshotStore) Current() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, apperrors.ErrSnapshotMissing
	}
	return snap, nil
}

// Info reports node counts and load time of the current snapshot.
func (s *SnapshotStore) Info() SnapshotInfo {
	snap := s.current.Load()
	if snap == nil {
		return SnapshotInfo{}
	}
	return SnapshotInfo{
		Loaded:         true,
		PageRankNodes:  len(snap.PageRank),
		AuthorityNodes: len(snap.Authority),
		LoadedAt:       snap.LoadedAt,
	}
}

// OnReload registers fn to run after every successful Reload, whatever
// triggered it. Searchers use it to drop results cached under the old scores.
func (s *SnapshotStore) OnReload(fn func(ctx context.Context, trigger string)) {
	s.hooksMu.Lock()
	s.hooks = append(s.hooks, fn)
	s.hooksMu.Unlock()
}

// Swap installs snap as the current snapshot.
func (s *SnapshotStore) Swap(snap *Snapshot) {
	s.current.Store(snap)
	if s.metrics != nil {
		s.metrics.SnapshotNodes.WithLabelValues("pagerank").Set(float64(len(snap.PageRank)))
		s.metrics.SnapshotNodes.WithLabelValues("hits").Set(float64(len(snap.Authority)))
	}
}

// Reload reads both score tables concurrently and swaps in the result. On
// failure the previous snapshot stays current.
func (s *SnapshotStore) Reload(ctx context.Context, trigger string) error {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pr, err := s.store.LoadPageRank(gctx)
		if err != nil {
			return apperrors.Unavailable("loading pagerank", err)
		}
		snap.PageRank = pr
		return nil
	})
	g.Go(func() error {
		_, auth, err := s.store.LoadHits(gctx)
		if err != nil {
			return apperrors.Unavailable("loading hits", err)
		}
		snap.Authority = auth
		return nil
	})
	if err := g.Wait(); err != nil {
		s.observeReload(trigger, "error")
		return fmt.Errorf("reloading score snapshot: %w", err)
	}

	snap.LoadedAt = s.now()
	s.Swap(&snap)
	s.observeReload(trigger, "ok")
	s.logger.Info("score snapshot reloaded",
		"trigger", trigger,
		"pagerank_nodes", len(snap.PageRank),
		"authority_nodes", len(snap.Authority),
	)

	s.hooksMu.RLock()
	hooks := s.hooks
	s.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, trigger)
	}
	return nil
}

// Run reloads the snapshot every interval until ctx is done. It covers lost
// notifications from the batch job.
func (s *SnapshotStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reload(ctx, "timer"); err != nil {
				s.logger.Warn("periodic snapshot reload failed", "error", err)
			}
		}
	}
}

func (s *SnapshotStore) observeReload(trigger, status string) {
	if s.metrics != nil {
		s.metrics.SnapshotReloadsTotal.WithLabelValues(trigger, status).Inc()
	}
}
