// Package batch runs the offline PageRank and HITS jobs: it loads the link
// records, builds the graph, iterates under a deadline, replaces the score
// tables and announces the new scores on Kafka.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/graph"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/tracing"
)

type Options struct {
	Graph   graph.Options
	Timeout time.Duration
	Retry   resilience.RetryConfig
}

func OptionsFromConfig(cfg config.GraphConfig) Options {
	return Options{
		Graph: graph.Options{
			Damping:       cfg.Damping,
			MaxIterations: cfg.MaxIterations,
			Tolerance:     cfg.Tolerance,
		},
		Timeout: cfg.Timeout,
		Retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Retryable: func(err error) bool {
				return errors.Is(err, apperrors.ErrStoreUnavailable)
			},
		},
	}
}

type Runner struct {
	links     graph.LinkSource
	scores    graph.ScoreStore
	publisher kafka.Publisher
	opts      Options
	metrics   *metrics.Metrics
	newRunID  func() string
	now       func() time.Time
	logger    *slog.Logger
}

// NewRunner wires a batch runner. publisher and m may be nil; without a
// publisher searchers pick up new scores on their refresh timer.
func NewRunner(links graph.LinkSource, scores graph.ScoreStore, publisher kafka.Publisher, opts Options, m *metrics.Metrics) *Runner {
	return &Runner{
		links:     links,
		scores:    scores,
		publisher: publisher,
		opts:      opts,
		metrics:   m,
		newRunID:  uuid.NewString,
		now:       time.Now,
		logger:    slog.Default().With("component", "graph-batch"),
	}
}

func (r *Runner) RecomputePageRank(ctx context.Context) (graph.ScoresReplaced, error) {
	g, err := r.loadGraph(ctx)
	if err != nil {
		return graph.ScoresReplaced{}, err
	}
	return r.pageRank(ctx, g)
}

func (r *Runner) RecomputeHits(ctx context.Context) (graph.ScoresReplaced, error) {
	g, err := r.loadGraph(ctx)
	if err != nil {
		return graph.ScoresReplaced{}, err
	}
	return r.hits(ctx, g)
}

// RecomputeAll loads the graph once and runs both jobs concurrently. Each
// job replaces its own table, so one failing does not undo the other.
func (r *Runner) RecomputeAll(ctx context.Context) ([]graph.ScoresReplaced, error) {
	g, err := r.loadGraph(ctx)
	if err != nil {
		return nil, err
	}

	events := make([]graph.ScoresReplaced, 2)
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		ev, err := r.pageRank(egctx, g)
		events[0] = ev
		return err
	})
	eg.Go(func() error {
		ev, err := r.hits(egctx, g)
		events[1] = ev
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *Runner) loadGraph(ctx context.Context) (*graph.Graph, error) {
	ctx, end := tracing.StartSpan(ctx, "batch.loadGraph")
	var records []graph.Record
	err := resilience.Retry(ctx, "load link records", r.opts.Retry, func() error {
		var err error
		records, err = r.links.LinkRecords(ctx)
		return err
	})
	end(err)
	if err != nil {
		return nil, apperrors.Unavailable("loading link records", err)
	}

	g := graph.Build(records, graph.ResolverFromRecords(records))
	r.logger.Info("link graph built",
		"documents", len(records),
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount(),
		"dropped_links", g.Dropped,
	)
	return g, nil
}

func (r *Runner) pageRank(ctx context.Context, g *graph.Graph) (graph.ScoresReplaced, error) {
	return r.run(ctx, graph.AlgorithmPageRank, g, func(ctx context.Context) (iterations int, converged bool, persist func(context.Context) error, err error) {
		res, err := graph.PageRank(ctx, g, r.opts.Graph)
		if err != nil {
			return 0, false, nil, err
		}
		return res.Iterations, res.Converged, func(ctx context.Context) error {
			return r.scores.ReplacePageRank(ctx, res.Scores)
		}, nil
	})
}

func (r *Runner) hits(ctx context.Context, g *graph.Graph) (graph.ScoresReplaced, error) {
	return r.run(ctx, graph.AlgorithmHITS, g, func(ctx context.Context) (iterations int, converged bool, persist func(context.Context) error, err error) {
		res, err := graph.HITS(ctx, g, r.opts.Graph)
		if err != nil {
			return 0, false, nil, err
		}
		return res.Iterations, res.Converged, func(ctx context.Context) error {
			return r.scores.ReplaceHits(ctx, res.Hubs, res.Authorities)
		}, nil
	})
}

type computeFunc func(ctx context.Context) (iterations int, converged bool, persist func(context.Context) error, err error)

// run drives one algorithm: iterate under the deadline, persist with retry,
// publish, record metrics.
func (r *Runner) run(ctx context.Context, algorithm string, g *graph.Graph, compute computeFunc) (ev graph.ScoresReplaced, err error) {
	start := r.now()
	runID := r.newRunID()
	log := r.logger.With("algorithm", algorithm, "run_id", runID)

	ctx, end := tracing.StartSpan(ctx, "batch."+algorithm,
		attribute.String("run_id", runID),
		attribute.Int("graph.nodes", g.NodeCount()),
		attribute.Int("graph.edges", g.EdgeCount()),
	)
	defer func() {
		end(err)
		outcome := "converged"
		switch {
		case err != nil:
			outcome = "error"
		case !ev.Converged:
			outcome = "not_converged"
		}
		r.observe(algorithm, outcome, ev.Iterations, r.now().Sub(start))
	}()

	var (
		iterations int
		converged  bool
		persist    func(context.Context) error
	)
	err = resilience.WithTimeout(ctx, r.opts.Timeout, algorithm, func(ctx context.Context) error {
		var cerr error
		iterations, converged, persist, cerr = compute(ctx)
		return cerr
	})
	if err != nil {
		log.Error("graph iteration failed", "error", err)
		return graph.ScoresReplaced{}, fmt.Errorf("computing %s: %w", algorithm, err)
	}
	if !converged {
		log.Warn("iteration bound reached before convergence, keeping last iterate",
			"iterations", iterations,
		)
	}

	err = resilience.Retry(ctx, "replace "+algorithm, r.opts.Retry, func() error {
		return persist(ctx)
	})
	if err != nil {
		log.Error("persisting scores failed", "error", err)
		return graph.ScoresReplaced{}, apperrors.Unavailable("persisting "+algorithm, err)
	}

	ev = graph.ScoresReplaced{
		RunID:       runID,
		Algorithm:   algorithm,
		Nodes:       g.NodeCount(),
		Edges:       g.EdgeCount(),
		Iterations:  iterations,
		Converged:   converged,
		CompletedAt: r.now().UTC(),
	}
	r.publish(ctx, ev)

	log.Info("scores replaced",
		"nodes", ev.Nodes,
		"edges", ev.Edges,
		"iterations", iterations,
		"converged", converged,
		"duration", r.now().Sub(start),
	)
	return ev, nil
}

// publish announces committed scores. A failed publish is only logged since
// the scores are already durable and searchers also refresh on a timer.
func (r *Runner) publish(ctx context.Context, ev graph.ScoresReplaced) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, kafka.Event{Key: ev.Algorithm, Value: ev}); err != nil {
		r.logger.Warn("failed to publish scores-replaced event",
			"algorithm", ev.Algorithm,
			"run_id", ev.RunID,
			"error", err,
		)
	}
}

func (r *Runner) observe(algorithm, outcome string, iterations int, d time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.GraphJobRunsTotal.WithLabelValues(algorithm, outcome).Inc()
	r.metrics.GraphJobDuration.WithLabelValues(algorithm).Observe(d.Seconds())
	if outcome != "error" {
		r.metrics.GraphJobIterations.WithLabelValues(algorithm).Set(float64(iterations))
	}
}
