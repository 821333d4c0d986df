package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/graph"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/store/postgres"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/middleware"
	pkgpostgres "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "per_page", cfg.Ranking.PerPage)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	db, err := pkgpostgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := postgres.New(db)

	snapshots := graph.NewSnapshotStore(store, m)
	err = resilience.Retry(ctx, "initial snapshot load", resilience.RetryConfig{MaxAttempts: 5, InitialDelay: time.Second}, func() error {
		return snapshots.Reload(ctx, "startup")
	})
	if err != nil {
		slog.Warn("score snapshot not loaded, searches fail until the next reload", "error", err)
	}

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	collector := analytics.NewCollector(analyticsProducer, 10000, 100, 5*time.Second)
	collector.Start(ctx)
	defer collector.Close()

	svc := executor.New(store, snapshots, store, executor.OptionsFromConfig(cfg.Ranking), m)
	h := handler.New(svc, queryCache, snapshots, collector, handler.DefaultsFromConfig(cfg.Ranking))

	// Event and timer reloads alike invalidate what was ranked with the old scores.
	snapshots.OnReload(func(ctx context.Context, trigger string) {
		svc.InvalidateCaches()
		if queryCache == nil {
			return
		}
		if n, err := queryCache.Invalidate(ctx); err != nil {
			slog.Warn("query cache invalidation failed", "trigger", trigger, "error", err)
		} else {
			slog.Info("query cache invalidated", "trigger", trigger, "keys_deleted", n)
		}
	})
	go snapshots.Run(ctx, cfg.Ranking.SnapshotRefresh)

	// Every replica must see every event, so each instance joins its own group.
	groupID := fmt.Sprintf("%s-searcher-%s", cfg.Kafka.ConsumerGroup, uuid.NewString())
	scoresConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ScoresReplaced,
		kafka.JSONHandler(func(ctx context.Context, _ string, ev graph.ScoresReplaced) error {
			slog.Info("scores replaced", "algorithm", ev.Algorithm, "run_id", ev.RunID, "nodes", ev.Nodes)
			return snapshots.Reload(ctx, "event")
		}),
		kafka.WithGroupID(groupID),
	)
	defer scoresConsumer.Close()
	go func() {
		if err := scoresConsumer.Start(ctx); err != nil {
			slog.Error("scores consumer error", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(store.Ping))
	checker.Register("score_snapshot", health.PingCheck(func(context.Context) error {
		_, err := snapshots.Current()
		return err
	}))
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		return health.DegradedCheck(redisClient.Ping)(ctx)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", h.Search)
	mux.HandleFunc("GET /are-you-alive", h.AreYouAlive)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /api/v1/graph/snapshot", h.SnapshotInfo)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var limiter *middleware.Limiter
	if cfg.HTTP.RequestsPerMinute > 0 {
		limiter = middleware.NewLimiter(cfg.HTTP.RequestsPerMinute, time.Minute)
		go sweepLimiter(ctx, limiter)
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = tracing.Middleware(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RateLimit(limiter)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.HTTP.AllowOrigins))(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

func sweepLimiter(ctx context.Context, l *middleware.Limiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				slog.Debug("rate limiter buckets swept", "removed", n)
			}
		}
	}
}
