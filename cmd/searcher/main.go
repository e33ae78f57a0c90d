// Command searcher serves hybrid POI search over HTTP.
//
// It fits the fusion ranker on the configured dataset, then answers
// GET /api/v1/search with ranked results, pseudo-relevance labels and the
// per-query evaluation report. Results are cached in Redis and every query
// is published to Kafka for the analytics service.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
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

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/tracing"
)

const analyticsBufferSize = 10000

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	slog.Info("starting search service", "port", cfg.Server.Port, "dataset_source", cfg.Dataset.Source)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, nil)
		defer shutdownMetrics(context.Background())
	}

	checker := health.NewChecker()

	var pg *postgres.Client
	if cfg.Dataset.Source == "postgres" {
		var err error
		pg, err = postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to dataset database: %w", err)
		}
		defer pg.Close()
		checker.Register("postgres", health.PingCheck(pg.Ping, health.StatusDegraded))
	}
	loader, err := newLoader(cfg.Dataset, pg)
	if err != nil {
		return err
	}

	r := ranker.New(ranker.ConfigFrom(cfg.Ranking))
	exec := executor.New(r, executor.ConfigFrom(cfg.Relevance, cfg.Evaluation), m)
	err = resilience.WithTimeout(ctx, cfg.Dataset.LoadTimeout, "initial-dataset-load", func(ctx context.Context) error {
		records, err := loader.Load(ctx)
		if err != nil {
			return err
		}
		return exec.Reload(ctx, records)
	})
	if err != nil {
		return fmt.Errorf("fitting initial dataset: %w", err)
	}
	fitted := health.FreshnessCheck(func() time.Time { return exec.CorpusStats().FittedAt }, 0, health.StatusDown)
	checker.Register("ranker", func(ctx context.Context) health.ComponentHealth {
		h := fitted(ctx)
		if h.Details != nil {
			stats := exec.CorpusStats()
			h.Details["documents"] = stats.NumDocuments
			h.Details["vocabulary"] = stats.VocabularySize
		}
		return h
	})

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cache.Config{TTL: cfg.Redis.CacheTTL}, m)
			checker.Register("redis", health.PingCheck(redisClient.Ping, health.StatusDegraded))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer producer.Close()
	collector := analytics.NewCollector(producer, analyticsBufferSize, m)
	collector.Start(ctx)
	slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	h := handler.New(exec, handler.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
		Timeout:      cfg.Search.Timeout,
		Cache:        queryCache,
		Collector:    collector,
		Loader:       loader,
		Metrics:      m,
		Recorder:     tracing.NewRecorder(cfg.Tracing.Enabled, cfg.Tracing.SampleRate, cfg.Tracing.SlowThreshold),
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	err = g.Wait()
	collector.Close()
	return err
}

// newLoader builds the dataset loader; pg is nil unless the source is
// postgres.
func newLoader(cfg config.DatasetConfig, pg *postgres.Client) (dataset.Loader, error) {
	if pg == nil {
		return dataset.NewLoader(cfg, nil)
	}
	return dataset.NewLoader(cfg, pg.DB)
}
