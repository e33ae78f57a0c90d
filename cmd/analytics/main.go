// Command analytics starts the standalone analytics aggregation service.
//
// It consumes search events from Kafka, aggregates them in memory (query
// volume, latency percentiles, top and zero-result queries, and the rolling
// mean average precision over the last window of evaluated queries), and
// exposes them over HTTP. When Postgres is reachable the aggregate is
// snapshotted periodically.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/postgres"
)

// consumerIdleAfter is how long the consumer may go without an event before
// the kafka health check reports degraded.
const consumerIdleAfter = 15 * time.Minute

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
		slog.Error("analytics service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}

func run(cfg *config.Config) error {
	slog.Info("starting analytics service", "port", cfg.Analytics.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Analytics.MetricsPort, nil)
		defer shutdownMetrics(context.Background())
	}

	agg := analytics.NewAggregator(cfg.Evaluation.MAPWindow, m)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg))

	checker := health.NewChecker()
	checker.Register("kafka", health.FreshnessCheck(agg.LastEventAt, consumerIdleAfter, health.StatusDegraded))

	g, gctx := errgroup.WithContext(ctx)

	// Snapshots are optional; without Postgres the service still aggregates.
	var snapshots analytics.SnapshotLister
	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, snapshots disabled", "error", err)
	} else {
		defer pg.Close()
		store := aggregator.NewStore(pg)
		if err := store.Init(ctx); err != nil {
			return fmt.Errorf("initializing snapshot store: %w", err)
		}
		snapshots = store
		checker.Register("postgres", health.PingCheck(pg.Ping, health.StatusDegraded))
		g.Go(func() error {
			return store.Run(gctx, agg, cfg.Analytics.SnapshotInterval)
		})
	}

	h := analytics.NewHandler(agg, snapshots)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/evaluation", h.Evaluation)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", h.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents, "map_window", cfg.Evaluation.MAPWindow)
		return consumer.Start(gctx)
	})
	g.Go(func() error {
		slog.Info("analytics service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
