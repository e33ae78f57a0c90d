// Command evaluate runs a file of queries against a freshly fitted ranker
// and reports per-query evaluation plus mean average precision over the
// whole set.
//
// Each line of the query file is text[|lat,lon[|category[|require_text]]]; see
// internal/searcher/batch. With -publish, every executed query is also sent
// to the analytics topic so offline runs show up next to live traffic.
//
// Usage:
//
//	go run ./cmd/evaluate -queries queries.txt [-dataset poi.csv] [-out report.json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/batch"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/resilience"
)

func main() {
	var (
		configPath  = flag.String("config", "configs/development.yaml", "path to config file")
		datasetPath = flag.String("dataset", "", "CSV dataset (overrides the configured source)")
		queriesPath = flag.String("queries", "-", "query file, - for stdin")
		limit       = flag.Int("limit", 0, "results per query (0 = configured default)")
		k           = flag.Int("k", 0, "evaluation cutoff (0 = configured default)")
		concurrency = flag.Int("concurrency", 4, "queries evaluated in parallel")
		publish     = flag.Bool("publish", false, "publish query events to the analytics topic")
		outPath     = flag.String("out", "", "write the JSON report here instead of stdout")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	// Logs go to stderr so the report can be piped.
	slog.SetDefault(logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	if *datasetPath != "" {
		cfg.Dataset.Source = "csv"
		cfg.Dataset.Path = *datasetPath
	}
	if *limit <= 0 {
		*limit = cfg.Search.DefaultLimit
	}
	if *k <= 0 {
		*k = cfg.Evaluation.DefaultK
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := run(ctx, cfg, *queriesPath, *limit, *k, *concurrency, *publish)
	if err != nil {
		slog.Error("evaluation failed", "error", err)
		os.Exit(1)
	}
	if err := writeReport(*outPath, summary); err != nil {
		slog.Error("writing report failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, queriesPath string, limit, k, concurrency int, publish bool) (*batch.Summary, error) {
	reqs, err := readQueries(queriesPath, limit, k)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("no queries in %s", queriesPath)
	}

	loader, closeLoader, err := openLoader(cfg)
	if err != nil {
		return nil, err
	}
	defer closeLoader()
	exec := executor.New(ranker.New(ranker.ConfigFrom(cfg.Ranking)), executor.ConfigFrom(cfg.Relevance, cfg.Evaluation), nil)
	err = resilience.WithTimeout(ctx, cfg.Dataset.LoadTimeout, "dataset-load", func(ctx context.Context) error {
		records, err := loader.Load(ctx)
		if err != nil {
			return err
		}
		return exec.Reload(ctx, records)
	})
	if err != nil {
		return nil, err
	}

	var onResult func(*executor.SearchResult)
	if publish {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		bc := collector.NewBatchCollector(producer, 100, time.Second)
		pubCtx, cancel := context.WithCancel(ctx)
		bc.Start(pubCtx)
		defer func() {
			cancel()
			bc.Close()
			published, dropped := bc.Counts()
			slog.Info("analytics events published", "published", published, "dropped", dropped)
		}()
		onResult = func(res *executor.SearchResult) {
			bc.Track(pubCtx, analytics.NewSearchEvent(res, res.TookMs, false, "").Message())
		}
	}

	start := time.Now()
	summary, err := batch.Run(ctx, exec, reqs, concurrency, onResult)
	if err != nil {
		return nil, err
	}
	slog.Info("evaluation finished",
		"queries", summary.Queries,
		"map", summary.MAP,
		"mean_precision_k", summary.MeanPrecisionAtK,
		"mean_recall_k", summary.MeanRecallAtK,
		"took", time.Since(start),
	)
	return summary, nil
}

func readQueries(path string, limit, k int) ([]executor.Request, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening queries: %w", err)
		}
		defer f.Close()
		r = f
	}
	return batch.ParseQueries(r, limit, k)
}

func openLoader(cfg *config.Config) (dataset.Loader, func(), error) {
	if cfg.Dataset.Source != "postgres" {
		l, err := dataset.NewLoader(cfg.Dataset, nil)
		return l, func() {}, err
	}
	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to dataset database: %w", err)
	}
	l, err := dataset.NewLoader(cfg.Dataset, pg.DB)
	if err != nil {
		pg.Close()
		return nil, nil, err
	}
	return l, func() { pg.Close() }, nil
}

func writeReport(path string, summary *batch.Summary) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating report: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
