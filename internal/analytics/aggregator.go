package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/metrics"
)

// DefaultWindow is the number of recent queries MAP is computed over.
const DefaultWindow = 1000

// LatencyWindow is the number of recent latencies the percentiles cover.
const LatencyWindow = 10000

type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	SearchesByMode    map[string]int64 `json:"searches_by_mode"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	DatasetReloads    int64            `json:"dataset_reloads"`
	FailedReloads     int64            `json:"failed_reloads"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
	Evaluation        EvaluationStats  `json:"evaluation"`
}

// EvaluationStats averages per-query metrics over the recent window. MAP is
// the mean average precision of the window's label sequences.
type EvaluationStats struct {
	Window               int     `json:"window"`
	Queries              int     `json:"queries"`
	MeanPrecisionAtK     float64 `json:"mean_precision_k"`
	MeanRecallAtK        float64 `json:"mean_recall_k"`
	MeanAveragePrecision float64 `json:"map"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type evaluated struct {
	labels    []bool
	precision float64
	recall    float64
}

// ring keeps the most recent size items.
type ring[T any] struct {
	items []T
	next  int
	size  int
}

func newRing[T any](size int) ring[T] {
	return ring[T]{items: make([]T, 0, size), size: size}
}

func (r *ring[T]) push(v T) {
	if len(r.items) < r.size {
		r.items = append(r.items, v)
		return
	}
	r.items[r.next] = v
	r.next = (r.next + 1) % r.size
}

type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     atomic.Int64
	cacheHits         atomic.Int64
	cacheMisses       atomic.Int64
	zeroResults       atomic.Int64
	reloads           atomic.Int64
	failedReloads     atomic.Int64
	lastEvent         atomic.Int64
	latencies         ring[int64]
	byMode            map[string]int64
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	window            ring[evaluated]
	startTime         time.Time

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewAggregator creates an aggregator that keeps the last window evaluated
// queries. A non-positive window selects DefaultWindow. m may be nil.
func NewAggregator(window int, m *metrics.Metrics) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Aggregator{
		latencies:         newRing[int64](LatencyWindow),
		byMode:            make(map[string]int64),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		window:            newRing[evaluated](window),
		startTime:         time.Now(),
		metrics:           m,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent returns a Kafka handler that feeds decoded events into agg.
// Undecodable messages are logged and skipped.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		env, err := kafka.DecodeJSON[envelope](value)
		if err != nil {
			agg.count("invalid")
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		switch env.Type {
		case EventSearch, EventZeroResult:
			event, err := kafka.DecodeJSON[SearchEvent](value)
			if err != nil {
				agg.count("invalid")
				agg.logger.Error("failed to decode search event", "error", err)
				return nil
			}
			agg.RecordSearch(event)
			agg.count("consumed")
		case EventReload:
			event, err := kafka.DecodeJSON[ReloadEvent](value)
			if err != nil {
				agg.count("invalid")
				agg.logger.Error("failed to decode reload event", "error", err)
				return nil
			}
			agg.RecordReload(event)
			agg.count("consumed")
		default:
			agg.count("invalid")
			agg.logger.Warn("unknown analytics event type", "type", env.Type)
		}
		return nil
	}
}

func (a *Aggregator) count(stage string) {
	if a.metrics != nil {
		a.metrics.AnalyticsEventsTotal.WithLabelValues(stage).Inc()
	}
}

func (a *Aggregator) RecordSearch(event SearchEvent) {
	a.touch()
	a.totalSearches.Add(1)
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	if event.TotalResults == 0 {
		a.zeroResults.Add(1)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.latencies.push(event.LatencyMs)
	a.byMode[event.Mode]++
	a.queryCounts[event.Query]++
	if event.TotalResults == 0 {
		a.zeroResultQueries[event.Query]++
		return
	}
	a.window.push(evaluated{labels: event.Labels, precision: event.PrecisionAtK, recall: event.RecallAtK})
}

func (a *Aggregator) RecordReload(event ReloadEvent) {
	a.touch()
	a.reloads.Add(1)
	if !event.Succeeded {
		a.failedReloads.Add(1)
	}
}

func (a *Aggregator) touch() {
	a.lastEvent.Store(time.Now().UnixNano())
}

// LastEventAt is when the last event was recorded, or the zero time.
func (a *Aggregator) LastEventAt() time.Time {
	n := a.lastEvent.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches.Load(),
		SearchesByMode:  make(map[string]int64, len(a.byMode)),
		CacheHits:       a.cacheHits.Load(),
		CacheMisses:     a.cacheMisses.Load(),
		ZeroResultCount: a.zeroResults.Load(),
		DatasetReloads:  a.reloads.Load(),
		FailedReloads:   a.failedReloads.Load(),
	}
	for mode, n := range a.byMode {
		stats.SearchesByMode[mode] = n
	}
	if len(a.latencies.items) > 0 {
		sorted := make([]int64, len(a.latencies.items))
		copy(sorted, a.latencies.items)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	stats.Evaluation = a.evaluationStats()
	return stats
}

func (a *Aggregator) evaluationStats() EvaluationStats {
	items := a.window.items
	es := EvaluationStats{Window: a.window.size, Queries: len(items)}
	if len(items) == 0 {
		return es
	}
	labelSets := make([][]bool, len(items))
	var p, r float64
	for i, e := range items {
		labelSets[i] = e.labels
		p += e.precision
		r += e.recall
	}
	n := float64(len(items))
	es.MeanPrecisionAtK = p / n
	es.MeanRecallAtK = r / n
	es.MeanAveragePrecision = evaluation.MeanAveragePrecision(labelSets)
	return es
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n most frequent queries, ties ordered alphabetically.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
