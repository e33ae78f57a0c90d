package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/tracing"
)

type pipeline struct {
	server    *httptest.Server
	analytics *httptest.Server
	agg       *analytics.Aggregator
	collector *analytics.Collector
	store     *memRedis
	metrics   *metrics.Metrics
}

// newPipeline wires the search service the way cmd/searcher does, with the
// collector looped back into an analytics aggregator.
func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	exec := executor.New(ranker.New(ranker.DefaultConfig()), executor.DefaultConfig(), m)
	if err := exec.Reload(context.Background(), poiRecords()); err != nil {
		t.Fatalf("initial fit: %v", err)
	}

	agg := analytics.NewAggregator(analytics.DefaultWindow, m)
	collector := analytics.NewCollector(loopback{handler: analytics.HandleEvent(agg)}, 100, m)
	collector.Start(context.Background())

	store := newMemRedis()
	h := handler.New(exec, handler.Config{
		Timeout:   2 * time.Second,
		Cache:     cache.New(store, cache.Config{TTL: time.Minute}, m),
		Collector: collector,
		Loader:    staticLoader(poiRecords()),
		Metrics:   m,
		Recorder:  tracing.NewRecorder(true, 0, time.Second),
	})
	mux := http.NewServeMux()
	h.Register(mux)

	var chain http.Handler = mux
	chain = middleware.Timeout(5 * time.Second)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	srv := httptest.NewServer(chain)
	t.Cleanup(srv.Close)

	ah := analytics.NewHandler(agg, nil)
	amux := http.NewServeMux()
	amux.HandleFunc("GET /api/v1/analytics", ah.Stats)
	amux.HandleFunc("GET /api/v1/analytics/evaluation", ah.Evaluation)
	asrv := httptest.NewServer(amux)
	t.Cleanup(asrv.Close)

	return &pipeline{server: srv, analytics: asrv, agg: agg, collector: collector, store: store, metrics: m}
}

func (p *pipeline) do(t *testing.T, method, path string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, p.server.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decoding %s: %v", path, err)
	}
	return resp, raw
}

func TestSearchPipeline(t *testing.T) {
	p := newPipeline(t)
	const located = "/api/v1/search?q=alfamart&lat=-6.2615&lon=106.8106&k=3"

	resp, body := p.do(t, http.MethodGet, located)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search status = %d: %s", resp.StatusCode, body)
	}
	if resp.Header.Get(middleware.RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
	if got := resp.Header.Get("X-Cache"); got != "miss" {
		t.Errorf("first search X-Cache = %q, want miss", got)
	}
	var first executor.SearchResult
	if err := json.Unmarshal(body, &first); err != nil {
		t.Fatal(err)
	}
	if first.Mode != executor.ModeText || first.Evaluation.K != 3 {
		t.Errorf("mode %s k %d", first.Mode, first.Evaluation.K)
	}
	if first.Results[0].ID != "p001" {
		t.Errorf("top result = %s, want the Kemang Alfamart", first.Results[0].ID)
	}
	for _, r := range first.Results {
		if r.Relevant && r.Category != "Alfamart" {
			t.Errorf("%s (%s) labelled relevant for an alfamart query", r.ID, r.Category)
		}
	}

	resp, body = p.do(t, http.MethodGet, located)
	if got := resp.Header.Get("X-Cache"); got != "hit" {
		t.Errorf("repeat search X-Cache = %q, want hit", got)
	}
	var second executor.SearchResult
	json.Unmarshal(body, &second)
	if second.Evaluation != first.Evaluation {
		t.Errorf("cached evaluation differs: %+v vs %+v", second.Evaluation, first.Evaluation)
	}

	resp, _ = p.do(t, http.MethodGet, "/api/v1/search?category=Apotek")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("zero-result search status = %d", resp.StatusCode)
	}

	resp, _ = p.do(t, http.MethodGet, "/api/v1/search?lat=-6.2")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("lat without lon status = %d, want 400", resp.StatusCode)
	}

	resp, body = p.do(t, http.MethodPost, "/api/v1/dataset/reload")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reload status = %d: %s", resp.StatusCode, body)
	}
	if p.store.Len() != 0 {
		t.Errorf("cache holds %d keys after reload", p.store.Len())
	}
	resp, _ = p.do(t, http.MethodGet, located)
	if got := resp.Header.Get("X-Cache"); got != "miss" {
		t.Errorf("search after reload X-Cache = %q, want miss", got)
	}

	// Close drains every tracked event into the aggregator.
	p.collector.Close()
	stats := p.agg.Stats()
	if stats.TotalSearches != 4 || stats.CacheHits != 1 || stats.ZeroResultCount != 1 {
		t.Errorf("searches %d hits %d zero %d", stats.TotalSearches, stats.CacheHits, stats.ZeroResultCount)
	}
	if stats.DatasetReloads != 1 || stats.FailedReloads != 0 {
		t.Errorf("reloads %d failed %d", stats.DatasetReloads, stats.FailedReloads)
	}
	if stats.Evaluation.Queries != 3 {
		t.Errorf("evaluation window holds %d queries, want 3", stats.Evaluation.Queries)
	}
	if stats.Evaluation.MeanAveragePrecision < 0 || stats.Evaluation.MeanAveragePrecision > 1 {
		t.Errorf("MAP out of range: %v", stats.Evaluation.MeanAveragePrecision)
	}

	aresp, err := http.Get(p.analytics.URL + "/api/v1/analytics/evaluation")
	if err != nil {
		t.Fatal(err)
	}
	defer aresp.Body.Close()
	var eval analytics.EvaluationStats
	if err := json.NewDecoder(aresp.Body).Decode(&eval); err != nil {
		t.Fatal(err)
	}
	if eval != stats.Evaluation {
		t.Errorf("analytics endpoint = %+v, want %+v", eval, stats.Evaluation)
	}

	if got := testutil.ToFloat64(p.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/search", "200")); got != 4 {
		t.Errorf("http_requests_total{search,200} = %v, want 4", got)
	}
	if got := testutil.ToFloat64(p.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/search", "400")); got != 1 {
		t.Errorf("http_requests_total{search,400} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.metrics.CacheHitsTotal); got != 1 {
		t.Errorf("cache_hits_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.metrics.AnalyticsEventsTotal.WithLabelValues("consumed")); got != 5 {
		t.Errorf("consumed events = %v, want 5", got)
	}
}

func TestCorpusStatsAfterStartup(t *testing.T) {
	p := newPipeline(t)
	t.Cleanup(p.collector.Close)
	resp, body := p.do(t, http.MethodGet, "/api/v1/corpus/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var stats ranker.CorpusStats
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatal(err)
	}
	if stats.NumDocuments != 5 || stats.Categories["Alfamart"] != 3 || stats.RatedRecords != 4 {
		t.Errorf("unexpected corpus stats: %+v", stats)
	}
}
