// Command loadtest drives GET /api/v1/search with a fixed set of POI queries
// and reports latency, status codes, cache hit rate and the mean precision@k
// the service reported under load.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-queries queries.txt]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/batch"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/executor"
)

// defaultQueries covers text, browse, category and located searches around
// South Jakarta.
const defaultQueries = `
alfamart
indomaret|-6.2615,106.8106
kopi|-6.2441,106.8004
apotek
restoran padang|-6.2297,106.8271|Restoran
|-6.2615,106.8106
|-6.2804,106.7903|Alfamart
bengkel motor
masjid|-6.2500,106.8000
warung kopi kemang
`

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Requests    []executor.Request
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64
	latencies     []time.Duration
	precisions    []float64
	mu            sync.Mutex
	statusCodes   map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		precisions:  make([]float64, 0, 100000),
		statusCodes: make(map[int]int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, cacheHit bool, precision float64, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	ok := statusCode >= 200 && statusCode < 300
	if ok {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}
	if cacheHit {
		s.cacheHits.Add(1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, duration)
	s.statusCodes[statusCode]++
	if ok {
		s.precisions = append(s.precisions, precision)
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	queriesPath := flag.String("queries", "", "query file (text[|lat,lon[|category[|require_text]]] per line)")
	limit := flag.Int("limit", 10, "results per query")
	k := flag.Int("k", 10, "evaluation cutoff")
	flag.Parse()

	reqs, err := loadRequests(*queriesPath, *limit, *k)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading queries: %v\n", err)
		os.Exit(1)
	}

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		Requests:    reqs,
	}

	fmt.Println("=== POI Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Requests))
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func loadRequests(path string, limit, k int) ([]executor.Request, error) {
	if path == "" {
		return batch.ParseQueries(strings.NewReader(defaultQueries), limit, k)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	reqs, err := batch.ParseQueries(f, limit, k)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%s has no queries", path)
	}
	return reqs, nil
}

// searchURL encodes req as the query string the search handler parses.
func searchURL(base string, req executor.Request) string {
	v := url.Values{}
	if req.Query != "" {
		v.Set("q", req.Query)
	}
	if req.Location != nil {
		v.Set("lat", strconv.FormatFloat(req.Location.Lat, 'f', -1, 64))
		v.Set("lon", strconv.FormatFloat(req.Location.Lon, 'f', -1, 64))
	}
	if req.Category != "" {
		v.Set("category", req.Category)
	}
	if req.Query != "" && !req.RequireTextMatch {
		v.Set("require_text", "false")
	}
	v.Set("limit", strconv.Itoa(req.Limit))
	v.Set("k", strconv.Itoa(req.K))
	return base + "/api/v1/search?" + v.Encode()
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			idx := workerID
			for ctx.Err() == nil {
				req := cfg.Requests[idx%len(cfg.Requests)]
				idx++
				doSearch(ctx, client, searchURL(cfg.BaseURL, req), stats)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func doSearch(ctx context.Context, client *http.Client, rawURL string, stats *Stats) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		stats.RecordRequest(0, 0, false, 0, err)
		return
	}
	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() == nil {
			stats.RecordRequest(time.Since(start), 0, false, 0, err)
		}
		return
	}
	defer resp.Body.Close()

	var body struct {
		Evaluation struct {
			PrecisionAtK float64 `json:"precision_k"`
		} `json:"evaluation"`
	}
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			stats.RecordRequest(time.Since(start), resp.StatusCode, false, 0, err)
			return
		}
	}
	stats.RecordRequest(time.Since(start), resp.StatusCode, resp.Header.Get("X-Cache") == "hit", body.Evaluation.PrecisionAtK, nil)
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(errors)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}
	if success > 0 {
		fmt.Printf("Cache Hit Rate:  %.2f%%\n", float64(stats.cacheHits.Load())/float64(success)*100)
	}

	stats.mu.Lock()
	latencies := append([]time.Duration(nil), stats.latencies...)
	precisions := append([]float64(nil), stats.precisions...)
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	counts := make([]int64, len(codes))
	for i, code := range codes {
		counts[i] = stats.statusCodes[code]
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	if len(precisions) > 0 {
		var sum float64
		for _, p := range precisions {
			sum += p
		}
		fmt.Println()
		fmt.Println("=== Evaluation ===")
		fmt.Printf("Mean P@K: %.4f over %d responses\n", sum/float64(len(precisions)), len(precisions))
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	for i, code := range codes {
		fmt.Printf("  %d: %d\n", code, counts[i])
	}

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
