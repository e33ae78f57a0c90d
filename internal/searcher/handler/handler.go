// Package handler exposes search, corpus and cache operations over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/geo"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/tracing"
)

type SearchExecutor interface {
	Execute(ctx context.Context, req executor.Request) (*executor.SearchResult, error)
	Reload(ctx context.Context, records []dataset.Record) error
	CorpusStats() ranker.CorpusStats
}

// Config wires optional collaborators. Cache, Collector, Loader, Metrics and
// Recorder may all be nil.
type Config struct {
	DefaultLimit int
	MaxResults   int
	Timeout      time.Duration
	Cache        *cache.QueryCache
	Collector    *analytics.Collector
	Loader       dataset.Loader
	Metrics      *metrics.Metrics
	Recorder     *tracing.Recorder
}

type Handler struct {
	executor SearchExecutor
	cfg      Config
	reloadMu sync.Mutex
	logger   *slog.Logger
}

func New(exec SearchExecutor, cfg Config) *Handler {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 200
	}
	if cfg.DefaultLimit <= 0 || cfg.DefaultLimit > cfg.MaxResults {
		cfg.DefaultLimit = min(ranker.DefaultTopK, cfg.MaxResults)
	}
	return &Handler{
		executor: exec,
		cfg:      cfg,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/corpus/stats", h.CorpusStats)
	mux.HandleFunc("POST /api/v1/dataset/reload", h.Reload)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := middleware.GetRequestID(r.Context())
	ctx, span := tracing.StartSpan(r.Context(), "search", requestID)
	defer h.cfg.Recorder.Finish(span)
	log := logger.FromContext(ctx)

	req, err := h.parseRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	span.SetAttr("mode", req.Mode())

	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
	}

	var result *executor.SearchResult
	cacheStatus := "disabled"
	if h.cfg.Cache != nil {
		var hit bool
		result, hit, err = h.cfg.Cache.GetOrCompute(ctx, req, func() (*executor.SearchResult, error) {
			return h.executor.Execute(ctx, req)
		})
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		result, err = h.executor.Execute(ctx, req)
	}
	if err != nil {
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.SearchQueriesTotal.WithLabelValues(req.Mode(), "error").Inc()
		}
		log.Error("search execution failed", "query", req.Query, "error", err)
		h.writeError(w, err)
		return
	}

	latency := time.Since(start)
	span.SetAttr("cache", cacheStatus)
	span.SetAttr("results", result.TotalResults)
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	}
	log.Info("search completed",
		"query", req.Query,
		"mode", result.Mode,
		"results", result.TotalResults,
		"precision_k", result.Evaluation.PrecisionAtK,
		"cache", cacheStatus,
		"latency_ms", latency.Milliseconds(),
	)
	if h.cfg.Collector != nil {
		h.cfg.Collector.Track(analytics.NewSearchEvent(result, latency.Milliseconds(), cacheStatus == "hit", requestID))
	}

	w.Header().Set("X-Cache", cacheStatus)
	h.writeJSON(w, http.StatusOK, result)
}

// parseRequest reads q, lat, lon, category, limit, require_text and k. lat
// and lon must be given together. require_text defaults to true for text
// queries.
func (h *Handler) parseRequest(r *http.Request) (executor.Request, error) {
	q := r.URL.Query()
	req := executor.Request{
		Query:    strings.TrimSpace(q.Get("q")),
		Category: strings.TrimSpace(q.Get("category")),
		Limit:    h.cfg.DefaultLimit,
	}
	req.RequireTextMatch = req.Query != ""

	latStr, lonStr := q.Get("lat"), q.Get("lon")
	switch {
	case latStr == "" && lonStr == "":
	case latStr == "" || lonStr == "":
		return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "lat and lon must be provided together")
	default:
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil || lat < -90 || lat > 90 {
			return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "lat must be a number between -90 and 90")
		}
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil || lon < -180 || lon > 180 {
			return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "lon must be a number between -180 and 180")
		}
		req.Location = &geo.Point{Lat: lat, Lon: lon}
	}

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer")
		}
		req.Limit = min(n, h.cfg.MaxResults)
	}
	if s := q.Get("k"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "k must be a positive integer")
		}
		req.K = n
	}
	if s := q.Get("require_text"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "require_text must be a boolean")
		}
		req.RequireTextMatch = b
	}
	return req, nil
}

func (h *Handler) CorpusStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.executor.CorpusStats())
}

// Reload refits the ranker from the configured loader and invalidates the
// cache. Concurrent reloads are serialized; searches keep using the previous
// corpus until the new one is fitted.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Loader == nil {
		h.writeError(w, apperrors.New(apperrors.ErrDatasetNotFound, http.StatusServiceUnavailable, "no dataset source configured"))
		return
	}
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	start := time.Now()
	ctx, span := tracing.StartSpan(r.Context(), "reload", middleware.GetRequestID(r.Context()))
	defer h.cfg.Recorder.Finish(span)
	log := logger.FromContext(ctx)

	records, err := h.cfg.Loader.Load(ctx)
	if err == nil {
		err = h.executor.Reload(ctx, records)
	}
	stats := h.executor.CorpusStats()
	h.trackReload(stats, err, time.Since(start))
	if err != nil {
		log.Error("dataset reload failed", "error", err)
		h.writeError(w, err)
		return
	}

	invalidated := false
	if h.cfg.Cache != nil {
		if err := h.cfg.Cache.Invalidate(ctx); err != nil {
			log.Warn("cache invalidation after reload failed", "error", err)
		} else {
			invalidated = true
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":            "reloaded",
		"corpus":            stats,
		"cache_invalidated": invalidated,
	})
}

func (h *Handler) trackReload(stats ranker.CorpusStats, err error, took time.Duration) {
	if h.cfg.Collector == nil {
		return
	}
	ev := analytics.ReloadEvent{
		Type:       analytics.EventReload,
		Documents:  stats.NumDocuments,
		Vocabulary: stats.VocabularySize,
		Succeeded:  err == nil,
		LatencyMs:  took.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	h.cfg.Collector.Track(ev)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cfg.Cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Cache == nil {
		h.writeError(w, apperrors.New(apperrors.ErrCacheUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	if err := h.cfg.Cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to a status code. Internal errors are not echoed to
// the client.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
