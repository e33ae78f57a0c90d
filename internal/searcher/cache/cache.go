// Package cache stores executed search results in Redis. Concurrent misses
// for the same request are collapsed with singleflight. Every Redis call
// passes through a circuit breaker; while it is open, reads count as misses.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/redis"
)

const (
	keyPrefix   = "poisearch:"
	breakerName = "redis-cache"
)

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type Config struct {
	TTL time.Duration

	// Breaker settings; zero values select the defaults.
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

type QueryCache struct {
	store   Store
	cfg     Config
	breaker *gobreaker.CircuitBreaker[string]
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	Total        int64   `json:"total"`
	HitRate      float64 `json:"hit_rate"`
	BreakerState string  `json:"breaker_state"`
}

// New creates a cache over store. m may be nil.
func New(store Store, cfg Config, m *metrics.Metrics) *QueryCache {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	c := &QueryCache{
		store:   store,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
	c.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || pkgredis.IsNilError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			if c.metrics != nil {
				c.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c
}

func (c *QueryCache) Get(ctx context.Context, req executor.Request) (*executor.SearchResult, bool) {
	key := BuildKey(req)
	data, err := c.breaker.Execute(func() (string, error) {
		return c.store.Get(ctx, key)
	})
	if err != nil {
		switch {
		case pkgredis.IsNilError(err):
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			c.logger.Debug("cache bypassed", "key", key, "reason", err)
		default:
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.recordMiss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	// The key folds case and whitespace; echo the caller's own query text.
	result.Query = req.Query
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "query", req.Query, "key", key)
	return &result, true
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *QueryCache) Set(ctx context.Context, req executor.Request, result *executor.SearchResult) {
	key := BuildKey(req)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	_, err = c.breaker.Execute(func() (string, error) {
		return "", c.store.Set(ctx, key, data, c.cfg.TTL)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for req or runs computeFn once per
// key across concurrent callers and caches its result. The boolean reports a
// cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	req executor.Request,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, req); ok {
		return result, true, nil
	}
	key := BuildKey(req)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, req, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate deletes every cached search result.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	var deleted int64
	_, err := c.breaker.Execute(func() (string, error) {
		n, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
		deleted = n
		return "", err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return fmt.Errorf("invalidating cache: %w", apperrors.ErrCacheUnavailable)
		}
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() Stats {
	s := Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		BreakerState: c.breaker.State().String(),
	}
	s.Total = s.Hits + s.Misses
	if s.Total > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Total)
	}
	return s
}

// BuildKey derives the cache key from every request field that changes the
// response.
func BuildKey(req executor.Request) string {
	var b strings.Builder
	b.WriteString("q=")
	b.WriteString(strings.Join(strings.Fields(strings.ToLower(req.Query)), " "))
	b.WriteString("|cat=")
	b.WriteString(strings.TrimSpace(req.Category))
	if req.Location != nil {
		fmt.Fprintf(&b, "|loc=%.6f,%.6f", req.Location.Lat, req.Location.Lon)
	}
	fmt.Fprintf(&b, "|limit=%d|text=%t|k=%d", req.Limit, req.RequireTextMatch, req.K)
	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
