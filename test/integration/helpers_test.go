// Package integration contains tests that verify the interaction between
// multiple engine components. They run the real handlers behind the real
// middleware chain with in-memory stand-ins for Redis and Kafka. Tests that
// need PostgreSQL skip when it is unavailable.
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/redis"
)

// ---------------------------------------------------------------------------
// Stand-ins
// ---------------------------------------------------------------------------

// memRedis implements the cache store with a map.
type memRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemRedis() *memRedis {
	return &memRedis{data: make(map[string]string)}
}

func (m *memRedis) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (m *memRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	default:
		m.data[key] = fmt.Sprint(v)
	}
	return nil
}

func (m *memRedis) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.data))
	m.data = make(map[string]string)
	return n, nil
}

func (m *memRedis) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// loopback delivers published events straight to a Kafka message handler,
// encoding them the way the producer does.
type loopback struct {
	handler kafka.MessageHandler
}

func (l loopback) Publish(ctx context.Context, event kafka.Event) error {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return err
	}
	return l.handler(ctx, []byte(event.Key), value)
}

type staticLoader []dataset.Record

func (l staticLoader) Load(ctx context.Context) ([]dataset.Record, error) {
	return l, nil
}

func poiRecords() []dataset.Record {
	return []dataset.Record{
		{ID: "p001", Name: "Alfamart Kemang Raya", Category: "Alfamart", Rating: dataset.Float(4.3), Popularity: dataset.Int(812), Address: "Jl. Kemang Raya No. 12", District: "Mampang Prapatan", Latitude: -6.2615, Longitude: 106.8106},
		{ID: "p002", Name: "Alfamart Ampera", Category: "Alfamart", Rating: dataset.Float(4.1), Popularity: dataset.Int(455), Address: "Jl. Ampera Raya No. 5", District: "Pasar Minggu", Latitude: -6.2811, Longitude: 106.8213},
		{ID: "p003", Name: "Indomaret Fatmawati", Category: "Indomaret", Rating: dataset.Float(4.0), Popularity: dataset.Int(390), Address: "Jl. RS Fatmawati No. 20", District: "Cilandak", Latitude: -6.2804, Longitude: 106.7903},
		{ID: "p004", Name: "Kopi Kenangan Blok M", Category: "Kafe", Rating: dataset.Float(4.5), Popularity: dataset.Int(1520), Address: "Jl. Melawai Raya No. 8", District: "Kebayoran Baru", Latitude: -6.2441, Longitude: 106.8004},
		{ID: "p005", Name: "Alfamart Jagakarsa", Category: "Alfamart", Address: "Jl. Moh. Kahfi I No. 2", District: "Jagakarsa", Latitude: -6.3349, Longitude: 106.8147},
	}
}

// ---------------------------------------------------------------------------
// Postgres
// ---------------------------------------------------------------------------

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	db, err := postgres.New(testPostgresConfig())
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "poisearch_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "poisearch"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
