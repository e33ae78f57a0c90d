// Package aggregator persists periodic snapshots of aggregated search and
// evaluation stats to PostgreSQL.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/postgres"
)

// Schema creates the snapshot table. MAP and the search count are stored as
// columns so dashboards can chart them without unpacking the JSON.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS analytics_snapshots (
	    id             BIGSERIAL PRIMARY KEY,
	    data           JSONB NOT NULL,
	    total_searches BIGINT NOT NULL,
	    map            DOUBLE PRECISION NOT NULL,
	    captured_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS analytics_snapshots_captured_at_idx ON analytics_snapshots (captured_at DESC)`,
}

// StatsSource is implemented by *analytics.Aggregator.
type StatsSource interface {
	Stats() analytics.AggregatedStats
}

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

// Init creates the snapshot table if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	if err := s.db.EnsureSchema(ctx, Schema...); err != nil {
		return fmt.Errorf("initializing analytics store: %w", err)
	}
	return nil
}

func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}

	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO analytics_snapshots (data, total_searches, map, captured_at) VALUES ($1, $2, $3, $4)`,
		data, stats.TotalSearches, stats.Evaluation.MeanAveragePrecision, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}

	s.logger.Info("analytics snapshot saved",
		"total_searches", stats.TotalSearches,
		"map", stats.Evaluation.MeanAveragePrecision,
	)
	return nil
}

// LatestSnapshot returns nil, nil when no snapshot exists yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// ListSnapshots returns the last limit snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []analytics.AggregatedStats
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		var stats analytics.AggregatedStats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		snapshots = append(snapshots, stats)
	}

	return snapshots, rows.Err()
}

// Run snapshots src every interval until ctx is cancelled, then writes one
// final snapshot.
func (s *Store) Run(ctx context.Context, src StatsSource, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("periodic snapshot started", "interval", interval)

	for {
		select {
		case <-ticker.C:
			if err := s.SaveSnapshot(ctx, src.Stats()); err != nil {
				s.logger.Error("periodic snapshot failed", "error", err)
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.SaveSnapshot(shutdownCtx, src.Stats()); err != nil {
				s.logger.Error("final snapshot failed", "error", err)
			}
			return nil
		}
	}
}
