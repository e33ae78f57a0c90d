package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	apperrors "github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/resilience"
)

// DefaultTable is the table PostgresSource reads when none is configured.
const DefaultTable = "poi_records"

// PostgresSource loads records from a PostgreSQL table with the columns
// id, category, name, address, village, district, rating, popularity,
// latitude and longitude.
type PostgresSource struct {
	db     *sql.DB
	table  string
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func NewPostgresSource(db *sql.DB, table string) *PostgresSource {
	if table == "" {
		table = DefaultTable
	}
	return &PostgresSource{
		db:    db,
		table: table,
		retry: resilience.RetryConfig{
			MaxAttempts: 5,
			Retryable:   retryable,
		},
		logger: slog.Default().With("component", "dataset-postgres"),
	}
}

const undefinedTable = "42P01"

// retryable rejects failures another attempt cannot fix.
func retryable(err error) bool {
	return !errors.Is(err, apperrors.ErrDatasetNotFound) && !errors.Is(err, apperrors.ErrInvalidDataset)
}

// Load reads every row ordered by id, retrying transient failures.
func (s *PostgresSource) Load(ctx context.Context) ([]Record, error) {
	var records []Record
	err := resilience.Retry(ctx, "dataset-load", s.retry, func() error {
		var err error
		records, err = s.load(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading dataset from %s: %w", s.table, err)
	}
	s.logger.Info("dataset loaded", "table", s.table, "records", len(records))
	return records, nil
}

func (s *PostgresSource) load(ctx context.Context) ([]Record, error) {
	query := fmt.Sprintf(
		`SELECT id, category, name, address, village, district, rating, popularity, latitude, longitude
		 FROM %s ORDER BY id`, pq.QuoteIdentifier(s.table))
	rows, err := s.db.QueryContext(ctx, query)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
		return nil, fmt.Errorf("querying records: %w", apperrors.ErrDatasetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec                        Record
			address, village, district sql.NullString
			rating                     sql.NullFloat64
			popularity                 sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.Category, &rec.Name, &address, &village, &district,
			&rating, &popularity, &rec.Latitude, &rec.Longitude); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		rec.Address = address.String
		rec.Village = village.String
		rec.District = district.String
		if rating.Valid {
			rec.Rating = Float(rating.Float64)
		}
		if popularity.Valid {
			rec.Popularity = Int(int(popularity.Int64))
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}
