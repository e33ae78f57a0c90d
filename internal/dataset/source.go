package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/config"
)

// Loader produces the full record set for a fit.
type Loader interface {
	Load(ctx context.Context) ([]Record, error)
}

// NewLoader returns the loader for cfg.Source. db is only used, and then
// required, for the postgres source.
func NewLoader(cfg config.DatasetConfig, db *sql.DB) (Loader, error) {
	switch cfg.Source {
	case "csv", "":
		return CSVSource{Path: cfg.Path}, nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("dataset source postgres needs a database connection")
		}
		return NewPostgresSource(db, cfg.Table), nil
	default:
		return nil, fmt.Errorf("unknown dataset source %q", cfg.Source)
	}
}

// CSVSource reads records from a CSV export on disk.
type CSVSource struct {
	Path string
}

func (s CSVSource) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("loading dataset: %w", err)
	}
	records, err := LoadCSVFile(s.Path)
	if err != nil {
		return nil, err
	}
	slog.Default().With("component", "dataset-csv").Info("dataset loaded", "path", s.Path, "records", len(records))
	return records, nil
}
