package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/dataset"
	apperrors "github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/errors"
)

const testTable = "poi_records_it"

func TestPostgresDatasetSource(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()

	if err := db.EnsureSchema(ctx,
		`DROP TABLE IF EXISTS `+testTable,
		`CREATE TABLE `+testTable+` (
		    id         TEXT PRIMARY KEY,
		    category   TEXT NOT NULL,
		    name       TEXT NOT NULL,
		    address    TEXT,
		    village    TEXT,
		    district   TEXT,
		    rating     DOUBLE PRECISION,
		    popularity INTEGER,
		    latitude   DOUBLE PRECISION NOT NULL,
		    longitude  DOUBLE PRECISION NOT NULL
		)`,
	); err != nil {
		t.Fatalf("creating table: %v", err)
	}
	t.Cleanup(func() { db.DB.Exec(`DROP TABLE IF EXISTS ` + testTable) })

	want := poiRecords()
	for _, r := range want {
		var rating, popularity any
		if r.Rating != nil {
			rating = *r.Rating
		}
		if r.Popularity != nil {
			popularity = *r.Popularity
		}
		if _, err := db.DB.ExecContext(ctx,
			`INSERT INTO `+testTable+` (id, category, name, address, village, district, rating, popularity, latitude, longitude)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			r.ID, r.Category, r.Name, r.Address, r.Village, r.District, rating, popularity, r.Latitude, r.Longitude,
		); err != nil {
			t.Fatalf("inserting %s: %v", r.ID, err)
		}
	}

	got, err := dataset.NewPostgresSource(db.DB, testTable).Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("loaded %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Name != want[i].Name {
			t.Errorf("record %d = %s/%s, want %s/%s", i, got[i].ID, got[i].Name, want[i].ID, want[i].Name)
		}
		if (got[i].Rating == nil) != (want[i].Rating == nil) {
			t.Errorf("record %s rating presence mismatch", want[i].ID)
		}
	}

	_, err = dataset.NewPostgresSource(db.DB, "poi_records_missing").Load(ctx)
	if !errors.Is(err, apperrors.ErrDatasetNotFound) {
		t.Errorf("missing table error = %v, want ErrDatasetNotFound", err)
	}
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()

	store := aggregator.NewStore(db)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	agg := analytics.NewAggregator(10, nil)
	agg.RecordSearch(analytics.SearchEvent{
		Type:         analytics.EventSearch,
		Query:        "alfamart",
		Mode:         "text",
		TotalResults: 3,
		Labels:       []bool{true, false, true},
		PrecisionAtK: 2.0 / 3,
		RecallAtK:    1,
	})
	if err := store.SaveSnapshot(ctx, agg.Stats()); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	latest, err := store.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if latest == nil || latest.TotalSearches < 1 {
		t.Fatalf("latest snapshot = %+v", latest)
	}
	list, err := store.ListSnapshots(ctx, 5)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(list) == 0 {
		t.Error("expected at least one snapshot")
	}
}
