package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/geo"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/metrics"
)

func records() []dataset.Record {
	names := []string{"Alfamart Kemang", "Indomaret Cilandak", "Alfamart Ragunan", "Indomaret Tebet", "Alfamart Pancoran"}
	cats := []string{"Alfamart", "Indomaret", "Alfamart", "Indomaret", "Alfamart"}
	ratings := []float64{5, 3, 4, 2, 5}
	pops := []int{100, 10, 50, 5, 90}
	recs := make([]dataset.Record, len(names))
	for i := range recs {
		recs[i] = dataset.Record{
			ID:         names[i],
			Name:       names[i],
			Category:   cats[i],
			Rating:     dataset.Float(ratings[i]),
			Popularity: dataset.Int(pops[i]),
			Latitude:   -6.26 + float64(i)*0.01,
			Longitude:  106.81,
		}
	}
	return recs
}

func newExecutor(t *testing.T, m *metrics.Metrics) *Executor {
	t.Helper()
	e := New(ranker.New(ranker.DefaultConfig()), DefaultConfig(), m)
	if err := e.Reload(context.Background(), records()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	return e
}

func TestExecuteTextQuery(t *testing.T) {
	e := newExecutor(t, nil)
	res, err := e.Execute(context.Background(), Request{Query: "alfamart kemang", Limit: 5})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Mode != ModeText {
		t.Errorf("Mode = %s, want text", res.Mode)
	}
	if res.TotalResults != 5 || len(res.Labels) != 5 {
		t.Fatalf("expected 5 results and labels, got %d/%d", res.TotalResults, len(res.Labels))
	}
	if res.Results[0].ID != "Alfamart Kemang" {
		t.Errorf("top result = %s", res.Results[0].ID)
	}
	for i, r := range res.Results {
		if r.Relevant != res.Labels[i] {
			t.Errorf("result %d: Relevant disagrees with label", i)
		}
		if r.Category == "Indomaret" && r.Relevant {
			t.Errorf("result %d: Indomaret must be vetoed for an alfamart query", i)
		}
	}
	if res.Evaluation.K != 5 {
		t.Errorf("K = %d, want 5 (capped by result count)", res.Evaluation.K)
	}
	if res.Distance != nil {
		t.Error("distance diagnostics need a location")
	}
	if res.QueryMatch.QueryTerms != 2 || res.QueryMatch.MatchedTerms != 2 {
		t.Errorf("unexpected query match stats: %+v", res.QueryMatch)
	}
	if _, ok := res.Formatted["Precision@K"]; !ok {
		t.Errorf("formatted report missing Precision@K: %v", res.Formatted)
	}
}

func TestExecuteBrowseWithLocation(t *testing.T) {
	e := newExecutor(t, nil)
	loc := &geo.Point{Lat: -6.26, Lon: 106.81}
	res, err := e.Execute(context.Background(), Request{Location: loc, K: 3})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Mode != ModeBrowse {
		t.Errorf("Mode = %s, want browse", res.Mode)
	}
	if res.TotalResults != 5 {
		t.Fatalf("Limit 0 should fall back to the default top-k, got %d results", res.TotalResults)
	}
	if res.Evaluation.K != 3 {
		t.Errorf("K = %d, want 3", res.Evaluation.K)
	}
	if res.Distance == nil || res.Distance.Count != 5 {
		t.Fatalf("expected distance diagnostics over 5 results, got %+v", res.Distance)
	}
	for _, r := range res.Results {
		if r.DistanceLabel == "" {
			t.Errorf("%s: missing distance label", r.ID)
		}
	}
}

func TestExecuteCategoryFilter(t *testing.T) {
	e := newExecutor(t, nil)
	res, err := e.Execute(context.Background(), Request{Category: "Indomaret"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.TotalResults != 2 {
		t.Fatalf("expected 2 Indomaret results, got %d", res.TotalResults)
	}
}

func TestExecuteZeroResults(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	e := newExecutor(t, m)
	res, err := e.Execute(context.Background(), Request{Query: "starbucks", RequireTextMatch: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.TotalResults != 0 || len(res.Results) != 0 {
		t.Fatalf("expected no results, got %d", res.TotalResults)
	}
	if res.Evaluation.PrecisionAtK != 0 || res.Evaluation.AveragePrecision != 0 {
		t.Errorf("empty result set must evaluate to zero: %+v", res.Evaluation)
	}
	if got := testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(ModeText, "zero_result")); got != 1 {
		t.Errorf("zero_result counter = %v, want 1", got)
	}
}

func TestExecuteNotFitted(t *testing.T) {
	e := New(ranker.New(ranker.DefaultConfig()), DefaultConfig(), nil)
	_, err := e.Execute(context.Background(), Request{Query: "alfamart"})
	if !errors.Is(err, apperrors.ErrNotFitted) {
		t.Errorf("err = %v, want ErrNotFitted", err)
	}
}

func TestExecuteCancelledContext(t *testing.T) {
	e := newExecutor(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Execute(ctx, Request{Query: "alfamart"})
	if !errors.Is(err, apperrors.ErrTimeout) || !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want ErrTimeout wrapping context.Canceled", err)
	}
}

func TestReloadInvalidKeepsCorpus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	e := newExecutor(t, m)
	bad := []dataset.Record{{ID: "x", Name: "x", Category: "Alfamart", Latitude: 200}}
	if err := e.Reload(context.Background(), bad); !errors.Is(err, apperrors.ErrInvalidDataset) {
		t.Fatalf("err = %v, want ErrInvalidDataset", err)
	}
	if got := e.CorpusStats().NumDocuments; got != 5 {
		t.Errorf("NumDocuments = %d, want 5", got)
	}
	if got := testutil.ToFloat64(m.DatasetFitsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error fits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CorpusDocuments); got != 5 {
		t.Errorf("corpus gauge = %v, want 5", got)
	}
}

func TestRequestMode(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"", ModeBrowse},
		{"   ", ModeBrowse},
		{"kemang", ModeText},
	}
	for _, tt := range tests {
		if got := (Request{Query: tt.query}).Mode(); got != tt.want {
			t.Errorf("Mode(%q) = %s, want %s", tt.query, got, tt.want)
		}
	}
}
