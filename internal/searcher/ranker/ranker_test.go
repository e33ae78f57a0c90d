package ranker

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/geo"
	apperrors "github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/errors"
)

const eps = 1e-9

func scenarioRecords() []dataset.Record {
	ratings := []float64{5, 3, 4, 2, 5}
	pops := []int{100, 10, 50, 5, 90}
	names := []string{"Alfamart Kemang", "Indomaret Cilandak", "Alfamart Ragunan", "Indomaret Tebet", "Alfamart Pancoran"}
	cats := []string{"Alfamart", "Indomaret", "Alfamart", "Indomaret", "Alfamart"}
	recs := make([]dataset.Record, len(ratings))
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

func fittedRanker(t *testing.T, recs []dataset.Record) *Ranker {
	t.Helper()
	r := New(DefaultConfig())
	if err := r.Fit(recs); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	return r
}

func TestRankEmptyQueryNeutralLexical(t *testing.T) {
	r := fittedRanker(t, scenarioRecords())
	results := r.Rank(Query{Text: "", TopK: 10})
	if len(results) != 5 {
		t.Fatalf("expected all 5 records, got %d", len(results))
	}
	wantOrder := []int{0, 4, 2, 1, 3}
	wantFinal := []float64{0.65, 0.64, 0.56, 0.48, 0.435}
	for i, res := range results {
		if res.DocIndex != wantOrder[i] {
			t.Errorf("position %d: doc %d, want %d", i, res.DocIndex, wantOrder[i])
		}
		if math.Abs(res.FinalScore-wantFinal[i]) > eps {
			t.Errorf("position %d: final %v, want %v", i, res.FinalScore, wantFinal[i])
		}
		if res.LexicalScore != 0 || res.LexicalScoreNorm != 0.5 {
			t.Errorf("empty query must give raw 0 and normalized 0.5, got %v/%v", res.LexicalScore, res.LexicalScoreNorm)
		}
		if res.DistanceScore != 0.5 || res.Distance != 0 || res.HasDistance {
			t.Errorf("no location must give neutral distance, got %+v", res)
		}
		if res.Rank != i+1 {
			t.Errorf("rank = %d, want %d", res.Rank, i+1)
		}
	}
}

func TestRankTextQuery(t *testing.T) {
	r := fittedRanker(t, scenarioRecords())
	results := r.Rank(Query{Text: "kemang", TopK: 5})
	if results[0].ID != "Alfamart Kemang" {
		t.Fatalf("expected Kemang first, got %s", results[0].ID)
	}
	if results[0].LexicalScoreNorm != 1 {
		t.Errorf("best lexical match should normalize to 1, got %v", results[0].LexicalScoreNorm)
	}
	for _, res := range results[1:] {
		if res.LexicalScore != 0 || res.LexicalScoreNorm != 0 {
			t.Errorf("non-matching record %s has lexical %v/%v", res.ID, res.LexicalScore, res.LexicalScoreNorm)
		}
	}
}

func TestRankRequireTextMatch(t *testing.T) {
	r := fittedRanker(t, scenarioRecords())
	results := r.Rank(Query{Text: "indomaret", RequireTextMatch: true})
	if len(results) != 2 {
		t.Fatalf("expected 2 text matches, got %d", len(results))
	}
	for _, res := range results {
		if res.LexicalScore <= 0 {
			t.Errorf("result %s has no lexical match", res.ID)
		}
	}
	if got := r.Rank(Query{Text: "", RequireTextMatch: true}); len(got) != 0 {
		t.Errorf("empty query with text requirement should return nothing, got %d", len(got))
	}
}

func TestRankCategoryFilter(t *testing.T) {
	r := fittedRanker(t, scenarioRecords())
	results := r.Rank(Query{Category: "Indomaret"})
	if len(results) != 2 {
		t.Fatalf("expected 2 Indomaret results, got %d", len(results))
	}
	for _, res := range results {
		if res.Category != "Indomaret" {
			t.Errorf("unexpected category %s", res.Category)
		}
	}
	for _, all := range []string{"all", "Semua", ""} {
		if got := r.Rank(Query{Category: all}); len(got) != 5 {
			t.Errorf("category %q should not filter, got %d", all, len(got))
		}
	}
}

func TestRankPopularityUsesWholeCorpus(t *testing.T) {
	r := fittedRanker(t, scenarioRecords())
	results := r.Rank(Query{Category: "Indomaret"})
	for _, res := range results {
		want := float64(res.PopularityValue()) / 100
		if math.Abs(res.PopularityScore-want) > eps {
			t.Errorf("%s popularity score %v, want %v", res.ID, res.PopularityScore, want)
		}
	}
}

func TestRankWithLocation(t *testing.T) {
	recs := scenarioRecords()
	r := fittedRanker(t, recs)
	ref := recs[2].Point()
	results := r.Rank(Query{Location: &ref})
	for _, res := range results {
		if !res.HasDistance {
			t.Fatal("HasDistance must be set with a reference point")
		}
		want := geo.DistanceScore(geo.Distance(ref, res.Point()), geo.DefaultMaxDistanceKm)
		if math.Abs(res.DistanceScore-want) > eps {
			t.Errorf("%s distance score %v, want %v", res.ID, res.DistanceScore, want)
		}
		if res.DocIndex == 2 && res.DistanceScore != 1 {
			t.Errorf("record at the reference point should score 1, got %v", res.DistanceScore)
		}
	}
}

func TestRankTopKAndTies(t *testing.T) {
	recs := []dataset.Record{
		{ID: "a", Name: "Toko A", Category: "Alfamart"},
		{ID: "b", Name: "Toko B", Category: "Alfamart"},
		{ID: "c", Name: "Toko C", Category: "Alfamart"},
	}
	r := fittedRanker(t, recs)
	results := r.Rank(Query{TopK: 2})
	if len(results) != 2 {
		t.Fatalf("expected truncation to 2, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("ties must keep corpus order, got %s,%s", results[0].ID, results[1].ID)
	}
	if got := r.Rank(Query{TopK: 0}); len(got) != 3 {
		t.Errorf("TopK 0 should fall back to the default cap, got %d", len(got))
	}
}

func TestRankUnfit(t *testing.T) {
	r := New(DefaultConfig())
	got := r.Rank(Query{Text: "alfamart"})
	if got == nil || len(got) != 0 {
		t.Errorf("unfit ranker should return an empty slice, got %v", got)
	}
	if r.Fitted() {
		t.Error("Fitted() = true before Fit")
	}
}

func TestFitInvalidDatasetKeepsState(t *testing.T) {
	r := fittedRanker(t, scenarioRecords())
	bad := []dataset.Record{{ID: "x", Name: "", Category: "Alfamart", Latitude: 200}}
	err := r.Fit(bad)
	if !errors.Is(err, apperrors.ErrInvalidDataset) {
		t.Fatalf("expected invalid dataset error, got %v", err)
	}
	if r.Len() != 5 {
		t.Errorf("previous fit should survive, Len() = %d", r.Len())
	}
}

func TestFitEmptyDataset(t *testing.T) {
	r := fittedRanker(t, nil)
	if !r.Fitted() {
		t.Error("empty dataset is a valid fit")
	}
	if got := r.Rank(Query{Text: "alfamart"}); len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}

func TestCustomWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{Rating: 1}
	r := New(cfg)
	if err := r.Fit(scenarioRecords()); err != nil {
		t.Fatal(err)
	}
	results := r.Rank(Query{})
	if math.Abs(results[0].FinalScore-1) > eps {
		t.Errorf("rating-only weights: top final %v, want 1", results[0].FinalScore)
	}
}

func TestMergeWeights(t *testing.T) {
	got := MergeWeights(DefaultWeights(), Weights{Distance: 0.5})
	want := Weights{Lexical: 0.4, Distance: 0.5, Rating: 0.2, Popularity: 0.1}
	if got != want {
		t.Errorf("MergeWeights = %+v, want %+v", got, want)
	}
}

func TestZeroConfigUsesDefaults(t *testing.T) {
	r := New(Config{})
	cfg := r.Config()
	if cfg.Weights != DefaultWeights() || cfg.BM25.K1 != 1.5 || cfg.MaxDistanceKm != 10 || cfg.DefaultTopK != 50 {
		t.Errorf("zero config not defaulted: %+v", cfg)
	}
	if cfg.NeutralLexicalScore != 0.5 || cfg.NeutralDistanceScore != 0.5 {
		t.Errorf("neutral scores = %v/%v, want 0.5/0.5", cfg.NeutralLexicalScore, cfg.NeutralDistanceScore)
	}
}

func TestNeutralScores(t *testing.T) {
	tests := []struct {
		name         string
		cfg          Config
		wantLexical  float64
		wantDistance float64
	}{
		{"zero config", Config{}, 0.5, 0.5},
		{"custom weights only", Config{Weights: Weights{Lexical: 1, Rating: 1}}, 0.5, 0.5},
		{"explicit neutrals", Config{NeutralLexicalScore: 0.25, NeutralDistanceScore: 0.75}, 0.25, 0.75},
		{"out of range", Config{NeutralLexicalScore: 2, NeutralDistanceScore: -1}, 0.5, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.cfg)
			if err := r.Fit(scenarioRecords()[:2]); err != nil {
				t.Fatalf("Fit: %v", err)
			}
			results := r.Rank(Query{})
			if len(results) != 2 {
				t.Fatalf("expected 2 results, got %d", len(results))
			}
			for _, res := range results {
				if res.LexicalScoreNorm != tt.wantLexical || res.DistanceScore != tt.wantDistance {
					t.Errorf("%s: lexical_norm=%v distance_score=%v, want %v/%v",
						res.Name, res.LexicalScoreNorm, res.DistanceScore, tt.wantLexical, tt.wantDistance)
				}
			}
		})
	}
}

func TestCorpusStatsAndMatchStats(t *testing.T) {
	r := fittedRanker(t, scenarioRecords())
	cs := r.CorpusStats()
	if cs.NumDocuments != 5 || cs.Categories["Alfamart"] != 3 || cs.MaxPopularity != 100 || cs.RatedRecords != 5 {
		t.Errorf("unexpected corpus stats: %+v", cs)
	}
	ms := r.QueryMatchStats("alfamart di xyz")
	if ms.QueryTerms != 2 || ms.MatchedTerms != 1 {
		t.Errorf("unexpected match stats: %+v", ms)
	}
}

func TestConcurrentRankDuringFit(t *testing.T) {
	recs := scenarioRecords()
	r := fittedRanker(t, recs)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if got := r.Rank(Query{Text: "alfamart"}); len(got) != 5 {
					t.Errorf("expected 5 results, got %d", len(got))
					return
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		if err := r.Fit(recs); err != nil {
			t.Error(err)
		}
	}
	wg.Wait()
}
