// Package ranker fuses lexical relevance, proximity, rating and popularity
// into one score per POI and returns the ordered, truncated result set.
package ranker

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/geo"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/indexer/tokenizer"
)

// Query describes one ranking request. Location is nil when the caller has
// no reference point.
type Query struct {
	Text             string
	Location         *geo.Point
	Category         string
	TopK             int
	RequireTextMatch bool
}

// HasText reports whether the query carries any non-blank text.
func (q Query) HasText() bool {
	return strings.TrimSpace(q.Text) != ""
}

// ScoredResult is a record with every intermediate signal retained.
type ScoredResult struct {
	dataset.Record
	DocIndex         int     `json:"doc_index"`
	LexicalScore     float64 `json:"lexical_score"`
	LexicalScoreNorm float64 `json:"lexical_score_norm"`
	Distance         float64 `json:"distance_km"`
	DistanceScore    float64 `json:"distance_score"`
	HasDistance      bool    `json:"has_distance"`
	RatingScore      float64 `json:"rating_score"`
	PopularityScore  float64 `json:"popularity_score"`
	FinalScore       float64 `json:"final_score"`
	Rank             int     `json:"rank"`
}

// CorpusStats describes the fitted dataset.
type CorpusStats struct {
	index.CorpusStats
	Categories    map[string]int `json:"categories"`
	RatedRecords  int            `json:"rated_records"`
	MaxPopularity int            `json:"max_popularity"`
	FittedAt      time.Time      `json:"fitted_at"`
}

type state struct {
	records       []dataset.Record
	bm25          *index.BM25
	maxPopularity int
	fittedAt      time.Time
}

// Ranker is safe for concurrent Rank calls. Fit replaces the fitted state
// atomically, so in-flight ranks finish against the state they started with.
type Ranker struct {
	cfg    Config
	mu     sync.RWMutex
	state  *state
	logger *slog.Logger
}

func New(cfg Config) *Ranker {
	return &Ranker{
		cfg:    cfg.withDefaults(),
		logger: slog.Default().With("component", "ranker"),
	}
}

func (r *Ranker) Config() Config {
	return r.cfg
}

// Fit validates records, tokenizes them with the strict policy and fits a
// fresh BM25 index. On an invalid dataset the previous state is kept.
func (r *Ranker) Fit(records []dataset.Record) error {
	if err := dataset.Validate(records); err != nil {
		return fmt.Errorf("fitting ranker: %w", err)
	}
	start := time.Now()

	owned := make([]dataset.Record, len(records))
	copy(owned, records)
	corpus := make([][]string, len(owned))
	maxPop := 0
	for i, rec := range owned {
		corpus[i] = tokenizer.Document(rec.Text())
		if p := rec.PopularityValue(); p > maxPop {
			maxPop = p
		}
	}
	bm25 := index.New(r.cfg.BM25)
	bm25.Fit(corpus)

	st := &state{
		records:       owned,
		bm25:          bm25,
		maxPopularity: maxPop,
		fittedAt:      time.Now(),
	}
	r.mu.Lock()
	r.state = st
	r.mu.Unlock()

	r.logger.Info("ranker fitted",
		"records", len(owned),
		"max_popularity", maxPop,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (r *Ranker) snapshot() *state {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Ranker) Fitted() bool {
	return r.snapshot() != nil
}

// Len returns the number of fitted records.
func (r *Ranker) Len() int {
	st := r.snapshot()
	if st == nil {
		return 0
	}
	return len(st.records)
}

// Rank scores every fitted record against q and returns the filtered,
// sorted and truncated results with dense 1-based ranks. An unfit ranker
// returns an empty slice.
func (r *Ranker) Rank(q Query) []ScoredResult {
	st := r.snapshot()
	if st == nil || len(st.records) == 0 {
		return []ScoredResult{}
	}
	topK := q.TopK
	if topK <= 0 {
		topK = r.cfg.DefaultTopK
	}

	terms := tokenizer.Query(q.Text)
	raw := st.bm25.ScoreAll(terms)
	norm := r.normalize(raw)
	w := r.cfg.Weights
	filterCategory := !dataset.IsAllCategories(q.Category)

	results := make([]ScoredResult, 0, len(st.records))
	for i, rec := range st.records {
		res := ScoredResult{
			Record:           rec,
			DocIndex:         i,
			LexicalScore:     raw[i],
			LexicalScoreNorm: norm[i],
			DistanceScore:    r.cfg.NeutralDistanceScore,
			RatingScore:      rec.RatingValue() / 5,
		}
		if q.Location != nil {
			res.Distance = geo.Distance(*q.Location, rec.Point())
			res.DistanceScore = geo.DistanceScore(res.Distance, r.cfg.MaxDistanceKm)
			res.HasDistance = true
		}
		if st.maxPopularity > 0 {
			res.PopularityScore = float64(rec.PopularityValue()) / float64(st.maxPopularity)
		}
		res.FinalScore = w.Lexical*res.LexicalScoreNorm +
			w.Distance*res.DistanceScore +
			w.Rating*res.RatingScore +
			w.Popularity*res.PopularityScore

		if filterCategory && rec.Category != q.Category {
			continue
		}
		if q.RequireTextMatch && res.LexicalScore <= 0 {
			continue
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})
	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// normalize min-max scales scores to [0,1]. When every score is equal the
// neutral lexical score is used for all of them.
func (r *Ranker) normalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	if hi == lo {
		for i := range out {
			out[i] = r.cfg.NeutralLexicalScore
		}
		return out
	}
	span := hi - lo
	for i, s := range scores {
		out[i] = (s - lo) / span
	}
	return out
}

// QueryMatchStats reports how the query text overlaps the fitted vocabulary.
func (r *Ranker) QueryMatchStats(text string) index.MatchStats {
	st := r.snapshot()
	terms := tokenizer.Query(text)
	if st == nil {
		return index.MatchStats{
			QueryTerms:    len(terms),
			MatchedList:   []string{},
			UnmatchedList: terms,
		}
	}
	return st.bm25.QueryMatchStats(terms)
}

func (r *Ranker) CorpusStats() CorpusStats {
	st := r.snapshot()
	if st == nil {
		return CorpusStats{
			CorpusStats: index.CorpusStats{K1: r.cfg.BM25.K1, B: r.cfg.BM25.B},
			Categories:  map[string]int{},
		}
	}
	cs := CorpusStats{
		CorpusStats:   st.bm25.Stats(),
		Categories:    make(map[string]int),
		MaxPopularity: st.maxPopularity,
		FittedAt:      st.fittedAt,
	}
	for _, rec := range st.records {
		cs.Categories[rec.Category]++
		if rec.Rating != nil {
			cs.RatedRecords++
		}
	}
	return cs
}
