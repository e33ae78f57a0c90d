// Package executor runs one search end to end: fusion ranking, relevance
// judgement, evaluation and per-signal diagnostics.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/evaluation/component"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/geo"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/relevance"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/tracing"
)

// Search modes.
const (
	ModeText   = "text"
	ModeBrowse = "browse"
)

type Request struct {
	Query            string     `json:"query"`
	Location         *geo.Point `json:"location,omitempty"`
	Category         string     `json:"category,omitempty"`
	Limit            int        `json:"limit"`
	RequireTextMatch bool       `json:"require_text_match"`
	K                int        `json:"k"`
}

// Mode is "text" when the request carries query text and "browse" otherwise.
func (r Request) Mode() string {
	if strings.TrimSpace(r.Query) == "" {
		return ModeBrowse
	}
	return ModeText
}

// Result is a ranked record with its relevance judgement.
type Result struct {
	ranker.ScoredResult
	Relevant      bool                  `json:"relevant"`
	Criteria      []relevance.Criterion `json:"criteria"`
	DistanceLabel string                `json:"distance_label,omitempty"`
}

type SearchResult struct {
	Query        string                    `json:"query"`
	Mode         string                    `json:"mode"`
	Category     string                    `json:"category,omitempty"`
	Location     *geo.Point                `json:"location,omitempty"`
	TotalResults int                       `json:"total_results"`
	Results      []Result                  `json:"results"`
	Labels       []bool                    `json:"labels"`
	Evaluation   evaluation.Report         `json:"evaluation"`
	Formatted    map[string]string         `json:"formatted"`
	Assessment   evaluation.Assessment     `json:"assessment"`
	Lexical      component.LexicalReport   `json:"lexical_diagnostics"`
	Distance     *component.DistanceReport `json:"distance_diagnostics,omitempty"`
	QueryMatch   index.MatchStats          `json:"query_match"`
	TookMs       int64                     `json:"took_ms"`
}

type Config struct {
	Rules            relevance.Rules
	DefaultK         int
	DistanceCutoffKm float64
}

func DefaultConfig() Config {
	return Config{
		Rules:            relevance.DefaultRules(),
		DefaultK:         evaluation.DefaultK,
		DistanceCutoffKm: component.DefaultDistanceCutoffKm,
	}
}

// ConfigFrom maps the relevance and evaluation sections of the service
// configuration. The distance veto radius follows the ranker's
// MaxDistanceKm.
func ConfigFrom(rc config.RelevanceConfig, ec config.EvaluationConfig) Config {
	rules := relevance.DefaultRules()
	rules.TopQuantile = rc.TopQuantile
	rules.MinRating = rc.MinRating
	rules.RequiredVotes = rc.RequiredVotes
	rules.QueryDistanceFraction = rc.QueryDistanceFraction
	rules.BrowseDistanceFraction = rc.BrowseDistanceFraction
	rules.MaxDistanceKm = 0
	return Config{
		Rules:            rules,
		DefaultK:         ec.DefaultK,
		DistanceCutoffKm: ec.DistanceCutoffKm,
	}
}

type Executor struct {
	ranker  *ranker.Ranker
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an Executor over r. m may be nil.
func New(r *ranker.Ranker, cfg Config, m *metrics.Metrics) *Executor {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = evaluation.DefaultK
	}
	if cfg.Rules.MaxDistanceKm <= 0 {
		cfg.Rules.MaxDistanceKm = r.Config().MaxDistanceKm
	}
	return &Executor{
		ranker:  r,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

func (e *Executor) Execute(ctx context.Context, req Request) (*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("executing search: %w: %w", apperrors.ErrTimeout, err)
	}
	if !e.ranker.Fitted() {
		return nil, fmt.Errorf("executing search: %w", apperrors.ErrNotFitted)
	}
	start := time.Now()
	mode := req.Mode()

	_, rankSpan := tracing.StartChildSpan(ctx, "rank")
	scored := e.ranker.Rank(ranker.Query{
		Text:             req.Query,
		Location:         req.Location,
		Category:         req.Category,
		TopK:             req.Limit,
		RequireTextMatch: req.RequireTextMatch,
	})
	rankSpan.SetAttr("results", len(scored))
	rankSpan.End()

	_, judgeSpan := tracing.StartChildSpan(ctx, "judge")
	judgements := e.cfg.Rules.Judge(scored, req.Query, req.Location)
	labels := relevance.Labels(judgements)
	results := make([]Result, len(scored))
	relevant := 0
	for i, s := range scored {
		results[i] = Result{
			ScoredResult: s,
			Relevant:     judgements[i].Relevant,
			Criteria:     judgements[i].Criteria,
		}
		if s.HasDistance {
			results[i].DistanceLabel = geo.FormatDistance(s.Distance)
		}
		if labels[i] {
			relevant++
		}
	}
	judgeSpan.SetAttr("relevant", relevant)
	judgeSpan.End()

	_, evalSpan := tracing.StartChildSpan(ctx, "evaluate")
	k := req.K
	if k <= 0 {
		k = e.cfg.DefaultK
	}
	report := evaluation.Evaluate(labels, evaluation.EffectiveK(k, len(scored)))
	lexical := make([]float64, len(scored))
	for i, s := range scored {
		lexical[i] = s.LexicalScore
	}
	out := &SearchResult{
		Query:        req.Query,
		Mode:         mode,
		Category:     req.Category,
		Location:     req.Location,
		TotalResults: len(results),
		Results:      results,
		Labels:       labels,
		Evaluation:   report,
		Formatted:    report.Formatted(),
		Assessment:   evaluation.Assess(report),
		Lexical:      component.EvaluateLexical(lexical, report.K),
		QueryMatch:   e.ranker.QueryMatchStats(req.Query),
	}
	if req.Location != nil {
		distances := make([]float64, len(scored))
		for i, s := range scored {
			distances[i] = s.Distance
		}
		d := component.EvaluateDistance(distances, report.K, e.cfg.DistanceCutoffKm)
		out.Distance = &d
	}
	evalSpan.SetAttr("precision_k", report.PrecisionAtK)
	evalSpan.End()

	out.TookMs = time.Since(start).Milliseconds()
	e.observe(out, relevant)

	e.logger.Info("query executed",
		"query", req.Query,
		"mode", mode,
		"category", req.Category,
		"results", len(results),
		"relevant", relevant,
		"precision_k", report.PrecisionAtK,
		"average_precision", report.AveragePrecision,
		"took_ms", out.TookMs,
	)
	return out, nil
}

func (e *Executor) observe(res *SearchResult, relevant int) {
	if e.metrics == nil {
		return
	}
	outcome := "ok"
	if res.TotalResults == 0 {
		outcome = "zero_result"
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(res.Mode, outcome).Inc()
	e.metrics.SearchResultsCount.WithLabelValues(res.Mode).Observe(float64(res.TotalResults))
	e.metrics.RelevantResults.WithLabelValues(res.Mode).Observe(float64(relevant))
	if res.TotalResults == 0 {
		return
	}
	for name, v := range map[string]float64{
		evaluation.MetricPrecisionAtK:     res.Evaluation.PrecisionAtK,
		evaluation.MetricRecallAtK:        res.Evaluation.RecallAtK,
		evaluation.MetricAveragePrecision: res.Evaluation.AveragePrecision,
	} {
		e.metrics.EvaluationMetric.WithLabelValues(name, res.Mode).Observe(v)
	}
}

// Reload refits the ranker on records. On failure the previous corpus keeps
// serving.
func (e *Executor) Reload(ctx context.Context, records []dataset.Record) error {
	_, span := tracing.StartChildSpan(ctx, "fit")
	defer span.End()
	span.SetAttr("records", len(records))

	if err := e.ranker.Fit(records); err != nil {
		if e.metrics != nil {
			e.metrics.DatasetFitsTotal.WithLabelValues("error").Inc()
		}
		e.logger.Error("dataset reload failed", "records", len(records), "error", err)
		return err
	}
	stats := e.ranker.CorpusStats()
	if e.metrics != nil {
		e.metrics.DatasetFitsTotal.WithLabelValues("ok").Inc()
		e.metrics.CorpusDocuments.Set(float64(stats.NumDocuments))
		e.metrics.CorpusVocabulary.Set(float64(stats.VocabularySize))
	}
	e.logger.Info("dataset reloaded",
		"documents", stats.NumDocuments,
		"vocabulary", stats.VocabularySize,
		"avg_doc_length", stats.AvgDocLength,
	)
	return nil
}

func (e *Executor) CorpusStats() ranker.CorpusStats {
	return e.ranker.CorpusStats()
}
