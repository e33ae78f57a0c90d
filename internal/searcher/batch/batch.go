// Package batch runs a set of queries through the executor and summarizes
// ranking quality across them, including mean average precision.
package batch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/geo"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/errors"
)

// ParseQueries reads one query per line in the form
//
//	text[|lat,lon[|category[|require_text]]]
//
// Blank lines and lines starting with # are skipped. An empty text makes a
// browse query. Text queries drop records without a lexical match unless
// require_text is false. limit and k are applied to every request.
func ParseQueries(r io.Reader, limit, k int) ([]executor.Request, error) {
	var reqs []executor.Request
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		parts := strings.Split(raw, "|")
		if len(parts) > 4 {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "line %d: expected at most 4 fields, got %d", line, len(parts))
		}
		req := executor.Request{Query: strings.TrimSpace(parts[0]), Limit: limit, K: k}
		req.RequireTextMatch = req.Query != ""
		if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
			p, err := parsePoint(parts[1])
			if err != nil {
				return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "line %d: %v", line, err)
			}
			req.Location = &p
		}
		if len(parts) > 2 {
			req.Category = strings.TrimSpace(parts[2])
		}
		if len(parts) > 3 && strings.TrimSpace(parts[3]) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(parts[3]))
			if err != nil {
				return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "line %d: require_text %q is not a boolean", line, strings.TrimSpace(parts[3]))
			}
			req.RequireTextMatch = b
		}
		reqs = append(reqs, req)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading queries: %w", err)
	}
	return reqs, nil
}

func parsePoint(s string) (geo.Point, error) {
	lat, lon, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Point{}, fmt.Errorf("location %q must be lat,lon", strings.TrimSpace(s))
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil || la < -90 || la > 90 {
		return geo.Point{}, fmt.Errorf("invalid latitude %q", strings.TrimSpace(lat))
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil || lo < -180 || lo > 180 {
		return geo.Point{}, fmt.Errorf("invalid longitude %q", strings.TrimSpace(lon))
	}
	return geo.Point{Lat: la, Lon: lo}, nil
}

// Executor is implemented by *executor.Executor.
type Executor interface {
	Execute(ctx context.Context, req executor.Request) (*executor.SearchResult, error)
}

// QueryReport is the outcome of one query in a run.
type QueryReport struct {
	Request    executor.Request      `json:"request"`
	Mode       string                `json:"mode"`
	Results    int                   `json:"results"`
	Relevant   int                   `json:"relevant"`
	Evaluation evaluation.Report     `json:"evaluation"`
	Assessment evaluation.Assessment `json:"assessment"`
	TopIDs     []string              `json:"top_ids"`
	Labels     []bool                `json:"labels"`
}

// Summary aggregates a run. MAP averages AP over every query, including
// queries that returned nothing.
type Summary struct {
	Queries          int           `json:"queries"`
	ZeroResult       int           `json:"zero_result"`
	MAP              float64       `json:"map"`
	MeanPrecisionAtK float64       `json:"mean_precision_k"`
	MeanRecallAtK    float64       `json:"mean_recall_k"`
	Reports          []QueryReport `json:"reports"`
}

// Run executes reqs with at most concurrency in flight. Reports keep the
// order of reqs. onResult, when set, is called once per finished query from
// the worker goroutines.
func Run(ctx context.Context, exec Executor, reqs []executor.Request, concurrency int, onResult func(*executor.SearchResult)) (*Summary, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	reports := make([]QueryReport, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := exec.Execute(gctx, req)
			if err != nil {
				return fmt.Errorf("query %d %q: %w", i+1, req.Query, err)
			}
			reports[i] = report(req, res)
			if onResult != nil {
				onResult(res)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s := summarize(reports)
	slog.Default().With("component", "batch-evaluator").Info("batch evaluated",
		"queries", s.Queries,
		"zero_result", s.ZeroResult,
		"map", s.MAP,
	)
	return s, nil
}

const topIDs = 5

func report(req executor.Request, res *executor.SearchResult) QueryReport {
	r := QueryReport{
		Request:    req,
		Mode:       res.Mode,
		Results:    res.TotalResults,
		Evaluation: res.Evaluation,
		Assessment: res.Assessment,
		Labels:     res.Labels,
		TopIDs:     make([]string, 0, topIDs),
	}
	for i, item := range res.Results {
		if item.Relevant {
			r.Relevant++
		}
		if i < topIDs {
			r.TopIDs = append(r.TopIDs, item.ID)
		}
	}
	return r
}

func summarize(reports []QueryReport) *Summary {
	s := &Summary{Queries: len(reports), Reports: reports}
	if len(reports) == 0 {
		return s
	}
	labelSets := make([][]bool, len(reports))
	for i, r := range reports {
		labelSets[i] = r.Labels
		s.MeanPrecisionAtK += r.Evaluation.PrecisionAtK
		s.MeanRecallAtK += r.Evaluation.RecallAtK
		if r.Results == 0 {
			s.ZeroResult++
		}
	}
	n := float64(len(reports))
	s.MeanPrecisionAtK /= n
	s.MeanRecallAtK /= n
	s.MAP = evaluation.MeanAveragePrecision(labelSets)
	return s
}
