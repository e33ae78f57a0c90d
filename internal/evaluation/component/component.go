// Package component evaluates single ranking signals in isolation so that
// overall ranking quality can be attributed to the lexical or the distance
// signal. The reports are diagnostic and never feed back into ranking.
package component

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/evaluation"
)

// DefaultDistanceCutoffKm is the distance at or below which a result counts
// as relevant for the distance diagnostic.
const DefaultDistanceCutoffKm = 5.0

// LexicalReport summarizes raw lexical scores in rank order. Precision and
// Recall are measured against labels derived by thresholding the scores at
// their own median.
type LexicalReport struct {
	Count        int     `json:"count"`
	Mean         float64 `json:"mean"`
	Max          float64 `json:"max"`
	Min          float64 `json:"min"`
	StdDev       float64 `json:"std_dev"`
	NonzeroCount int     `json:"nonzero_count"`
	NonzeroRate  float64 `json:"nonzero_rate"`
	Threshold    float64 `json:"threshold"`
	K            int     `json:"k"`
	Precision    float64 `json:"precision"`
	Recall       float64 `json:"recall"`
}

func EvaluateLexical(scores []float64, k int) LexicalReport {
	if len(scores) == 0 {
		return LexicalReport{}
	}
	r := LexicalReport{
		Count:     len(scores),
		Mean:      evaluation.Mean(scores),
		Max:       math.Inf(-1),
		Min:       math.Inf(1),
		StdDev:    evaluation.StdDev(scores),
		Threshold: evaluation.Median(scores),
		K:         evaluation.EffectiveK(k, len(scores)),
	}
	labels := make([]bool, len(scores))
	for i, s := range scores {
		r.Max = math.Max(r.Max, s)
		r.Min = math.Min(r.Min, s)
		if s != 0 {
			r.NonzeroCount++
		}
		labels[i] = s > r.Threshold
	}
	r.NonzeroRate = float64(r.NonzeroCount) / float64(r.Count)
	r.Precision = evaluation.PrecisionAtK(labels, r.K)
	r.Recall = evaluation.RecallAtK(labels, r.K)
	return r
}

func (r LexicalReport) Metrics() map[string]float64 {
	return map[string]float64{
		"lexical_count":         float64(r.Count),
		"lexical_mean":          r.Mean,
		"lexical_max":           r.Max,
		"lexical_min":           r.Min,
		"lexical_std_dev":       r.StdDev,
		"lexical_nonzero_count": float64(r.NonzeroCount),
		"lexical_nonzero_rate":  r.NonzeroRate,
		"lexical_threshold":     r.Threshold,
		"lexical_k":             float64(r.K),
		"lexical_precision":     r.Precision,
		"lexical_recall":        r.Recall,
	}
}

// DistanceReport summarizes distances in rank order.
type DistanceReport struct {
	Count      int     `json:"count"`
	Mean       float64 `json:"mean_km"`
	Min        float64 `json:"min_km"`
	Max        float64 `json:"max_km"`
	Median     float64 `json:"median_km"`
	Within1Km  int     `json:"within_1km"`
	Within5Km  int     `json:"within_5km"`
	Within10Km int     `json:"within_10km"`
	Cutoff     float64 `json:"cutoff_km"`
	K          int     `json:"k"`
	Precision  float64 `json:"precision"`
}

// EvaluateDistance reports distance statistics and the precision@k of the
// labels distance <= cutoff. A non-positive cutoff selects
// DefaultDistanceCutoffKm.
func EvaluateDistance(distances []float64, k int, cutoff float64) DistanceReport {
	if len(distances) == 0 {
		return DistanceReport{}
	}
	if cutoff <= 0 {
		cutoff = DefaultDistanceCutoffKm
	}
	r := DistanceReport{
		Count:  len(distances),
		Mean:   evaluation.Mean(distances),
		Min:    math.Inf(1),
		Max:    math.Inf(-1),
		Median: evaluation.Median(distances),
		Cutoff: cutoff,
		K:      evaluation.EffectiveK(k, len(distances)),
	}
	labels := make([]bool, len(distances))
	for i, d := range distances {
		r.Min = math.Min(r.Min, d)
		r.Max = math.Max(r.Max, d)
		if d <= 1 {
			r.Within1Km++
		}
		if d <= 5 {
			r.Within5Km++
		}
		if d <= 10 {
			r.Within10Km++
		}
		labels[i] = d <= cutoff
	}
	r.Precision = evaluation.PrecisionAtK(labels, r.K)
	return r
}

func (r DistanceReport) Metrics() map[string]float64 {
	return map[string]float64{
		"distance_count":       float64(r.Count),
		"distance_mean_km":     r.Mean,
		"distance_min_km":      r.Min,
		"distance_max_km":      r.Max,
		"distance_median_km":   r.Median,
		"distance_within_1km":  float64(r.Within1Km),
		"distance_within_5km":  float64(r.Within5Km),
		"distance_within_10km": float64(r.Within10Km),
		"distance_cutoff_km":   r.Cutoff,
		"distance_k":           float64(r.K),
		"distance_precision":   r.Precision,
	}
}
