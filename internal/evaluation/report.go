package evaluation

import "fmt"

// Metric names used in flat mappings.
const (
	MetricK                = "k"
	MetricPrecisionAtK     = "precision_k"
	MetricRecallAtK        = "recall_k"
	MetricAveragePrecision = "average_precision"
	MetricMAP              = "map"
)

// Report bundles the per-query metrics.
type Report struct {
	K                int     `json:"k"`
	PrecisionAtK     float64 `json:"precision_k"`
	RecallAtK        float64 `json:"recall_k"`
	AveragePrecision float64 `json:"average_precision"`
}

func Evaluate(labels []bool, k int) Report {
	return Report{
		K:                k,
		PrecisionAtK:     PrecisionAtK(labels, k),
		RecallAtK:        RecallAtK(labels, k),
		AveragePrecision: AveragePrecision(labels),
	}
}

// Metrics returns the report as a flat name to value mapping.
func (r Report) Metrics() map[string]float64 {
	return map[string]float64{
		MetricK:                float64(r.K),
		MetricPrecisionAtK:     r.PrecisionAtK,
		MetricRecallAtK:        r.RecallAtK,
		MetricAveragePrecision: r.AveragePrecision,
	}
}

// Formatted renders the metrics as percentages keyed by display label, e.g.
// "Precision@10" -> "40.00%".
func (r Report) Formatted() map[string]string {
	return map[string]string{
		fmt.Sprintf("Precision@%d", r.K): percent(r.PrecisionAtK),
		fmt.Sprintf("Recall@%d", r.K):    percent(r.RecallAtK),
		"Average Precision":              percent(r.AveragePrecision),
	}
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

// Grade is the overall quality bucket of a report.
type Grade string

const (
	GradeExcellent        Grade = "excellent"
	GradeGood             Grade = "good"
	GradeFair             Grade = "fair"
	GradeNeedsImprovement Grade = "needs_improvement"
)

type Assessment struct {
	Score float64 `json:"score"`
	Grade Grade   `json:"grade"`
}

// Assess grades a report by the mean of its three metrics.
func Assess(r Report) Assessment {
	score := (r.PrecisionAtK + r.RecallAtK + r.AveragePrecision) / 3
	a := Assessment{Score: score}
	switch {
	case score >= 0.7:
		a.Grade = GradeExcellent
	case score >= 0.5:
		a.Grade = GradeGood
	case score >= 0.3:
		a.Grade = GradeFair
	default:
		a.Grade = GradeNeedsImprovement
	}
	return a
}

// Explanations describes each metric for display next to the numbers.
func Explanations() map[string]string {
	return map[string]string{
		"Precision@K":       "Share of the top K results that are relevant.",
		"Recall@K":          "Share of all relevant results that appear in the top K.",
		"Average Precision": "Mean of the precision at each relevant position; rewards relevant results ranked early.",
		"MAP":               "Mean Average Precision over many queries; summarizes overall system quality.",
	}
}
