// Package evaluation computes ranking quality metrics over rank-aligned
// relevance label sequences: Precision@K, Recall@K, Average Precision and
// Mean Average Precision.
package evaluation

// DefaultK is the cutoff used when the caller does not choose one.
const DefaultK = 10

// EffectiveK caps k at the number of results, falling back to DefaultK when
// k is not positive.
func EffectiveK(k, n int) int {
	if k <= 0 {
		k = DefaultK
	}
	if n < k {
		return n
	}
	return k
}

func countRelevant(labels []bool) int {
	n := 0
	for _, rel := range labels {
		if rel {
			n++
		}
	}
	return n
}

// PrecisionAtK is the number of relevant labels among the first k divided by
// k. The divisor stays k even when fewer than k labels exist.
func PrecisionAtK(labels []bool, k int) float64 {
	if k <= 0 || len(labels) == 0 {
		return 0
	}
	top := labels
	if len(top) > k {
		top = top[:k]
	}
	return float64(countRelevant(top)) / float64(k)
}

// RecallAtK is the share of all relevant labels that appear in the first k.
func RecallAtK(labels []bool, k int) float64 {
	if k <= 0 || len(labels) == 0 {
		return 0
	}
	total := countRelevant(labels)
	if total == 0 {
		return 0
	}
	top := labels
	if len(top) > k {
		top = top[:k]
	}
	return float64(countRelevant(top)) / float64(total)
}

// AveragePrecision averages the precision at every relevant position.
func AveragePrecision(labels []bool) float64 {
	total := countRelevant(labels)
	if total == 0 {
		return 0
	}
	sum := 0.0
	seen := 0
	for i, rel := range labels {
		if rel {
			seen++
			sum += float64(seen) / float64(i+1)
		}
	}
	return sum / float64(total)
}

// MeanAveragePrecision is the mean AP over one label sequence per query.
func MeanAveragePrecision(queries [][]bool) float64 {
	if len(queries) == 0 {
		return 0
	}
	sum := 0.0
	for _, labels := range queries {
		sum += AveragePrecision(labels)
	}
	return sum / float64(len(queries))
}
