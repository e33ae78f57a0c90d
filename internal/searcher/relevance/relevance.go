// Package relevance derives pseudo-relevance labels for a ranked result set.
// No ground truth exists for ad-hoc POI queries, so each result is judged by a
// small decision procedure: one primary criterion, optional votes feeding it,
// and vetoes that can only remove relevance.
package relevance

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/geo"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/ranker"
)

// Kind tags the role a criterion plays in the decision.
type Kind int

const (
	KindPrimary Kind = iota
	KindVote
	KindVeto
)

func (k Kind) String() string {
	switch k {
	case KindPrimary:
		return "primary"
	case KindVote:
		return "vote"
	case KindVeto:
		return "veto"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "primary":
		*k = KindPrimary
	case "vote":
		*k = KindVote
	case "veto":
		*k = KindVeto
	default:
		return fmt.Errorf("unknown criterion kind %q", text)
	}
	return nil
}

// Criterion names.
const (
	CriterionLexicalAboveMedian = "lexical_above_median"
	CriterionVotes              = "votes"
	CriterionTopQuantile        = "final_score_top_quantile"
	CriterionRating             = "rating"
	CriterionPopularity         = "popularity_above_median"
	CriterionDistance           = "distance"
	CriterionCategory           = "category"
)

// Criterion is one evaluated rule. For a veto, Passed means the veto did not
// fire.
type Criterion struct {
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Passed bool   `json:"passed"`
}

type Judgement struct {
	Relevant bool        `json:"relevant"`
	Criteria []Criterion `json:"criteria"`
}

// Failed returns the names of the criteria that did not pass.
func (j Judgement) Failed() []string {
	var names []string
	for _, c := range j.Criteria {
		if !c.Passed {
			names = append(names, c.Name)
		}
	}
	return names
}

// Rules are the thresholds of the judge.
type Rules struct {
	// TopQuantile is the final-score quantile a browse result must reach to
	// earn its score vote.
	TopQuantile   float64
	MinRating     float64
	RequiredVotes int

	// The distance veto fires beyond fraction*MaxDistanceKm, with separate
	// fractions for text queries and browse requests.
	QueryDistanceFraction  float64
	BrowseDistanceFraction float64
	MaxDistanceKm          float64

	CategoryAliases map[string][]string
}

func DefaultRules() Rules {
	return Rules{
		TopQuantile:            0.75,
		MinRating:              4.0,
		RequiredVotes:          2,
		QueryDistanceFraction:  0.5,
		BrowseDistanceFraction: 0.5,
		MaxDistanceKm:          geo.DefaultMaxDistanceKm,
		CategoryAliases:        dataset.CategoryAliases,
	}
}

// Judge evaluates every result. A result is relevant iff its primary
// criterion passes and no veto fires. ref is the reference point used at
// ranking time, or nil.
func (r Rules) Judge(results []ranker.ScoredResult, query string, ref *geo.Point) []Judgement {
	out := make([]Judgement, len(results))
	if len(results) == 0 {
		return out
	}
	hasQuery := strings.TrimSpace(query) != ""

	var primary func(i int) []Criterion
	if hasQuery {
		primary = r.lexicalPrimary(results)
	} else {
		primary = r.votingPrimary(results)
	}

	mentioned := r.MentionedCategories(query)
	maxDist := r.MaxDistanceKm
	if maxDist <= 0 {
		maxDist = geo.DefaultMaxDistanceKm
	}
	fraction := r.BrowseDistanceFraction
	if hasQuery {
		fraction = r.QueryDistanceFraction
	}
	distanceLimit := fraction * maxDist

	for i, res := range results {
		criteria := primary(i)
		relevant := criteria[len(criteria)-1].Passed

		if ref != nil {
			d := res.Distance
			if !res.HasDistance {
				d = geo.Distance(*ref, res.Point())
			}
			c := Criterion{Name: CriterionDistance, Kind: KindVeto, Passed: d <= distanceLimit}
			criteria = append(criteria, c)
			relevant = relevant && c.Passed
		}
		if len(mentioned) > 0 {
			c := Criterion{Name: CriterionCategory, Kind: KindVeto, Passed: categoryMatches(res.Category, mentioned)}
			criteria = append(criteria, c)
			relevant = relevant && c.Passed
		}
		out[i] = Judgement{Relevant: relevant, Criteria: criteria}
	}
	return out
}

// lexicalPrimary requires the raw lexical score to exceed the median of the
// result set.
func (r Rules) lexicalPrimary(results []ranker.ScoredResult) func(int) []Criterion {
	scores := make([]float64, len(results))
	for i, res := range results {
		scores[i] = res.LexicalScore
	}
	threshold := evaluation.Median(scores)
	return func(i int) []Criterion {
		return []Criterion{{
			Name:   CriterionLexicalAboveMedian,
			Kind:   KindPrimary,
			Passed: results[i].LexicalScore > threshold,
		}}
	}
}

// votingPrimary is used when there is no query text: the result needs
// RequiredVotes of the score, rating and popularity votes.
func (r Rules) votingPrimary(results []ranker.ScoredResult) func(int) []Criterion {
	finals := make([]float64, len(results))
	pops := make([]float64, len(results))
	for i, res := range results {
		finals[i] = res.FinalScore
		pops[i] = float64(res.PopularityValue())
	}
	finalThreshold := evaluation.Quantile(finals, r.TopQuantile)
	popThreshold := evaluation.Median(pops)
	required := r.RequiredVotes
	if required <= 0 {
		required = 1
	}
	return func(i int) []Criterion {
		res := results[i]
		votes := []Criterion{
			{Name: CriterionTopQuantile, Kind: KindVote, Passed: res.FinalScore >= finalThreshold},
			{Name: CriterionRating, Kind: KindVote, Passed: res.RatingValue() >= r.MinRating},
			{Name: CriterionPopularity, Kind: KindVote, Passed: float64(res.PopularityValue()) >= popThreshold},
		}
		n := 0
		for _, v := range votes {
			if v.Passed {
				n++
			}
		}
		return append(votes, Criterion{Name: CriterionVotes, Kind: KindPrimary, Passed: n >= required})
	}
}

// MentionedCategories returns the categories whose name or alias occurs in
// query, matched case-insensitively as substrings. The result is sorted.
func (r Rules) MentionedCategories(query string) []string {
	q := strings.ToLower(query)
	if strings.TrimSpace(q) == "" {
		return nil
	}
	var out []string
	for category, aliases := range r.CategoryAliases {
		for _, alias := range aliases {
			if alias != "" && strings.Contains(q, strings.ToLower(alias)) {
				out = append(out, strings.ToLower(category))
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

func categoryMatches(category string, mentioned []string) bool {
	c := strings.ToLower(category)
	for _, m := range mentioned {
		if strings.Contains(c, m) {
			return true
		}
	}
	return false
}

// Labels flattens judgements into the rank-aligned label sequence.
func Labels(judgements []Judgement) []bool {
	labels := make([]bool, len(judgements))
	for i, j := range judgements {
		labels[i] = j.Relevant
	}
	return labels
}

// DeriveLabels judges results with the default rules and the given distance
// radius (<= 0 selects the default) and returns the label sequence.
func DeriveLabels(results []ranker.ScoredResult, query string, ref *geo.Point, maxDistanceKm float64) []bool {
	rules := DefaultRules()
	if maxDistanceKm > 0 {
		rules.MaxDistanceKm = maxDistanceKm
	}
	return Labels(rules.Judge(results, query, ref))
}
