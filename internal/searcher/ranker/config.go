package ranker

import (
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/geo"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/config"
)

// DefaultTopK is the result cap used when a query does not set one.
const DefaultTopK = 50

// Weights are the fusion coefficients for the four normalized signals.
// They need not sum to 1.
type Weights struct {
	Lexical    float64 `json:"lexical" yaml:"lexical"`
	Distance   float64 `json:"distance" yaml:"distance"`
	Rating     float64 `json:"rating" yaml:"rating"`
	Popularity float64 `json:"popularity" yaml:"popularity"`
}

func DefaultWeights() Weights {
	return Weights{
		Lexical:    0.4,
		Distance:   0.3,
		Rating:     0.2,
		Popularity: 0.1,
	}
}

// MergeWeights returns base with every non-zero field of override applied.
func MergeWeights(base, override Weights) Weights {
	merged := base
	if override.Lexical != 0 {
		merged.Lexical = override.Lexical
	}
	if override.Distance != 0 {
		merged.Distance = override.Distance
	}
	if override.Rating != 0 {
		merged.Rating = override.Rating
	}
	if override.Popularity != 0 {
		merged.Popularity = override.Popularity
	}
	return merged
}

func (w Weights) isZero() bool {
	return w == Weights{}
}

// Config is the immutable configuration of a Ranker.
type Config struct {
	Weights Weights
	BM25    index.Params

	// MaxDistanceKm is the radius at which the distance score reaches 0.
	MaxDistanceKm float64

	// NeutralLexicalScore replaces the normalized lexical score when every
	// document scores the same. NeutralDistanceScore is used for every
	// record when no reference point is given.
	NeutralLexicalScore  float64
	NeutralDistanceScore float64

	DefaultTopK int
}

func DefaultConfig() Config {
	return Config{
		Weights:              DefaultWeights(),
		BM25:                 index.DefaultParams(),
		MaxDistanceKm:        geo.DefaultMaxDistanceKm,
		NeutralLexicalScore:  0.5,
		NeutralDistanceScore: geo.NeutralDistanceScore,
		DefaultTopK:          DefaultTopK,
	}
}

// withDefaults fills the fields that have no meaningful zero value.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Weights.isZero() {
		c.Weights = d.Weights
	}
	if c.BM25.K1 <= 0 || c.BM25.B < 0 || c.BM25.B > 1 {
		c.BM25 = d.BM25
	}
	if c.MaxDistanceKm <= 0 {
		c.MaxDistanceKm = d.MaxDistanceKm
	}
	// Neutral scores live in (0,1]; zero means unset.
	if c.NeutralLexicalScore <= 0 || c.NeutralLexicalScore > 1 {
		c.NeutralLexicalScore = d.NeutralLexicalScore
	}
	if c.NeutralDistanceScore <= 0 || c.NeutralDistanceScore > 1 {
		c.NeutralDistanceScore = d.NeutralDistanceScore
	}
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = d.DefaultTopK
	}
	return c
}

// ConfigFrom maps the ranking section of the service configuration.
func ConfigFrom(rc config.RankingConfig) Config {
	return Config{
		Weights: Weights{
			Lexical:    rc.LexicalWeight,
			Distance:   rc.DistanceWeight,
			Rating:     rc.RatingWeight,
			Popularity: rc.PopularityWeight,
		},
		BM25:                 index.Params{K1: rc.K1, B: rc.B},
		MaxDistanceKm:        rc.MaxDistanceKm,
		NeutralLexicalScore:  rc.NeutralLexicalScore,
		NeutralDistanceScore: rc.NeutralDistanceScore,
		DefaultTopK:          rc.DefaultTopK,
	}
}
