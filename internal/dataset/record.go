// Package dataset defines the POI record model, the structural validation
// performed before a corpus is fitted, and loaders for CSV files and
// PostgreSQL tables.
package dataset

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/geo"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/indexer/tokenizer"
)

// Known store categories.
const (
	CategoryAlfamart  = "Alfamart"
	CategoryIndomaret = "Indomaret"
)

// CategoryAliases maps a lower-cased category to the query fragments that
// count as mentioning it.
var CategoryAliases = map[string][]string{
	"alfamart":  {"alfamart", "alfa"},
	"indomaret": {"indomaret", "indo"},
}

// Record is one point of interest. Rating and Popularity are optional.
type Record struct {
	ID         string   `json:"id"`
	Category   string   `json:"category" validate:"required"`
	Name       string   `json:"name" validate:"required"`
	Address    string   `json:"address"`
	Village    string   `json:"village"`
	District   string   `json:"district"`
	Rating     *float64 `json:"rating,omitempty" validate:"omitempty,gte=0,lte=5"`
	Popularity *int     `json:"popularity,omitempty" validate:"omitempty,gte=0"`
	Latitude   float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude  float64  `json:"longitude" validate:"gte=-180,lte=180"`
}

// RatingValue returns the rating, or 0 when unknown.
func (r Record) RatingValue() float64 {
	if r.Rating == nil {
		return 0
	}
	return *r.Rating
}

// PopularityValue returns the review count, or 0 when unknown.
func (r Record) PopularityValue() int {
	if r.Popularity == nil {
		return 0
	}
	return *r.Popularity
}

func (r Record) Point() geo.Point {
	return geo.Point{Lat: r.Latitude, Lon: r.Longitude}
}

// Text is the concatenation of the record's text fields that gets indexed.
func (r Record) Text() string {
	return tokenizer.DocumentText(r.Name, r.Address, r.Village, r.District, r.Category)
}

// IsAllCategories reports whether filter is empty or the "all" sentinel.
func IsAllCategories(filter string) bool {
	switch strings.ToLower(strings.TrimSpace(filter)) {
	case "", "all", "semua":
		return true
	}
	return false
}

// Float and Int build optional field values.
func Float(v float64) *float64 { return &v }
func Int(v int) *int           { return &v }
