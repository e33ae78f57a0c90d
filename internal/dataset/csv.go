package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/errors"
)

// column lists the accepted header names for each record field, the first
// being the name used by the South Jakarta places export.
type column struct {
	field    string
	names    []string
	required bool
}

var columns = []column{
	{"id", []string{"place_id", "id"}, false},
	{"name", []string{"nama_tempat", "name"}, true},
	{"category", []string{"store", "category"}, true},
	{"rating", []string{"rating_tempat", "rating"}, true},
	{"popularity", []string{"user_ratings_total", "popularity"}, true},
	{"address", []string{"alamat_tempat", "address"}, true},
	{"village", []string{"nama_kelurahan", "village"}, true},
	{"district", []string{"nama_kecamatan", "district"}, true},
	{"latitude", []string{"latitude", "lat"}, true},
	{"longitude", []string{"longitude", "lon", "lng"}, true},
}

// LoadCSVFile opens path and parses it with LoadCSV.
func LoadCSVFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("opening dataset %s: %w", path, apperrors.ErrDatasetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("opening dataset %s: %w", path, err)
	}
	defer f.Close()
	records, err := LoadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("loading dataset %s: %w", path, err)
	}
	return records, nil
}

// LoadCSV parses a header-mapped CSV export. Empty or "nan" rating and
// popularity cells become unknown values; missing columns and non-numeric
// coordinates are reported as an *InvalidDatasetError.
func LoadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &InvalidDatasetError{Problems: []Problem{{Row: -1, Field: "header", Reason: "file is empty"}}}
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	idx, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, 256)
	invalid := &InvalidDatasetError{}
	for row := 0; ; row++ {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row %d: %w", row, err)
		}
		get := func(field string) string {
			i, ok := idx[field]
			if !ok || i >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[i])
		}
		rec := Record{
			ID:       get("id"),
			Name:     get("name"),
			Category: get("category"),
			Address:  get("address"),
			Village:  get("village"),
			District: get("district"),
		}
		if rec.ID == "" {
			rec.ID = strconv.Itoa(row)
		}
		if rec.Latitude, err = parseCoordinate(get("latitude")); err != nil {
			invalid.add(row, "Latitude", err.Error())
		}
		if rec.Longitude, err = parseCoordinate(get("longitude")); err != nil {
			invalid.add(row, "Longitude", err.Error())
		}
		if rec.Rating, err = parseOptionalFloat(get("rating")); err != nil {
			invalid.add(row, "Rating", err.Error())
		}
		if rec.Popularity, err = parseOptionalInt(get("popularity")); err != nil {
			invalid.add(row, "Popularity", err.Error())
		}
		records = append(records, rec)
	}
	if err := invalid.orNil(); err != nil {
		return nil, err
	}
	return records, nil
}

func mapHeader(header []string) (map[string]int, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		positions[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	idx := make(map[string]int, len(columns))
	invalid := &InvalidDatasetError{}
	for _, col := range columns {
		found := false
		for _, name := range col.names {
			if i, ok := positions[name]; ok {
				idx[col.field] = i
				found = true
				break
			}
		}
		if !found && col.required {
			invalid.add(-1, col.names[0], "required column missing")
		}
	}
	if err := invalid.orNil(); err != nil {
		return nil, err
	}
	return idx, nil
}

func isMissing(s string) bool {
	switch strings.ToLower(s) {
	case "", "nan", "null", "none", "na":
		return true
	}
	return false
}

func parseCoordinate(s string) (float64, error) {
	if isMissing(s) {
		return 0, errors.New("coordinate is missing")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return v, nil
}

func parseOptionalFloat(s string) (*float64, error) {
	if isMissing(s) {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return nil, fmt.Errorf("%q is not a number", s)
	}
	return &v, nil
}

// parseOptionalInt accepts "12" and pandas-style "12.0".
func parseOptionalInt(s string) (*int, error) {
	f, err := parseOptionalFloat(s)
	if err != nil || f == nil {
		return nil, err
	}
	v := int(math.Round(*f))
	return &v, nil
}
