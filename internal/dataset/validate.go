package dataset

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Problem is one structural defect found in a dataset.
type Problem struct {
	Row    int    `json:"row"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// InvalidDatasetError reports every problem found while validating or
// loading a dataset. It unwraps to errors.ErrInvalidDataset.
type InvalidDatasetError struct {
	Problems []Problem
}

func (e *InvalidDatasetError) Error() string {
	if len(e.Problems) == 0 {
		return apperrors.ErrInvalidDataset.Error()
	}
	p := e.Problems[0]
	msg := fmt.Sprintf("%s: row %d field %s: %s", apperrors.ErrInvalidDataset, p.Row, p.Field, p.Reason)
	if extra := len(e.Problems) - 1; extra > 0 {
		msg += fmt.Sprintf(" (and %d more)", extra)
	}
	return msg
}

func (e *InvalidDatasetError) Unwrap() error {
	return apperrors.ErrInvalidDataset
}

func (e *InvalidDatasetError) add(row int, field, reason string) {
	e.Problems = append(e.Problems, Problem{Row: row, Field: field, Reason: reason})
}

func (e *InvalidDatasetError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// Validate checks the structural requirements of every record: a name and
// category, finite coordinates within WGS84 bounds, and optional numerics in
// range. It returns nil or an *InvalidDatasetError.
func Validate(records []Record) error {
	v := getValidator()
	invalid := &InvalidDatasetError{}
	for i, rec := range records {
		nonFinite := make(map[string]bool, 2)
		coords := []struct {
			field string
			val   float64
		}{{"Latitude", rec.Latitude}, {"Longitude", rec.Longitude}}
		for _, c := range coords {
			if math.IsNaN(c.val) || math.IsInf(c.val, 0) {
				nonFinite[c.field] = true
				invalid.add(i, c.field, "not a finite number")
			}
		}
		err := v.Struct(rec)
		if err == nil {
			continue
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			invalid.add(i, "", err.Error())
			continue
		}
		for _, fe := range verrs {
			if nonFinite[fe.Field()] {
				continue
			}
			invalid.add(i, fe.Field(), describe(fe))
		}
	}
	return invalid.orNil()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
