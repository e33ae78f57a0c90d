package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidDataset   = errors.New("invalid dataset")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFitted        = errors.New("ranker not fitted")
	ErrDatasetNotFound  = errors.New("dataset not found")
	ErrCacheUnavailable = errors.New("cache unavailable")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidDataset):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrDatasetNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotFitted), errors.Is(err, ErrCacheUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
