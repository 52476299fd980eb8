// Package errors defines the error taxonomy shared across the indexing and
// retrieval services: sentinel errors for classification with errors.Is, and
// an AppError wrapper that carries an HTTP status for the API layers.
//
// Not every condition here is an error to every caller: a term absent from a
// shard is a normal not-found result and is reported through a boolean, not
// through this package.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidInput covers malformed requests before any shard is touched.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidTimeRange is returned when a query range has start >= end.
	ErrInvalidTimeRange = errors.New("invalid time range")
	// ErrShardNotFound means no index files exist for the requested month.
	ErrShardNotFound = errors.New("shard not found")
	// ErrDocumentNotFound means the metadata store has no row for a document ID.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrMalformedRecord means a fixed-width record decoded to fewer fields
	// than its format requires, typically a truncated or corrupted file.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrFieldOverflow means a value did not fit its fixed record width.
	ErrFieldOverflow = errors.New("field exceeds fixed width")
	// ErrTokenStreamMissing means a document referenced by a shard's map has
	// no token stream; the shard build must abort, not skip.
	ErrTokenStreamMissing = errors.New("token stream missing")
	// ErrEmptyShard means a build was requested for a month with no documents.
	ErrEmptyShard = errors.New("shard has no documents")

	ErrInternal = errors.New("internal error")
	ErrTimeout  = errors.New("operation timed out")
)

// AppError attaches a human-readable message and an HTTP status to a
// sentinel error.
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

// HTTPStatusCode maps an error to the status code the API layers should
// return for it.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidTimeRange), errors.Is(err, ErrFieldOverflow):
		return http.StatusBadRequest
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrShardNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
