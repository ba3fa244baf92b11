// Package errors defines the sentinel errors shared across the index and the
// typed wrappers used to carry HTTP status codes and I/O failure details.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrDocumentTooLarge  = errors.New("document exceeds size limit")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrInvalidPath       = errors.New("invalid path")
	ErrCacheCorrupt      = errors.New("cache corrupt")
	ErrCacheIncompatible = errors.New("cache incompatible with current parameters")
	ErrIO                = errors.New("i/o failure")
	ErrStopped           = errors.New("operation stopped")
	ErrTimeout           = errors.New("operation timed out")
	ErrInternal          = errors.New("internal error")
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

// IOError reports a storage operation that kept failing after all retry
// attempts were used up.
type IOError struct {
	Op       string
	Path     string
	Attempts int
	Err      error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempts: %v", e.Op, e.Path, e.Attempts, e.Err)
}

// Unwrap exposes both ErrIO and the underlying cause to errors.Is.
func (e *IOError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

func NewIOError(op, path string, attempts int, err error) *IOError {
	return &IOError{Op: op, Path: path, Attempts: attempts, Err: err}
}

// Is reports whether any error in err's tree matches target. It mirrors the
// standard library so callers importing this package need not alias both.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As mirrors errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, ErrDocumentTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrStopped):
		return http.StatusConflict
	case errors.Is(err, ErrIO), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
