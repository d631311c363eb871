package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error kinds. Callers wrap these with fmt.Errorf("...: %w", ...) and test
// with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrState             = errors.New("invalid state")
	ErrRateLimit         = errors.New("rate limit exceeded")
	ErrInsufficientData  = errors.New("insufficient data")
	ErrInsufficientItems = errors.New("insufficient items")
	ErrTechnical         = errors.New("technical error")
)

// RateLimitError reports which limit was hit and when the caller may retry.
type RateLimitError struct {
	Limit      string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded (%s): retry after %s", e.Limit, e.RetryAfter.Round(time.Second))
	}
	return fmt.Sprintf("rate limit exceeded (%s)", e.Limit)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimit
}

// Validation builds a validation error with a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound builds a not-found error for the named entity.
func NotFound(entity string, id any) error {
	return fmt.Errorf("%w: %s %v", ErrNotFound, entity, id)
}

// State builds a state error with a formatted message.
func State(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrState, fmt.Sprintf(format, args...))
}

// HTTPStatus maps an error to the status code the handlers respond with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrState):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInsufficientItems):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
