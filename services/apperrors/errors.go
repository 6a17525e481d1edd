package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds shared by the cache, history and realtime services.
// Callers match them with errors.Is; the underlying cause stays wrapped.
var (
	// ErrOriginUnavailable means the upstream provider failed or timed out.
	ErrOriginUnavailable = errors.New("origin unavailable")
	// ErrNotFound means the provider returned no data for the identifier.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput means a malformed symbol, date or parameter.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPersistence means a durable store read or write failed.
	ErrPersistence = errors.New("persistence failure")
)

// OriginUnavailable wraps an upstream failure.
func OriginUnavailable(op string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrOriginUnavailable, op)
	}
	return fmt.Errorf("%w: %s: %w", ErrOriginUnavailable, op, cause)
}

// NotFound reports that no data exists for what.
func NotFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

// InvalidInput reports a rejected parameter.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Persistence wraps a durable store failure.
func Persistence(op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, cause)
}

// Kind returns a short machine-readable name for err, used in
// websocket error messages and JSON error bodies.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrOriginUnavailable):
		return "origin_unavailable"
	case errors.Is(err, ErrPersistence):
		return "persistence_failure"
	default:
		return "internal"
	}
}

// HTTPStatus maps err to the status code returned by the API.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrOriginUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
