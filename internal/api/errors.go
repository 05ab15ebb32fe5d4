package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/servicekit/service"
)

// MapErrorToStatusCode maps framework errors to appropriate HTTP status
// codes. This prevents leaking internal error types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authorization errors
	case errors.Is(err, service.ErrNotAuthorized):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, service.ErrServiceNotFound):
		return http.StatusNotFound

	// Bad request errors
	case errors.Is(err, service.ErrMissingInput),
		errors.Is(err, service.ErrUnknownInput):
		return http.StatusBadRequest

	// Contract violations inside service code are server-side bugs:
	// ErrAbstractInvocation, ErrNotImplemented, ErrNoResult, and anything
	// a main routine returned.
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. Input errors name the offending input; nothing
// else from the underlying error reaches the client.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var missingErr *service.MissingInputError
	if errors.As(err, &missingErr) {
		return "Missing required input: " + missingErr.Input
	}

	var unknownErr *service.UnknownInputError
	if errors.As(err, &unknownErr) {
		return "Unknown input: " + unknownErr.Input
	}

	switch {
	case errors.Is(err, service.ErrNotAuthorized):
		return "You are not authorized to invoke this service"

	case errors.Is(err, service.ErrServiceNotFound):
		return "Service not found"

	default:
		return "An unexpected error occurred"
	}
}
