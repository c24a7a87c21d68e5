// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound            = errors.New("resource not found")
	ErrConflict            = errors.New("conflict")
	ErrValidation          = errors.New("validation failed")
	ErrForbidden           = errors.New("forbidden")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUpstreamUnavailable = errors.New("service temporarily unavailable")
)

// Messages that are part of the external error contract.
const (
	MessageAccessDenied       = "Access Denied - User does not have required role"
	MessageUnauthenticated    = "Authentication required"
	MessageUnavailable        = "service temporarily unavailable"
	MessageInternal           = "internal error"
	MessagePasswordChangeDue  = "Password change required"
	MessageInvalidCredentials = "Invalid email or password"
	MessageMissingCredential  = "Missing or malformed authorization header"
	MessageInvalidToken       = "Invalid or expired token"
)

// RespondError maps domain errors to HTTP responses with an {"error": msg} body.
// Authorization failures always use the generic access-denied message so the
// required role never leaks to the client.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		Error(w, http.StatusUnauthorized, MessageUnauthenticated)
	case errors.Is(err, ErrForbidden):
		Error(w, http.StatusForbidden, MessageAccessDenied)
	case errors.Is(err, ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrValidation):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUpstreamUnavailable):
		Error(w, http.StatusServiceUnavailable, MessageUnavailable)
	default:
		Error(w, http.StatusInternalServerError, MessageInternal)
	}
}
