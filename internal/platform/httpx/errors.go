package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Message(w, http.StatusNotFound, "Not found")
	case errors.Is(err, ErrDuplicate):
		Message(w, http.StatusConflict, "Already exists")
	case errors.Is(err, ErrValidation):
		Message(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		Message(w, http.StatusForbidden, "Access forbidden")
	case errors.Is(err, ErrUnauthorized):
		Message(w, http.StatusUnauthorized, "Authentication required")
	default:
		Message(w, http.StatusInternalServerError, "Internal error")
	}
}
