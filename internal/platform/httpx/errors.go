// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the domain layer. Services wrap these with context via
// fmt.Errorf("...: %w", Err...) and handlers map them with RespondError.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("conflicting state")
	ErrValidation = errors.New("validation failed")
	// ErrExhausted signals an invoice numbering range that has run out. The
	// correlative is flipped to EXHAUSTED as a committed side effect even
	// though the enclosing invoice creation rolls back.
	ErrExhausted = errors.New("range exhausted")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrExhausted):
		Problem(w, http.StatusInternalServerError, "Range Exhausted", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", internalDetail(err))
	}
}

var exposeInternal = false

// ExposeInternalErrors toggles internal error detail in 500 responses.
// Enabled only outside production.
func ExposeInternalErrors(enabled bool) {
	exposeInternal = enabled
}

func internalDetail(err error) string {
	if exposeInternal && err != nil {
		return err.Error()
	}
	return ""
}
