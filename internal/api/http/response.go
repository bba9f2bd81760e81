package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"reservoir-ops/internal/auth"
	outlets "reservoir-ops/internal/outlets/domain"
	timeline "reservoir-ops/internal/timeline/domain"
)

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, auth.ErrOfficeMismatch), errors.Is(err, timeline.ErrProtectedRecord):
		return http.StatusForbidden
	case errors.Is(err, outlets.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, outlets.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, outlets.ErrInvalidGraph),
		errors.Is(err, outlets.ErrDanglingReference),
		errors.Is(err, outlets.ErrDuplicateNode),
		errors.Is(err, outlets.ErrCycleDetected),
		errors.Is(err, outlets.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err with its mapped status. Unmapped errors are not
// echoed to the caller.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		http.Error(w, "internal error", status)
		return
	}
	if status == http.StatusForbidden && errors.Is(err, auth.ErrOfficeMismatch) {
		http.Error(w, "forbidden", status)
		return
	}
	http.Error(w, err.Error(), status)
}
