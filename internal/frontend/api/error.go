package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gantry-org/gantry/internal/core"
)

// APIError is an error with an HTTP status and a machine-readable code.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

func newAPIError(status int, code, message string) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: status}
}

// fromDomainError maps store and gate sentinels to HTTP errors.
func fromDomainError(err error) *APIError {
	switch {
	case errors.Is(err, core.ErrGraphNotFound), errors.Is(err, core.ErrNodeNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, core.ErrVersionConflict):
		return newAPIError(http.StatusConflict, "version_conflict", err.Error())
	case errors.Is(err, core.ErrNotAGate), errors.Is(err, core.ErrGateNotAwaiting):
		return newAPIError(http.StatusBadRequest, "invalid_gate", err.Error())
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, apiErr *APIError) {
	writeJSON(w, apiErr.HTTPStatus, apiErr)
}
