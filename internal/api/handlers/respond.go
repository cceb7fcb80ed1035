// Package handlers holds the HTTP handlers for the public and owner routes.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/Harshitk-cp/ranger/internal/service"
	"github.com/Harshitk-cp/ranger/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type failureResponse struct {
	Error string             `json:"error"`
	Kind  domain.FailureKind `json:"kind"`
}

// writeFailure reports a service error with the status its kind maps to.
func writeFailure(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), failureResponse{Error: err.Error(), Kind: domain.Kind(err)})
}

// StatusFor maps an error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrConsistency):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTransientExternal):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

const maxBodyBytes = 8 << 20
