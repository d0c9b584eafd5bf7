// Package api provides HTTP handlers for the pairline API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/pairline/internal/domain"
)

const maxBodyBytes = 1 << 16

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeBody reads a bounded JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// serviceError maps domain errors to client errors and everything else to 500.
func serviceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidConsentRequest),
		errors.Is(err, domain.ErrMissingIdentity),
		errors.Is(err, domain.ErrInvalidIdentity):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("Request failed", "op", op, "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
	}
}
