package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/deckhand-ai/deckhand/internal/domain"
)

// readJSON decodes the request body into T, rejecting bodies over bodyLimit.
// On failure it answers the request itself and returns ok=false.
func readJSON[T any](w http.ResponseWriter, r *http.Request, bodyLimit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// apiError is the uniform error envelope: {"error": "..."}.
type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response body", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Error: message})
}

// writeDomainError translates a service-layer error into a status and a
// client-safe message. notFoundMsg replaces the raw ErrNotFound text so the
// response names the resource ("workspace not found" rather than the
// sentinel's wording).
func writeDomainError(w http.ResponseWriter, err error, notFoundMsg string) {
	status, msg := classifyDomainError(err, notFoundMsg)
	if status == http.StatusInternalServerError {
		slog.Error("unhandled domain error", "error", err)
	}
	writeError(w, status, msg)
}

func classifyDomainError(err error, notFoundMsg string) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, notFoundMsg
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "resource was modified by another request"
	case errors.Is(err, domain.ErrValidation):
		// Wrapped as "reason: validation failed"; surface only the reason.
		return http.StatusBadRequest, strings.TrimSuffix(err.Error(), ": "+domain.ErrValidation.Error())
	}
	// Driver errors that escaped the store layer without a sentinel. Matched
	// by message because pgx surfaces them as plain errors.
	text := err.Error()
	switch {
	case strings.Contains(text, "invalid input syntax"):
		return http.StatusBadRequest, "invalid identifier format"
	case strings.Contains(text, "unique constraint"), strings.Contains(text, "SQLSTATE 23505"):
		return http.StatusConflict, "resource already exists"
	}
	return http.StatusInternalServerError, "internal server error"
}

// writeInternalError keeps the cause in the server log and sends the client
// a generic 500.
func writeInternalError(w http.ResponseWriter, err error) {
	slog.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
