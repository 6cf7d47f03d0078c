package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"lhihi/internal/logging"
	"lhihi/internal/session"
	"lhihi/internal/store"
)

// Error codes.
const (
	codeBadRequest = "E_BAD_REQUEST"
	codeNotFound   = "E_NOT_FOUND"
	codeConflict   = "E_CONFLICT"
	codeInternal   = "E_INTERNAL"
	codeUpstream   = "E_UPSTREAM"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	writeJSON(w, status, ErrorBody{
		Code:    code,
		Message: message,
		Details: details,
		TraceID: logging.TraceID(r.Context()),
	})
}

// writeServiceError maps service errors onto statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, err.Error(), nil)
	case errors.Is(err, session.ErrEmptyMessage), errors.Is(err, session.ErrNotUserTurn):
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error(), nil)
	case errors.Is(err, session.ErrNothingToRegenerate):
		writeError(w, r, http.StatusConflict, codeConflict, err.Error(), nil)
	default:
		logging.Get(logging.CategoryServer).Error("Request %s %s failed: %v", r.Method, r.URL.Path, err)
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error", nil)
	}
}

// decodeBody reads a JSON body into dst, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "invalid JSON body", err.Error())
		return false
	}
	return true
}
