package models

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
)

// ErrorResponse is the body of every non-2xx answer of the HTTP surface.
// Reason carries the backend outcome kind (e.g. "circuit_open") when the
// failure came from the Workzone API.
type ErrorResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Code       int    `json:"code"`
	Reason     string `json:"reason,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	RetryAfter int    `json:"retry_after_seconds,omitempty"`
}

// WriteError writes a plain error envelope.
func WriteError(w http.ResponseWriter, code int, message string) {
	WriteErrorResponse(w, ErrorResponse{Code: code, Message: message})
}

// WriteErrorResponse fills in Status, defaults Code to 500 and mirrors
// RetryAfter into the Retry-After header.
func WriteErrorResponse(w http.ResponseWriter, resp ErrorResponse) {
	resp.Status = "error"
	if resp.Code < http.StatusBadRequest {
		resp.Code = http.StatusInternalServerError
	}
	if resp.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfter))
	}
	WriteJSON(w, resp.Code, resp)
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Int("status", code).Msg("failed to write response body")
	}
}
