package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/verseforge/verseforge/internal/apierr"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// errorBody is the inner "error" object of the envelope (spec §7).
type errorBody struct {
	Code       apierr.Code `json:"code"`
	Message    string      `json:"message"`
	RequestID  string      `json:"requestId"`
	Details    any         `json:"details,omitempty"`
	RetryAfter *int        `json:"retryAfter,omitempty"`
}

// errorEnvelope is the full JSON error response shape used by every endpoint.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// RespondAPIError writes an *apierr.Error as the standard envelope, setting
// Retry-After when the error carries one (spec §7).
func RespondAPIError(w http.ResponseWriter, r *http.Request, err *apierr.Error) {
	if err.RetryAfter != nil {
		w.Header().Set("Retry-After", strconv.Itoa(*err.RetryAfter))
	}
	Respond(w, err.HTTPStatus(), errorEnvelope{
		Error: errorBody{
			Code:       err.Code,
			Message:    err.Message,
			RequestID:  RequestIDFromContext(r.Context()),
			Details:    err.Details,
			RetryAfter: err.RetryAfter,
		},
	})
}

// RespondErrorCode is a convenience wrapper for handlers constructing an
// ad-hoc error without an existing *apierr.Error.
func RespondErrorCode(w http.ResponseWriter, r *http.Request, code apierr.Code, message string) {
	RespondAPIError(w, r, apierr.New(code, message))
}
