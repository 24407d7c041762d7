package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jclee94/blacklist/internal/apperr"
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

// errorBody is the inner object of the JSON error envelope.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// errorEnvelope is the standard JSON error envelope: {"error": {...}}.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// RespondError writes a JSON error response in the taxonomy's envelope shape,
// deriving the HTTP status from kind.
func RespondError(w http.ResponseWriter, kind apperr.Kind, message string) {
	RespondErrorField(w, kind, message, "")
}

// RespondErrorField is RespondError with an additional field pointer, used
// for validation_error responses.
func RespondErrorField(w http.ResponseWriter, kind apperr.Kind, message, field string) {
	Respond(w, apperr.HTTPStatus(kind), errorEnvelope{
		Error: errorBody{Kind: string(kind), Message: message, Field: field},
	})
}

// RespondAppError writes the envelope for an *apperr.Error directly.
func RespondAppError(w http.ResponseWriter, err *apperr.Error) {
	RespondErrorField(w, err.Kind, err.Message, err.Field)
}
