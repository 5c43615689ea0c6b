package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/l7waf/engine/internal/errors"
)

// WriteJSON writes v as an indent-free JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorEnvelope is the uniform admin-API error body.
type errorEnvelope struct {
	Code    string                 `json:"code,omitempty"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteError renders a *errors.ServiceError as a JSON error envelope.
func WriteError(w http.ResponseWriter, err *errors.ServiceError) {
	status := err.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, errorEnvelope{
		Code:    string(err.Code),
		Message: err.Message,
		Details: err.Details,
	})
}

// WriteErrorResponse is a convenience wrapper for handlers that don't
// already hold a *errors.ServiceError.
func WriteErrorResponse(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	WriteJSON(w, status, errorEnvelope{Code: code, Message: message, Details: details})
}
