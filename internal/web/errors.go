package web

// errors.go writes the response envelope shared by every endpoint:
//
//	{"success": true,  "message": "...", "data": {...}}
//	{"success": false, "message": "...", "code": "NOT_FOUND", "field": "name"}
//
// Failures are logged with the technical error and request ID; clients only
// see the user message and application code.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/ev2/internal/core"
	"github.com/JonMunkholm/ev2/internal/logging"
)

// Envelope is the JSON body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// respondError maps err to a status and application code and writes a
// failure envelope.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	code := core.ApplicationCode(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", code,
		"error", err.Error(),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Info("request rejected", attrs...)
	}

	writeFailure(w, status, core.UserMessageFor(err), code, core.FieldOf(err))
}

// statusFor picks the HTTP status for a service error.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyBatches):
		return http.StatusServiceUnavailable
	}

	switch core.ApplicationCode(err) {
	case core.CodeValidation:
		return http.StatusBadRequest
	case core.CodeNotFound:
		return http.StatusNotFound
	case core.CodeDuplicateName:
		return http.StatusConflict
	case core.CodeProtectedRecord:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// writeSuccess writes a success envelope carrying data.
func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// writeFailure writes a failure envelope.
func writeFailure(w http.ResponseWriter, status int, message, code, field string) {
	writeJSON(w, status, Envelope{Success: false, Message: message, Code: code, Field: field})
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
