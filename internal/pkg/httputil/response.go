package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/ignite/engagement-engine/internal/pkg/logger"
)

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("json encode failed", "component", "http", "error", err)
	}
}

// OK writes a 200 response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Error writes an error envelope. Use for client errors (4xx).
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// NotFound writes a 404 error.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message)
}

// InternalError logs err and writes a generic 500 that does not leak it.
func InternalError(w http.ResponseWriter, err error) {
	logger.Error("request failed", "component", "http", "error", err)
	Error(w, http.StatusInternalServerError, "internal server error")
}
