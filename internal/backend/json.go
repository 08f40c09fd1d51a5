package backend

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/brightline/internal/apperr"
)

// envelope is the wire shape of every action response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

func writeOK(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, envelope{Success: true, Data: data, Message: message})
}

func writeFail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message, Error: http.StatusText(status)})
}

// writeError maps service errors to statuses. notFoundMsg names the missing
// resource.
func writeError(w http.ResponseWriter, logger *slog.Logger, action string, err error, notFoundMsg string) {
	var inputErr *InputError
	switch {
	case errors.As(err, &inputErr):
		writeFail(w, http.StatusBadRequest, inputErr.Msg)
	case errors.Is(err, apperr.ErrNotFound):
		writeFail(w, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, apperr.ErrAlreadyExists), errors.Is(err, apperr.ErrConflict):
		writeFail(w, http.StatusConflict, "Slug already exists")
	case errors.Is(err, apperr.ErrUnauthorized):
		writeFail(w, http.StatusUnauthorized, "Unauthorized")
	default:
		logger.Error("action failed", slog.String("action", action), slog.String("error", err.Error()))
		writeFail(w, http.StatusInternalServerError, "Internal server error")
	}
}
