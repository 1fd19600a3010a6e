package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wavecall/api/internal/apperr"
	"github.com/wavecall/api/internal/service/auth"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeMessage sends a {"message": ...} body.
func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeServiceError translates the error taxonomy into a status code.
// NotFoundError maps differently per endpoint (missing emails are a 400,
// missing membership a 404), so callers pass the status to use.
func writeServiceError(w http.ResponseWriter, err error, notFoundStatus int) {
	var (
		validation *apperr.ValidationError
		notFound   *apperr.NotFoundError
		conflict   *apperr.ConflictError
	)
	switch {
	case errors.As(err, &validation):
		writeMessage(w, http.StatusBadRequest, validation.Msg)
	case errors.As(err, &notFound):
		writeMessage(w, notFoundStatus, notFound.Msg)
	case errors.As(err, &conflict):
		writeMessage(w, http.StatusBadRequest, conflict.Msg)
	case errors.Is(err, auth.ErrUnauthorized):
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
	default:
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}
