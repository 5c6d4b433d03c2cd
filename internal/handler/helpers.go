package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/mvaldes/chorebank/internal/task"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP responses. Anything
// unrecognized is a 500 with a generic body; the caller logs the
// details.
func writeError(w http.ResponseWriter, err error) {
	var verr *task.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error()})
	case errors.Is(err, task.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, task.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "invalid status transition"})
	case errors.Is(err, task.ErrClarificationPending):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "clarification pending, child must respond first"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
