package api

import (
	"encoding/json"
	"net/http"

	"github.com/thewatergategroups/llama/pkg/errors"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps the structured error codes onto HTTP statuses so clients
// can distinguish bad requests from contention and missing records.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForError(err), errorResponse{Detail: err.Error()})
}

func statusForError(err error) int {
	code := errors.GetCode(err)

	switch code {
	case errors.ErrCodeBacktestInProgress:
		return http.StatusTooManyRequests
	case errors.ErrCodeDataNotFound,
		errors.ErrCodeStrategyNotFound,
		errors.ErrCodeConditionNotFound,
		errors.ErrCodePositionNotFound,
		errors.ErrCodeBacktestNotFound:
		return http.StatusNotFound
	}

	if code >= 100 && code < 200 || code == errors.ErrCodeBacktestNoSymbols {
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}
