package loomapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ImitationGameLabs/ephemera-ai/internal/memory"
)

// envelope is the {success, data, error} wire shape spec.md §6 mandates for
// every Loom response, grounded on internal/httpapi/handlers.go's
// respondJSON/respondError, generalized from its bare-payload style.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respondData(w http.ResponseWriter, status int, data any) {
	respond(w, status, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, err error) {
	respond(w, status, envelope{Success: false, Error: err.Error()})
}

func respond(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// statusFromError maps the memory package's error taxonomy to HTTP status
// codes per spec.md §7, grounded on internal/httpapi/handlers.go's
// statusFromError.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, memory.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, memory.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, memory.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, memory.ErrEmbeddingFailure), errors.Is(err, memory.ErrStoreUnavailable):
		return http.StatusInternalServerError
	default:
		var rollbackErr *memory.RollbackError
		var rollbackFailedErr *memory.RollbackFailedError
		if errors.As(err, &rollbackErr) || errors.As(err, &rollbackFailedErr) {
			return http.StatusInternalServerError
		}
		return http.StatusInternalServerError
	}
}
