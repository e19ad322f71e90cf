package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/slotwise/bookd/internal/availability"
	"github.com/slotwise/bookd/internal/engine"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses. An
// insufficient-resources failure is a 409 with the limiting resource type in
// the body, so clients can tell "pick another time" apart from "bad request".
func writeEngineError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var ins *engine.InsufficientResourcesError
	switch {
	case errors.As(err, &ins):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":         "insufficient resources",
			"resource_type": ins.ResourceType,
			"wanted":        ins.Wanted,
			"available":     ins.Got,
		})
	case errors.Is(err, engine.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, engine.ErrConflict):
		http.Error(w, "conflict", http.StatusConflict)
	case errors.Is(err, engine.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, engine.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, engine.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, engine.ErrUnavailable):
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, availability.ErrInvalidInterval):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Error("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
