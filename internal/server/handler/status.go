package handler

import (
	"net/http"

	"github.com/alanyoungcy/arbengine/internal/engine"
)

// StatusSource reports the engine's current status.
type StatusSource interface {
	Status() engine.Status
}

// StatusHandler serves performance, risk metrics and active trades.
type StatusHandler struct {
	source StatusSource
	mode   string
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(source StatusSource, mode string) *StatusHandler {
	return &StatusHandler{source: source, mode: mode}
}

// GetStatus responds with the engine status.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":   h.mode,
		"engine": h.source.Status(),
	})
}
