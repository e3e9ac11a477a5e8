package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the process mode and pipeline schedule.
type StatusHandler struct {
	Mode      string
	Stages    []string
	Interval  time.Duration
	StartedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, stages []string, interval time.Duration, startedAt time.Time) *StatusHandler {
	return &StatusHandler{Mode: mode, Stages: stages, Interval: interval, StartedAt: startedAt}
}

// GetStatus responds with the running mode and schedule.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"stages":         h.Stages,
		"interval":       h.Interval.String(),
		"started_at":     h.StartedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	})
}
