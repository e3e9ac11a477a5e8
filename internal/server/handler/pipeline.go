package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// PipelineHandler serves pipeline trigger endpoints.
type PipelineHandler struct {
	logger    *slog.Logger
	triggerCh chan<- struct{} // when non-nil, sending triggers one pipeline run
}

// NewPipelineHandler creates a PipelineHandler with the given logger.
func NewPipelineHandler(logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{logger: logger}
}

// WithTriggerChannel sets the channel to send on when a trigger is requested.
// The pipeline loop must receive from this channel to run one pass.
func (h *PipelineHandler) WithTriggerChannel(ch chan<- struct{}) *PipelineHandler {
	h.triggerCh = ch
	return h
}

// TriggerPipeline asks the running loop for an early pass over every
// configured stage. A trigger already pending is not queued twice.
// POST /api/pipeline/trigger
func (h *PipelineHandler) TriggerPipeline(w http.ResponseWriter, r *http.Request) {
	if h.triggerCh == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline loop is not running")
		return
	}

	queued := true
	select {
	case h.triggerCh <- struct{}{}:
	default:
		queued = false
	}
	h.logger.InfoContext(r.Context(), "handler: pipeline trigger requested", slog.Bool("queued", queued))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"queued":       queued,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
