package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// PipelineHandler serves manual pipeline triggers. Both funcs are optional;
// a trigger without its func configured answers 503.
type PipelineHandler struct {
	refreshIndex func(ctx context.Context) error
	runArchive   func(ctx context.Context) error
	logger       *slog.Logger
}

// NewPipelineHandler creates a PipelineHandler.
func NewPipelineHandler(refreshIndex, runArchive func(ctx context.Context) error, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{
		refreshIndex: refreshIndex,
		runArchive:   runArchive,
		logger:       logger,
	}
}

// RefreshIndex runs one synchronous market index refresh.
// POST /api/pipeline/refresh-index
func (h *PipelineHandler) RefreshIndex(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "index refresh", h.refreshIndex)
}

// RunArchive runs one synchronous archive pass.
// POST /api/pipeline/archive
func (h *PipelineHandler) RunArchive(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "archive", h.runArchive)
}

func (h *PipelineHandler) trigger(w http.ResponseWriter, r *http.Request, name string, fn func(ctx context.Context) error) {
	if fn == nil {
		writeError(w, http.StatusServiceUnavailable, name+" not available in this mode")
		return
	}

	h.logger.InfoContext(r.Context(), "handler: manual trigger", slog.String("task", name))
	start := time.Now()
	if err := fn(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: trigger failed",
			slog.String("task", name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, name+" failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "completed",
		"task":    name,
		"took_ms": time.Since(start).Milliseconds(),
		"ran_at":  time.Now().UTC().Format(time.RFC3339),
	})
}
