package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// ExposureSource supplies the current exposure summary.
type ExposureSource interface {
	Summary() domain.ExposureSummary
}

// IndexSource supplies the current market index state.
type IndexSource interface {
	Size() int
	RefreshedAt() time.Time
}

// StatusHandler serves the backend status snapshot for the dashboard.
type StatusHandler struct {
	mode      string
	dryRun    bool
	startedAt time.Time
	exposure  ExposureSource
	index     IndexSource
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, dryRun bool, startedAt time.Time, exposure ExposureSource, index IndexSource) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		dryRun:    dryRun,
		startedAt: startedAt,
		exposure:  exposure,
		index:     index,
	}
}

// GetStatus responds with the current mode, uptime, exposure summary, and
// index freshness.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.mode,
		"dry_run":        h.dryRun,
		"started_at":     h.startedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}

	if h.index != nil {
		resp["index"] = map[string]any{
			"markets":      h.index.Size(),
			"refreshed_at": h.index.RefreshedAt().UTC().Format(time.RFC3339),
		}
	}

	if h.exposure != nil {
		summary := h.exposure.Summary()
		total, _ := summary.Total.Float64()
		resp["exposure"] = map[string]any{
			"total_usd":      total,
			"open_positions": summary.OpenCount,
			"as_of":          summary.AsOf.UTC().Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
