package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// ExposureReader defines the ledger queries the exposure handler needs.
type ExposureReader interface {
	ListByStatus(ctx context.Context, status domain.RecordStatus, opts domain.ListOpts) ([]domain.ExposureRecord, error)
	ListByTrader(ctx context.Context, traderID string, opts domain.ListOpts) ([]domain.ExposureRecord, error)
	ListNonRejected(ctx context.Context) ([]domain.ExposureRecord, error)
}

// ExposureHandler serves exposure ledger endpoints.
type ExposureHandler struct {
	store    ExposureReader
	exposure ExposureSource
	logger   *slog.Logger
}

// NewExposureHandler creates an ExposureHandler.
func NewExposureHandler(store ExposureReader, exposure ExposureSource, logger *slog.Logger) *ExposureHandler {
	return &ExposureHandler{
		store:    store,
		exposure: exposure,
		logger:   logger,
	}
}

// GetSummary returns the aggregate exposure view.
// GET /api/exposure
func (h *ExposureHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary := h.exposure.Summary()

	total, _ := summary.Total.Float64()
	byTrader := make(map[string]float64, len(summary.ByTrader))
	for trader, notional := range summary.ByTrader {
		byTrader[trader], _ = notional.Float64()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_usd":      total,
		"by_trader":      byTrader,
		"by_market":      summary.ByMarket,
		"open_positions": summary.OpenCount,
		"as_of":          summary.AsOf,
	})
}

// ListRecords returns ledger rows, filtered by status or trader.
// GET /api/exposure/records?status=pending&trader=0xabc&limit=50
func (h *ExposureHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	q := r.URL.Query()

	var (
		records []domain.ExposureRecord
		err     error
	)
	switch {
	case q.Get("trader") != "":
		records, err = h.store.ListByTrader(r.Context(), q.Get("trader"), opts)
	case q.Get("status") != "":
		status := domain.RecordStatus(q.Get("status"))
		switch status {
		case domain.RecordStatusPending, domain.RecordStatusFilled,
			domain.RecordStatusRejected, domain.RecordStatusFailed:
		default:
			writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
		records, err = h.store.ListByStatus(r.Context(), status, opts)
	default:
		records, err = h.store.ListNonRejected(r.Context())
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list exposure failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list exposure records")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}
