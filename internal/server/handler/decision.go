package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// DecisionReader defines the decision log queries the handler needs.
type DecisionReader interface {
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.CopyDecision, error)
	ListByTrader(ctx context.Context, traderID string, opts domain.ListOpts) ([]domain.CopyDecision, error)
}

// DecisionHandler serves the copy decision log.
type DecisionHandler struct {
	store  DecisionReader
	logger *slog.Logger
}

// NewDecisionHandler creates a DecisionHandler.
func NewDecisionHandler(store DecisionReader, logger *slog.Logger) *DecisionHandler {
	return &DecisionHandler{
		store:  store,
		logger: logger,
	}
}

// ListDecisions returns recent decisions, optionally filtered by trader.
// GET /api/decisions?trader=0xabc&limit=50&since=2026-01-01T00:00:00Z
func (h *DecisionHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		decisions []domain.CopyDecision
		err       error
	)
	if trader := r.URL.Query().Get("trader"); trader != "" {
		decisions, err = h.store.ListByTrader(r.Context(), trader, opts)
	} else {
		decisions, err = h.store.ListRecent(r.Context(), opts)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list decisions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list decisions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"decisions": decisions,
		"count":     len(decisions),
		"limit":     opts.Limit,
		"offset":    opts.Offset,
	})
}
