package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// LinkService defines the market-link operations the handler needs.
type LinkService interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.MarketLink, error)
	Delete(ctx context.Context, sourceMarketID string) error
}

// LinkHandler serves confirmed cross-exchange market links.
type LinkHandler struct {
	links  LinkService
	logger *slog.Logger
}

// NewLinkHandler creates a LinkHandler.
func NewLinkHandler(links LinkService, logger *slog.Logger) *LinkHandler {
	return &LinkHandler{
		links:  links,
		logger: logger,
	}
}

// ListLinks returns stored links.
// GET /api/links?limit=50
func (h *LinkHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	links, err := h.links.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list links failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list links")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"links": links,
		"count": len(links),
	})
}

// DeleteLink removes a stored link so the matcher re-resolves the source
// market on its next trade.
// DELETE /api/links/{source_id}
func (h *LinkHandler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	sourceID := pathParam(r, "source_id")
	if sourceID == "" {
		writeError(w, http.StatusBadRequest, "missing source market id")
		return
	}

	if err := h.links.Delete(r.Context(), sourceID); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: delete link failed",
			slog.String("source_market_id", sourceID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete link")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
