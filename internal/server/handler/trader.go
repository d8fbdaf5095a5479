package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// TraderRoster defines the roster operations the trader handler needs.
type TraderRoster interface {
	List(ctx context.Context) ([]domain.TrackedTrader, error)
	Sync(ctx context.Context, traders []domain.TrackedTrader) error
	UpdateBankroll(ctx context.Context, address string, bankroll decimal.Decimal) error
}

// TraderHandler serves the tracked-trader roster.
type TraderHandler struct {
	roster TraderRoster
	logger *slog.Logger
}

// NewTraderHandler creates a TraderHandler.
func NewTraderHandler(roster TraderRoster, logger *slog.Logger) *TraderHandler {
	return &TraderHandler{
		roster: roster,
		logger: logger,
	}
}

// ListTraders returns the tracked roster.
// GET /api/traders
func (h *TraderHandler) ListTraders(w http.ResponseWriter, r *http.Request) {
	traders, err := h.roster.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list traders failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list traders")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"traders": traders,
		"count":   len(traders),
	})
}

// addTraderRequest is the POST /api/traders request body.
type addTraderRequest struct {
	Address  string  `json:"address"`
	Label    string  `json:"label"`
	Bankroll float64 `json:"bankroll_estimate"`
}

// AddTrader adds or updates one tracked trader.
// POST /api/traders
func (h *TraderHandler) AddTrader(w http.ResponseWriter, r *http.Request) {
	var req addTraderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	address, err := domain.NormalizeTraderAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trader address")
		return
	}

	trader := domain.TrackedTrader{
		Address:          address,
		Label:            req.Label,
		BankrollEstimate: decimal.NewFromFloat(req.Bankroll),
		AddedAt:          time.Now().UTC(),
	}
	if err := h.roster.Sync(r.Context(), []domain.TrackedTrader{trader}); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: add trader failed",
			slog.String("address", req.Address),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to add trader")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

// updateBankrollRequest is the PUT /api/traders/{address}/bankroll body.
type updateBankrollRequest struct {
	Bankroll float64 `json:"bankroll_estimate"`
}

// UpdateBankroll revises the bankroll estimate for one trader.
// PUT /api/traders/{address}/bankroll
func (h *TraderHandler) UpdateBankroll(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}

	var req updateBankrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Bankroll <= 0 {
		writeError(w, http.StatusBadRequest, "bankroll must be positive")
		return
	}

	if err := h.roster.UpdateBankroll(r.Context(), address, decimal.NewFromFloat(req.Bankroll)); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "trader not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: update bankroll failed",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update bankroll")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
