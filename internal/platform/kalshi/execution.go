package kalshi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

var cents = decimal.NewFromInt(100)

// Executor places orders on Kalshi. Dollar notionals are converted to a
// whole contract count at the current ask; the exchange-side cost cap keeps a
// moved market from filling above the requested notional.
type Executor struct {
	client *Client
	logger *slog.Logger
}

// NewExecutor creates an Executor over the given REST client.
func NewExecutor(client *Client, logger *slog.Logger) *Executor {
	return &Executor{
		client: client,
		logger: logger.With(slog.String("component", "kalshi_executor")),
	}
}

// PlaceOrder buys contracts on the given side of the market worth up to
// notional dollars, as a market order.
func (e *Executor) PlaceOrder(ctx context.Context, marketID string, side domain.ContractSide, notional decimal.Decimal) (domain.OrderResult, error) {
	market, err := e.client.GetMarket(ctx, marketID)
	if err != nil {
		return domain.OrderResult{}, err
	}

	ask := market.YesAsk
	if side == domain.ContractNo {
		ask = market.NoAsk
	}
	if ask <= 0 || ask >= 100 {
		return domain.OrderResult{}, fmt.Errorf("kalshi: %s has no executable %s ask (%d): %w",
			marketID, side, ask, errPermanentInvalid)
	}

	notionalCents := notional.Mul(cents).IntPart()
	count := notionalCents / ask
	if count < 1 {
		return domain.OrderResult{}, fmt.Errorf("kalshi: notional %s buys no contracts at %d cents: %w",
			notional.StringFixed(2), ask, errPermanentInvalid)
	}
	maxCost := notionalCents

	order := Order{
		Ticker:        marketID,
		ClientOrderID: uuid.New().String(),
		Action:        "buy",
		Side:          string(side),
		Type:          "market",
		Count:         count,
		BuyMaxCost:    &maxCost,
	}

	state, err := e.client.CreateOrder(ctx, order)
	if err != nil {
		return domain.OrderResult{}, err
	}

	result := domain.OrderResult{
		OrderID:        state.OrderID,
		Status:         domain.OrderStatusFilled,
		FilledNotional: decimal.NewFromInt(state.TakerFillCost).Div(cents),
		Contracts:      state.TakerFillCount,
		PriceCents:     fillPrice(state, side),
	}
	if state.Status == "canceled" || state.TakerFillCount == 0 {
		// A market order that fills nothing was effectively refused.
		result.Status = domain.OrderStatusRejected
		result.FilledNotional = decimal.Zero
		result.Contracts = 0
	}

	e.logger.DebugContext(ctx, "order placed",
		slog.String("market", marketID),
		slog.String("side", string(side)),
		slog.Int64("count", count),
		slog.String("status", string(result.Status)),
	)
	return result, nil
}

// GetBalance returns the account balance in dollars.
func (e *Executor) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	balanceCents, err := e.client.GetBalance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(balanceCents).Div(cents), nil
}

func fillPrice(state OrderState, side domain.ContractSide) int64 {
	if side == domain.ContractNo {
		return state.NoPrice
	}
	return state.YesPrice
}

// errPermanentInvalid joins the order-shape sentinel with the non-retryable
// classification so the dispatcher fails fast.
var errPermanentInvalid = fmt.Errorf("%w (%w)", domain.ErrInvalidOrder, domain.ErrExecutionPermanent)

var _ domain.ExecutionClient = (*Executor)(nil)
