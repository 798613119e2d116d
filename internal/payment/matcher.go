package payment

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	orderdm "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/order"
	"gorm.io/gorm"
)

// amountMatchWindow bounds the amount heuristic to recent orders so an old
// abandoned cart cannot swallow an unrelated payment of the same amount.
const amountMatchWindow = 24 * time.Hour

const (
	StrategyOrderID          = "order_id"
	StrategyOrderNumber      = "order_number"
	StrategyPaymentReference = "payment_reference"
	StrategyAmountHeuristic  = "amount_heuristic"
)

// MatchHints are the optional identifiers a gateway signal may carry.
type MatchHints struct {
	OrderID     *int64
	OrderNumber string
}

// MatchResult reports which order a payment belongs to and how it was found.
// Orphaned is a normal outcome, not an error: the payment is real money that
// arrived without a claimable order.
type MatchResult struct {
	Order    *orderdm.Order
	Strategy string
	Orphaned bool
}

// Matcher resolves a gateway payment to a local order by trying identifiers
// in order of reliability before falling back to the amount heuristic.
type Matcher struct {
	orders OrderRepository
	logger *slog.Logger
}

func NewMatcher(orders OrderRepository, logger *slog.Logger) *Matcher {
	return &Matcher{
		orders: orders,
		logger: logger,
	}
}

func (m *Matcher) Match(ctx context.Context, reference string, amount int64, hints MatchHints) (*MatchResult, error) {
	if hints.OrderID != nil {
		ord, err := m.orders.GetByID(ctx, *hints.OrderID)
		if err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if ord != nil {
			return &MatchResult{Order: ord, Strategy: StrategyOrderID}, nil
		}
		m.logger.Warn("order id hint did not resolve, continuing match chain",
			"reference", reference,
			"order_id", *hints.OrderID)
	}

	if hints.OrderNumber != "" {
		ord, err := m.orders.GetByOrderNumber(ctx, hints.OrderNumber)
		if err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if ord != nil {
			return &MatchResult{Order: ord, Strategy: StrategyOrderNumber}, nil
		}
	}

	ord, err := m.orders.GetByPaymentReference(ctx, reference)
	if err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if ord != nil {
		return &MatchResult{Order: ord, Strategy: StrategyPaymentReference}, nil
	}

	if amount > 0 {
		since := time.Now().Add(-amountMatchWindow)
		ord, err = m.orders.FindPendingByAmount(ctx, amount, AmountTolerance, since)
		if err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if ord != nil {
			m.logger.Info("payment matched by amount heuristic",
				"reference", reference,
				"order_id", ord.ID,
				"amount", amount)
			return &MatchResult{Order: ord, Strategy: StrategyAmountHeuristic}, nil
		}
	}

	m.logger.Warn("no order matched, payment is orphaned",
		"reference", reference,
		"amount", amount)
	return &MatchResult{Orphaned: true}, nil
}
