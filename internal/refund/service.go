package refund

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"

	"github.com/frahmantamala/payment-reconciliation/internal"
	paymentdm "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-reconciliation/internal/core/events"
	"github.com/frahmantamala/payment-reconciliation/internal/gateway"
	"github.com/frahmantamala/payment-reconciliation/internal/payment"
	"gorm.io/gorm"
)

// GatewayAPI is the slice of the gateway client refunds need.
type GatewayAPI interface {
	CreateRefund(ctx context.Context, transactionReference string, amount int64, reason string) (*gateway.RefundResult, error)
}

// Service coordinates refunds. A refund's lifecycle is independent of the
// charge: the transaction keeps status success while the refund row moves
// pending to completed or failed, driven by transfer webhooks.
type Service struct {
	refunds      payment.RefundRepository
	transactions payment.TransactionRepository
	gateway      GatewayAPI
	bus          *events.EventBus
	logger       *slog.Logger
}

func NewService(
	refunds payment.RefundRepository,
	transactions payment.TransactionRepository,
	gw GatewayAPI,
	bus *events.EventBus,
	logger *slog.Logger,
) *Service {
	return &Service{
		refunds:      refunds,
		transactions: transactions,
		gateway:      gw,
		bus:          bus,
		logger:       logger,
	}
}

// CreateRefund validates a refund request, instructs the gateway and persists
// the pending row. The refundable balance is the settled amount minus every
// refund that is not failed, so in-flight refunds already count against it.
func (s *Service) CreateRefund(ctx context.Context, reference string, amount int64, reason string) (*paymentdm.Refund, error) {
	tx, err := s.transactions.GetByProviderReference(ctx, reference)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrTransactionNotFound
		}
		return nil, err
	}

	if tx.Status != paymentdm.StatusSuccess {
		return nil, internal.ErrRefundNotAllowed
	}

	refunded, err := s.refunds.SumActiveByTransaction(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, internal.NewValidationError("refund amount must be positive", internal.ErrCodeInvalidAmount)
	}
	if amount > tx.Amount-refunded {
		return nil, internal.ErrRefundAmountExceeded
	}

	result, err := s.gateway.CreateRefund(ctx, reference, amount, reason)
	if err != nil {
		return nil, err
	}

	refund := &paymentdm.Refund{
		TransactionID:           tx.ID,
		ProviderRefundReference: &result.ProviderRefundReference,
		Amount:                  amount,
		Currency:                tx.Currency,
		Reason:                  reason,
		Status:                  paymentdm.RefundStatusPending,
		IdempotencyKey:          result.IdempotencyKey,
		GatewayResponse:         result.Raw,
	}
	if err := s.refunds.Create(ctx, refund); err != nil {
		return nil, err
	}

	s.logger.Info("refund created",
		"reference", reference,
		"refund_reference", result.ProviderRefundReference,
		"amount", amount)
	return refund, nil
}

// Resolve finalizes a pending refund from a transfer webhook. A transfer
// that does not correspond to any refund is acknowledged and ignored; the
// gateway also uses transfers for payouts this service does not own.
func (s *Service) Resolve(ctx context.Context, providerRefundReference string, succeeded bool, reason string, raw json.RawMessage) error {
	refund, err := s.refunds.GetByProviderReference(ctx, providerRefundReference)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Info("transfer event matches no refund, ignoring",
				"refund_reference", providerRefundReference)
			return nil
		}
		return err
	}

	if refund.Status != paymentdm.RefundStatusPending {
		s.logger.Info("refund already finalized, ignoring transfer event",
			"refund_reference", providerRefundReference,
			"status", refund.Status)
		return nil
	}

	status := paymentdm.RefundStatusCompleted
	var failureReason *string
	if !succeeded {
		status = paymentdm.RefundStatusFailed
		if reason != "" {
			failureReason = &reason
		}
	}

	if err := s.refunds.UpdateStatus(ctx, refund.ID, status, raw, failureReason); err != nil {
		return err
	}

	s.logger.Info("refund resolved",
		"refund_reference", providerRefundReference,
		"status", status)

	if s.bus != nil {
		if succeeded {
			s.bus.Publish(ctx, events.NewRefundCompletedEvent(
				refund.ID, refund.TransactionID, providerRefundReference, refund.Amount))
		} else {
			s.bus.Publish(ctx, events.NewRefundFailedEvent(
				refund.ID, refund.TransactionID, providerRefundReference, reason))
		}
	}
	return nil
}

// GetRefund returns one refund by id.
func (s *Service) GetRefund(ctx context.Context, id int64) (*paymentdm.Refund, error) {
	refund, err := s.refunds.GetByID(ctx, id)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrRefundNotFound
		}
		return nil, err
	}
	return refund, nil
}

// ListRefunds returns all refunds against a transaction reference.
func (s *Service) ListRefunds(ctx context.Context, reference string) ([]*paymentdm.Refund, error) {
	tx, err := s.transactions.GetByProviderReference(ctx, reference)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrTransactionNotFound
		}
		return nil, err
	}
	return s.refunds.ListByTransaction(ctx, tx.ID)
}
