package payment

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
	"gorm.io/gorm"
)

// TransactionService owns transaction row lifecycle outside of state
// transitions: first-touch creation, orphan recording, order attachment.
type TransactionService struct {
	transactions TransactionRepository
	logger       *slog.Logger
}

func NewTransactionService(transactions TransactionRepository, logger *slog.Logger) *TransactionService {
	return &TransactionService{
		transactions: transactions,
		logger:       logger,
	}
}

// GetOrCreate returns the transaction for a provider reference, creating it
// on first sight of the reference. Rows created without an order start as
// orphaned; the matcher may attach an order later.
func (s *TransactionService) GetOrCreate(ctx context.Context, reference string, out Outcome, orderID *int64) (*payment.Transaction, error) {
	tx, err := s.transactions.GetByProviderReference(ctx, reference)
	if err == nil && tx != nil {
		return tx, nil
	}
	if err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	status := payment.StatusPending
	if orderID == nil {
		status = payment.StatusOrphaned
	}
	tx = &payment.Transaction{
		ProviderReference: reference,
		OrderID:           orderID,
		Status:            status,
		Amount:            out.Amount,
		Currency:          out.Currency,
		Channel:           out.Channel,
	}
	if err := s.transactions.Create(ctx, tx); err != nil {
		// lost a create race with another signal for the same reference
		existing, getErr := s.transactions.GetByProviderReference(ctx, reference)
		if getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}

	s.logger.Info("transaction created",
		"reference", reference,
		"status", status,
		"amount", out.Amount)
	return tx, nil
}

func (s *TransactionService) GetByReference(ctx context.Context, reference string) (*payment.Transaction, error) {
	return s.transactions.GetByProviderReference(ctx, reference)
}

// AttachOrder links a matched order to a transaction that arrived without one.
func (s *TransactionService) AttachOrder(ctx context.Context, tx *payment.Transaction, orderID int64) error {
	if tx.OrderID != nil && *tx.OrderID == orderID {
		return nil
	}
	if err := s.transactions.AttachOrder(ctx, tx.ID, orderID); err != nil {
		return err
	}
	tx.OrderID = &orderID
	s.logger.Info("order attached to transaction",
		"reference", tx.ProviderReference,
		"order_id", orderID)
	return nil
}

// ListStuck returns open transactions older than the threshold, for the
// timeout sweeper.
func (s *TransactionService) ListStuck(ctx context.Context, threshold time.Duration, limit int) ([]*payment.Transaction, error) {
	olderThan := time.Now().Add(-threshold)
	statuses := []string{payment.StatusPending, payment.StatusInitialized}
	return s.transactions.ListStuck(ctx, statuses, olderThan, limit)
}
