package postgres

import (
	"context"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/order"
	"github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/payment-reconciliation/internal/payment"
	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *payment.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*payment.Transaction, error) {
	var tx payment.Transaction
	if err := r.db.WithContext(ctx).First(&tx, id).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) GetByProviderReference(ctx context.Context, reference string) (*payment.Transaction, error) {
	var tx payment.Transaction
	if err := r.db.WithContext(ctx).
		Where("provider_reference = ?", reference).
		First(&tx).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) AttachOrder(ctx context.Context, txID, orderID int64) error {
	return r.db.WithContext(ctx).
		Model(&payment.Transaction{}).
		Where("id = ? AND order_id IS NULL", txID).
		Updates(map[string]interface{}{
			"order_id":   orderID,
			"status":     gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", payment.StatusOrphaned, payment.StatusPending),
			"updated_at": time.Now(),
		}).Error
}

func (r *TransactionRepository) ListStuck(ctx context.Context, statuses []string, olderThan time.Time, limit int) ([]*payment.Transaction, error) {
	var txs []*payment.Transaction
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", statuses, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// ApplyTransition performs the decision in one database transaction. The
// status guard on the UPDATE is the concurrency control: of N racing writers
// exactly one sees RowsAffected > 0, and only that one touches the order.
// Order-only decisions flip the gate around: the transaction row is already
// final, so the payment_status guard on the order UPDATE picks the winner.
func (r *TransactionRepository) ApplyTransition(ctx context.Context, d *paymentpkg.Decision) (bool, error) {
	applied := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		if !d.OrderOnly {
			updates := map[string]interface{}{
				"status":       d.TxStatus,
				"processed_at": now,
				"updated_at":   now,
			}
			if d.PaidAt != nil {
				updates["paid_at"] = *d.PaidAt
			}
			if d.Channel != "" {
				updates["channel"] = d.Channel
			}
			if d.Fees > 0 {
				updates["fees"] = d.Fees
			}
			if len(d.GatewayResponse) > 0 {
				updates["gateway_response"] = d.GatewayResponse
			}
			if d.OrderID != nil {
				updates["order_id"] = *d.OrderID
			}

			res := tx.Model(&payment.Transaction{}).
				Where("provider_reference = ? AND status IN ?", d.Reference, d.FromStatuses).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
			applied = true
		}

		if d.OrderID == nil || d.Action == paymentpkg.ActionNone {
			return nil
		}

		orderUpdates := map[string]interface{}{
			"payment_status": d.OrderPaymentStatus,
			"updated_at":     now,
		}
		query := tx.Model(&order.Order{})
		switch d.Action {
		case paymentpkg.ActionConfirm:
			orderUpdates["status"] = order.StatusConfirmed
			orderUpdates["confirmed_at"] = now
			// an already-paid order is not confirmed twice
			query = query.Where("id = ? AND payment_status <> ?", *d.OrderID, order.PaymentStatusPaid)
		case paymentpkg.ActionCancel:
			orderUpdates["status"] = order.StatusCancelled
			orderUpdates["cancelled_at"] = now
			// a paid order is never cancelled by a late failure signal
			query = query.Where("id = ? AND payment_status <> ?", *d.OrderID, order.PaymentStatusPaid)
		}
		res := query.Updates(orderUpdates)
		if res.Error != nil {
			return res.Error
		}
		if d.OrderOnly {
			applied = res.RowsAffected > 0
		}
		return nil
	})

	return applied, err
}
