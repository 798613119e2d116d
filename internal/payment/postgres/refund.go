package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
	"gorm.io/gorm"
)

type RefundRepository struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) Create(ctx context.Context, refund *payment.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *RefundRepository) GetByID(ctx context.Context, id int64) (*payment.Refund, error) {
	var refund payment.Refund
	if err := r.db.WithContext(ctx).First(&refund, id).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *RefundRepository) GetByProviderReference(ctx context.Context, reference string) (*payment.Refund, error) {
	var refund payment.Refund
	if err := r.db.WithContext(ctx).
		Where("provider_refund_reference = ?", reference).
		First(&refund).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *RefundRepository) ListByTransaction(ctx context.Context, transactionID int64) ([]*payment.Refund, error) {
	var refunds []*payment.Refund
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at DESC").
		Find(&refunds).Error
	return refunds, err
}

// SumActiveByTransaction totals pending and completed refunds; only failed
// refunds release their share of the refundable balance.
func (r *RefundRepository) SumActiveByTransaction(ctx context.Context, transactionID int64) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&payment.Refund{}).
		Where("transaction_id = ? AND status <> ?", transactionID, payment.RefundStatusFailed).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

func (r *RefundRepository) UpdateStatus(ctx context.Context, id int64, status string, gatewayResponse json.RawMessage, failureReason *string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       status,
		"processed_at": now,
		"updated_at":   now,
	}
	if len(gatewayResponse) > 0 {
		updates["gateway_response"] = gatewayResponse
	}
	if failureReason != nil {
		updates["failure_reason"] = *failureReason
	}
	return r.db.WithContext(ctx).
		Model(&payment.Refund{}).
		Where("id = ?", id).
		Updates(updates).Error
}
