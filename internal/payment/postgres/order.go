package postgres

import (
	"context"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/order"
	"gorm.io/gorm"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	var ord order.Order
	if err := r.db.WithContext(ctx).First(&ord, id).Error; err != nil {
		return nil, err
	}
	return &ord, nil
}

func (r *OrderRepository) GetByOrderNumber(ctx context.Context, number string) (*order.Order, error) {
	var ord order.Order
	if err := r.db.WithContext(ctx).
		Where("order_number = ?", number).
		First(&ord).Error; err != nil {
		return nil, err
	}
	return &ord, nil
}

func (r *OrderRepository) GetByPaymentReference(ctx context.Context, reference string) (*order.Order, error) {
	var ord order.Order
	if err := r.db.WithContext(ctx).
		Where("payment_reference = ? OR gateway_reference = ?", reference, reference).
		First(&ord).Error; err != nil {
		return nil, err
	}
	return &ord, nil
}

// FindPendingByAmount is the last-resort matcher lookup: the newest pending
// unpaid order inside the window whose total is within tolerance.
func (r *OrderRepository) FindPendingByAmount(ctx context.Context, amount, tolerance int64, since time.Time) (*order.Order, error) {
	var ord order.Order
	if err := r.db.WithContext(ctx).
		Where("payment_status = ? AND status = ?", order.PaymentStatusPending, order.StatusPending).
		Where("total_amount BETWEEN ? AND ?", amount-tolerance, amount+tolerance).
		Where("created_at >= ?", since).
		Order("created_at DESC").
		First(&ord).Error; err != nil {
		return nil, err
	}
	return &ord, nil
}
