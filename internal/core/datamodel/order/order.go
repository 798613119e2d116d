package order

import (
	"time"
)

// Order is the local side of the reconciliation pair. Only the payment
// lifecycle fields are owned here; fulfillment beyond confirmed/cancelled
// belongs to the order service.
type Order struct {
	ID               int64      `gorm:"primaryKey"`
	OrderNumber      string     `gorm:"column:order_number;not null;uniqueIndex"`
	PaymentReference *string    `gorm:"column:payment_reference;index"`
	GatewayReference *string    `gorm:"column:gateway_reference;index"`
	TotalAmount      int64      `gorm:"column:total_amount;not null"`
	Currency         string     `gorm:"column:currency;not null"`
	CustomerEmail    string     `gorm:"column:customer_email"`
	PaymentStatus    string     `gorm:"column:payment_status;default:pending;index"`
	Status           string     `gorm:"column:status;default:pending"`
	ConfirmedAt      *time.Time `gorm:"column:confirmed_at"`
	CancelledAt      *time.Time `gorm:"column:cancelled_at"`
	CreatedAt        time.Time  `gorm:"column:created_at;default:now()"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;default:now()"`
}

const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)
