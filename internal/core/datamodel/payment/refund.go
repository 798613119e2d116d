package payment

import (
	"encoding/json"
	"time"
)

// Refund tracks a refund against a settled transaction. Its lifecycle is
// independent of the charge: a refunded transaction keeps status success and
// the refund carries its own pending/completed/failed state.
type Refund struct {
	ID                      int64           `gorm:"primaryKey"`
	TransactionID           int64           `gorm:"column:transaction_id;not null;index"`
	ProviderRefundReference *string         `gorm:"column:provider_refund_reference;index"`
	Amount                  int64           `gorm:"column:amount;not null"`
	Currency                string          `gorm:"column:currency;not null"`
	Reason                  string          `gorm:"column:reason"`
	Status                  string          `gorm:"column:status;default:pending;index"`
	IdempotencyKey          string          `gorm:"column:idempotency_key;not null;uniqueIndex"`
	GatewayResponse         json.RawMessage `gorm:"column:gateway_response;type:jsonb"`
	FailureReason           *string         `gorm:"column:failure_reason"`
	ProcessedAt             *time.Time      `gorm:"column:processed_at"`
	CreatedAt               time.Time       `gorm:"column:created_at;default:now()"`
	UpdatedAt               time.Time       `gorm:"column:updated_at;default:now()"`
}

func (Refund) TableName() string {
	return "payment_refunds"
}

const (
	RefundStatusPending   = "pending"
	RefundStatusCompleted = "completed"
	RefundStatusFailed    = "failed"
)
