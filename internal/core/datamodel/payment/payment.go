package payment

import (
	"encoding/json"
	"time"
)

// Transaction is the durable record of one payment attempt at the gateway.
// ProviderReference is the idempotency key for the whole reconciliation core:
// it is assigned by the gateway, unique, and never changes once set.
type Transaction struct {
	ID                int64           `gorm:"primaryKey"`
	ProviderReference string          `gorm:"column:provider_reference;not null;uniqueIndex"`
	OrderID           *int64          `gorm:"column:order_id;index"`
	Status            string          `gorm:"column:status;default:pending;index"`
	Amount            int64           `gorm:"column:amount;not null"`
	Currency          string          `gorm:"column:currency;not null"`
	Channel           string          `gorm:"column:channel"`
	Fees              int64           `gorm:"column:fees"`
	GatewayResponse   json.RawMessage `gorm:"column:gateway_response;type:jsonb"`
	PaidAt            *time.Time      `gorm:"column:paid_at"`
	ProcessedAt       *time.Time      `gorm:"column:processed_at"`
	CreatedAt         time.Time       `gorm:"column:created_at;default:now()"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;default:now()"`
}

func (Transaction) TableName() string {
	return "payment_transactions"
}

const (
	StatusPending     = "pending"
	StatusInitialized = "initialized"
	StatusSuccess     = "success"
	StatusFailed      = "failed"
	StatusTimeout     = "timeout"
	StatusMigrated    = "migrated"
	StatusOrphaned    = "orphaned"
)

// IsTerminal reports whether a transaction status may no longer be
// overwritten by the normal webhook path. failed and timeout can still be
// upgraded to success by reconciliation when the gateway confirms payment.
func IsTerminal(status string) bool {
	return status == StatusSuccess || status == StatusFailed
}

// IsSettleable reports whether a status may transition to success.
// Everything except success itself is upgradeable; success with a matching
// amount is an idempotent no-op handled by the transitioner.
func IsSettleable(status string) bool {
	return status != StatusSuccess
}
