package webhook

import (
	"encoding/json"
	"time"
)

// Event is one ledger entry per distinct inbound delivery. The composite
// unique index on provider + provider_event_id is the storage-level
// deduplication guarantee: a second insert for the same delivery is a no-op.
type Event struct {
	ID                   int64           `gorm:"primaryKey"`
	Provider             string          `gorm:"column:provider;not null;index:ux_webhook_events_provider_event,unique,priority:1"`
	ProviderEventID      string          `gorm:"column:provider_event_id;not null;index:ux_webhook_events_provider_event,unique,priority:2"`
	EventType            string          `gorm:"column:event_type;not null;index"`
	TransactionReference string          `gorm:"column:transaction_reference;index"`
	Payload              json.RawMessage `gorm:"column:payload;type:jsonb"`
	SignatureValid       bool            `gorm:"column:signature_valid;default:false"`
	ReceivedAt           time.Time       `gorm:"column:received_at;default:now()"`
	ProcessedAt          *time.Time      `gorm:"column:processed_at"`
	ProcessingError      string          `gorm:"column:processing_error"`
}

func (Event) TableName() string {
	return "webhook_events"
}
