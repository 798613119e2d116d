package postgres

import (
	"context"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/webhook"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// CreateIfNotExists inserts a ledger entry, relying on the unique index over
// provider + provider_event_id to swallow duplicates at the storage level.
// It returns whether this call created the row, plus the stored row either
// way, so racing deliveries of the same event agree on a single entry.
func (r *LedgerRepository) CreateIfNotExists(ctx context.Context, event *webhook.Event) (bool, *webhook.Event, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, nil, res.Error
	}

	if res.RowsAffected > 0 {
		return true, event, nil
	}

	var existing webhook.Event
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&existing).Error; err != nil {
		return false, nil, err
	}
	return false, &existing, nil
}

func (r *LedgerRepository) MarkProcessed(ctx context.Context, id int64, processingError string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&webhook.Event{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at":     now,
			"processing_error": processingError,
		}).Error
}

// ListUnprocessed returns ledger entries that never finished processing, for
// operational replay.
func (r *LedgerRepository) ListUnprocessed(ctx context.Context, limit int) ([]*webhook.Event, error) {
	var events []*webhook.Event
	err := r.db.WithContext(ctx).
		Where("processed_at IS NULL").
		Order("received_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
