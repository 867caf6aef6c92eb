package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/crowdforge/launcher/internal/core"
)

// WebhookRepository provides access to outbound webhook event rows.
type WebhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository creates a WebhookRepository.
func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// CreateUnique inserts the event unless a row for the same
// (chainId, escrowAddress, eventType) already exists. Duplicate registration
// from concurrent code paths is a silent no-op.
func (r *WebhookRepository) CreateUnique(ctx context.Context, event *WebhookEvent) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event).Error
}

// FindDeliverable returns pending events of the delivery-eligible types whose
// wait time has elapsed.
func (r *WebhookRepository) FindDeliverable(ctx context.Context, eventTypes []core.EventType, now time.Time) ([]*WebhookEvent, error) {
	var events []*WebhookEvent
	err := r.db.WithContext(ctx).
		Where("status = ?", core.WebhookStatusPending).
		Where("event_type IN ?", eventTypes).
		Where("wait_until <= ?", now).
		Order("wait_until ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Update persists all fields of the event row.
func (r *WebhookRepository) Update(ctx context.Context, event *WebhookEvent) error {
	return r.db.WithContext(ctx).Save(event).Error
}
