package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Metadata is a free-form JSON object attached to events and audit rows.
type Metadata map[string]any

// ActivityEvent is an append-only record of a user action.
type ActivityEvent struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string    `gorm:"not null;index:idx_activity_user_time,priority:1" json:"external_user_id"`
	ActivityType   string    `gorm:"size:64;not null;index" json:"activity_type"`
	OccurredAt     time.Time `gorm:"not null;index:idx_activity_user_time,priority:2" json:"occurred_at"`
	Metadata       Metadata  `gorm:"type:jsonb;serializer:json" json:"metadata"`
}

func (e *ActivityEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Metadata == nil {
		e.Metadata = Metadata{}
	}
	return nil
}

// BeforeUpdate rejects any attempt to mutate a logged event.
func (e *ActivityEvent) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableEvent
}
