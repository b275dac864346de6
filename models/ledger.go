package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PointsLedgerEntry is the audit row written for every non-zero award.
type PointsLedgerEntry struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string    `gorm:"not null;index" json:"external_user_id"`
	Delta          int64     `gorm:"not null" json:"delta"`
	BalanceAfter   int64     `gorm:"not null" json:"balance_after"`
	TierBefore     Tier      `gorm:"not null" json:"tier_before"`
	TierAfter      Tier      `gorm:"not null" json:"tier_after"`
	Reason         string    `gorm:"size:128;not null" json:"reason"`
	Metadata       Metadata  `gorm:"type:jsonb;serializer:json" json:"metadata"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (e *PointsLedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Metadata == nil {
		e.Metadata = Metadata{}
	}
	return nil
}
