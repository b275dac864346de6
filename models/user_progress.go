package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserProgress holds a user's reputation. Tier is always TierForPoints(Points).
type UserProgress struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"` // links to profile service

	Points int64 `gorm:"not null;default:0;check:chk_user_progress_points,points >= 0" json:"points"`
	Tier   Tier  `gorm:"not null;default:1;index" json:"tier"`

	TotalUnlocks int64 `gorm:"not null;default:0" json:"total_unlocks"`

	LastTierUpAt *time.Time `json:"last_tier_up_at,omitempty"`

	Timestamps
}

func (p *UserProgress) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if !p.Tier.Valid() {
		p.Tier = TierForPoints(p.Points)
	}
	return nil
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
