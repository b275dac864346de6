package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserUnlock records that a user holds an unlockable. Its existence is the unlock state.
type UserUnlock struct {
	ID             string     `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string     `gorm:"not null;uniqueIndex:idx_user_unlock,priority:1" json:"external_user_id"`
	UnlockableID   string     `gorm:"size:64;not null;uniqueIndex:idx_user_unlock,priority:2;index" json:"unlockable_id"`
	Category       string     `gorm:"size:16;not null;index" json:"category"`
	PointsAwarded  int64      `gorm:"not null;default:0" json:"points_awarded"`
	UsageCount     int64      `gorm:"not null;default:0" json:"usage_count"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
	UnlockedAt     time.Time  `gorm:"not null" json:"unlocked_at"`
}

func (u *UserUnlock) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// CapabilityGrant is a non-point reward. At most one per (user, kind); ExpiresAt nil never expires.
type CapabilityGrant struct {
	ID                 string     `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID     string     `gorm:"not null;uniqueIndex:idx_user_grant,priority:1" json:"external_user_id"`
	Kind               string     `gorm:"size:64;not null;uniqueIndex:idx_user_grant,priority:2" json:"kind"`
	SourceUnlockableID string     `gorm:"size:64;not null" json:"source_unlockable_id"`
	GrantedAt          time.Time  `gorm:"not null" json:"granted_at"`
	ExpiresAt          *time.Time `gorm:"index" json:"expires_at,omitempty"`
}

func (g *CapabilityGrant) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

func (g CapabilityGrant) ActiveAt(now time.Time) bool {
	return g.ExpiresAt == nil || now.Before(*g.ExpiresAt)
}
