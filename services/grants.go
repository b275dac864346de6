package services

import (
	"context"
	"time"

	"circle-progression-system/catalog"
	"circle-progression-system/logger"
	"circle-progression-system/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GrantService writes capability grants. Writes are idempotent per (user, kind) so a
// failed grant can simply be retried.
type GrantService struct {
	DB    *gorm.DB
	Clock clockwork.Clock
	log   *logger.Logger
}

func NewGrantService(db *gorm.DB, clock clockwork.Clock, log *logger.Logger) *GrantService {
	return &GrantService{DB: db, Clock: clock, log: log.With("service", "GrantService")}
}

// Grant upserts every capability reward of source for the user. An existing grant keeps
// the later of the two expiries; a non-expiring grant is never shortened.
func (g *GrantService) Grant(ctx context.Context, userID, source string, rewards []catalog.CapabilityReward) error {
	if len(rewards) == 0 {
		return nil
	}
	now := g.Clock.Now().UTC()
	return g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range rewards {
			if err := upsertGrantTx(tx, userID, source, r, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertGrantTx(tx *gorm.DB, userID, source string, r catalog.CapabilityReward, now time.Time) error {
	var expires *time.Time
	if r.TTL > 0 {
		t := now.Add(r.TTL)
		expires = &t
	}

	var existing models.CapabilityGrant
	err := tx.Where("external_user_id = ? AND kind = ?", userID, r.Kind).Limit(1).Find(&existing).Error
	if err != nil {
		return err
	}
	if existing.ID == "" {
		grant := models.CapabilityGrant{
			ExternalUserID:     userID,
			Kind:               r.Kind,
			SourceUnlockableID: source,
			GrantedAt:          now,
			ExpiresAt:          expires,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_user_id"}, {Name: "kind"}},
			DoNothing: true,
		}).Create(&grant).Error
	}

	if existing.ExpiresAt == nil {
		return nil
	}
	if expires != nil && !expires.After(*existing.ExpiresAt) {
		return nil
	}
	return tx.Model(&models.CapabilityGrant{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"expires_at":           expires,
			"source_unlockable_id": source,
			"granted_at":           now,
		}).Error
}

// Active returns the user's non-expired grants.
func (g *GrantService) Active(ctx context.Context, userID string) ([]models.CapabilityGrant, error) {
	now := g.Clock.Now().UTC()
	grants := []models.CapabilityGrant{}
	err := g.DB.WithContext(ctx).
		Where("external_user_id = ? AND (expires_at IS NULL OR expires_at > ?)", userID, now).
		Order("kind ASC").
		Find(&grants).Error
	return grants, err
}

// HasActive reports whether the user holds a non-expired grant of kind.
func (g *GrantService) HasActive(ctx context.Context, userID, kind string) (bool, error) {
	var n int64
	err := g.DB.WithContext(ctx).Model(&models.CapabilityGrant{}).
		Where("external_user_id = ? AND kind = ? AND (expires_at IS NULL OR expires_at > ?)", userID, kind, g.Clock.Now().UTC()).
		Count(&n).Error
	return n > 0, err
}
