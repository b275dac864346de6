package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"circle-progression-system/catalog"
	"circle-progression-system/logger"
	"circle-progression-system/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RewardsView struct {
	Points       int64    `json:"points"`
	TierFloor    string   `json:"tier_floor,omitempty"`
	Capabilities []string `json:"capabilities"`
}

func NewRewardsView(r catalog.Rewards) RewardsView {
	v := RewardsView{Points: r.Points, Capabilities: make([]string, 0, len(r.Capabilities))}
	if r.TierFloor.Valid() {
		v.TierFloor = r.TierFloor.String()
	}
	for _, c := range r.Capabilities {
		v.Capabilities = append(v.Capabilities, c.Kind)
	}
	return v
}

// UnlockOutcome is the typed result of an unlock attempt. Rule failures are reported
// through Reason, not as errors.
type UnlockOutcome struct {
	UnlockableID    string       `json:"unlockable_id"`
	Category        string       `json:"category"`
	Success         bool         `json:"success"`
	AlreadyUnlocked bool         `json:"already_unlocked"`
	Reason          Reason       `json:"reason,omitempty"`
	Progress        int          `json:"progress"`
	PointsAwarded   int64        `json:"points_awarded"`
	Rewards         *RewardsView `json:"rewards_granted,omitempty"`
	Award           *AwardResult `json:"award,omitempty"`
}

// UnlockCoordinator moves a (user, unlockable) pair from eligible to unlocked.
type UnlockCoordinator struct {
	UoW       *UnitOfWork
	Catalog   *catalog.Catalog
	Evaluator *Evaluator
	Ledger    *Ledger
	Grants    *GrantService
	Cache     ProgressCache
	Clock     clockwork.Clock
	log       *logger.Logger
}

func NewUnlockCoordinator(uow *UnitOfWork, cat *catalog.Catalog, ev *Evaluator, ledger *Ledger, grants *GrantService, cache ProgressCache, clock clockwork.Clock, log *logger.Logger) *UnlockCoordinator {
	if cache == nil {
		cache = NopCache{}
	}
	return &UnlockCoordinator{
		UoW:       uow,
		Catalog:   cat,
		Evaluator: ev,
		Ledger:    ledger,
		Grants:    grants,
		Cache:     cache,
		Clock:     clock,
		log:       log.With("service", "UnlockCoordinator"),
	}
}

func (c *UnlockCoordinator) lookup(unlockableID string) (catalog.Unlockable, error) {
	u, ok := c.Catalog.Get(unlockableID)
	if !ok {
		return catalog.Unlockable{}, validationErr("unlockable_id", "unknown unlockable %q", unlockableID)
	}
	return u, nil
}

// AttemptUnlock unlocks the item if the user is eligible. The unlock row, points award
// and tier floor commit together; capability grants follow best-effort.
func (c *UnlockCoordinator) AttemptUnlock(ctx context.Context, userID, unlockableID string) (UnlockOutcome, error) {
	if userID == "" {
		return UnlockOutcome{}, validationErr("user_id", "required")
	}
	u, err := c.lookup(unlockableID)
	if err != nil {
		return UnlockOutcome{}, err
	}

	var out UnlockOutcome
	err = c.UoW.Do(ctx, func(tx *gorm.DB) error {
		var err error
		out, err = c.attemptTx(tx, userID, u)
		return err
	})
	if err != nil {
		return UnlockOutcome{}, classify("attempt unlock", err)
	}
	c.afterCommit(ctx, userID, u, out)
	return out, nil
}

func (c *UnlockCoordinator) attemptTx(tx *gorm.DB, userID string, u catalog.Unlockable) (UnlockOutcome, error) {
	out := UnlockOutcome{UnlockableID: u.ID, Category: string(u.Category)}

	// Serializes concurrent unlocks and awards for this user.
	prog, err := lockProgressTx(tx, userID)
	if err != nil {
		return out, err
	}

	ev, err := c.Evaluator.evaluateTx(tx, userID)
	if err != nil {
		return out, err
	}
	out.Progress = ev.Progress[u.ID]
	switch {
	case ev.IsUnlocked(u.ID):
		out.AlreadyUnlocked = true
		out.Reason = ReasonAlreadyUnlocked
		return out, nil
	case !prerequisitesMet(u, toSet(ev.Unlocked)):
		out.Reason = ReasonPrerequisitesNotMet
		return out, nil
	case !ev.IsEligible(u.ID):
		out.Reason = ReasonRequirementsIncomplete
		return out, nil
	}

	created, err := c.insertUnlockTx(tx, userID, u)
	if err != nil {
		return out, err
	}
	if !created {
		out.AlreadyUnlocked = true
		out.Reason = ReasonAlreadyUnlocked
		out.Progress = 100
		return out, nil
	}

	md := models.Metadata{"unlockable_id": u.ID, "category": string(u.Category)}
	award, err := c.Ledger.AwardTx(tx, userID, u.Rewards.Points, "unlock:"+u.ID, md)
	if err != nil {
		return out, err
	}
	if u.Rewards.TierFloor.Valid() {
		floor, err := c.Ledger.EnsureTierFloorTx(tx, userID, u.Rewards.TierFloor, "tier_floor:"+u.ID, md)
		if err != nil {
			return out, err
		}
		if floor.NewPoints > award.NewPoints {
			if err := tx.Model(&models.UserUnlock{}).
				Where("external_user_id = ? AND unlockable_id = ?", userID, u.ID).
				Update("points_awarded", gorm.Expr("points_awarded + ?", floor.NewPoints-award.NewPoints)).Error; err != nil {
				return out, err
			}
		}
		award.Promoted = award.Promoted || floor.Promoted
		award.NewPoints = floor.NewPoints
		award.NewTier = floor.NewTier
	}

	if err := tx.Model(&models.UserProgress{}).
		Where("external_user_id = ?", userID).
		Update("total_unlocks", gorm.Expr("total_unlocks + 1")).Error; err != nil {
		return out, err
	}

	rv := NewRewardsView(u.Rewards)
	out.Success = true
	out.Progress = 100
	out.PointsAwarded = award.NewPoints - prog.Points
	out.Rewards = &rv
	out.Award = &award
	return out, nil
}

// insertUnlockTx reports false when the row already exists.
func (c *UnlockCoordinator) insertUnlockTx(tx *gorm.DB, userID string, u catalog.Unlockable) (bool, error) {
	row := models.UserUnlock{
		ExternalUserID: userID,
		UnlockableID:   u.ID,
		Category:       string(u.Category),
		PointsAwarded:  u.Rewards.Points,
		UnlockedAt:     c.Clock.Now().UTC(),
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}, {Name: "unlockable_id"}},
		DoNothing: true,
	}).Create(&row)
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (c *UnlockCoordinator) afterCommit(ctx context.Context, userID string, u catalog.Unlockable, out UnlockOutcome) {
	outcome := "unlocked"
	if !out.Success {
		outcome = string(out.Reason)
	}
	unlockAttemptsTotal.WithLabelValues(string(u.Category), outcome).Inc()
	if !out.Success {
		return
	}

	c.Cache.Invalidate(ctx, userID)
	if out.Award != nil {
		observeAward("unlock", *out.Award, out.PointsAwarded)
	}
	c.log.Info("[UNLOCK] unlocked", "user_id", userID, "unlockable_id", u.ID, "category", u.Category, "points", out.Award.NewPoints, "tier", out.Award.NewTier.String())

	if err := c.Grants.Grant(ctx, userID, u.ID, u.Rewards.Capabilities); err != nil {
		capabilityGrantFailures.Inc()
		c.log.Warn("[UNLOCK] capability grant failed, left for reconcile", "user_id", userID, "unlockable_id", u.ID, "error", err)
	}
}

// UnlockEligible unlocks every eligible achievement and easter egg. ART keys are never
// auto-unlocked. Repeats until a pass unlocks nothing, since an unlock can satisfy
// another item's prerequisites.
func (c *UnlockCoordinator) UnlockEligible(ctx context.Context, userID string) ([]UnlockOutcome, error) {
	unlocked := []UnlockOutcome{}
	for pass := 0; pass <= c.Catalog.Len(); pass++ {
		ev, err := c.Evaluator.Evaluate(ctx, userID)
		if err != nil {
			return unlocked, err
		}
		progressed := false
		for _, id := range ev.Eligible {
			u, _ := c.Catalog.Get(id)
			if !u.Category.AutoUnlocks() {
				continue
			}
			out, err := c.AttemptUnlock(ctx, userID, id)
			if err != nil {
				return unlocked, err
			}
			if out.Success {
				unlocked = append(unlocked, out)
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return unlocked, nil
}

// RecordUse bumps the usage counter of an unlocked item.
func (c *UnlockCoordinator) RecordUse(ctx context.Context, userID, unlockableID string) (*models.UserUnlock, error) {
	if userID == "" {
		return nil, validationErr("user_id", "required")
	}
	if _, err := c.lookup(unlockableID); err != nil {
		return nil, err
	}

	var row models.UserUnlock
	err := c.UoW.Do(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.UserUnlock{}).
			Where("external_user_id = ? AND unlockable_id = ?", userID, unlockableID).
			Updates(map[string]interface{}{
				"usage_count":  gorm.Expr("usage_count + 1"),
				"last_used_at": c.Clock.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ruleErr(ReasonNotUnlocked, "%s has not been unlocked", unlockableID)
		}
		return tx.Where("external_user_id = ? AND unlockable_id = ?", userID, unlockableID).First(&row).Error
	})
	if err != nil {
		return nil, classify("record use", err)
	}
	return &row, nil
}

// Unlocks lists the user's unlock rows, optionally filtered by category.
func (c *UnlockCoordinator) Unlocks(ctx context.Context, userID string, category catalog.Category) ([]models.UserUnlock, error) {
	rows := []models.UserUnlock{}
	q := c.UoW.DB.WithContext(ctx).Where("external_user_id = ?", userID)
	if category != "" {
		q = q.Where("category = ?", string(category))
	}
	if err := q.Order("unlocked_at ASC").Find(&rows).Error; err != nil {
		return nil, classify("list unlocks", err)
	}
	return rows, nil
}

// ReconcileGrants re-issues capability grants that committed unlocks are still owed
// and returns how many (user, unlockable, kind) grants were repaired. Grants are
// shared per (user, kind), so each unlock is checked against its own window: a
// time-boxed reward is owed until unlocked_at + ttl, whichever unlock wrote the row.
func (c *UnlockCoordinator) ReconcileGrants(ctx context.Context) (int, error) {
	now := c.Clock.Now().UTC()
	repaired := 0
	for _, u := range c.Catalog.All() {
		if len(u.Rewards.Capabilities) == 0 {
			continue
		}
		var unlocks []models.UserUnlock
		if err := c.UoW.DB.WithContext(ctx).
			Select("external_user_id", "unlocked_at").
			Where("unlockable_id = ?", u.ID).
			Find(&unlocks).Error; err != nil {
			return repaired, classify("reconcile grants", err)
		}
		if len(unlocks) == 0 {
			continue
		}
		users := make([]string, 0, len(unlocks))
		for _, ul := range unlocks {
			users = append(users, ul.ExternalUserID)
		}

		for _, reward := range u.Rewards.Capabilities {
			var grants []models.CapabilityGrant
			if err := c.UoW.DB.WithContext(ctx).
				Where("kind = ? AND external_user_id IN ?", reward.Kind, users).
				Find(&grants).Error; err != nil {
				return repaired, classify("reconcile grants", err)
			}
			existing := make(map[string]*models.CapabilityGrant, len(grants))
			for i := range grants {
				existing[grants[i].ExternalUserID] = &grants[i]
			}

			for _, ul := range unlocks {
				owed, ok := owedGrant(reward, ul.UnlockedAt, now, existing[ul.ExternalUserID])
				if !ok {
					continue
				}
				if err := c.Grants.Grant(ctx, ul.ExternalUserID, u.ID, []catalog.CapabilityReward{owed}); err != nil {
					return repaired, classify("reconcile grants", fmt.Errorf("grant %s to %s: %w", reward.Kind, ul.ExternalUserID, err))
				}
				repaired++
			}
		}
	}
	if repaired > 0 {
		c.log.Info("[UNLOCK] reconciled capability grants", "repaired", repaired)
	}
	return repaired, nil
}

// owedGrant returns the reward still due for an unlock at unlockedAt, with its TTL
// trimmed to the unlock's remaining window. It reports false when the current grant
// already covers the window or a time-boxed window has closed.
func owedGrant(reward catalog.CapabilityReward, unlockedAt, now time.Time, current *models.CapabilityGrant) (catalog.CapabilityReward, bool) {
	if reward.TTL <= 0 {
		if current != nil && current.ExpiresAt == nil {
			return reward, false
		}
		return reward, true
	}

	end := unlockedAt.Add(reward.TTL)
	if !end.After(now) {
		return reward, false
	}
	if current != nil && (current.ExpiresAt == nil || !current.ExpiresAt.Before(end)) {
		return reward, false
	}
	return catalog.CapabilityReward{Kind: reward.Kind, TTL: end.Sub(now)}, true
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
