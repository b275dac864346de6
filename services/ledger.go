package services

import (
	"context"
	"math"
	"strings"

	"circle-progression-system/logger"
	"circle-progression-system/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// AwardResult describes the user's reputation after an award.
type AwardResult struct {
	NewPoints    int64       `json:"new_points"`
	NewTier      models.Tier `json:"new_tier"`
	PreviousTier models.Tier `json:"previous_tier"`
	Promoted     bool        `json:"promoted"`
}

// Ledger is the only writer of UserProgress.Points and UserProgress.Tier.
type Ledger struct {
	UoW   *UnitOfWork
	Cache ProgressCache
	Clock clockwork.Clock
	log   *logger.Logger
}

func NewLedger(uow *UnitOfWork, cache ProgressCache, clock clockwork.Clock, log *logger.Logger) *Ledger {
	if cache == nil {
		cache = NopCache{}
	}
	return &Ledger{UoW: uow, Cache: cache, Clock: clock, log: log.With("service", "Ledger")}
}

// Award credits delta points to the user in its own transaction.
func (l *Ledger) Award(ctx context.Context, userID string, delta int64, reason string, md models.Metadata) (AwardResult, error) {
	if userID == "" {
		return AwardResult{}, validationErr("user_id", "required")
	}
	if reason == "" {
		return AwardResult{}, validationErr("reason", "required")
	}

	var res AwardResult
	err := l.UoW.Do(ctx, func(tx *gorm.DB) error {
		var err error
		res, err = l.AwardTx(tx, userID, delta, reason, md)
		return err
	})
	if err != nil {
		return AwardResult{}, classify("award points", err)
	}

	l.Cache.Invalidate(ctx, userID)
	observeAward(sourceOf(reason), res, delta)
	if res.Promoted {
		l.log.Info("[LEDGER] tier promotion", "user_id", userID, "from", res.PreviousTier.String(), "to", res.NewTier.String(), "points", res.NewPoints)
	}
	return res, nil
}

// AwardTx credits points inside the caller's transaction. The progress row is locked
// FOR UPDATE so concurrent awards to the same user serialize.
func (l *Ledger) AwardTx(tx *gorm.DB, userID string, delta int64, reason string, md models.Metadata) (AwardResult, error) {
	if delta < 0 {
		return AwardResult{}, &InvariantError{Message: "negative award delta"}
	}

	prog, err := lockProgressTx(tx, userID)
	if err != nil {
		return AwardResult{}, err
	}

	res := AwardResult{
		NewPoints:    prog.Points,
		NewTier:      prog.Tier,
		PreviousTier: prog.Tier,
	}
	if delta == 0 {
		return res, nil
	}
	if prog.Points > math.MaxInt64-delta {
		return AwardResult{}, &InvariantError{Message: "points overflow"}
	}

	res.NewPoints = prog.Points + delta
	res.NewTier = models.TierForPoints(res.NewPoints)
	if res.NewTier < prog.Tier {
		return AwardResult{}, &InvariantError{Message: "tier would decrease"}
	}

	updates := map[string]interface{}{
		"points": res.NewPoints,
		"tier":   res.NewTier,
	}
	if res.NewTier != prog.Tier {
		res.Promoted = true
		updates["last_tier_up_at"] = l.Clock.Now().UTC()
	}
	if err := tx.Model(&models.UserProgress{}).
		Where("id = ?", prog.ID).
		Updates(updates).Error; err != nil {
		return AwardResult{}, err
	}

	entry := models.PointsLedgerEntry{
		ExternalUserID: userID,
		Delta:          delta,
		BalanceAfter:   res.NewPoints,
		TierBefore:     res.PreviousTier,
		TierAfter:      res.NewTier,
		Reason:         reason,
		Metadata:       md,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return AwardResult{}, err
	}
	return res, nil
}

// EnsureTierFloorTx lifts the user to at least floor by awarding the points missing to
// reach floor's minimum. It never lowers a tier.
func (l *Ledger) EnsureTierFloorTx(tx *gorm.DB, userID string, floor models.Tier, reason string, md models.Metadata) (AwardResult, error) {
	if !floor.Valid() {
		return AwardResult{}, &InvariantError{Message: "invalid tier floor"}
	}
	prog, err := lockProgressTx(tx, userID)
	if err != nil {
		return AwardResult{}, err
	}
	missing := floor.Info().MinPoints - prog.Points
	if missing <= 0 {
		return AwardResult{NewPoints: prog.Points, NewTier: prog.Tier, PreviousTier: prog.Tier}, nil
	}
	return l.AwardTx(tx, userID, missing, reason, md)
}

// sourceOf keeps metric label cardinality bounded.
func sourceOf(reason string) string {
	src, _, _ := strings.Cut(reason, ":")
	return src
}
