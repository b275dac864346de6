package services

import (
	"context"
	"strings"

	"circle-progression-system/logger"
	"circle-progression-system/models"
)

const allPremiumGrant = "premium:all_premium_content"

// Gate answers admission questions. It never returns errors: a failed read is logged
// and treated as a denial.
type Gate struct {
	Progress *ProgressionService
	Grants   *GrantService
	log      *logger.Logger
}

func NewGate(progress *ProgressionService, grants *GrantService, log *logger.Logger) *Gate {
	return &Gate{Progress: progress, Grants: grants, log: log.With("service", "Gate")}
}

// HasTier reports whether the user's current tier is at least minTier.
func (g *Gate) HasTier(ctx context.Context, userID string, minTier models.Tier) bool {
	if userID == "" {
		return false
	}
	snap, err := g.Progress.Snapshot(ctx, userID)
	if err != nil {
		g.log.Warn("[GATE] tier read failed, denying", "user_id", userID, "error", err)
		return false
	}
	return snap.Tier >= minTier
}

// HasCapability accepts either a tier permission (e.g. access_premium) or an explicit,
// non-expired grant of that kind. Any premium:* kind is also satisfied by the
// all-content grant.
func (g *Gate) HasCapability(ctx context.Context, userID, capability string) bool {
	if userID == "" || capability == "" {
		return false
	}
	snap, err := g.Progress.Snapshot(ctx, userID)
	if err != nil {
		g.log.Warn("[GATE] tier read failed, denying", "user_id", userID, "error", err)
		return false
	}
	if snap.Tier.HasPermission(models.Capability(capability)) {
		return true
	}

	kinds := []string{capability}
	if strings.HasPrefix(capability, "premium:") && capability != allPremiumGrant {
		kinds = append(kinds, allPremiumGrant)
	}
	for _, kind := range kinds {
		ok, err := g.Grants.HasActive(ctx, userID, kind)
		if err != nil {
			g.log.Warn("[GATE] grant read failed, denying", "user_id", userID, "capability", capability, "error", err)
			return false
		}
		if ok {
			return true
		}
	}
	return false
}

// RequiredTierFor is the minimum tier that may attempt a puzzle difficulty.
func RequiredTierFor(d models.Difficulty) models.Tier {
	switch d {
	case models.DifficultyApprentice:
		return models.TierApprentice
	case models.DifficultyVirtuoso:
		return models.TierArtist
	case models.DifficultyMaster:
		return models.TierMaster
	default:
		return models.TierBeginner
	}
}

func (g *Gate) CanAttemptDifficulty(ctx context.Context, userID string, d models.Difficulty) bool {
	return g.HasTier(ctx, userID, RequiredTierFor(d))
}
