package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"circle-progression-system/catalog"
	"circle-progression-system/models"
	"circle-progression-system/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstPortfolioScenario(t *testing.T) {
	f := newFixture(t, k1Catalog(t))
	ctx := context.Background()

	ev, err := f.engine.Evaluator.Evaluate(ctx, "U")
	require.NoError(t, err)
	assert.Equal(t, 0, ev.Progress["K1"])

	_, err = f.engine.Activity.Record(ctx, "U", "upload_portfolio", models.Metadata{})
	require.NoError(t, err)

	ev, err = f.engine.Evaluator.Evaluate(ctx, "U")
	require.NoError(t, err)
	assert.Equal(t, 100, ev.Progress["K1"])
	assert.Contains(t, ev.Eligible, "K1")

	out, err := f.engine.Coordinator.AttemptUnlock(ctx, "U", "K1")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, int64(100), out.PointsAwarded)
	assert.Equal(t, int64(100), testutil.LoadProgress(t, f.db, "U").Points)

	ev, err = f.engine.Evaluator.Evaluate(ctx, "U")
	require.NoError(t, err)
	assert.Contains(t, ev.Unlocked, "K1")

	again, err := f.engine.Coordinator.AttemptUnlock(ctx, "U", "K1")
	require.NoError(t, err)
	assert.False(t, again.Success)
	assert.True(t, again.AlreadyUnlocked)
	assert.Equal(t, ReasonAlreadyUnlocked, again.Reason)
	assert.Equal(t, int64(100), testutil.LoadProgress(t, f.db, "U").Points)
	assert.Equal(t, int64(1), testutil.Count(t, f.db, &models.UserUnlock{}, "external_user_id = ?", "U"))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, &models.PointsLedgerEntry{}, "external_user_id = ?", "U"))
}

func TestConcurrentUnlockHasOneWinner(t *testing.T) {
	f := newFixture(t, k1Catalog(t))
	ctx := context.Background()
	testutil.SeedEvent(t, f.db, "U", "upload_portfolio", nil)

	const racers = 8
	outcomes := make([]UnlockOutcome, racers)
	errs := make([]error, racers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			outcomes[i], errs[i] = f.engine.Coordinator.AttemptUnlock(ctx, "U", "K1")
		}(i)
	}
	close(start)
	wg.Wait()

	wins, already := 0, 0
	for i := range outcomes {
		require.NoError(t, errs[i])
		if outcomes[i].Success {
			wins++
		}
		if outcomes[i].AlreadyUnlocked {
			already++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, already)
	assert.Equal(t, int64(100), testutil.LoadProgress(t, f.db, "U").Points)
	assert.Equal(t, int64(1), testutil.Count(t, f.db, &models.PointsLedgerEntry{}, "external_user_id = ?", "U"))
}

func TestAttemptUnlockRuleOutcomes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out, err := f.engine.Coordinator.AttemptUnlock(ctx, "u1", "quantum_observer")
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, ReasonPrerequisitesNotMet, out.Reason)
	assert.Equal(t, 0, out.Progress)

	testutil.SeedEvent(t, f.db, "u1", "puzzle_solved:carnatic_sequence", nil)
	out, err = f.engine.Coordinator.AttemptUnlock(ctx, "u1", "first_note")
	require.NoError(t, err)
	assert.Equal(t, ReasonRequirementsIncomplete, out.Reason)
	assert.Equal(t, 50, out.Progress)

	assert.Zero(t, testutil.Count(t, f.db, &models.UserUnlock{}, ""))
	assert.Zero(t, testutil.LoadProgress(t, f.db, "u1").Points)
}

func TestAttemptUnlockUnknownID(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.engine.Coordinator.AttemptUnlock(context.Background(), "u1", "does_not_exist")
	var v *ValidationError
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "unlockable_id", v.Field)
}

func TestUnlockAppliesTierFloorAndGrants(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// first_note: 100 points
	require.NoError(t, f.db.Create(&models.UserUnlock{ExternalUserID: "u1", UnlockableID: "first_note", Category: "art_key", UnlockedAt: testEpoch}).Error)
	testutil.SeedProgress(t, f.db, "u1", 100)
	testutil.SeedEvent(t, f.db, "u1", "puzzle_solved:quantum_cipher", nil)
	testutil.SeedEvent(t, f.db, "u1", "content_read", models.Metadata{"topic": "quantum"})
	testutil.SeedEvent(t, f.db, "u1", "meditation_challenge", nil)

	out, err := f.engine.Coordinator.AttemptUnlock(ctx, "u1", "quantum_observer")
	require.NoError(t, err)
	require.True(t, out.Success)

	// 100 + 250 = 350, below artist: the floor tops up to 500.
	prog := testutil.LoadProgress(t, f.db, "u1")
	assert.Equal(t, int64(500), prog.Points)
	assert.Equal(t, models.TierArtist, prog.Tier)
	assert.Equal(t, int64(1), prog.TotalUnlocks)
	assert.Equal(t, int64(400), out.PointsAwarded)
	assert.True(t, out.Award.Promoted)
	assert.Equal(t, "artist", out.Rewards.TierFloor)

	var row models.UserUnlock
	require.NoError(t, f.db.Where("external_user_id = ? AND unlockable_id = ?", "u1", "quantum_observer").First(&row).Error)
	assert.Equal(t, int64(400), row.PointsAwarded)

	grants, err := f.engine.Grants.Active(ctx, "u1")
	require.NoError(t, err)
	kinds := make([]string, 0, len(grants))
	for _, g := range grants {
		kinds = append(kinds, g.Kind)
		assert.Equal(t, "quantum_observer", g.SourceUnlockableID)
		assert.Nil(t, g.ExpiresAt)
	}
	assert.ElementsMatch(t, []string{"premium:quantum_philosophy_texts", "premium:consciousness_tools", "ability:pattern_recognition_boost"}, kinds)
}

func TestUnlockEligibleSkipsArtKeys(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	testutil.SeedEvent(t, f.db, "u1", "portfolio_upload", models.Metadata{"category": "music"})
	testutil.SeedEvent(t, f.db, "u1", "puzzle_solved:carnatic_sequence", nil)

	unlocked, err := f.engine.Coordinator.UnlockEligible(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, unlocked, 1)
	assert.Equal(t, "first_steps_sa", unlocked[0].UnlockableID)

	ev, err := f.engine.Evaluator.Evaluate(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, ev.Eligible, "first_note", "art keys wait for an explicit unlock")
	assert.Equal(t, int64(50), testutil.LoadProgress(t, f.db, "u1").Points)

	again, err := f.engine.Coordinator.UnlockEligible(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestTimeBoxedGrantExpires(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	testutil.SeedEvent(t, f.db, "u1", "content_read", models.Metadata{"topic": "quantum"})
	testutil.SeedEvent(t, f.db, "u1", "puzzle_solved:quantum_cipher", nil)

	out, err := f.engine.Coordinator.AttemptUnlock(ctx, "u1", "quantum_apprentice")
	require.NoError(t, err)
	require.True(t, out.Success)

	ok, err := f.engine.Grants.HasActive(ctx, "u1", "premium:quantum_basics_course")
	require.NoError(t, err)
	assert.True(t, ok)

	f.clock.Advance(721 * time.Hour)
	ok, err = f.engine.Grants.HasActive(ctx, "u1", "premium:quantum_basics_course")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.engine.Grants.HasActive(ctx, "u1", "ability:quantum_insight_mode")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGrantKeepsLaterExpiry(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	long := []catalog.CapabilityReward{{Kind: "premium:x", TTL: 48 * time.Hour}}
	short := []catalog.CapabilityReward{{Kind: "premium:x", TTL: time.Hour}}

	require.NoError(t, f.engine.Grants.Grant(ctx, "u1", "a", long))
	require.NoError(t, f.engine.Grants.Grant(ctx, "u1", "b", short))

	var g models.CapabilityGrant
	require.NoError(t, f.db.Where("external_user_id = ? AND kind = ?", "u1", "premium:x").First(&g).Error)
	require.NotNil(t, g.ExpiresAt)
	assert.True(t, g.ExpiresAt.Equal(testEpoch.Add(48*time.Hour)))
	assert.Equal(t, "a", g.SourceUnlockableID)

	require.NoError(t, f.engine.Grants.Grant(ctx, "u1", "c", []catalog.CapabilityReward{{Kind: "premium:x"}}))
	require.NoError(t, f.db.Where("external_user_id = ? AND kind = ?", "u1", "premium:x").First(&g).Error)
	assert.Nil(t, g.ExpiresAt)
	assert.Equal(t, int64(1), testutil.Count(t, f.db, &models.CapabilityGrant{}, ""))
}

func TestReconcileGrantsBackfillsMissingRows(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	// An unlock committed whose grants never landed.
	require.NoError(t, f.db.Create(&models.UserUnlock{ExternalUserID: "u1", UnlockableID: "first_note", Category: "art_key", UnlockedAt: testEpoch}).Error)

	repaired, err := f.engine.Coordinator.ReconcileGrants(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repaired)

	repaired, err = f.engine.Coordinator.ReconcileGrants(ctx)
	require.NoError(t, err)
	assert.Zero(t, repaired)
}

func TestFailedGrantKeepsUnlockAndIsReconciled(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	testutil.SeedEvent(t, f.db, "u1", "content_read", models.Metadata{"topic": "quantum"})
	testutil.SeedEvent(t, f.db, "u1", "puzzle_solved:quantum_cipher", nil)

	// Grants fail after the unlock commits.
	require.NoError(t, f.db.Migrator().DropTable(&models.CapabilityGrant{}))

	out, err := f.engine.Coordinator.AttemptUnlock(ctx, "u1", "quantum_apprentice")
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.Equal(t, int64(150), out.PointsAwarded)

	assert.Equal(t, int64(1), testutil.Count(t, f.db, &models.UserUnlock{}, "external_user_id = ? AND unlockable_id = ?", "u1", "quantum_apprentice"))
	assert.Equal(t, int64(150), testutil.LoadProgress(t, f.db, "u1").Points)

	require.NoError(t, f.db.AutoMigrate(&models.CapabilityGrant{}))
	f.clock.Advance(time.Hour)

	repaired, err := f.engine.Coordinator.ReconcileGrants(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repaired)

	var g models.CapabilityGrant
	require.NoError(t, f.db.Where("external_user_id = ? AND kind = ?", "u1", "premium:quantum_basics_course").First(&g).Error)
	require.NotNil(t, g.ExpiresAt)
	assert.True(t, g.ExpiresAt.Equal(testEpoch.Add(720*time.Hour)), "window runs from the unlock, not the repair")
	ok, err := f.engine.Grants.HasActive(ctx, "u1", "ability:quantum_insight_mode")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReconcileGrantsChecksEachUnlockWindow(t *testing.T) {
	req := []catalog.Requirement{catalog.HasEventOfType{ActivityType: "upload_portfolio"}}
	cat, err := catalog.New([]catalog.Unlockable{
		{ID: "short", Name: "Short", Category: catalog.CategoryAchievement, Requirements: req,
			Rewards: catalog.Rewards{Capabilities: []catalog.CapabilityReward{{Kind: "premium:x", TTL: time.Hour}}}},
		{ID: "long", Name: "Long", Category: catalog.CategoryAchievement, Requirements: req,
			Rewards: catalog.Rewards{Capabilities: []catalog.CapabilityReward{{Kind: "premium:x", TTL: 48 * time.Hour}}}},
		{ID: "stale", Name: "Stale", Category: catalog.CategoryAchievement, Requirements: req,
			Rewards: catalog.Rewards{Capabilities: []catalog.CapabilityReward{{Kind: "premium:y", TTL: time.Hour}}}},
	})
	require.NoError(t, err)
	f := newFixture(t, cat)
	ctx := context.Background()

	for _, id := range []string{"short", "long"} {
		require.NoError(t, f.db.Create(&models.UserUnlock{ExternalUserID: "u1", UnlockableID: id, Category: "achievement", UnlockedAt: testEpoch}).Error)
	}
	require.NoError(t, f.db.Create(&models.UserUnlock{ExternalUserID: "u1", UnlockableID: "stale", Category: "achievement", UnlockedAt: testEpoch.Add(-2 * time.Hour)}).Error)
	// Only the short unlock's grant landed.
	require.NoError(t, f.engine.Grants.Grant(ctx, "u1", "short", []catalog.CapabilityReward{{Kind: "premium:x", TTL: time.Hour}}))

	repaired, err := f.engine.Coordinator.ReconcileGrants(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	var g models.CapabilityGrant
	require.NoError(t, f.db.Where("external_user_id = ? AND kind = ?", "u1", "premium:x").First(&g).Error)
	require.NotNil(t, g.ExpiresAt)
	assert.True(t, g.ExpiresAt.Equal(testEpoch.Add(48*time.Hour)))
	assert.Equal(t, "long", g.SourceUnlockableID)
	assert.Zero(t, testutil.Count(t, f.db, &models.CapabilityGrant{}, "kind = ?", "premium:y"), "closed windows are not re-granted")

	repaired, err = f.engine.Coordinator.ReconcileGrants(ctx)
	require.NoError(t, err)
	assert.Zero(t, repaired)
}

func TestRecordUse(t *testing.T) {
	f := newFixture(t, k1Catalog(t))
	ctx := context.Background()

	_, err := f.engine.Coordinator.RecordUse(ctx, "U", "K1")
	var rule *BusinessRuleError
	require.ErrorAs(t, err, &rule)
	assert.Equal(t, ReasonNotUnlocked, rule.Reason)

	testutil.SeedEvent(t, f.db, "U", "upload_portfolio", nil)
	_, err = f.engine.Coordinator.AttemptUnlock(ctx, "U", "K1")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	row, err := f.engine.Coordinator.RecordUse(ctx, "U", "K1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), row.UsageCount)
	require.NotNil(t, row.LastUsedAt)
	assert.True(t, row.LastUsedAt.Equal(testEpoch.Add(time.Minute)))

	row, err = f.engine.Coordinator.RecordUse(ctx, "U", "K1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), row.UsageCount)
}
