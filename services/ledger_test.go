package services

import (
	"context"
	"sync"
	"testing"

	"circle-progression-system/models"
	"circle-progression-system/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAwardPromotesAndAudits(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.engine.Ledger.Award(ctx, "u1", 120, "admin:grant", models.Metadata{"note": "welcome"})
	require.NoError(t, err)
	assert.Equal(t, AwardResult{NewPoints: 120, NewTier: models.TierApprentice, PreviousTier: models.TierBeginner, Promoted: true}, res)

	prog := testutil.LoadProgress(t, f.db, "u1")
	assert.Equal(t, int64(120), prog.Points)
	assert.Equal(t, models.TierApprentice, prog.Tier)
	require.NotNil(t, prog.LastTierUpAt)
	assert.True(t, prog.LastTierUpAt.Equal(testEpoch))

	var entry models.PointsLedgerEntry
	require.NoError(t, f.db.Where("external_user_id = ?", "u1").First(&entry).Error)
	assert.Equal(t, int64(120), entry.Delta)
	assert.Equal(t, int64(120), entry.BalanceAfter)
	assert.Equal(t, models.TierBeginner, entry.TierBefore)
	assert.Equal(t, models.TierApprentice, entry.TierAfter)
	assert.Equal(t, "welcome", entry.Metadata["note"])

	res, err = f.engine.Ledger.Award(ctx, "u1", 10, "admin:grant", nil)
	require.NoError(t, err)
	assert.False(t, res.Promoted)
	assert.Equal(t, int64(130), res.NewPoints)
}

func TestAwardRejectsNegativeDelta(t *testing.T) {
	f := newFixture(t, nil)
	testutil.SeedProgress(t, f.db, "u1", 50)

	_, err := f.engine.Ledger.Award(context.Background(), "u1", -10, "admin:correction", nil)

	var inv *InvariantError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, int64(50), testutil.LoadProgress(t, f.db, "u1").Points)
	assert.Zero(t, testutil.Count(t, f.db, &models.PointsLedgerEntry{}, ""))
}

func TestAwardZeroWritesNoAudit(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.engine.Ledger.Award(context.Background(), "u1", 0, "admin:grant", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.NewPoints)
	assert.False(t, res.Promoted)
	assert.Zero(t, testutil.Count(t, f.db, &models.PointsLedgerEntry{}, ""))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, &models.UserProgress{}, "external_user_id = ?", "u1"))
}

func TestAwardValidatesInput(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.engine.Ledger.Award(context.Background(), "", 10, "admin:grant", nil)
	var v *ValidationError
	assert.ErrorAs(t, err, &v)

	_, err = f.engine.Ledger.Award(context.Background(), "u1", 10, "", nil)
	assert.ErrorAs(t, err, &v)
}

func TestTierIsMonotonicAndMatchesPoints(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	prev := models.TierBeginner
	for _, delta := range []int64{0, 99, 1, 399, 1000, 0, 3500, 10000, 7} {
		res, err := f.engine.Ledger.Award(ctx, "u1", delta, "admin:grant", nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.NewTier, prev)
		assert.Equal(t, models.TierForPoints(res.NewPoints), res.NewTier)
		prev = res.NewTier

		prog := testutil.LoadProgress(t, f.db, "u1")
		assert.Equal(t, models.TierForPoints(prog.Points), prog.Tier)
	}
	assert.Equal(t, models.TierCreator, prev)
}

func TestConcurrentAwardsDoNotLoseUpdates(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	testutil.SeedProgress(t, f.db, "u1", 0)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Ledger.Award(ctx, "u1", 25, "admin:grant", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	prog := testutil.LoadProgress(t, f.db, "u1")
	assert.Equal(t, int64(workers*25), prog.Points)
	assert.Equal(t, models.TierArtist, prog.Tier)
	assert.Equal(t, int64(workers), testutil.Count(t, f.db, &models.PointsLedgerEntry{}, "external_user_id = ?", "u1"))
}

func TestEnsureTierFloorTopsUpWithoutDowngrade(t *testing.T) {
	f := newFixture(t, nil)
	testutil.SeedProgress(t, f.db, "low", 120)
	testutil.SeedProgress(t, f.db, "high", 6000)

	err := f.engine.UoW.Do(context.Background(), func(tx *gorm.DB) error {
		res, err := f.engine.Ledger.EnsureTierFloorTx(tx, "low", models.TierMaster, "tier_floor:test", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1500), res.NewPoints)
		assert.True(t, res.Promoted)

		res, err = f.engine.Ledger.EnsureTierFloorTx(tx, "high", models.TierMaster, "tier_floor:test", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(6000), res.NewPoints)
		assert.Equal(t, models.TierVirtuoso, res.NewTier)
		assert.False(t, res.Promoted)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, models.TierMaster, testutil.LoadProgress(t, f.db, "low").Tier)
	assert.Equal(t, models.TierVirtuoso, testutil.LoadProgress(t, f.db, "high").Tier)
}
