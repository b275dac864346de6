package services

import (
	"context"
	"testing"
	"time"

	"circle-progression-system/catalog"
	"circle-progression-system/models"
	"circle-progression-system/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerDiscoversEggOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out, err := f.engine.EasterEggs.Trigger(ctx, "u1", catalog.TriggerTextSequence, "sa sa SA  sa sa")
	require.NoError(t, err)
	assert.True(t, out.Triggered)
	assert.Equal(t, "carnatic_sa_meditation", out.EggID)
	require.NotNil(t, out.Unlock)
	assert.True(t, out.Unlock.Success)
	assert.Equal(t, int64(100), testutil.LoadProgress(t, f.db, "u1").Points)

	again, err := f.engine.EasterEggs.Trigger(ctx, "u1", catalog.TriggerTextSequence, "Sa Sa Sa Sa Sa")
	require.NoError(t, err)
	assert.True(t, again.Triggered)
	assert.Equal(t, ReasonAlreadyUnlocked, again.Reason)
	assert.Equal(t, int64(100), testutil.LoadProgress(t, f.db, "u1").Points)
	assert.Equal(t, int64(1), testutil.Count(t, f.db, &models.ActivityEvent{}, "activity_type = ?", "easter_egg:carnatic_sa_meditation"))
}

func TestTriggerKonamiFeedsArtKeyRequirement(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out, err := f.engine.EasterEggs.Trigger(ctx, "u1", catalog.TriggerKonamiCode, "↑↑↓↓←→←→ba")
	require.NoError(t, err)
	require.True(t, out.Unlock.Success)

	// hidden_path_finder stays locked behind quantum_observer, but its konami
	// requirement is now satisfied in the log.
	require.NoError(t, f.db.Create(&models.UserUnlock{ExternalUserID: "u1", UnlockableID: "quantum_observer", Category: "art_key", UnlockedAt: testEpoch}).Error)
	ev, err := f.engine.Evaluator.Evaluate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 33, ev.Progress["hidden_path_finder"])
}

func TestTriggerNoMatch(t *testing.T) {
	f := newFixture(t, nil)

	out, err := f.engine.EasterEggs.Trigger(context.Background(), "u1", catalog.TriggerClickPattern, "double_click_corner")
	require.NoError(t, err)
	assert.False(t, out.Triggered)
	assert.Equal(t, ReasonNoMatch, out.Reason)
	assert.Zero(t, testutil.Count(t, f.db, &models.ActivityEvent{}, ""))

	_, err = f.engine.EasterEggs.Trigger(context.Background(), "u1", "shake", "x")
	var v *ValidationError
	assert.ErrorAs(t, err, &v)
}

func TestTimeBasedTriggerUsesServerClock(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out, err := f.engine.EasterEggs.Trigger(ctx, "u1", catalog.TriggerTimeBased, "00:00:00")
	require.NoError(t, err)
	assert.False(t, out.Triggered, "client-supplied time is ignored")

	f.clock.Advance(12*time.Hour + 30*time.Second) // 00:00:30 next day
	out, err = f.engine.EasterEggs.Trigger(ctx, "u1", catalog.TriggerTimeBased, "")
	require.NoError(t, err)
	assert.True(t, out.Triggered)
	assert.Equal(t, "lotus_midnight_bloom", out.EggID)

	ok, err := f.engine.Grants.HasActive(ctx, "u1", "ability:lotus_theme")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHintsAndDiscovered(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	hints, err := f.engine.EasterEggs.Hints(ctx, "u1")
	require.NoError(t, err)
	total := 0
	for _, h := range hints {
		total += h.Undiscovered
	}
	assert.Equal(t, 5, total)

	_, err = f.engine.EasterEggs.Trigger(ctx, "u1", catalog.TriggerClickPattern, "triple_click_center")
	require.NoError(t, err)

	hints, err = f.engine.EasterEggs.Hints(ctx, "u1")
	require.NoError(t, err)
	for _, h := range hints {
		assert.NotEqual(t, catalog.TriggerClickPattern, h.Method)
	}

	found, err := f.engine.EasterEggs.Discovered(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "precision_triple_click", found[0].ID)
}
