package services

import (
	"testing"
	"time"

	"circle-progression-system/catalog"
	"circle-progression-system/logger"
	"circle-progression-system/testutil"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSalt = "test-salt"

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	engine *Engine
	db     *gorm.DB
	clock  *clockwork.FakeClock
}

func newFixture(t *testing.T, cat *catalog.Catalog) fixture {
	t.Helper()
	if cat == nil {
		var err error
		cat, err = catalog.LoadDefault()
		require.NoError(t, err)
	}
	db := testutil.NewDB(t)
	clock := clockwork.NewFakeClockAt(testEpoch)
	e := NewEngine(db, cat, logger.NewNop(), EngineOptions{
		Clock:      clock,
		PuzzleSalt: testSalt,
	})
	return fixture{engine: e, db: db, clock: clock}
}

// k1Catalog is the single-item catalog used by the reference scenario.
func k1Catalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.Unlockable{{
		ID:           "K1",
		Name:         "First Portfolio",
		Category:     catalog.CategoryArtKey,
		Requirements: []catalog.Requirement{catalog.HasEventOfType{ActivityType: "upload_portfolio"}},
		Rewards:      catalog.Rewards{Points: 100},
	}})
	require.NoError(t, err)
	return cat
}
