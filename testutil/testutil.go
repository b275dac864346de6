// Package testutil provides an in-memory database and fixtures for package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"circle-progression-system/database"
	"circle-progression-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// NewDB opens a fresh, migrated in-memory SQLite database private to tb.
func NewDB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open("sqlite", dsn, gormLogger.Silent)
	if err != nil {
		tb.Fatalf("failed to open test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		tb.Fatalf("failed to migrate test db: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SeedProgress inserts a progress row with a consistent tier for points.
func SeedProgress(tb testing.TB, db *gorm.DB, userID string, points int64) *models.UserProgress {
	tb.Helper()
	prog := &models.UserProgress{
		ExternalUserID: userID,
		Points:         points,
		Tier:           models.TierForPoints(points),
	}
	if err := db.Create(prog).Error; err != nil {
		tb.Fatalf("seed progress: %v", err)
	}
	return prog
}

// SeedEvent appends an activity event directly, bypassing the activity log.
func SeedEvent(tb testing.TB, db *gorm.DB, userID, activityType string, md models.Metadata) *models.ActivityEvent {
	tb.Helper()
	ev := &models.ActivityEvent{
		ExternalUserID: userID,
		ActivityType:   activityType,
		OccurredAt:     time.Now().UTC(),
		Metadata:       md,
	}
	if err := db.Create(ev).Error; err != nil {
		tb.Fatalf("seed event: %v", err)
	}
	return ev
}

// SeedMember inserts a profile mirror row.
func SeedMember(tb testing.TB, db *gorm.DB, userID, username string) *models.Member {
	tb.Helper()
	m := &models.Member{ExternalUserID: userID, Username: username}
	if err := db.Create(m).Error; err != nil {
		tb.Fatalf("seed member: %v", err)
	}
	return m
}

// LoadProgress reads a user's progress row, failing the test if absent.
func LoadProgress(tb testing.TB, db *gorm.DB, userID string) models.UserProgress {
	tb.Helper()
	var prog models.UserProgress
	if err := db.Where("external_user_id = ?", userID).First(&prog).Error; err != nil {
		tb.Fatalf("load progress %s: %v", userID, err)
	}
	return prog
}

// Count returns the number of rows of model matching the optional condition.
func Count(tb testing.TB, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	tb.Helper()
	var n int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		tb.Fatalf("count: %v", err)
	}
	return n
}
