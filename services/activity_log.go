package services

import (
	"context"
	"regexp"
	"strings"

	"circle-progression-system/logger"
	"circle-progression-system/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

var activityTypePattern = regexp.MustCompile(`^[a-z0-9_]+(:[a-z0-9_]+)?$`)

const maxActivityTypeLen = 64

// Reserved prefixes are written only by the puzzle verifier and the easter-egg trigger.
var reservedActivityPrefixes = []string{"puzzle_solved:", "easter_egg:"}

// ActivityLog appends immutable activity events. It is the only input the evaluator reads.
type ActivityLog struct {
	DB    *gorm.DB
	Clock clockwork.Clock
	log   *logger.Logger
}

func NewActivityLog(db *gorm.DB, clock clockwork.Clock, log *logger.Logger) *ActivityLog {
	return &ActivityLog{DB: db, Clock: clock, log: log.With("service", "ActivityLog")}
}

// ValidateActivityType reports whether t is a well-formed activity type.
func ValidateActivityType(t string) error {
	if t == "" {
		return validationErr("activity_type", "required")
	}
	if len(t) > maxActivityTypeLen {
		return validationErr("activity_type", "longer than %d characters", maxActivityTypeLen)
	}
	if !activityTypePattern.MatchString(t) {
		return validationErr("activity_type", "%q is not of the form name or name:qualifier", t)
	}
	return nil
}

// RecordExternal records a client-reported event. Reserved activity types are refused.
func (a *ActivityLog) RecordExternal(ctx context.Context, userID, activityType string, md models.Metadata) (string, error) {
	for _, prefix := range reservedActivityPrefixes {
		if strings.HasPrefix(activityType, prefix) {
			return "", validationErr("activity_type", "%q is reserved for server-verified events", activityType)
		}
	}
	return a.Record(ctx, userID, activityType, md)
}

// Record appends one event and returns its id.
func (a *ActivityLog) Record(ctx context.Context, userID, activityType string, md models.Metadata) (string, error) {
	var id string
	err := a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		id, err = a.RecordTx(tx, userID, activityType, md)
		return err
	})
	if err != nil {
		return "", classify("record activity", err)
	}
	a.log.Debug("[ACTIVITY] recorded", "user_id", userID, "activity_type", activityType, "event_id", id)
	return id, nil
}

// RecordTx appends an event inside the caller's transaction.
func (a *ActivityLog) RecordTx(tx *gorm.DB, userID, activityType string, md models.Metadata) (string, error) {
	if userID == "" {
		return "", validationErr("user_id", "required")
	}
	if err := ValidateActivityType(activityType); err != nil {
		return "", err
	}
	if err := ensureProgressTx(tx, userID); err != nil {
		return "", err
	}

	ev := models.ActivityEvent{
		ExternalUserID: userID,
		ActivityType:   activityType,
		OccurredAt:     a.Clock.Now().UTC(),
		Metadata:       md,
	}
	if err := tx.Create(&ev).Error; err != nil {
		return "", err
	}
	return ev.ID, nil
}

// ListForUser returns the user's full history, oldest first.
func (a *ActivityLog) ListForUser(ctx context.Context, userID string) ([]models.ActivityEvent, error) {
	events, err := listEventsTx(a.DB.WithContext(ctx), userID)
	if err != nil {
		return nil, classify("list activity", err)
	}
	return events, nil
}

func listEventsTx(tx *gorm.DB, userID string) ([]models.ActivityEvent, error) {
	var events []models.ActivityEvent
	err := tx.Where("external_user_id = ?", userID).
		Order("occurred_at ASC, id ASC").
		Find(&events).Error
	return events, err
}

type ActivityPage struct {
	Events     []models.ActivityEvent `json:"events"`
	Page       int                    `json:"page"`
	Size       int                    `json:"size"`
	TotalItems int64                  `json:"total_items"`
}

// History pages through the user's events, newest first.
func (a *ActivityLog) History(ctx context.Context, userID string, page, size int) (*ActivityPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	db := a.DB.WithContext(ctx)
	var total int64
	if err := db.Model(&models.ActivityEvent{}).Where("external_user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, classify("activity history", err)
	}
	var events []models.ActivityEvent
	if err := db.Where("external_user_id = ?", userID).
		Order("occurred_at DESC, id DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&events).Error; err != nil {
		return nil, classify("activity history", err)
	}
	return &ActivityPage{Events: events, Page: page, Size: size, TotalItems: total}, nil
}
