package services

import (
	"context"
	"strings"
	"unicode"

	"circle-progression-system/catalog"
	"circle-progression-system/logger"
	"circle-progression-system/models"

	"github.com/jonboulle/clockwork"
	"golang.org/x/text/cases"
	"gorm.io/gorm"
)

type TriggerOutcome struct {
	Triggered bool           `json:"triggered"`
	Reason    Reason         `json:"reason,omitempty"`
	EggID     string         `json:"egg_id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Unlock    *UnlockOutcome `json:"unlock,omitempty"`
}

type EggHint struct {
	Method       catalog.TriggerMethod `json:"method"`
	Undiscovered int                   `json:"undiscovered"`
	Hints        []string              `json:"hints"`
}

// EasterEggService matches client triggers against the catalog's easter eggs.
type EasterEggService struct {
	Catalog     *catalog.Catalog
	Activity    *ActivityLog
	Coordinator *UnlockCoordinator
	Clock       clockwork.Clock
	log         *logger.Logger
}

func NewEasterEggService(cat *catalog.Catalog, activity *ActivityLog, coord *UnlockCoordinator, clock clockwork.Clock, log *logger.Logger) *EasterEggService {
	return &EasterEggService{Catalog: cat, Activity: activity, Coordinator: coord, Clock: clock, log: log.With("service", "EasterEggService")}
}

// normalizeTrigger folds case and drops whitespace so "sa sa  SA" style input compares
// equal to its pattern.
func normalizeTrigger(s string) string {
	s = cases.Fold().String(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func (s *EasterEggService) matches(egg catalog.Unlockable, payload string) bool {
	if egg.Trigger.Method == catalog.TriggerTimeBased {
		// The server clock decides; the payload is ignored.
		now := s.Clock.Now().UTC().Format("15:04:05")
		return strings.HasPrefix(now, egg.Trigger.Pattern)
	}
	return normalizeTrigger(payload) == normalizeTrigger(egg.Trigger.Pattern)
}

// Trigger records easter_egg:<id> for the first egg whose pattern matches and attempts
// its unlock in the same transaction. Re-triggering a discovered egg reports
// already_unlocked and records nothing.
func (s *EasterEggService) Trigger(ctx context.Context, userID string, method catalog.TriggerMethod, payload string) (TriggerOutcome, error) {
	if userID == "" {
		return TriggerOutcome{}, validationErr("user_id", "required")
	}
	if !method.Valid() {
		return TriggerOutcome{}, validationErr("method", "unknown trigger method %q", method)
	}

	var egg *catalog.Unlockable
	for _, candidate := range s.Catalog.EasterEggs(method) {
		if s.matches(candidate, payload) {
			c := candidate
			egg = &c
			break
		}
	}
	if egg == nil {
		return TriggerOutcome{Reason: ReasonNoMatch}, nil
	}

	out := TriggerOutcome{Triggered: true, EggID: egg.ID, Name: egg.Name}
	var unlock UnlockOutcome
	err := s.Coordinator.UoW.Do(ctx, func(tx *gorm.DB) error {
		unlocked, err := unlockedSetTx(tx, userID)
		if err != nil {
			return err
		}
		if unlocked[egg.ID] {
			unlock = UnlockOutcome{UnlockableID: egg.ID, Category: string(egg.Category), AlreadyUnlocked: true, Reason: ReasonAlreadyUnlocked, Progress: 100}
			return nil
		}
		if _, err := s.Activity.RecordTx(tx, userID, "easter_egg:"+egg.ID, models.Metadata{"method": string(method)}); err != nil {
			return err
		}
		unlock, err = s.Coordinator.attemptTx(tx, userID, *egg)
		return err
	})
	if err != nil {
		return TriggerOutcome{}, classify("trigger easter egg", err)
	}
	s.Coordinator.afterCommit(ctx, userID, *egg, unlock)

	out.Unlock = &unlock
	if !unlock.Success {
		out.Reason = unlock.Reason
	}
	s.log.Info("[EGG] triggered", "user_id", userID, "egg_id", egg.ID, "unlocked", unlock.Success)
	return out, nil
}

type DiscoveredEgg struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	DiscoveredAt string `json:"discovered_at"`
}

// Discovered lists the eggs the user has unlocked.
func (s *EasterEggService) Discovered(ctx context.Context, userID string) ([]DiscoveredEgg, error) {
	rows, err := s.Coordinator.Unlocks(ctx, userID, catalog.CategoryEasterEgg)
	if err != nil {
		return nil, err
	}
	out := make([]DiscoveredEgg, 0, len(rows))
	for _, r := range rows {
		egg, ok := s.Catalog.Get(r.UnlockableID)
		if !ok {
			continue
		}
		out = append(out, DiscoveredEgg{
			ID:           egg.ID,
			Name:         egg.Name,
			Description:  egg.Description,
			DiscoveredAt: r.UnlockedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return out, nil
}

// Hints returns, per trigger method, how many eggs remain undiscovered and their hints.
// Patterns are never exposed.
func (s *EasterEggService) Hints(ctx context.Context, userID string) ([]EggHint, error) {
	rows, err := s.Coordinator.Unlocks(ctx, userID, catalog.CategoryEasterEgg)
	if err != nil {
		return nil, err
	}
	found := make(map[string]bool, len(rows))
	for _, r := range rows {
		found[r.UnlockableID] = true
	}

	methods := []catalog.TriggerMethod{
		catalog.TriggerKonamiCode,
		catalog.TriggerTextSequence,
		catalog.TriggerClickPattern,
		catalog.TriggerTimeBased,
		catalog.TriggerQuantumAlignment,
	}
	out := make([]EggHint, 0, len(methods))
	for _, m := range methods {
		h := EggHint{Method: m, Hints: []string{}}
		for _, egg := range s.Catalog.EasterEggs(m) {
			if found[egg.ID] {
				continue
			}
			h.Undiscovered++
			if egg.Hint != "" {
				h.Hints = append(h.Hints, egg.Hint)
			}
		}
		if h.Undiscovered > 0 {
			out = append(out, h)
		}
	}
	return out, nil
}
