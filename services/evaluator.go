package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"circle-progression-system/catalog"
	"circle-progression-system/models"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Evaluation is the state of every unlockable for one user at one point in time.
// Every catalog id is in exactly one of Unlocked, Eligible and Locked.
type Evaluation struct {
	Unlocked []string       `json:"unlocked"`
	Eligible []string       `json:"eligible"`
	Locked   []string       `json:"locked"`
	Progress map[string]int `json:"progress"`
}

func (e Evaluation) IsUnlocked(id string) bool { return contains(e.Unlocked, id) }
func (e Evaluation) IsEligible(id string) bool { return contains(e.Eligible, id) }

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Evaluate is a pure function of the catalog, the user's unlock set and event history.
// Unlocked items report 100. Items with an unmet prerequisite report 0 whatever their
// requirement completion.
func Evaluate(cat *catalog.Catalog, unlocked map[string]bool, events []models.ActivityEvent) Evaluation {
	ev := Evaluation{
		Unlocked: []string{},
		Eligible: []string{},
		Locked:   []string{},
		Progress: make(map[string]int, cat.Len()),
	}
	for _, u := range cat.All() {
		if unlocked[u.ID] {
			ev.Unlocked = append(ev.Unlocked, u.ID)
			ev.Progress[u.ID] = 100
			continue
		}
		if !prerequisitesMet(u, unlocked) {
			ev.Locked = append(ev.Locked, u.ID)
			ev.Progress[u.ID] = 0
			continue
		}
		pct := percentComplete(u.Requirements, events)
		ev.Progress[u.ID] = pct
		if pct >= 100 {
			ev.Eligible = append(ev.Eligible, u.ID)
		} else {
			ev.Locked = append(ev.Locked, u.ID)
		}
	}
	return ev
}

func prerequisitesMet(u catalog.Unlockable, unlocked map[string]bool) bool {
	for _, p := range u.Prerequisites {
		if !unlocked[p] {
			return false
		}
	}
	return true
}

func percentComplete(reqs []catalog.Requirement, events []models.ActivityEvent) int {
	if len(reqs) == 0 {
		return 100
	}
	completed := 0
	for _, r := range reqs {
		if satisfied(r, events) {
			completed++
		}
	}
	return int(math.Round(100 * float64(completed) / float64(len(reqs))))
}

func satisfied(r catalog.Requirement, events []models.ActivityEvent) bool {
	need := catalog.Threshold(r)
	n := 0
	for _, e := range events {
		if matches(r, e) {
			n++
			if n >= need {
				return true
			}
		}
	}
	return false
}

func matches(r catalog.Requirement, e models.ActivityEvent) bool {
	switch req := r.(type) {
	case catalog.HasEventOfType:
		return e.ActivityType == req.ActivityType
	case catalog.HasEventWithMetadata:
		if e.ActivityType != req.ActivityType {
			return false
		}
		for k, want := range req.Metadata {
			got, ok := e.Metadata[k]
			if !ok || fmt.Sprint(got) != want {
				return false
			}
		}
		return true
	default:
		panic(fmt.Sprintf("unhandled requirement %T", r))
	}
}

// Evaluator loads authoritative state and runs Evaluate.
type Evaluator struct {
	DB      *gorm.DB
	Catalog *catalog.Catalog
}

func NewEvaluator(db *gorm.DB, cat *catalog.Catalog) *Evaluator {
	return &Evaluator{DB: db, Catalog: cat}
}

func (e *Evaluator) Evaluate(ctx context.Context, userID string) (Evaluation, error) {
	if userID == "" {
		return Evaluation{}, validationErr("user_id", "required")
	}
	start := time.Now()
	defer func() { evaluationDuration.Observe(time.Since(start).Seconds()) }()

	var (
		unlocked map[string]bool
		events   []models.ActivityEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		unlocked, err = unlockedSetTx(e.DB.WithContext(gctx), userID)
		return err
	})
	g.Go(func() error {
		var err error
		events, err = listEventsTx(e.DB.WithContext(gctx), userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Evaluation{}, classify("evaluate", err)
	}
	return Evaluate(e.Catalog, unlocked, events), nil
}

// evaluateTx reads state through tx, serially, for decisions made at commit time.
func (e *Evaluator) evaluateTx(tx *gorm.DB, userID string) (Evaluation, error) {
	unlocked, err := unlockedSetTx(tx, userID)
	if err != nil {
		return Evaluation{}, err
	}
	events, err := listEventsTx(tx, userID)
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluate(e.Catalog, unlocked, events), nil
}

func unlockedSetTx(tx *gorm.DB, userID string) (map[string]bool, error) {
	var ids []string
	if err := tx.Model(&models.UserUnlock{}).
		Where("external_user_id = ?", userID).
		Pluck("unlockable_id", &ids).Error; err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}
