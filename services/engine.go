package services

import (
	"time"

	"circle-progression-system/catalog"
	"circle-progression-system/logger"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

type EngineOptions struct {
	Cache             ProgressCache
	Clock             clockwork.Clock
	PuzzleSalt        string
	PuzzleMaxAttempts int
	Presigner         Presigner // nil disables premium links
	PremiumURLTTL     time.Duration
}

// Engine wires the progression services around one database and catalog.
type Engine struct {
	Catalog     *catalog.Catalog
	UoW         *UnitOfWork
	Activity    *ActivityLog
	Ledger      *Ledger
	Evaluator   *Evaluator
	Grants      *GrantService
	Coordinator *UnlockCoordinator
	Progression *ProgressionService
	Gate        *Gate
	Puzzles     *PuzzleService
	EasterEggs  *EasterEggService
	Premium     *PremiumService
}

func NewEngine(db *gorm.DB, cat *catalog.Catalog, log *logger.Logger, opts EngineOptions) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Cache == nil {
		opts.Cache = NopCache{}
	}

	uow := NewUnitOfWork(db)
	activity := NewActivityLog(db, opts.Clock, log)
	ledger := NewLedger(uow, opts.Cache, opts.Clock, log)
	evaluator := NewEvaluator(db, cat)
	grants := NewGrantService(db, opts.Clock, log)
	coord := NewUnlockCoordinator(uow, cat, evaluator, ledger, grants, opts.Cache, opts.Clock, log)
	progression := NewProgressionService(db, opts.Cache, grants, opts.Clock, log)
	gate := NewGate(progression, grants, log)

	e := &Engine{
		Catalog:     cat,
		UoW:         uow,
		Activity:    activity,
		Ledger:      ledger,
		Evaluator:   evaluator,
		Grants:      grants,
		Coordinator: coord,
		Progression: progression,
		Gate:        gate,
		Puzzles:     NewPuzzleService(uow, activity, ledger, gate, opts.Clock, opts.PuzzleSalt, opts.PuzzleMaxAttempts, log),
		EasterEggs:  NewEasterEggService(cat, activity, coord, opts.Clock, log),
	}
	if opts.Presigner != nil {
		e.Premium = NewPremiumService(gate, opts.Presigner, opts.PremiumURLTTL, log)
	}
	return e
}
