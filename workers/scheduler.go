// workers/scheduler.go
package workers

import (
	"context"
	"fmt"
	"time"

	"circle-progression-system/logger"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// PuzzleSweeper deletes puzzles that can no longer be solved.
type PuzzleSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// GrantReconciler re-issues capability grants missing for existing unlocks.
type GrantReconciler interface {
	ReconcileGrants(ctx context.Context) (int, error)
}

const (
	PuzzleSweepInterval    = time.Minute
	GrantReconcileInterval = 5 * time.Minute
)

// MaintenanceScheduler runs the periodic housekeeping jobs. It never evaluates unlocks.
type MaintenanceScheduler struct {
	sched      gocron.Scheduler
	sweeper    PuzzleSweeper
	reconciler GrantReconciler
	log        *logger.Logger
}

func NewMaintenanceScheduler(sweeper PuzzleSweeper, reconciler GrantReconciler, clock clockwork.Clock, log *logger.Logger) (*MaintenanceScheduler, error) {
	log = log.With("worker", "MaintenanceScheduler")
	sched, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLogger(log),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	m := &MaintenanceScheduler{sched: sched, sweeper: sweeper, reconciler: reconciler, log: log}

	if _, err := sched.NewJob(
		gocron.DurationJob(PuzzleSweepInterval),
		gocron.NewTask(m.sweepPuzzles),
		gocron.WithName("puzzle-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, fmt.Errorf("schedule puzzle sweep: %w", err)
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(GrantReconcileInterval),
		gocron.NewTask(m.reconcileGrants),
		gocron.WithName("grant-reconcile"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	); err != nil {
		return nil, fmt.Errorf("schedule grant reconcile: %w", err)
	}

	return m, nil
}

func (m *MaintenanceScheduler) Start() {
	m.log.Info("⏰ [SCHEDULER] starting", "jobs", len(m.sched.Jobs()))
	m.sched.Start()
}

func (m *MaintenanceScheduler) Shutdown() error {
	return m.sched.Shutdown()
}

func (m *MaintenanceScheduler) sweepPuzzles(ctx context.Context) {
	n, err := m.sweeper.SweepExpired(ctx)
	if err != nil {
		m.log.Error("❌ [SCHEDULER] puzzle sweep failed", "error", err)
		return
	}
	if n > 0 {
		m.log.Info("🧹 [SCHEDULER] swept puzzles", "deleted", n)
	}
}

func (m *MaintenanceScheduler) reconcileGrants(ctx context.Context) {
	n, err := m.reconciler.ReconcileGrants(ctx)
	if err != nil {
		m.log.Error("❌ [SCHEDULER] grant reconcile failed", "error", err)
		return
	}
	if n > 0 {
		m.log.Info("✅ [SCHEDULER] re-issued capability grants", "unlocks", n)
	}
}
