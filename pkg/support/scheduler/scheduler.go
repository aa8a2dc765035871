// Package scheduler runs the periodic tracker sync. Uses robfig/cron
// for cron expression parsing and execution; the job is skipped while a
// previous pass is still running.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/christried/GilgesBA/pkg/support/escalate"
)

// syncTimeout caps a single bulk sync pass.
const syncTimeout = 10 * time.Minute

// Syncer is the dispatcher surface the scheduler drives.
type Syncer interface {
	SyncAll(ctx context.Context) (*escalate.Report, error)
}

// Scheduler triggers bulk tracker syncs on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	syncer   Syncer
	schedule string
	logger   *slog.Logger

	// running guards against overlapping passes when a sync outlasts
	// the cron period.
	running bool
	mu      sync.Mutex
}

// New creates a Scheduler for the given cron expression. Standard
// 5-field expressions and shorthands like "@hourly" are accepted.
func New(schedule string, syncer Syncer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		cron:     cron.New(),
		syncer:   syncer,
		schedule: schedule,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start registers the sync job and begins the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() { s.runSync(ctx) })
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("tracker sync scheduled", "schedule", s.schedule)
	return nil
}

// Stop halts the cron loop and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runSync(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("previous sync still running, skipping this tick")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	syncCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	report, err := s.syncer.SyncAll(syncCtx)
	if err != nil {
		s.logger.Error("scheduled sync failed", "error", err)
		return
	}
	s.logger.Info("scheduled sync finished",
		"total", report.Total,
		"success", report.Success,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)
}
