// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	importrepo "github.com/centavohq/centavo/internal/domain/import/repository"
)

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron       *cron.Cron
	importRepo importrepo.ImportRepository
	stuckAge   time.Duration
	logger     *slog.Logger
}

// NewScheduler creates a new job scheduler. stuckAge is how long an import
// may sit in processing before the reaper marks it failed.
func NewScheduler(importRepo importrepo.ImportRepository, stuckAge time.Duration, logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	if stuckAge <= 0 {
		stuckAge = time.Hour
	}
	return &Scheduler{
		cron:       c,
		importRepo: importRepo,
		stuckAge:   stuckAge,
		logger:     logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	// Stuck-import reaper: runs every 15 minutes.
	_, err := s.cron.AddFunc("*/15 * * * *", s.reapStuckImports)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers the reaper (for testing/admin).
func (s *Scheduler) RunNow() {
	go s.reapStuckImports()
}

// reapStuckImports fails import jobs that have been stuck in processing
// longer than stuckAge, usually after a crash mid-import. A failed job can
// be re-processed because the status transition accepts failed as a start
// state.
func (s *Scheduler) reapStuckImports() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	reaped, err := s.importRepo.ReapStuck(ctx, s.stuckAge)
	if err != nil {
		s.logger.Error("failed to reap stuck imports", slog.Any("error", err))
		return
	}
	if reaped > 0 {
		s.logger.Info("reaped stuck imports",
			slog.Int64("count", reaped),
			slog.Duration("older_than", s.stuckAge),
		)
	}
}
