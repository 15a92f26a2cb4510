/*
scheduler.go - Retention scheduler

PURPOSE:
  Periodically prunes action history older than the retention window and
  deletes expired sessions. Both are housekeeping: a missed run only leaves
  stale rows behind until the next one.

DESIGN:
  - robfig/cron drives the schedule ("@every 1h", "0 3 * * *", ...)
  - SkipIfStillRunning keeps runs from overlapping on a slow database
  - Recover turns a panicking run into a logged error
  - Each run gets its own timeout so a stuck query cannot pin the job

USAGE:
  sched, err := NewPruneScheduler(svc, "@every 1h", 90*24*time.Hour, logger)
  sched.Start()
  // ... later
  sched.Stop()

SEE ALSO:
  - game/service.go: Service.Prune
*/
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultPruneTimeout bounds a single prune run.
const DefaultPruneTimeout = 5 * time.Minute

// Pruner deletes data older than retention.
type Pruner interface {
	Prune(ctx context.Context, retention time.Duration) error
}

// PruneScheduler runs a Pruner on a cron schedule.
type PruneScheduler struct {
	cron      *cron.Cron
	pruner    Pruner
	retention time.Duration
	timeout   time.Duration
	log       *zap.Logger
}

// NewPruneScheduler parses schedule and registers the prune job.
func NewPruneScheduler(p Pruner, schedule string, retention time.Duration, logger *zap.Logger) (*PruneScheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{sugar: logger.Sugar()}
	s := &PruneScheduler{
		cron:      cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		pruner:    p,
		retention: retention,
		timeout:   DefaultPruneTimeout,
		log:       logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("register prune task: %w", err)
	}
	return s, nil
}

// Start starts the cron scheduler in its own goroutine.
func (s *PruneScheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.Duration("retention", s.retention))
}

// Stop stops the scheduler and waits for a running prune to finish.
func (s *PruneScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunNow prunes immediately, outside the schedule.
func (s *PruneScheduler) RunNow(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.pruner.Prune(ctx, s.retention)
}

func (s *PruneScheduler) run() {
	if err := s.RunNow(context.Background()); err != nil {
		s.log.Error("scheduled prune failed", zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
