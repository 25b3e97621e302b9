// Package cleanup provides data retention and cleanup services: execution
// soft-delete, orphaned-event cleanup, and dead-letter archival, on either
// a fixed-interval ticker or an operator-pinned cron schedule.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/codeready-toolchain/execution-core/pkg/config"
)

// ExecutionRetirer soft-deletes terminal executions past the retention
// window.
type ExecutionRetirer interface {
	SoftDeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventPurger removes orphaned event rows past their TTL.
type EventPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeadLetterPurger permanently removes archived dead-letter items past
// their retention window.
type DeadLetterPurger interface {
	DeleteArchivedOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service periodically enforces retention policies:
//   - Soft-deletes terminal executions past ExecutionRetentionDays
//   - Removes orphaned execution_events rows past EventTTL
//   - Permanently deletes archived dead-letter items past DeadLetterRetentionDays
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	config     *config.RetentionConfig
	executions ExecutionRetirer
	events     EventPurger
	deadLetter DeadLetterPurger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, executions ExecutionRetirer, events EventPurger, deadLetter DeadLetterPurger) *Service {
	if cfg == nil {
		cfg = config.DefaultRetentionConfig()
	}
	return &Service{config: cfg, executions: executions, events: events, deadLetter: deadLetter}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup service started",
		"execution_retention_days", s.config.ExecutionRetentionDays,
		"event_ttl", s.config.EventTTL,
		"dead_letter_retention_days", s.config.DeadLetterRetentionDays,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	if s.config.CleanupSchedule != "" {
		sched, err := cron.ParseStandard(s.config.CleanupSchedule)
		if err != nil {
			slog.Error("invalid cleanup schedule, falling back to interval",
				"schedule", s.config.CleanupSchedule, "error", err)
		} else {
			s.runOnSchedule(ctx, sched)
			return
		}
	}

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

// runOnSchedule fires the retention sweep at each cron tick instead of on a
// fixed interval, so operators can pin the sweeps to an off-peak window.
func (s *Service) runOnSchedule(ctx context.Context, sched cron.Schedule) {
	for {
		timer := time.NewTimer(time.Until(sched.Next(time.Now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.retireOldExecutions(ctx)
	s.purgeOrphanedEvents(ctx)
	s.purgeArchivedDeadLetter(ctx)
}

func (s *Service) retireOldExecutions(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.config.ExecutionRetentionDays)
	count, err := s.executions.SoftDeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("retention: soft-delete executions failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: soft-deleted old executions", "count", count)
	}
}

func (s *Service) purgeOrphanedEvents(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.EventTTL)
	count, err := s.events.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("retention: event cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: cleaned up orphaned events", "count", count)
	}
}

func (s *Service) purgeArchivedDeadLetter(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.config.DeadLetterRetentionDays)
	count, err := s.deadLetter.DeleteArchivedOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("retention: dead-letter cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: purged archived dead-letter items", "count", count)
	}
}
