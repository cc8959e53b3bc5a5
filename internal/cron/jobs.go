package cron

import (
	"context"
	"log/slog"
)

// Default job schedules.
const (
	DefaultCleanupSchedule  = "*/5 * * * *"
	DefaultAutosaveSchedule = "*/10 * * * *"
)

// Sessions is the part of session.Manager the jobs need.
type Sessions interface {
	Prune(ctx context.Context) int
	SaveAll(ctx context.Context) (int, error)
	Autosave() bool
}

// SessionCleanupJob removes sessions idle longer than the manager's idle
// timeout, saving dirty bound ones first when autosave is on.
type SessionCleanupJob struct {
	Sessions     Sessions
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultCleanupSchedule
}

// Compile-time interface check.
var _ Job = (*SessionCleanupJob)(nil)

// Name implements Job.
func (j *SessionCleanupJob) Name() string { return "session_cleanup" }

// Schedule implements Job.
func (j *SessionCleanupJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultCleanupSchedule
}

// Run implements Job.
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	if pruned := j.Sessions.Prune(ctx); pruned > 0 {
		j.Logger.Info("cron: pruned idle sessions", "count", pruned)
	}
	return ctx.Err()
}

// AutosaveJob saves every dirty session bound to a parser record.
type AutosaveJob struct {
	Sessions     Sessions
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultAutosaveSchedule
}

// Compile-time interface check.
var _ Job = (*AutosaveJob)(nil)

// Name implements Job.
func (j *AutosaveJob) Name() string { return "autosave" }

// Schedule implements Job.
func (j *AutosaveJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultAutosaveSchedule
}

// Run implements Job. Sessions that saved are counted even when another
// one failed.
func (j *AutosaveJob) Run(ctx context.Context) error {
	n, err := j.Sessions.SaveAll(ctx)
	if n > 0 {
		j.Logger.Info("cron: autosaved sessions", "count", n)
	}
	return err
}
