package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/parserdesk/internal/core"
)

// ServiceName is the AppContext service key of the *Scheduler.
const ServiceName = "cron.scheduler"

// SessionsService is the service key the module resolves at Start.
const SessionsService = "session.manager"

// ObserverService is the optional service key of a JobObserver.
const ObserverService = "telemetry.metrics"

// JobObserver receives job runs, e.g. to count them.
type JobObserver interface {
	ObserveJob(job string, elapsed time.Duration, err error)
}

func init() {
	core.RegisterModule(&Module{})
}

// Config holds the job schedules.
type Config struct {
	CleanupSchedule  string `yaml:"cleanup_schedule"`
	AutosaveSchedule string `yaml:"autosave_schedule"`
}

func (c *Config) defaults() {
	if c.CleanupSchedule == "" {
		c.CleanupSchedule = DefaultCleanupSchedule
	}
	if c.AutosaveSchedule == "" {
		c.AutosaveSchedule = DefaultAutosaveSchedule
	}
}

func (c *Config) validate() error {
	var errs []error
	if err := ParseSchedule(c.CleanupSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cron: cleanup_schedule: %w", err))
	}
	if err := ParseSchedule(c.AutosaveSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cron: autosave_schedule: %w", err))
	}
	return errors.Join(errs...)
}

// Module runs the session jobs against the session manager published by
// the application.
type Module struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	scheduler *Scheduler
	sessions  Sessions
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "cron.scheduler",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("cron: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.appCtx = ctx
	m.logger = ctx.Logger

	opts := []Option{WithLogger(ctx.Logger)}
	if obs, err := core.Service[JobObserver](ctx, ObserverService); err == nil {
		opts = append(opts, WithObserver(obs.ObserveJob))
	}
	m.scheduler = NewScheduler(opts...)
	ctx.RegisterService(ServiceName, m.scheduler)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Start implements core.Starter. The session manager is resolved here
// because the application publishes it after modules are loaded.
func (m *Module) Start() error {
	sessions, err := core.Service[Sessions](m.appCtx, SessionsService)
	if err != nil {
		return fmt.Errorf("cron: %w", err)
	}
	m.sessions = sessions

	if err := m.scheduler.RegisterJob(&SessionCleanupJob{
		Sessions:     sessions,
		Logger:       m.logger,
		ScheduleExpr: m.config.CleanupSchedule,
	}); err != nil {
		return err
	}
	if sessions.Autosave() {
		if err := m.scheduler.RegisterJob(&AutosaveJob{
			Sessions:     sessions,
			Logger:       m.logger,
			ScheduleExpr: m.config.AutosaveSchedule,
		}); err != nil {
			return err
		}
	}
	return m.scheduler.Start()
}

// Stop implements core.Stopper. With autosave on, dirty sessions are saved
// one last time.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler == nil {
		return nil
	}
	if err := m.scheduler.Stop(ctx); err != nil {
		return err
	}
	if m.sessions != nil && m.sessions.Autosave() {
		if err := m.scheduler.RunNow(ctx, "autosave"); err != nil {
			m.logger.Warn("cron: final autosave failed", "error", err)
		}
	}
	return nil
}

// Scheduler returns the provisioned scheduler.
func (m *Module) Scheduler() *Scheduler { return m.scheduler }
