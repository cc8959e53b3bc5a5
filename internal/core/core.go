package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultStopTimeout bounds Run's shutdown.
const DefaultStopTimeout = 30 * time.Second

// App owns the loaded modules of one parserdesk process and drives them
// through Start and Stop.
type App struct {
	ctx     *AppContext
	modules []loaded
	logger  *slog.Logger
}

type loaded struct {
	id      ModuleID
	module  Module
	started bool
}

// NewApp creates an App that loads modules against ctx.
func NewApp(ctx *AppContext) *App {
	return &App{
		ctx:    ctx,
		logger: ctx.Logger.With("component", "core"),
	}
}

// Context returns the root AppContext.
func (a *App) Context() *AppContext { return a.ctx }

// Modules returns the IDs of the loaded modules in load order.
func (a *App) Modules() []ModuleID {
	ids := make([]ModuleID, len(a.modules))
	for i, l := range a.modules {
		ids[i] = l.id
	}
	return ids
}

// LoadModules loads ids in order. A failure unwinds every module loaded
// by this call, releasing what their Provision acquired.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		begin := time.Now()
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			_ = a.stop(context.Background(), len(a.modules)-1, true)
			a.modules = nil
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		a.modules = append(a.modules, loaded{id: mod.ModuleInfo().ID, module: mod})
		a.logger.Info("module loaded", "module", id, "took", time.Since(begin).Round(time.Millisecond))
	}
	return nil
}

// Start starts the loaded Starters in load order. If one fails, those
// already started are stopped in reverse order.
func (a *App) Start() error {
	for i := range a.modules {
		l := &a.modules[i]
		s, ok := l.module.(Starter)
		if !ok {
			continue
		}
		if err := s.Start(); err != nil {
			a.logger.Error("module start failed", "module", string(l.id), "error", err)
			_ = a.stop(context.Background(), i-1, false)
			return fmt.Errorf("starting module %s: %w", l.id, err)
		}
		l.started = true
		a.logger.Debug("module started", "module", string(l.id))
	}
	a.logger.Info("modules started", "count", len(a.modules))
	return nil
}

// Stop stops the started modules in reverse order. Every Stopper runs
// even when ctx expires; their errors are joined.
func (a *App) Stop(ctx context.Context) error {
	return a.stop(ctx, len(a.modules)-1, false)
}

// stop walks modules from index down to 0. With all set, modules that
// never started are stopped too.
func (a *App) stop(ctx context.Context, index int, all bool) error {
	var errs []error
	for i := index; i >= 0; i-- {
		l := &a.modules[i]
		if !l.started && !all {
			continue
		}
		l.started = false
		s, ok := l.module.(Stopper)
		if !ok {
			continue
		}
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("module stop failed", "module", string(l.id), "error", err)
			errs = append(errs, fmt.Errorf("stopping module %s: %w", l.id, err))
		}
	}
	return errors.Join(errs...)
}

// Run starts every module, waits for ctx, then stops them within
// DefaultStopTimeout.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	a.logger.Info("shutdown requested")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultStopTimeout)
	defer cancel()
	return a.Stop(stopCtx)
}
