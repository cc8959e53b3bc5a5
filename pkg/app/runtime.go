package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/parserdesk/internal/agent"
	"github.com/flemzord/parserdesk/internal/config"
	ctxengine "github.com/flemzord/parserdesk/internal/context"
	"github.com/flemzord/parserdesk/internal/core"
	"github.com/flemzord/parserdesk/internal/memory"
	"github.com/flemzord/parserdesk/internal/provider"
	"github.com/flemzord/parserdesk/internal/record"
	"github.com/flemzord/parserdesk/internal/scrape"
	"github.com/flemzord/parserdesk/internal/security"
	"github.com/flemzord/parserdesk/internal/session"
	"github.com/flemzord/parserdesk/internal/telemetry"
	"github.com/flemzord/parserdesk/internal/tool"
	"github.com/flemzord/parserdesk/internal/tool/builtin"
)

// Service names published before modules load.
const (
	AuditService       = "security.audit"
	RateLimiterService = "security.ratelimiter"
	RedactorService    = "security.redactor"
)

const tracerName = "github.com/flemzord/parserdesk"

// Params configures Build.
type Params struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// Version is reported by tracing and the MCP server.
	Version string

	// LogOutput receives logs. Defaults to os.Stderr.
	LogOutput io.Writer

	// Skip excludes module namespaces, e.g. "gateway" for the interactive
	// chat, which does not serve HTTP.
	Skip []string

	// Agent adjusts the designer configuration after it is loaded.
	Agent func(*agent.Config)
}

// Runtime is a fully wired parserdesk process: loaded modules plus the
// session manager and function registry built on top of them.
type Runtime struct {
	Config   *config.Config
	App      *core.App
	Context  *core.AppContext
	Logger   *slog.Logger
	Sessions *session.Manager
	Registry *tool.Registry
	Store    record.Store
	Chain    *provider.Chain
	Metrics  *telemetry.Metrics
	Audit    *security.AuditLogger

	closers []func(context.Context) error
}

// Build loads the configuration, loads and provisions modules, then wires
// the session manager between LoadModules and Start. Close releases
// everything Build acquired, including on error paths.
func Build(ctx context.Context, p Params) (rt *Runtime, err error) {
	cfgPath := p.ConfigPath
	if cfgPath == "" {
		if cfgPath, err = ResolveConfigPath(); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	dataDir := p.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	out := p.LogOutput
	if out == nil {
		out = os.Stderr
	}

	rt = &Runtime{Config: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
			rt = nil
		}
	}()

	redactor := security.NewRedactor()
	redactor.AddLiteral(cfg.Security.Redact...)
	if rt.Logger, err = NewLogger(cfg.Logging, out, redactor); err != nil {
		return rt, err
	}

	auditCfg := security.AuditLoggerConfig{Redactor: redactor}
	if cfg.Logging.AuditFile != "" {
		f, err := openAuditFile(cfg.Logging.AuditFile, dataDir)
		if err != nil {
			return rt, err
		}
		rt.onClose(func(context.Context) error { return f.Close() })
		auditCfg.Writer = f
	}
	rt.Audit = security.NewAuditLogger(auditCfg)

	tp, shutdown, err := telemetry.SetupTracing(ctx, cfg.Tracing, p.Version)
	if err != nil {
		return rt, err
	}
	rt.onClose(shutdown)
	tracer := tp.Tracer(tracerName)

	limiter := security.NewRateLimiter(cfg.Security.RateLimits)
	rt.Metrics = telemetry.NewMetrics()

	appCtx := core.NewAppContext(rt.Logger, dataDir).WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService(AuditService, rt.Audit)
	appCtx.RegisterService(RateLimiterService, limiter)
	appCtx.RegisterService(RedactorService, redactor)
	appCtx.RegisterService(telemetry.ServiceName, rt.Metrics)
	rt.Context = appCtx

	rt.App = core.NewApp(appCtx)
	if err := rt.App.LoadModules(filterModules(config.Resolve(cfg), p.Skip)); err != nil {
		return rt, err
	}

	if rt.Chain, err = core.Service[*provider.Chain](appCtx, provider.ChainService); err != nil {
		return rt, fmt.Errorf("app: %w", err)
	}
	if store, err := core.Service[record.Store](appCtx, record.ServiceName); err == nil {
		rt.Store = store
	} else {
		rt.Logger.Warn("no parser store configured; saving parsers is disabled")
	}

	fetcher := newFetcher(cfg.Designer.Fetch, limiter, rt.Logger)
	rt.onClose(func(context.Context) error { return fetcher.Close() })
	rt.onClose(rt.App.Stop)

	rt.Registry = tool.NewRegistry(
		tool.WithLogger(rt.Logger),
		tool.WithRateLimiter(limiter),
		tool.WithAuditLogger(rt.Audit),
		tool.WithTracer(tracer),
		tool.WithRecorder(rt.Metrics),
	)
	if err := builtin.Register(rt.Registry, fetcher); err != nil {
		return rt, err
	}

	agentCfg := cfg.Designer.Agent()
	if p.Agent != nil {
		p.Agent(&agentCfg)
	}
	budgeter := ctxengine.NewBudgeter(ctxengine.NewTiktokenCounter(rt.Logger), cfg.Designer.ContextConfig)

	sessCfg := cfg.Designer.Config
	if sessCfg.MaxSessions == 0 {
		sessCfg.MaxSessions = limiter.MaxSessions()
	}
	rt.Sessions = session.NewManager(
		newBuilder(rt.Chain, agentCfg, rt.Registry, budgeter, rt.Logger, tracer, rt.Metrics),
		rt.Store,
		session.WithLogger(rt.Logger),
		session.WithAuditLogger(rt.Audit),
		session.WithConfig(sessCfg),
	)
	appCtx.RegisterService(session.ServiceName, rt.Sessions)
	rt.Metrics.TrackSessions(rt.Sessions.Len)

	return rt, nil
}

// newBuilder returns the session.Builder every conversation is created with.
func newBuilder(
	p provider.Provider,
	cfg agent.Config,
	reg *tool.Registry,
	budgeter *ctxengine.Budgeter,
	logger *slog.Logger,
	tracer trace.Tracer,
	obs agent.Observer,
) session.Builder {
	return func(id string, mem *memory.Store, opts ...agent.Option) *agent.Conversation {
		base := []agent.Option{
			agent.WithID(id),
			agent.WithConfig(cfg),
			agent.WithRegistry(reg),
			agent.WithBudgeter(budgeter),
			agent.WithLogger(logger.With("session", id)),
			agent.WithTracer(tracer),
			agent.WithObserver(obs),
		}
		return agent.New(p, mem, append(base, opts...)...)
	}
}

func newFetcher(cfg scrape.FetchConfig, limiter *security.RateLimiter, logger *slog.Logger) *scrape.Fetcher {
	opts := []scrape.FetchOption{
		scrape.WithURLFilter(security.NewURLFilter(cfg.URLFilterConfig)),
		scrape.WithFetchLimiter(limiter),
		scrape.WithFetchLogger(logger),
	}
	if cfg.Render {
		opts = append(opts, scrape.WithRenderer(scrape.NewRodRenderer(cfg.RenderControlURL, cfg.Timeout)))
	}
	return scrape.NewFetcher(cfg, opts...)
}

func filterModules(ids, skip []string) []string {
	if len(skip) == 0 {
		return ids
	}
	out := ids[:0:0]
	for _, id := range ids {
		ns := core.ModuleID(id).Namespace()
		excluded := false
		for _, s := range skip {
			if ns == s {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, id)
		}
	}
	return out
}

// Start starts every module.
func (rt *Runtime) Start() error {
	return rt.App.Start()
}

// Close stops modules and releases resources in reverse acquisition order.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func (rt *Runtime) onClose(fn func(context.Context) error) {
	rt.closers = append(rt.closers, fn)
}
