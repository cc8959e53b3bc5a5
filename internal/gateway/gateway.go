// Package gateway serves parser design sessions over HTTP and websockets.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/parserdesk/internal/core"
	"github.com/flemzord/parserdesk/internal/provider"
	"github.com/flemzord/parserdesk/internal/record"
	"github.com/flemzord/parserdesk/internal/security"
	"github.com/flemzord/parserdesk/internal/session"
	"github.com/flemzord/parserdesk/internal/telemetry"
)

// Service names resolved from the application context.
const (
	auditService       = "security.audit"
	rateLimiterService = "security.ratelimiter"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Gateway is the HTTP gateway module. It is a leaf module: nothing
// resolves it as a service.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	// Resolved at Start() via the service registry; the session manager
	// is registered after modules are loaded.
	sessions *session.Manager
	store    record.Store
	chain    *provider.Chain
	metrics  *telemetry.Metrics
	audit    *security.AuditLogger
	limiter  *security.RateLimiter
}

var (
	_ core.Module       = (*Gateway)(nil)
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.config.defaults()
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. It resolves dependencies from the service
// registry and starts the HTTP server.
func (g *Gateway) Start() error {
	if err := g.resolve(); err != nil {
		return err
	}
	if !g.config.Auth.IsConfigured() {
		g.logger.Warn("gateway auth is not configured; the API is open to anyone who can reach " + g.config.Bind)
	}

	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:              g.config.Bind,
		Handler:           g.buildRouter(),
		ReadHeaderTimeout: g.config.ReadTimeout,
		ReadTimeout:       g.config.ReadTimeout,
		WriteTimeout:      g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

func (g *Gateway) resolve() error {
	sessions, err := core.Service[*session.Manager](g.appCtx, session.ServiceName)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	g.sessions = sessions

	// Optional services: the gateway degrades gracefully without them.
	if store, err := core.Service[record.Store](g.appCtx, record.ServiceName); err == nil {
		g.store = store
	}
	if chain, err := core.Service[*provider.Chain](g.appCtx, provider.ChainService); err == nil {
		g.chain = chain
	}
	if m, err := core.Service[*telemetry.Metrics](g.appCtx, telemetry.ServiceName); err == nil {
		g.metrics = m
	}
	if a, err := core.Service[*security.AuditLogger](g.appCtx, auditService); err == nil {
		g.audit = a
	}
	if rl, err := core.Service[*security.RateLimiter](g.appCtx, rateLimiterService); err == nil {
		g.limiter = rl
	}
	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
