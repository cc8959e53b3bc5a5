// Package openaicompat provides the provider.openai_compatible module. It
// talks to any API that implements the OpenAI chat completions interface
// (OpenAI, Mistral, Groq, vLLM, LiteLLM, Ollama, ...) and publishes a
// failover chain over the configured endpoints as the "provider.chain"
// service.
package openaicompat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/parserdesk/internal/core"
	"github.com/flemzord/parserdesk/internal/provider"
	"gopkg.in/yaml.v3"
)

// ServiceName is the AppContext service key of the *provider.Chain.
const ServiceName = provider.ChainService

func init() {
	core.RegisterModule(&Module{})
}

// Module wires OpenAI-compatible endpoints into a provider.Chain.
type Module struct {
	config Config
	chain  *provider.Chain
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.openai_compatible",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return err
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	if err := m.config.validate(); err != nil {
		return err
	}

	endpoints := append([]Endpoint{m.config.Endpoint}, m.config.Fallbacks...)
	entries := make([]provider.ChainEntry, 0, len(endpoints))
	for _, ep := range endpoints {
		auth, err := provider.NewAuthProfile(ep.keys()...)
		if err != nil {
			return fmt.Errorf("endpoint %s: %w", ep.Name, err)
		}
		entries = append(entries, provider.ChainEntry{
			Name:     ep.Name,
			Provider: NewClient(ep, auth, ctx.Logger),
			Auth:     auth,
			Health:   m.config.Health,
		})
	}

	chain, err := provider.NewChain(entries, provider.WithLogger(ctx.Logger))
	if err != nil {
		return fmt.Errorf("create provider chain: %w", err)
	}
	m.chain = chain
	ctx.RegisterService(ServiceName, chain)
	ctx.Logger.Info("provider chain ready", "model", chain.ModelName(), "endpoints", len(entries))
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Start implements core.Starter.
func (m *Module) Start() error {
	m.chain.Start(context.Background())
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(context.Context) error {
	if m.chain != nil {
		m.chain.Stop()
	}
	return nil
}

// Chain returns the provisioned chain.
func (m *Module) Chain() *provider.Chain { return m.chain }

// nopLogger discards everything; used when a Client is built without one.
func nopLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

// Compile-time interface assertions.
var (
	_ core.Module       = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)
