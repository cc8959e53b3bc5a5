package core

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrUnknownModule is returned when an ID has no registered constructor.
var ErrUnknownModule = errors.New("unknown module")

// AppContext is what a module sees while it is provisioned: a logger
// scoped to it, the data directory, its YAML section and the shared
// service registry.
type AppContext struct {
	Logger  *slog.Logger
	DataDir string

	root     *slog.Logger
	sections map[string]yaml.Node
	services *services
}

// NewAppContext creates a root AppContext. A nil logger discards.
func NewAppContext(logger *slog.Logger, dataDir string) *AppContext {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AppContext{
		Logger:   logger,
		DataDir:  dataDir,
		root:     logger,
		services: newServices(),
	}
}

// WithModuleConfigs returns a copy carrying the per-module YAML sections.
func (ctx *AppContext) WithModuleConfigs(sections map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.sections = sections
	return &cp
}

// ModuleConfig returns the YAML section of id.
func (ctx *AppContext) ModuleConfig(id string) (yaml.Node, bool) {
	node, ok := ctx.sections[id]
	return node, ok
}

// ForModule returns a copy whose logger carries module=<id>. Services
// stay shared.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.Logger = ctx.root.With("module", string(id))
	return &cp
}

// DataPath resolves a configured path: absolute paths are kept, relative
// ones are placed under DataDir.
func (ctx *AppContext) DataPath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(ctx.DataDir, path)
}

// LoadModule builds the module registered as id and takes it through
// Configure, Provision and Validate. Configure only runs when the module
// has a YAML section.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, id)
	}
	mod := info.New()

	if c, ok := mod.(Configurable); ok {
		if node, ok := ctx.ModuleConfig(id); ok {
			if err := c.Configure(&node); err != nil {
				return nil, fmt.Errorf("configuring module %s (line %d): %w", id, node.Line, err)
			}
		}
	}
	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(ctx.ForModule(info.ID)); err != nil {
			return nil, fmt.Errorf("provisioning module %s: %w", id, err)
		}
	}
	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("validating module %s: %w", id, err)
		}
	}
	return mod, nil
}
