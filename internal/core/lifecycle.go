package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// A module implements whichever of these hooks it needs. LoadModule calls
// Configure, Provision and Validate in that order; App calls Start and
// Stop.
type (
	// Configurable decodes the module's YAML section.
	Configurable interface {
		Configure(node *yaml.Node) error
	}

	// Provisioner opens resources (databases, provider clients) and
	// publishes services other modules resolve by name.
	Provisioner interface {
		Provision(ctx *AppContext) error
	}

	// Validator checks a provisioned module without side effects.
	Validator interface {
		Validate() error
	}

	// Starter begins background work: listeners, schedulers, health
	// probes.
	Starter interface {
		Start() error
	}

	// Stopper releases what Provision and Start acquired. Stops run in
	// reverse load order.
	Stopper interface {
		Stop(ctx context.Context) error
	}
)
