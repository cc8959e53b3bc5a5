// Package core is the module system behind parserdesk: modules register a
// constructor from init(), are configured from their YAML section, provisioned
// against a shared AppContext, and started and stopped by an App.
package core

// ModuleID is a dotted module identifier, e.g. "store.sqlite". The part before
// the first dot is the namespace.
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return string(id[:i])
		}
	}
	return string(id)
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is implemented by every pluggable component.
type Module interface {
	ModuleInfo() ModuleInfo
}
