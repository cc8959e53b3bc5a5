package core

import (
	"fmt"
	"sync"
)

// services is a name-keyed registry shared by every AppContext derived
// from the same root, so modules can find each other without imports.
type services struct {
	mu sync.RWMutex
	m  map[string]any
}

func newServices() *services {
	return &services{m: make(map[string]any)}
}

// RegisterService publishes a value under name. Registering the same name
// twice replaces the previous value.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.m[name] = svc
}

// GetService looks up a value published with RegisterService.
func (ctx *AppContext) GetService(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.m[name]
	return svc, ok
}

// Service looks up a service and asserts its type.
func Service[T any](ctx *AppContext, name string) (T, error) {
	var zero T
	raw, ok := ctx.GetService(name)
	if !ok {
		return zero, fmt.Errorf("service %q not registered", name)
	}
	svc, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("service %q has type %T, want %T", name, raw, zero)
	}
	return svc, nil
}
