package core

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// registry holds the module constructors compiled into the binary.
type registry struct {
	mu   sync.RWMutex
	byID map[ModuleID]ModuleInfo
}

var modules = &registry{byID: make(map[ModuleID]ModuleInfo)}

// RegisterModule records a module constructor. Call it from init(); it
// panics on an empty ID, a nil constructor or a duplicate ID.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("core: module ID must not be empty")
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	modules.mu.Lock()
	defer modules.mu.Unlock()
	if _, dup := modules.byID[info.ID]; dup {
		panic(fmt.Sprintf("core: module %s registered twice", info.ID))
	}
	modules.byID[info.ID] = info
}

// GetModule looks up a registered module.
func GetModule(id string) (ModuleInfo, bool) {
	modules.mu.RLock()
	defer modules.mu.RUnlock()
	info, ok := modules.byID[ModuleID(id)]
	return info, ok
}

// GetModules returns every registered module ordered by ID.
func GetModules() []ModuleInfo {
	modules.mu.RLock()
	all := slices.Collect(maps.Values(modules.byID))
	modules.mu.RUnlock()

	slices.SortFunc(all, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return all
}

// GetModulesByNamespace returns the modules of one namespace ordered by
// ID, e.g. "store" yields "store.sqlite".
func GetModulesByNamespace(namespace string) []ModuleInfo {
	return slices.DeleteFunc(GetModules(), func(info ModuleInfo) bool {
		return info.ID.Namespace() != namespace
	})
}

// resetRegistry forgets every module. Tests only.
func resetRegistry() {
	modules.mu.Lock()
	defer modules.mu.Unlock()
	clear(modules.byID)
}
