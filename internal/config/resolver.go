package config

import (
	"slices"

	"github.com/flemzord/parserdesk/internal/core"
)

// loadOrder ranks module namespaces: providers and stores publish the
// services later modules look up.
var loadOrder = map[string]int{
	"provider": 0,
	"store":    1,
	"cron":     2,
	"gateway":  3,
}

// Resolve returns the configured module IDs in load order: by namespace
// rank, then alphabetically. Unknown namespaces load last.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	rank := func(id string) int {
		if r, ok := loadOrder[core.ModuleID(id).Namespace()]; ok {
			return r
		}
		return len(loadOrder)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if d := rank(a) - rank(b); d != 0 {
			return d
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	return ids
}
