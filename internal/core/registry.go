package core

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"sync"
)

var (
	registry   = make(map[string]CollectionDefinition)
	registryMu sync.RWMutex
)

// Register adds a collection definition to the registry. It panics on a
// duplicate key, an empty key, a repeated field name or a filter over an
// unknown field, since definitions are fixed at init time.
func Register(def CollectionDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	key := def.Info.Key
	if key == "" {
		panic("collection registered without a key")
	}
	if _, exists := registry[key]; exists {
		panic(fmt.Sprintf("collection already registered: %s", key))
	}

	seen := make(map[string]bool, len(def.FieldSpecs))
	for _, spec := range def.FieldSpecs {
		if seen[spec.Name] {
			panic(fmt.Sprintf("collection %s: field %s declared twice", key, spec.Name))
		}
		seen[spec.Name] = true
	}
	for _, name := range def.Info.Filters {
		if !seen[name] {
			panic(fmt.Sprintf("collection %s: filter on unknown field %s", key, name))
		}
	}

	if def.Info.IDColumn == "" {
		def.Info.IDColumn = "id"
	}
	registry[key] = def
}

// Get returns a collection definition by key.
func Get(key string) (CollectionDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns every registered collection ordered by group, then key.
func All() []CollectionDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	return slices.SortedFunc(maps.Values(registry), func(a, b CollectionDefinition) int {
		return cmp.Or(
			cmp.Compare(a.Info.Group, b.Info.Group),
			cmp.Compare(a.Info.Key, b.Info.Key),
		)
	})
}

// Groups returns the distinct group names in order.
func Groups() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	groups := make([]string, 0, len(registry))
	for _, def := range registry {
		groups = append(groups, def.Info.Group)
	}
	slices.Sort(groups)
	return slices.Compact(groups)
}

// Clear empties the registry. Tests use it to register their own fixtures.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	clear(registry)
}
