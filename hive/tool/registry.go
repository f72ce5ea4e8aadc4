package tool

import "github.com/hiveflow/hive/hive"

// Registry is a simple name-keyed hive.ToolRegistry.
type Registry struct {
	byName map[string]hive.Tool
}

// NewRegistry returns a Registry containing tools, keyed by their Spec().Name.
func NewRegistry(tools ...hive.Tool) *Registry {
	r := &Registry{byName: make(map[string]hive.Tool, len(tools))}
	for _, t := range tools {
		r.byName[t.Spec().Name] = t
	}
	return r
}

// Lookup implements hive.ToolRegistry.
func (r *Registry) Lookup(name string) (hive.Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

var _ hive.ToolRegistry = (*Registry)(nil)
