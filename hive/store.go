package hive

// GlobalStore holds the current value of every global channel.
type GlobalStore struct {
	registry *Registry
	values map[ChannelID]any
}

// NewGlobalStore initializes a GlobalStore with initial for every global
// channel in the registry.
func NewGlobalStore(r *Registry) *GlobalStore {
	values := make(map[ChannelID]any)
	for _, id := range r.GlobalIDs() {
		spec, _ := r.Lookup(id)
		values[id] = spec.Initial()
	}
	return &GlobalStore{registry: r, values: values}
}

// Get returns the current value of a global channel.
func (g *GlobalStore) Get(id ChannelID) (any, bool) {
	v, ok := g.values[id]
	return v, ok
}

// Set overwrites a global channel's value (used by commit, never by nodes
// directly).
func (g *GlobalStore) Set(id ChannelID, v any) {
	g.values[id] = v
}

// Clone returns an independent copy (copy-on-write acceptable).
func (g *GlobalStore) Clone() *GlobalStore {
	values := make(map[ChannelID]any, len(g.values))
	for k, v := range g.values {
		values[k] = v
	}
	return &GlobalStore{registry: g.registry, values: values}
}

// Overlay is the sparse task-local map over task-local channels.
// A missing entry resolves to initial.
type Overlay struct {
	registry *Registry
	values map[ChannelID]any
}

// NewOverlay returns an empty task-local overlay.
func NewOverlay(r *Registry) *Overlay {
	return &Overlay{registry: r, values: make(map[ChannelID]any)}
}

// Get returns the overlay's value for id, or initial if unset.
func (o *Overlay) Get(id ChannelID) any {
	if v, ok := o.values[id]; ok {
 return v
	}
	spec, ok := o.registry.Lookup(id)
	if !ok {
		return nil
	}
	return spec.Initial()
}

// Has reports whether id has an explicit overlay entry (vs. falling back to
// initial).
func (o *Overlay) Has(id ChannelID) bool {
	_, ok := o.values[id]
	return ok
}

// Set stores an explicit overlay value.
func (o *Overlay) Set(id ChannelID, v any) {
	o.values[id] = v
}

// Clone returns an independent copy of the overlay.
func (o *Overlay) Clone() *Overlay {
	values := make(map[ChannelID]any, len(o.values))
	for k, v := range o.values {
		values[k] = v
	}
	return &Overlay{registry: o.registry, values: values}
}

// StoreView is the read-only composite over (global ∪ overlay ∪ initial
// cache) handed to node and router closures. It is intentionally not
// exported-constructible: obtain one only from the runtime/scheduler.
type StoreView struct {
	registry *Registry
	global *GlobalStore
	overlay *Overlay
}

// newStoreView is the package-private constructor; tests within this
// package may call it directly, external packages cannot.
func newStoreView(registry *Registry, global *GlobalStore, overlay *Overlay) StoreView {
	return StoreView{registry: registry, global: global, overlay: overlay}
}

// Get resolves a channel's value: task-local overlay first (if the channel
// is task-local), else the global store, else initial.
func (v StoreView) Get(id ChannelID) any {
	spec, ok := v.registry.Lookup(id)
	if !ok {
 return nil
	}
	if spec.Scope == ScopeTaskLocal {
 return v.overlay.Get(id)
	}
	if val, ok := v.global.Get(id); ok {
		return val
	}
	return spec.Initial()
}

// GetChannel is a typed accessor built on ChannelKey for ergonomic node code.
func GetChannel[V any](v StoreView, key ChannelKey[V]) V {
	val := v.Get(key.ID())
	typed, _ := val.(V)
	return typed
}
