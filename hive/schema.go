package hive

import "sort"

// Registry is the immutable, validated collection of ChannelSpecs for a
// schema. Construct with NewRegistry; it is safe for concurrent reads
// afterwards because nothing mutates it.
type Registry struct {
	specs map[ChannelID]ChannelSpec
	sorted []ChannelID // lexicographic by UTF-8 byte order
}

// NewRegistry validates and builds a Registry from the declared specs.
//
// Validation :
// - channel IDs unique -> DuplicateChannelID(smallest offending id)
// - taskLocal => checkpointed -> InvalidTaskLocalUntracked(smallest offending id)
// - codec required for every taskLocal channel and every checkpointed
// global channel; callers can also query FirstMissingRequiredCodec.
func NewRegistry(specs []ChannelSpec) (*Registry, error) {
	counts := map[ChannelID]int{}
	for _, s := range specs {
 counts[s.ID]++
	}
	var dupes []ChannelID
	for id, c := range counts {
 if c > 1 {
 dupes = append(dupes, id)
 }
	}
	if len(dupes) > 0 {
 sort.Slice(dupes, func(i, j int) bool { return dupes[i] < dupes[j] })
 return nil, errChannel(KindDuplicateChannelID, string(dupes[0]), "duplicate channel id")
	}

	var badUntracked []ChannelID
	for _, s := range specs {
 if s.Scope == ScopeTaskLocal && s.Persistence == PersistenceUntracked {
 badUntracked = append(badUntracked, s.ID)
 }
	}
	if len(badUntracked) > 0 {
 sort.Slice(badUntracked, func(i, j int) bool { return badUntracked[i] < badUntracked[j] })
 return nil, errChannel(KindInvalidTaskLocalUntracked, string(badUntracked[0]), "task-local channel must be checkpointed")
	}

	m := make(map[ChannelID]ChannelSpec, len(specs))
	ids := make([]ChannelID, 0, len(specs))
	for _, s := range specs {
 m[s.ID] = s
 ids = append(ids, s.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	r := &Registry{specs: m, sorted: ids}
	if id, ok := r.FirstMissingRequiredCodec(); ok {
		return nil, errChannel(KindMissingCodec, string(id), "codec required for task-local or checkpointed global channel")
	}
	return r, nil
}

// Lookup returns the spec for id, if registered.
func (r *Registry) Lookup(id ChannelID) (ChannelSpec, bool) {
	s, ok := r.specs[id]
	return s, ok
}

// SortedIDs returns all channel IDs in lexicographic (UTF-8 byte) order.
func (r *Registry) SortedIDs() []ChannelID {
	out := make([]ChannelID, len(r.sorted))
	copy(out, r.sorted)
	return out
}

// GlobalIDs returns the sorted IDs of global-scope channels only.
func (r *Registry) GlobalIDs() []ChannelID {
	var out []ChannelID
	for _, id := range r.sorted {
 if r.specs[id].Scope == ScopeGlobal {
 out = append(out, id)
 }
	}
	return out
}

// TaskLocalIDs returns the sorted IDs of task-local-scope channels only.
func (r *Registry) TaskLocalIDs() []ChannelID {
	var out []ChannelID
	for _, id := range r.sorted {
 if r.specs[id].Scope == ScopeTaskLocal {
 out = append(out, id)
 }
	}
	return out
}

// FirstMissingRequiredCodec returns the lexicographically-smallest id of a
// channel requiring a codec but missing one.
func (r *Registry) FirstMissingRequiredCodec() (ChannelID, bool) {
	for _, id := range r.sorted {
 s := r.specs[id]
 needsCodec := s.Scope == ScopeTaskLocal || s.Persistence == PersistenceCheckpointed
 if needsCodec && s.Codec == nil {
 return id, true
 }
	}
	return "", false
}

// InitialCache precomputes initial for every channel, keyed by ID.
func (r *Registry) InitialCache() map[ChannelID]any {
	out := make(map[ChannelID]any, len(r.sorted))
	for _, id := range r.sorted {
		out[id] = r.specs[id].Initial()
	}
	return out
}
