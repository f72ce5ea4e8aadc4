package hive

import (
	"fmt"
	"reflect"
)

// ReduceFunc merges an update into the accumulated current value. It must be
// total (defined for every value the channel can hold) but may return an
// error for malformed input.
type ReduceFunc func(current, update any) (any, error)

// Reducer names and implements one channel's merge semantics. The Tag is
// part of schemaVersion hashing, so built-in reducers have stable tags.
type Reducer struct {
	Tag string
	Fn ReduceFunc
}

// Reduce applies the reducer once.
func (r Reducer) Reduce(current, update any) (any, error) {
	if r.Fn == nil {
		return nil, fmt.Errorf("reducer %q has no implementation", r.Tag)
	}
	return r.Fn(current, update)
}

// LastWriteWins replaces current with update unconditionally.
func LastWriteWins() Reducer {
	return Reducer{Tag: "lastWriteWins", Fn: func(_, update any) (any, error) {
		return update, nil
	}}
}

// Append appends update to the current slice. update may be either a single
// element of the slice's element type, or another slice of the same type
// (concatenated in full).
func Append() Reducer {
	return Reducer{Tag: "append", Fn: func(current, update any) (any, error) {
		cv := reflect.ValueOf(current)
		if !cv.IsValid() {
			return nil, fmt.Errorf("append reducer: current value is nil")
		}
		if cv.Kind() != reflect.Slice {
			return nil, fmt.Errorf("append reducer: current is not a slice: %T", current)
		}
		uv := reflect.ValueOf(update)
		if uv.IsValid() && uv.Kind() == reflect.Slice && uv.Type() == cv.Type() {
			return reflect.AppendSlice(cv, uv).Interface(), nil
		}
		if !uv.IsValid() || uv.Type() != cv.Type().Elem() {
			return nil, fmt.Errorf("append reducer: update type %T incompatible with element type %s", update, cv.Type().Elem())
		}
		return reflect.Append(cv, uv).Interface(), nil
	}}
}

// SetUnion unions two maps used as sets (map[K]struct{}); current and update
// must share the exact same map type.
func SetUnion() Reducer {
	return Reducer{Tag: "setUnion", Fn: func(current, update any) (any, error) {
		cv := reflect.ValueOf(current)
		uv := reflect.ValueOf(update)
		if !cv.IsValid() || !uv.IsValid() || cv.Kind() != reflect.Map || uv.Kind() != reflect.Map || cv.Type() != uv.Type() {
			return nil, fmt.Errorf("setUnion reducer: current/update must be identically-typed maps, got %T/%T", current, update)
		}
		out := reflect.MakeMapWithSize(cv.Type(), cv.Len()+uv.Len())
		for it := cv.MapRange(); it.Next(); {
			out.SetMapIndex(it.Key(), it.Value())
		}
		for it := uv.MapRange(); it.Next(); {
			out.SetMapIndex(it.Key(), it.Value())
		}
		return out.Interface(), nil
	}}
}

// DictionaryMerge merges update's entries into current, overwriting on key
// collision. Iteration during encode/hash is sorted by the key's byte order
// at the call site (map iteration order in Go is not itself significant to
// correctness here, only to deterministic encoding elsewhere).
func DictionaryMerge() Reducer {
	return Reducer{Tag: "dictionaryMerge", Fn: func(current, update any) (any, error) {
		cv := reflect.ValueOf(current)
		uv := reflect.ValueOf(update)
		if !cv.IsValid() || !uv.IsValid() || cv.Kind() != reflect.Map || uv.Kind() != reflect.Map || cv.Type() != uv.Type() {
			return nil, fmt.Errorf("dictionaryMerge reducer: current/update must be identically-typed maps, got %T/%T", current, update)
		}
		out := reflect.MakeMapWithSize(cv.Type(), cv.Len()+uv.Len())
		for it := cv.MapRange(); it.Next(); {
			out.SetMapIndex(it.Key(), it.Value())
		}
		for it := uv.MapRange(); it.Next(); {
			out.SetMapIndex(it.Key(), it.Value())
		}
		return out.Interface(), nil
	}}
}

// Barrier ORs two booleans together: once true, stays true until the channel
// is reset by its owning join/reset logic.
func Barrier() Reducer {
	return Reducer{Tag: "barrier", Fn: func(current, update any) (any, error) {
		cb, ok1 := current.(bool)
		ub, ok2 := update.(bool)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("barrier reducer requires bool values, got %T/%T", current, update)
		}
		return cb || ub, nil
	}}
}

// Topic returns a bounded append-only reducer: update is appended to current
// and the result is truncated to the last capacity elements (oldest
// dropped). capacity <= 0 means unbounded.
func Topic(capacity int) Reducer {
	return Reducer{Tag: "topic", Fn: func(current, update any) (any, error) {
		cv := reflect.ValueOf(current)
		if !cv.IsValid() || cv.Kind() != reflect.Slice {
			return nil, fmt.Errorf("topic reducer: current is not a slice: %T", current)
		}
		uv := reflect.ValueOf(update)
		var merged reflect.Value
		if uv.IsValid() && uv.Kind() == reflect.Slice && uv.Type() == cv.Type() {
			merged = reflect.AppendSlice(cv, uv)
		} else {
			if !uv.IsValid() || uv.Type() != cv.Type().Elem() {
				return nil, fmt.Errorf("topic reducer: update type %T incompatible with element type %s", update, cv.Type().Elem())
			}
			merged = reflect.Append(cv, uv)
		}
		if capacity > 0 && merged.Len() > capacity {
			merged = merged.Slice(merged.Len()-capacity, merged.Len())
		}
		return merged.Interface(), nil
	}}
}
