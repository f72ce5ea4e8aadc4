package hive

import "testing"

func recs(writes...Write) []writeRecord {
	out := make([]writeRecord, len(writes))
	for i, w := range writes {
 out[i] = writeRecord{ordinal: i, emission: 0, write: w}
	}
	return out
}

func TestValidateWritesUnknownChannelWinsOverOtherViolations(t *testing.T) {
	r := newTestRegistry(t)
	err := validateWrites(r, recs(Write{Channel: "nope", Value: 1}, Write{Channel: "counter", Value: "wrong-type"}), nil, false)
	if err == nil {
 t.Fatalf("expected an error")
	}
	herr, ok := err.(*Error)
	if !ok || herr.Kind != KindUnknownChannelID {
 t.Fatalf("expected KindUnknownChannelID to take precedence, got %v", err)
	}
}

func TestValidateWritesTaskLocalNotAllowed(t *testing.T) {
	r := newTestRegistry(t)
	tl := map[int][]writeRecord{0: recs(Write{Channel: "scratch", Value: "x"})}
	err := validateWrites(r, nil, tl, false)
	if err == nil {
 t.Fatalf("expected error")
	}
	herr, ok := err.(*Error)
	if !ok || herr.Kind != KindTaskLocalWriteNotAllowed {
 t.Fatalf("expected KindTaskLocalWriteNotAllowed, got %v", err)
	}
}

func TestValidateWritesChannelTypeMismatch(t *testing.T) {
	r := newTestRegistry(t)
	err := validateWrites(r, recs(Write{Channel: "counter", Value: "not-an-int"}), nil, false)
	if err == nil {
 t.Fatalf("expected error")
	}
	herr, ok := err.(*Error)
	if !ok || herr.Kind != KindChannelTypeMismatch {
 t.Fatalf("expected KindChannelTypeMismatch, got %v", err)
	}
}

func TestValidateWritesUpdatePolicySingleViolation(t *testing.T) {
	r := newTestRegistry(t)
	err := validateWrites(r, recs(Write{Channel: "counter", Value: 1}, Write{Channel: "counter", Value: 2}), nil, false)
	if err == nil {
 t.Fatalf("expected error")
	}
	herr, ok := err.(*Error)
	if !ok || herr.Kind != KindUpdatePolicyViolation {
 t.Fatalf("expected KindUpdatePolicyViolation, got %v", err)
	}
}

func TestValidateWritesAcceptsWellFormedWrites(t *testing.T) {
	r := newTestRegistry(t)
	if err := validateWrites(r, recs(Write{Channel: "counter", Value: 5}), nil, false); err != nil {
 t.Fatalf("expected no error, got %v", err)
	}
}

func TestFoldGlobalWritesAppliesReducer(t *testing.T) {
	r := newTestRegistry(t)
	g := NewGlobalStore(r)
	updated, err := foldGlobalWrites(r, g, recs(Write{Channel: "counter", Value: 7}))
	if err != nil {
 t.Fatalf("fold: %v", err)
	}
	if len(updated) != 1 || updated[0] != "counter" {
 t.Fatalf("expected counter reported updated, got %v", updated)
	}
	v, _ := g.Get("counter")
	if v.(int) != 7 {
 t.Fatalf("expected counter=7, got %v", v)
	}
}
