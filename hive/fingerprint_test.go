package hive

import "testing"

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	specs := []ChannelSpec{
 NewChannelSpec[string]("scratch", ScopeTaskLocal, LastWriteWins(), UpdateSingle, PersistenceCheckpointed, func() string { return "" }, JSONCodec[string]("scratch.v1")),
 NewChannelSpec[int]("counter", ScopeGlobal, LastWriteWins(), UpdateSingle, PersistenceCheckpointed, func() int { return 0 }, JSONCodec[int]("counter.v1")),
	}
	r, err := NewRegistry(specs)
	if err != nil {
 t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestTaskLocalFingerprintDeterministic(t *testing.T) {
	r := newTestRegistry(t)
	o1 := NewOverlay(r)
	o1.Set("scratch", "hello")
	o2 := NewOverlay(r)
	o2.Set("scratch", "hello")

	fp1, err := TaskLocalFingerprint(r, o1)
	if err != nil {
 t.Fatalf("fingerprint 1: %v", err)
	}
	fp2, err := TaskLocalFingerprint(r, o2)
	if err != nil {
 t.Fatalf("fingerprint 2: %v", err)
	}
	if fp1 != fp2 {
 t.Fatalf("expected identical overlays to fingerprint identically, got %x != %x", fp1, fp2)
	}

	o3 := NewOverlay(r)
	o3.Set("scratch", "world")
	fp3, err := TaskLocalFingerprint(r, o3)
	if err != nil {
 t.Fatalf("fingerprint 3: %v", err)
	}
	if fp1 == fp3 {
 t.Fatalf("expected different overlay values to fingerprint differently")
	}
}

func TestTaskLocalFingerprintEmptyOverlayUsesInitial(t *testing.T) {
	r := newTestRegistry(t)
	empty := NewOverlay(r)
	explicit := NewOverlay(r)
	explicit.Set("scratch", "")

	fpEmpty, err := TaskLocalFingerprint(r, empty)
	if err != nil {
 t.Fatalf("fingerprint empty: %v", err)
	}
	fpExplicit, err := TaskLocalFingerprint(r, explicit)
	if err != nil {
 t.Fatalf("fingerprint explicit: %v", err)
	}
	if fpEmpty != fpExplicit {
 t.Fatalf("expected unset overlay to fingerprint identically to an explicit initial value")
	}
}

func TestComputeTaskIDStable(t *testing.T) {
	runID := NewRunID()
	fp := [32]byte{1, 2, 3}
	id1 := ComputeTaskID(runID, 3, "plan", 0, fp)
	id2 := ComputeTaskID(runID, 3, "plan", 0, fp)
	if id1 != id2 {
 t.Fatalf("expected stable TaskID, got %s != %s", id1, id2)
	}

	idOtherOrdinal := ComputeTaskID(runID, 3, "plan", 1, fp)
	if id1 == idOtherOrdinal {
 t.Fatalf("expected ordinal to affect TaskID")
	}
}

func TestComputeCheckpointIDVariesByStep(t *testing.T) {
	runID := NewRunID()
	a := ComputeCheckpointID(runID, 0)
	b := ComputeCheckpointID(runID, 1)
	if a == b {
 t.Fatalf("expected distinct checkpoint ids for distinct step indices")
	}
}

func TestComputeInterruptIDDependsOnlyOnWinningTask(t *testing.T) {
	a := ComputeInterruptID(TaskID("task-a"))
	b := ComputeInterruptID(TaskID("task-a"))
	c := ComputeInterruptID(TaskID("task-b"))
	if a != b {
 t.Fatalf("expected same winning task id to produce same interrupt id")
	}
	if a == c {
 t.Fatalf("expected different winning task id to produce different interrupt id")
	}
}
