package store

import (
	"context"
	"testing"

	"github.com/hiveflow/hive/hive"
)

func TestMemoryStoreSaveLoad(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	cp := hive.Checkpoint{ID: "cp-1", ThreadID: "t-1", StepIndex: 1}

	if err := s.Save(ctx, cp); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := s.Load(ctx, "t-1", "cp-1")
	if err != nil || !ok {
		t.Fatalf("load: got=%v ok=%v err=%v", got, ok, err)
	}
	if got.ID != cp.ID {
		t.Fatalf("expected id %q, got %q", cp.ID, got.ID)
	}
}

func TestMemoryStoreLoadLatestPicksHighestStep(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, cp := range []hive.Checkpoint{
		{ID: "cp-1", ThreadID: "t-1", StepIndex: 1},
		{ID: "cp-3", ThreadID: "t-1", StepIndex: 3},
		{ID: "cp-2", ThreadID: "t-1", StepIndex: 2},
	} {
		if err := s.Save(ctx, cp); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	got, ok, err := s.LoadLatest(ctx, "t-1")
	if err != nil || !ok {
		t.Fatalf("loadLatest: ok=%v err=%v", ok, err)
	}
	if got.ID != "cp-3" {
		t.Fatalf("expected cp-3, got %q", got.ID)
	}
}

func TestMemoryStoreLoadLatestTieBreaksOnGreatestID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, cp := range []hive.Checkpoint{
		{ID: "aaa", ThreadID: "t-1", StepIndex: 5},
		{ID: "zzz", ThreadID: "t-1", StepIndex: 5},
	} {
		if err := s.Save(ctx, cp); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	got, ok, err := s.LoadLatest(ctx, "t-1")
	if err != nil || !ok {
		t.Fatalf("loadLatest: ok=%v err=%v", ok, err)
	}
	if got.ID != "zzz" {
		t.Fatalf("expected zzz to win tie, got %q", got.ID)
	}
}

func TestMemoryStoreLoadLatestUnknownThread(t *testing.T) {
	s := NewMemoryStore()
	_, ok, err := s.LoadLatest(context.Background(), "nope")
	if err != nil || ok {
		t.Fatalf("expected not-found for unknown thread, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreListSorted(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []hive.CheckpointID{"c3", "c1", "c2"} {
		if err := s.Save(ctx, hive.Checkpoint{ID: id, ThreadID: "t-1"}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	ids, err := s.List(ctx, "t-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []hive.CheckpointID{"c1", "c2", "c3"}
	if len(ids) != len(want) {
		t.Fatalf("expected %d ids, got %v", len(want), ids)
	}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("expected sorted order %v, got %v", want, ids)
		}
	}
}
