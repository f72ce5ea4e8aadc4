package hive

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestStreamPushNextFIFO(t *testing.T) {
	s := NewStream(4)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
 if err := s.Push(ctx, Event{Kind: EventTaskStarted, Name: "a"}); err != nil {
 t.Fatalf("push %d: %v", i, err)
 }
	}
	for i := 0; i < 3; i++ {
 ev, ok := s.Next(ctx)
 if !ok {
 t.Fatalf("expected event %d", i)
 }
 if ev.Kind != EventTaskStarted {
 t.Fatalf("unexpected kind: %v", ev.Kind)
 }
	}
}

func TestStreamDroppableCoalesces(t *testing.T) {
	s := NewStream(1)
	ctx := context.Background()
	if err := s.Push(ctx, Event{Kind: EventModelToken, Message: "hel"}); err != nil {
 t.Fatalf("push 1: %v", err)
	}
	if err := s.Push(ctx, Event{Kind: EventModelToken, Message: "lo"}); err != nil {
 t.Fatalf("push 2: %v", err)
	}
	ev, ok := s.Next(ctx)
	if !ok {
 t.Fatalf("expected one coalesced event")
	}
	if ev.Message != "hello" {
 t.Fatalf("expected coalesced message 'hello', got %q", ev.Message)
	}
}

func TestStreamNonDroppableBlocksUntilConsumed(t *testing.T) {
	s := NewStream(1)
	ctx := context.Background()
	if err := s.Push(ctx, Event{Kind: EventTaskStarted}); err != nil {
 t.Fatalf("first push: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	pushed := make(chan struct{})
	go func() {
 defer wg.Done()
 _ = s.Push(ctx, Event{Kind: EventTaskCommitted})
 close(pushed)
	}()

	select {
	case <-pushed:
 t.Fatalf("expected second push to block while buffer is full")
	case <-time.After(50 * time.Millisecond):
	}

	if _, ok := s.Next(ctx); !ok {
 t.Fatalf("expected to drain first event")
	}

	select {
	case <-pushed:
	case <-time.After(time.Second):
 t.Fatalf("expected blocked push to unblock after drain")
	}
	wg.Wait()
}

func TestStreamTerminateUnblocksProducersAndConsumers(t *testing.T) {
	s := NewStream(1)
	ctx := context.Background()
	_ = s.Push(ctx, Event{Kind: EventTaskStarted})

	done := make(chan error, 1)
	go func() {
 done <- s.Push(ctx, Event{Kind: EventTaskCommitted})
	}()

	time.Sleep(20 * time.Millisecond)
	s.Terminate(nil)

	select {
	case err := <-done:
 if err != ErrStreamTerminated {
 t.Fatalf("expected ErrStreamTerminated, got %v", err)
 }
	case <-time.After(time.Second):
 t.Fatalf("expected terminate to unblock pending push")
	}
}

func TestTaskBufferOverflowReportsNonDroppable(t *testing.T) {
	b := newTaskBuffer(1)
	if !b.push(Event{Kind: EventTaskStarted}) {
 t.Fatalf("expected first push to succeed")
	}
	if b.push(Event{Kind: EventTaskCommitted}) {
 t.Fatalf("expected second non-droppable push to overflow")
	}
}

func TestTaskBufferDrainResets(t *testing.T) {
	b := newTaskBuffer(2)
	b.push(Event{Kind: EventTaskStarted})
	drained := b.drain()
	if len(drained) != 1 {
 t.Fatalf("expected 1 drained event, got %d", len(drained))
	}
	if len(b.drain()) != 0 {
 t.Fatalf("expected buffer empty after drain")
	}
}
