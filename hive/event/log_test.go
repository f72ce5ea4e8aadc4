package event

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/hiveflow/hive/hive"
)

func TestLogEmitterRunDrainsStream(t *testing.T) {
	stream := hive.NewStream(4)
	var buf bytes.Buffer
	emitter := NewLogEmitter(&buf)

	done := make(chan struct{})
	go func() {
		emitter.Run(context.Background(), stream)
		close(done)
	}()

	if err := stream.Push(context.Background(), hive.Event{Kind: hive.EventRunStarted, ThreadID: "t-1"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	stream.Terminate(nil)
	<-done

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimRight(buf.Bytes(), "\n"), &line); err != nil {
		t.Fatalf("expected valid JSON line, got %q: %v", buf.String(), err)
	}
	if line["kind"] != "runStarted" || line["threadID"] != "t-1" {
		t.Fatalf("unexpected event line: %v", line)
	}
}

func TestNullEmitterDrainsWithoutOutput(t *testing.T) {
	stream := hive.NewStream(4)
	n := NewNullEmitter()

	done := make(chan struct{})
	go func() {
		n.Run(context.Background(), stream)
		close(done)
	}()

	if err := stream.Push(context.Background(), hive.Event{Kind: hive.EventRunFinished}); err != nil {
		t.Fatalf("push: %v", err)
	}
	stream.Terminate(nil)
	<-done
}

func TestNullLoggerNeverPanics(t *testing.T) {
	var l hive.Logger = NewNullLogger()
	l.Debug("x")
	l.Info("x", "k", "v")
	l.Warn("x")
	l.Error("x")
	l = l.With("k", "v")
	l.Info("still fine")
}
