package event

import (
	"context"

	"github.com/hiveflow/hive/hive"
)

// NullEmitter discards every event. Used when a run is configured without
// observability, or in tests that only care about the run's return value.
type NullEmitter struct{}

// NewNullEmitter returns a NullEmitter.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

// Emit is a no-op.
func (NullEmitter) Emit(hive.Event) {}

// Run drains stream without doing anything else, so producers never block
// on a full buffer when no observability backend is wired.
func (n *NullEmitter) Run(ctx context.Context, stream *hive.Stream) {
	for {
		if _, ok := stream.Next(ctx); !ok {
			return
		}
	}
}

// NullLogger discards every call. Used for production deployments that
// don't want logging overhead.
type NullLogger struct{}

// NewNullLogger returns a NullLogger.
func NewNullLogger() NullLogger { return NullLogger{} }

func (NullLogger) Debug(string, ...any)   {}
func (NullLogger) Info(string, ...any)    {}
func (NullLogger) Warn(string, ...any)    {}
func (NullLogger) Error(string, ...any)   {}
func (l NullLogger) With(...any) hive.Logger { return l }

var _ hive.Logger = NullLogger{}
