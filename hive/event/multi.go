package event

import (
	"context"

	"github.com/hiveflow/hive/hive"
)

// Sink is the minimal contract every emitter in this package satisfies.
type Sink interface {
	Emit(hive.Event)
}

// Multi fans one event out to several sinks, e.g. a LogEmitter and an
// OTelEmitter side by side.
type Multi struct {
	sinks []Sink
}

// NewMulti returns a Multi fanning out to sinks in order.
func NewMulti(sinks ...Sink) *Multi { return &Multi{sinks: sinks} }

// Emit forwards ev to every configured sink.
func (m *Multi) Emit(ev hive.Event) {
	for _, s := range m.sinks {
		s.Emit(ev)
	}
}

// Run drains stream until termination, fanning every event out.
func (m *Multi) Run(ctx context.Context, stream *hive.Stream) {
	for {
		ev, ok := stream.Next(ctx)
		if !ok {
			return
		}
		m.Emit(ev)
	}
}
