package event

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hiveflow/hive/hive"
)

// OTelEmitter turns the event stream into spans: one span per run (bounded
// by runStarted/runFinished) and one child span per task (bounded by
// taskStarted/taskCommitted|taskFailed), one span per unit of work.
type OTelEmitter struct {
	tracer trace.Tracer

	mu        sync.Mutex
	runSpans  map[hive.ThreadID]trace.Span
	runCtx    map[hive.ThreadID]context.Context
	taskSpans map[hive.TaskID]trace.Span
}

// NewOTelEmitter returns an OTelEmitter using the given tracer provider's
// "hive" tracer. Pass otel.GetTracerProvider() for the global provider.
func NewOTelEmitter(tp trace.TracerProvider) *OTelEmitter {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &OTelEmitter{
		tracer:    tp.Tracer("hive"),
		runSpans:  make(map[hive.ThreadID]trace.Span),
		runCtx:    make(map[hive.ThreadID]context.Context),
		taskSpans: make(map[hive.TaskID]trace.Span),
	}
}

// Emit reacts to one event, starting or ending spans as the run and its
// tasks progress.
func (o *OTelEmitter) Emit(ev hive.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch ev.Kind {
	case hive.EventRunStarted:
		ctx, span := o.tracer.Start(context.Background(), "hive.run",
			trace.WithAttributes(attribute.String("hive.thread_id", string(ev.ThreadID))))
		o.runSpans[ev.ThreadID] = span
		o.runCtx[ev.ThreadID] = ctx

	case hive.EventTaskStarted:
		parent := o.runCtx[ev.ThreadID]
		if parent == nil {
			parent = context.Background()
		}
		_, span := o.tracer.Start(parent, fmt.Sprintf("hive.task.%s", ev.NodeID),
			trace.WithAttributes(
				attribute.String("hive.node_id", string(ev.NodeID)),
				attribute.String("hive.task_id", string(ev.TaskID)),
			))
		o.taskSpans[ev.TaskID] = span

	case hive.EventTaskCommitted:
		if span, ok := o.taskSpans[ev.TaskID]; ok {
			span.SetStatus(codes.Ok, "")
			span.End()
			delete(o.taskSpans, ev.TaskID)
		}

	case hive.EventTaskFailed:
		if span, ok := o.taskSpans[ev.TaskID]; ok {
			span.SetStatus(codes.Error, ev.Message)
			span.End()
			delete(o.taskSpans, ev.TaskID)
		}

	case hive.EventRunFinished, hive.EventCancelled:
		if span, ok := o.runSpans[ev.ThreadID]; ok {
			if ev.Kind == hive.EventCancelled {
				span.SetStatus(codes.Error, ev.Message)
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End()
			delete(o.runSpans, ev.ThreadID)
			delete(o.runCtx, ev.ThreadID)
		}
	}
}

// Run drains stream until termination, feeding every event to Emit.
func (o *OTelEmitter) Run(ctx context.Context, stream *hive.Stream) {
	for {
		ev, ok := stream.Next(ctx)
		if !ok {
			return
		}
		o.Emit(ev)
	}
}
