// Package event adapts the runtime's deterministic event stream
// (hive.Stream) to observability backends: structured logging and
// distributed tracing. It follows a small emit package layout, one
// file per backend, all draining the same stream shape.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/hiveflow/hive/hive"
)

// LogEmitter writes one JSON line per event to an io.Writer. It has no
// external logging dependency: it is a thin encoding/json + io writer.
type LogEmitter struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewLogEmitter returns a LogEmitter writing to w. A nil w defaults to
// os.Stderr.
func NewLogEmitter(w io.Writer) *LogEmitter {
	if w == nil {
		w = os.Stderr
	}
	return &LogEmitter{w: w, now: time.Now}
}

type logLine struct {
	Time         string         `json:"time"`
	Kind         string         `json:"kind"`
	ThreadID     string         `json:"threadID,omitempty"`
	StepIndex    *uint32        `json:"stepIndex,omitempty"`
	TaskOrdinal  *uint32        `json:"taskOrdinal,omitempty"`
	NodeID       string         `json:"nodeID,omitempty"`
	TaskID       string         `json:"taskID,omitempty"`
	ChannelID    string         `json:"channelID,omitempty"`
	CheckpointID string         `json:"checkpointID,omitempty"`
	InterruptID  string         `json:"interruptID,omitempty"`
	Message      string         `json:"message,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
}

// Emit writes one event as a JSON line. It never returns an error to the
// caller's hot path; each marshal or write failure is reported to stderr
// and otherwise swallowed, matching the rule that "emitters must not block or
// crash the workflow" contract.
func (l *LogEmitter) Emit(ev hive.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := logLine{
		Time:         l.now().UTC().Format(time.RFC3339Nano),
		Kind:         ev.Kind.String(),
		ThreadID:     string(ev.ThreadID),
		NodeID:       string(ev.NodeID),
		TaskID:       string(ev.TaskID),
		ChannelID:    string(ev.ChannelID),
		CheckpointID: string(ev.CheckpointID),
		InterruptID:  string(ev.InterruptID),
		Message:      ev.Message,
		Meta:         ev.Metadata,
	}
	if ev.HasStep {
		step := ev.StepIndex
		line.StepIndex = &step
	}
	if ev.HasOrdinal {
		ord := ev.TaskOrdinal
		line.TaskOrdinal = &ord
	}

	data, err := json.Marshal(line)
	if err != nil {
		fmt.Fprintf(os.Stderr, "event/log: marshal failed: %v\n", err)
		return
	}
	data = append(data, '\n')
	if _, err := l.w.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "event/log: write failed: %v\n", err)
	}
}

// Run drains stream until it terminates, emitting each event. It is meant
// to be started in its own goroutine alongside a run.
func (l *LogEmitter) Run(ctx context.Context, stream *hive.Stream) {
	for {
		ev, ok := stream.Next(ctx)
		if !ok {
			return
		}
		l.Emit(ev)
	}
}
