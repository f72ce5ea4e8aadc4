package event

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/hiveflow/hive/hive"
)

// StructuredLogger implements hive.Logger by writing one JSON object per
// call to an io.Writer, in the same no-dependency style as LogEmitter: no
// external logging library, just encoding/json over a writer.
type StructuredLogger struct {
	mu     *sync.Mutex
	w      io.Writer
	fields []any
	now    func() time.Time
}

// NewStructuredLogger returns a StructuredLogger writing to w. A nil w
// defaults to os.Stderr.
func NewStructuredLogger(w io.Writer) *StructuredLogger {
	if w == nil {
		w = os.Stderr
	}
	return &StructuredLogger{mu: &sync.Mutex{}, w: w, now: time.Now}
}

func (l *StructuredLogger) write(level, msg string, kv []any) {
	fields := make(map[string]any, (len(l.fields)+len(kv))/2+2)
	fields["time"] = l.now().UTC().Format(time.RFC3339Nano)
	fields["level"] = level
	fields["msg"] = msg
	mergeKV(fields, l.fields)
	mergeKV(fields, kv)

	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := json.Marshal(fields)
	if err != nil {
		fmt.Fprintf(os.Stderr, "event/logger: marshal failed: %v\n", err)
		return
	}
	data = append(data, '\n')
	if _, err := l.w.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "event/logger: write failed: %v\n", err)
	}
}

func mergeKV(dst map[string]any, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		dst[key] = kv[i+1]
	}
}

func (l *StructuredLogger) Debug(msg string, kv ...any) { l.write("debug", msg, kv) }
func (l *StructuredLogger) Info(msg string, kv ...any)  { l.write("info", msg, kv) }
func (l *StructuredLogger) Warn(msg string, kv ...any)  { l.write("warn", msg, kv) }
func (l *StructuredLogger) Error(msg string, kv ...any) { l.write("error", msg, kv) }

// With returns a child logger that prepends kv to every subsequent call,
// sharing the same writer and mutex.
func (l *StructuredLogger) With(kv ...any) hive.Logger {
	fields := make([]any, 0, len(l.fields)+len(kv))
	fields = append(fields, l.fields...)
	fields = append(fields, kv...)
	return &StructuredLogger{mu: l.mu, w: l.w, fields: fields, now: l.now}
}

var _ hive.Logger = (*StructuredLogger)(nil)
