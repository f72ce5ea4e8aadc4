package event

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestStructuredLoggerWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewStructuredLogger(&buf)
	l.Info("step started", "stepIndex", 3)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimRight(buf.Bytes(), "\n"), &line); err != nil {
		t.Fatalf("expected valid JSON line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "step started" || line["level"] != "info" {
		t.Fatalf("unexpected fields: %v", line)
	}
	if line["stepIndex"].(float64) != 3 {
		t.Fatalf("expected stepIndex=3, got %v", line["stepIndex"])
	}
}

func TestStructuredLoggerWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewStructuredLogger(&buf)
	child := l.With("runID", "abc")
	child.Warn("retrying")

	if !strings.Contains(buf.String(), `"runID":"abc"`) {
		t.Fatalf("expected carried field in output, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Fatalf("expected warn level, got %q", buf.String())
	}
}
