package tool

import (
	"context"
	"sync"

	"github.com/hiveflow/hive/hive"
)

// Mock is a test hive.Tool with a queued response sequence and call
// history for use in node and tool-registry tests.
type Mock struct {
	ToolName    string
	Description string
	Responses   []hive.ToolResult
	Err         error

	mu        sync.Mutex
	callIndex int
	Calls     []map[string]any
}

// Spec implements hive.Tool.
func (m *Mock) Spec() hive.ToolSpec {
	return hive.ToolSpec{Name: m.ToolName, Description: m.Description}
}

// Call implements hive.Tool.
func (m *Mock) Call(ctx context.Context, args map[string]any) (hive.ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return hive.ToolResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, args)

	if m.Err != nil {
		return hive.ToolResult{}, m.Err
	}
	if len(m.Responses) == 0 {
		return hive.ToolResult{}, nil
	}
	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

var _ hive.Tool = (*Mock)(nil)
