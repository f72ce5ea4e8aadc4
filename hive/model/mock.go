// Package model collects hive.ModelClient adapters: a deterministic mock
// for tests, and real provider adapters in its anthropic, openai and
// google subpackages.
package model

import (
	"context"
	"sync"

	"github.com/hiveflow/hive/hive"
)

// Mock is a test hive.ModelClient with configurable, queued responses and
// call-history tracking, following hive's collaborator interfaces.
type Mock struct {
	// Responses is the queue of replies Chat returns in order; the last
	// entry repeats once exhausted.
	Responses []hive.ChatOut
	// Err, if set, is returned instead of a response.
	Err error

	mu        sync.Mutex
	callIndex int
	Calls     []MockCall
}

// MockCall records one invocation of Chat.
type MockCall struct {
	Messages []hive.ChatMessage
	Tools    []hive.ToolSpec
}

// Chat implements hive.ModelClient.
func (m *Mock) Chat(ctx context.Context, messages []hive.ChatMessage, tools []hive.ToolSpec) (hive.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return hive.ChatOut{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Messages: messages, Tools: tools})

	if m.Err != nil {
		return hive.ChatOut{}, m.Err
	}
	if len(m.Responses) == 0 {
		return hive.ChatOut{}, nil
	}
	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

var _ hive.ModelClient = (*Mock)(nil)
