// Package history receives finished conversations. Parley never reads
// history back; callers pass the current conversation into every exchange.
package history

import (
	"context"
	"sync"

	"github.com/casualjim/parley/messages"
)

// Sink is called once per completed exchange with the full updated history.
type Sink interface {
	Append(ctx context.Context, history []messages.Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(context.Context, []messages.Message) error

func (f SinkFunc) Append(ctx context.Context, history []messages.Message) error {
	return f(ctx, history)
}

// Memory keeps the latest history and counts the appends, which is what a
// single-conversation REPL needs.
type Memory struct {
	mu      sync.RWMutex
	history []messages.Message
	appends int
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(_ context.Context, history []messages.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = messages.CloneHistory(history)
	m.appends++
	return nil
}

// Messages returns a copy of the latest history.
func (m *Memory) Messages() []messages.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return messages.CloneHistory(m.history)
}

// Appends returns how many times Append was called.
func (m *Memory) Appends() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.appends
}

// Reset forgets the stored history.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
}
