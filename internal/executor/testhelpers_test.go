package executor

import (
	"context"
	"sync"
	"testing"

	"github.com/casualjim/parley/events"
	"github.com/casualjim/parley/provider/providertest"
	"github.com/casualjim/parley/tool"
	"github.com/stretchr/testify/require"
)

type mockHook struct {
	mu        sync.Mutex
	started   []events.ExchangeStarted
	chunks    []events.ChunkReceived
	turns     []events.TurnCompleted
	completed []events.ExchangeCompleted
}

func (m *mockHook) OnExchangeStart(_ context.Context, ev events.ExchangeStarted) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, ev)
}

func (m *mockHook) OnChunk(_ context.Context, ev events.ChunkReceived) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, ev)
}

func (m *mockHook) OnTurnComplete(_ context.Context, ev events.TurnCompleted) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, ev)
}

func (m *mockHook) OnExchangeComplete(_ context.Context, ev events.ExchangeCompleted) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, ev)
}

type toolCall struct {
	name string
	args map[string]any
}

type toolRecorder struct {
	mu    sync.Mutex
	calls []toolCall
}

func (r *toolRecorder) tool(t *testing.T, name string, result any, err error) tool.Definition {
	t.Helper()
	def, derr := tool.New(func(_ context.Context, args map[string]any) (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, toolCall{name: name, args: args})
		return result, err
	}, tool.Name(name))
	require.NoError(t, derr)
	return def
}

func (r *toolRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newCommand(t *testing.T, prov *providertest.Scripted, hook events.Hook, defs ...tool.Definition) RunCommand {
	t.Helper()
	cmd, err := NewRunCommand(prov, hook)
	require.NoError(t, err)

	tools, err := tool.NewRegistry(defs...)
	require.NoError(t, err)

	return cmd.WithModel("test-model").
		WithInstructions("You are helpful.").
		WithTools(tools).
		WithStream(true)
}
