package trace

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/casualjim/parley/events"
	"github.com/casualjim/parley/internal/registry"
	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/pkg/slogx"
	"github.com/go-openapi/strfmt"
)

var _ events.Hook = &Accumulator{}

type exchangeState struct {
	mu    sync.Mutex
	trace ExchangeTrace
}

// Accumulator builds one ExchangeTrace per debugged exchange, keyed by the
// exchange id, and stores it in a Sink when the exchange completes.
type Accumulator struct {
	sink   Sink
	states registry.Registry[*exchangeState]
	logger *slog.Logger
}

// NewAccumulator creates an accumulator that stores finished traces in sink.
// A nil sink keeps nothing.
func NewAccumulator(sink Sink) *Accumulator {
	return &Accumulator{
		sink:   sink,
		states: registry.New[*exchangeState](),
		logger: slogx.Component("trace"),
	}
}

// Pending returns the number of exchanges being traced right now.
func (a *Accumulator) Pending() int {
	return a.states.Len()
}

func (a *Accumulator) OnExchangeStart(_ context.Context, ev events.ExchangeStarted) {
	if !ev.Debug || a.sink == nil {
		return
	}

	var cfg map[string]any
	if ev.Config != nil {
		cfg = maps.Clone(ev.Config)
	}
	a.states.Add(ev.ExchangeID.String(), &exchangeState{trace: ExchangeTrace{
		DebugID:        ev.ExchangeID.String(),
		StartedAt:      ev.Timestamp,
		SystemPrompt:   ev.SystemPrompt,
		Config:         cfg,
		InitialHistory: messages.CloneHistory(ev.History),
		Model:          ev.Model,
		Provider:       ev.Provider,
	}})
}

func (a *Accumulator) OnChunk(_ context.Context, ev events.ChunkReceived) {
	st, ok := a.states.Get(ev.ExchangeID.String())
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	turn := st.trace.turn(ev.Turn)
	chunk := ev.Chunk
	turn.Text += chunk.TextString()
	turn.Thinking += chunk.ThinkingString()
	turn.FunctionCalls = append(turn.FunctionCalls, chunk.FunctionCalls...)
	turn.Usage.Merge(chunk.Usage)
	if len(chunk.SafetyRatings) > 0 {
		turn.Safety = chunk.SafetyRatings.Clone()
	}
	if chunk.Blocked {
		turn.Blocked = true
		turn.BlockedReason = chunk.BlockedReasonString()
	}
}

// OnTurnComplete records the request and every received payload of a turn,
// whether or not the turn produced chunks.
func (a *Accumulator) OnTurnComplete(_ context.Context, ev events.TurnCompleted) {
	st, ok := a.states.Get(ev.ExchangeID.String())
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	tr := &st.trace
	turn := tr.turn(ev.Turn)
	if ev.Err != nil {
		turn.Error = ev.Err.Error()
	}
	if req := rawJSON(ev.Request); req != nil {
		tr.Requests = append(tr.Requests, req)
	}
	for _, resp := range ev.Responses {
		if raw := rawJSON(resp); raw != nil {
			tr.Responses = append(tr.Responses, raw)
		}
	}
}

func (a *Accumulator) OnExchangeComplete(ctx context.Context, ev events.ExchangeCompleted) {
	id := ev.ExchangeID.String()
	st, ok := a.states.GetAndDel(id)
	if !ok {
		return
	}
	st.mu.Lock()
	tr := st.trace
	st.mu.Unlock()

	completedAt := ev.Timestamp
	if time.Time(completedAt).IsZero() {
		completedAt = strfmt.DateTime(time.Now())
	}
	tr.CompletedAt = completedAt
	tr.Model = ev.Model
	tr.Provider = ev.Provider
	tr.Usage = ev.Usage
	tr.Safety = ev.Safety.Clone()
	tr.Answer = ev.Answer
	tr.Thinking = ev.Thinking
	tr.State = ev.State
	if ev.Err != nil {
		tr.Error = ev.Err.Error()
	}
	if len(ev.History) >= len(tr.InitialHistory) {
		tr.ToolExecutions = toolExecutions(ev.History[len(tr.InitialHistory):])
	}

	meta := Metadata{
		DebugID:   id,
		Provider:  tr.Provider,
		Model:     tr.Model,
		State:     tr.State,
		Turns:     ev.Turns,
		Usage:     tr.Usage,
		CreatedAt: completedAt,
		Failed:    ev.Err != nil,
	}

	if err := a.sink.Store(context.WithoutCancel(ctx), id, meta, &tr); err != nil {
		a.logger.WarnContext(ctx, "failed to store exchange trace",
			slog.String("debug_id", id),
			slogx.Error(err),
		)
	}
}
