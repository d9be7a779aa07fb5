package events

import (
	"context"
	"log/slog"

	"github.com/casualjim/parley/pkg/slogx"
)

// Hook observes the lifecycle of an exchange. Implementations must not block
// for long and must not panic.
type Hook interface {
	OnExchangeStart(context.Context, ExchangeStarted)
	OnChunk(context.Context, ChunkReceived)
	OnTurnComplete(context.Context, TurnCompleted)
	OnExchangeComplete(context.Context, ExchangeCompleted)
}

// Nop is a Hook that ignores every notification.
type Nop struct{}

func (Nop) OnExchangeStart(context.Context, ExchangeStarted)      {}
func (Nop) OnChunk(context.Context, ChunkReceived)                {}
func (Nop) OnTurnComplete(context.Context, TurnCompleted)         {}
func (Nop) OnExchangeComplete(context.Context, ExchangeCompleted) {}

type multi []Hook

// Multi fans notifications out to hooks in order. Nil hooks are skipped.
func Multi(hooks ...Hook) Hook {
	out := make(multi, 0, len(hooks))
	for _, h := range hooks {
		if h == nil {
			continue
		}
		if m, ok := h.(multi); ok {
			out = append(out, m...)
			continue
		}
		out = append(out, h)
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (m multi) OnExchangeStart(ctx context.Context, ev ExchangeStarted) {
	for _, h := range m {
		h.OnExchangeStart(ctx, ev)
	}
}

func (m multi) OnChunk(ctx context.Context, ev ChunkReceived) {
	for _, h := range m {
		h.OnChunk(ctx, ev)
	}
}

func (m multi) OnTurnComplete(ctx context.Context, ev TurnCompleted) {
	for _, h := range m {
		h.OnTurnComplete(ctx, ev)
	}
}

func (m multi) OnExchangeComplete(ctx context.Context, ev ExchangeCompleted) {
	for _, h := range m {
		h.OnExchangeComplete(ctx, ev)
	}
}

type logging struct {
	logger *slog.Logger
}

// Logging returns a Hook that writes one debug record per notification.
func Logging(logger *slog.Logger) Hook {
	if logger == nil {
		logger = slog.Default()
	}
	return &logging{logger: logger.With(slogx.LoggerName("events"))}
}

func (l *logging) OnExchangeStart(ctx context.Context, ev ExchangeStarted) {
	l.logger.DebugContext(ctx, "exchange started",
		slogx.Stringer("exchange_id", ev.ExchangeID),
		slog.String("provider", ev.Provider),
		slog.String("model", ev.Model),
		slog.Int("history", len(ev.History)),
	)
}

func (l *logging) OnChunk(ctx context.Context, ev ChunkReceived) {
	l.logger.DebugContext(ctx, "chunk received",
		slogx.Stringer("exchange_id", ev.ExchangeID),
		slog.Int("turn", ev.Turn),
		slog.Int("text", len(ev.Chunk.TextString())),
		slog.Int("function_calls", len(ev.Chunk.FunctionCalls)),
		slog.Bool("blocked", ev.Chunk.Blocked),
	)
}

func (l *logging) OnTurnComplete(ctx context.Context, ev TurnCompleted) {
	attrs := []any{
		slogx.Stringer("exchange_id", ev.ExchangeID),
		slog.Int("turn", ev.Turn),
		slog.Int("request_bytes", len(ev.Request)),
		slog.Int("responses", len(ev.Responses)),
	}
	if ev.Err != nil {
		attrs = append(attrs, slogx.Error(ev.Err))
	}
	l.logger.DebugContext(ctx, "turn completed", attrs...)
}

func (l *logging) OnExchangeComplete(ctx context.Context, ev ExchangeCompleted) {
	attrs := []any{
		slogx.Stringer("exchange_id", ev.ExchangeID),
		slog.String("state", ev.State),
		slog.Int("turns", ev.Turns),
		slog.Int64("total_tokens", ev.Usage.TotalTokens),
	}
	if ev.Err != nil {
		attrs = append(attrs, slogx.Error(ev.Err))
	}
	l.logger.DebugContext(ctx, "exchange completed", attrs...)
}
