package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/casualjim/parley/events"
	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/pkg/slogx"
	"github.com/casualjim/parley/provider"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
)

var _ Executor = &Local{}

const turnSeparator = "\n\n"

// Local runs exchanges on the calling goroutine.
type Local struct {
	logger *slog.Logger
}

func NewLocal() *Local {
	return &Local{logger: slogx.Component("executor")}
}

type exchange struct {
	cmd      RunCommand
	history  []messages.Message
	appended []messages.Message
	// seq numbers the tool calls of the conversation, it feeds messages.ToolCallID.
	seq      int
	answer   strings.Builder
	thinking strings.Builder
	result   Result
}

type turnOutput struct {
	text    strings.Builder
	calls   []messages.FunctionCall
	usage   messages.Usage
	blocked bool
}

func (l *Local) Run(ctx context.Context, command RunCommand) (Result, error) {
	if err := command.Validate(); err != nil {
		return Result{}, err
	}

	ex := &exchange{
		cmd:     command,
		history: messages.CloneHistory(command.History),
		seq:     countToolCalls(command.History),
		result: Result{
			ExchangeID: command.ID(),
			Model:      command.Model,
			Provider:   command.Provider.Name(),
			State:      Idle,
		},
	}

	command.Hook.OnExchangeStart(ctx, events.ExchangeStarted{
		ExchangeID:   command.ID(),
		Debug:        command.Debug,
		SystemPrompt: command.Instructions,
		Provider:     ex.result.Provider,
		Model:        command.Model,
		Config:       command.Config,
		History:      messages.CloneHistory(command.History),
		Timestamp:    strfmt.DateTime(time.Now()),
	})

	err := l.runReactorLoop(ctx, ex)

	ex.result.Answer = ex.answer.String()
	if ex.result.State == MaxTurnsExceeded {
		ex.result.Answer = maxTurnsMessage(ex.maxTurns())
	}
	ex.result.Thinking = ex.thinking.String()
	ex.result.History = ex.appended

	command.Hook.OnExchangeComplete(ctx, events.ExchangeCompleted{
		ExchangeID: command.ID(),
		Answer:     ex.result.Answer,
		Thinking:   ex.result.Thinking,
		Model:      ex.result.Model,
		Provider:   ex.result.Provider,
		Usage:      ex.result.Usage,
		Safety:     ex.result.Safety.Clone(),
		State:      ex.result.State.String(),
		Turns:      ex.result.Turns,
		History:    messages.CloneHistory(ex.history),
		Err:        err,
		Timestamp:  strfmt.DateTime(time.Now()),
	})

	if err != nil {
		l.logger.ErrorContext(ctx, "exchange failed",
			slogx.Stringer("exchange_id", command.ID()),
			slog.String("provider", ex.result.Provider),
			slog.Int("turns", ex.result.Turns),
			slogx.Error(err),
		)
		return Result{}, err
	}
	return ex.result, nil
}

func (l *Local) runReactorLoop(ctx context.Context, ex *exchange) error {
	maxTurns := ex.maxTurns()
	for turn := 0; ; turn++ {
		if err := ctx.Err(); err != nil {
			return provider.WrapTransport(ex.result.Provider, err)
		}

		ex.setState(Requesting, "Contacting "+ex.result.Provider)
		out, err := l.runTurn(ctx, ex, turn)
		ex.result.Turns = turn + 1
		ex.result.Usage.Add(out.usage)
		if err != nil {
			return provider.WrapTransport(ex.result.Provider, err)
		}

		if out.blocked || len(out.calls) == 0 {
			if text := out.text.String(); text != "" {
				ex.append(messages.Assistant(text))
			}
			ex.setState(Done, "Done")
			return nil
		}

		if turn+1 >= maxTurns {
			l.logger.WarnContext(ctx, "turn budget exhausted with pending tool calls",
				slogx.Stringer("exchange_id", ex.cmd.ID()),
				slog.Int("max_turns", maxTurns),
				slog.Int("pending_calls", len(out.calls)),
			)
			ex.setState(MaxTurnsExceeded, maxTurnsMessage(maxTurns))
			return nil
		}

		if err := l.handleToolCalls(ctx, ex, out); err != nil {
			return err
		}
	}
}

func (l *Local) runTurn(ctx context.Context, ex *exchange, turn int) (*turnOutput, error) {
	out := &turnOutput{}
	wire, err := l.requestTurn(ctx, ex, turn, out)
	if err != nil {
		wire = withFailedWire(wire, err)
	}

	ex.cmd.Hook.OnTurnComplete(ctx, events.TurnCompleted{
		ExchangeID: ex.cmd.ID(),
		Turn:       turn,
		Request:    wire.Request,
		Responses:  wire.Responses,
		Err:        err,
		Timestamp:  strfmt.DateTime(time.Now()),
	})
	return out, err
}

// requestTurn sends one request and folds what comes back into out. The
// returned wire holds everything the provider captured for the turn.
func (l *Local) requestTurn(ctx context.Context, ex *exchange, turn int, out *turnOutput) (provider.Wire, error) {
	prov := ex.cmd.Provider
	params := provider.Params{
		Instructions: ex.cmd.Instructions,
		History:      ex.history,
		Tools:        ex.cmd.Tools.Definitions(),
		Model:        ex.cmd.Model,
		Generation:   ex.cmd.Generation,
	}

	if !ex.cmd.Stream {
		chunk, wire, err := prov.GenerateContent(ctx, params)
		if err != nil {
			return wire.Clone(), err
		}
		ex.setState(Processing, "Processing response")
		var raw []byte
		if n := len(wire.Responses); n > 0 {
			raw = wire.Responses[n-1]
		}
		ex.processChunk(ctx, turn, out, chunk, raw, wire.Request)
		return wire.Clone(), nil
	}

	stream, err := prov.StreamGenerateContent(ctx, params)
	if err != nil {
		return provider.Wire{}, err
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			l.logger.DebugContext(ctx, "closing provider stream", slogx.Error(cerr))
		}
	}()

	ex.setState(Processing, "Processing response")
	for stream.Next() {
		if !ex.processChunk(ctx, turn, out, stream.Chunk(), stream.Raw(), stream.Wire().Request) {
			break
		}
	}
	return stream.Wire().Clone(), stream.Err()
}

// withFailedWire completes wire with the payloads a failed call recorded on
// its error.
func withFailedWire(wire provider.Wire, err error) provider.Wire {
	failed, ok := provider.WireOf(err)
	if !ok {
		return wire
	}
	if len(wire.Request) == 0 {
		wire.Request = failed.Request
	}
	wire.Responses = append(wire.Responses, failed.Responses...)
	return wire
}

// processChunk folds one chunk into the turn. It returns false once the turn
// must stop consuming the stream.
func (ex *exchange) processChunk(ctx context.Context, turn int, out *turnOutput, chunk messages.Chunk, raw, request []byte) bool {
	if chunk.IsEmpty() {
		return true
	}

	ex.cmd.Hook.OnChunk(ctx, events.ChunkReceived{
		ExchangeID: ex.cmd.ID(),
		Turn:       turn,
		Chunk:      chunk,
		Raw:        raw,
		Request:    request,
		Timestamp:  strfmt.DateTime(time.Now()),
	})

	if text := chunk.TextString(); text != "" {
		if out.text.Len() == 0 && ex.answer.Len() > 0 {
			ex.emit(turnSeparator)
		}
		out.text.WriteString(text)
		ex.emit(text)
	}
	if thinking := chunk.ThinkingString(); thinking != "" {
		ex.thinking.WriteString(thinking)
	}
	if !chunk.Usage.IsZero() {
		out.usage.Merge(chunk.Usage)
	}
	if len(chunk.SafetyRatings) > 0 {
		ex.result.Safety = chunk.SafetyRatings.Clone()
	}

	if chunk.Blocked {
		out.blocked = true
		notice := blockedNotice(chunk.BlockedReasonString())
		if ex.answer.Len() > 0 {
			notice = turnSeparator + notice
		}
		ex.emit(notice)
		return false
	}

	out.calls = append(out.calls, chunk.FunctionCalls...)
	return true
}

func (l *Local) handleToolCalls(ctx context.Context, ex *exchange, out *turnOutput) error {
	calls := make([]messages.ToolCall, len(out.calls))
	for i, fc := range out.calls {
		id := fc.ID
		if id == "" {
			id = messages.ToolCallID(fc.Name, ex.seq)
		}
		ex.seq++
		calls[i] = messages.ToolCall{ID: id, Name: fc.Name, Arguments: encodeArgs(fc.Args)}
	}

	var content *string
	if text := out.text.String(); text != "" {
		content = messages.Text(text)
	}
	ex.append(messages.AssistantToolCalls(content, calls))

	for i, call := range calls {
		ex.setState(ToolExecuting, "Running tool "+call.Name)
		result, found, err := ex.cmd.Tools.Resolve(ctx, call.Name, out.calls[i].Args)
		if err != nil {
			return &ToolError{Tool: call.Name, CallID: call.ID, Err: err}
		}
		if !found {
			l.logger.WarnContext(ctx, "model requested an unknown tool",
				slog.String("tool", call.Name),
				slog.String("call_id", call.ID),
			)
			continue
		}
		ex.append(messages.ToolResult(call.ID, call.Name, result))
	}
	return nil
}

func (ex *exchange) maxTurns() int {
	if ex.cmd.MaxTurns <= 0 {
		return DefaultMaxTurns
	}
	return ex.cmd.MaxTurns
}

func (ex *exchange) setState(state State, status string) {
	ex.result.State = state
	if ex.cmd.OnStatus != nil {
		ex.cmd.OnStatus(status, state)
	}
}

func (ex *exchange) emit(text string) {
	ex.answer.WriteString(text)
	if ex.cmd.OnToken != nil {
		ex.cmd.OnToken(text)
	}
}

func (ex *exchange) append(msg messages.Message) {
	ex.history = append(ex.history, msg)
	ex.appended = append(ex.appended, msg)
}

func encodeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func countToolCalls(history []messages.Message) int {
	var n int
	for _, msg := range history {
		n += len(msg.ToolCalls)
	}
	return n
}

func blockedNotice(reason string) string {
	if reason == "" {
		return "The response was blocked by the provider's content filter."
	}
	return fmt.Sprintf("The response was blocked by the provider's content filter (%s).", reason)
}

func maxTurnsMessage(maxTurns int) string {
	return fmt.Sprintf("I could not finish this request within %d steps. Please try again or rephrase the question.", maxTurns)
}
