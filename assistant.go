package parley

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/casualjim/parley/config"
	"github.com/casualjim/parley/events"
	"github.com/casualjim/parley/history"
	"github.com/casualjim/parley/internal/executor"
	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/pkg/slogx"
	"github.com/casualjim/parley/provider"
	"github.com/casualjim/parley/tool"
	"github.com/casualjim/parley/trace"
	"github.com/fogfish/opts"
)

// ErrEmptyMessage is returned by Ask for an empty message without Reset.
var ErrEmptyMessage = errors.New("message must not be empty")

// State is the step an exchange is in, as reported to OnStatus and in Result.
type State = executor.State

const (
	Idle             = executor.Idle
	Requesting       = executor.Requesting
	Processing       = executor.Processing
	ToolExecuting    = executor.ToolExecuting
	Done             = executor.Done
	MaxTurnsExceeded = executor.MaxTurnsExceeded
)

// ToolError reports a tool that failed while the exchange was running.
type ToolError = executor.ToolError

// DefaultMaxTurns bounds an exchange when neither the preset nor WithMaxTurns does.
const DefaultMaxTurns = executor.DefaultMaxTurns

// Result is the outcome of one exchange.
type Result struct {
	Answer string
	// DebugID identifies the stored trace. It is nil unless Debug was requested.
	DebugID  *string
	Usage    messages.Usage
	Safety   messages.SafetyRatings
	Model    string
	Provider string
	Thinking string
	State    State
	// History is the full conversation after the exchange: the input history,
	// the user message and every entry the exchange appended.
	History []messages.Message
}

// Assistant answers messages using whichever provider the configuration
// selects at the time of the call. It is safe for concurrent use.
type Assistant struct {
	config    config.Source
	providers *provider.Registry
	tools     *tool.Registry
	history   history.Sink
	traces    *trace.Accumulator
	hooks     []events.Hook
	maxTurns  int
	executor  executor.Executor
	logger    *slog.Logger
}

// New creates an assistant. WithConfig and WithProviders are required.
func New(options ...Option) (*Assistant, error) {
	a := Assistant{
		executor: executor.NewLocal(),
		logger:   slogx.Component("parley"),
	}
	if err := opts.Apply(&a, options); err != nil {
		return nil, err
	}

	var errs []error
	if a.config == nil {
		errs = append(errs, errors.New("config source is required"))
	}
	if a.providers == nil {
		errs = append(errs, errors.New("provider registry is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &a, nil
}

// Tools returns the tools offered by default.
func (a *Assistant) Tools() []tool.Definition {
	return a.tools.Definitions()
}

// Ask runs one exchange for message and returns its result.
//
// Configuration, the active provider and its credentials are read once at the
// start of the call. Tool failures and provider transport failures are
// returned as errors; a blocked response or an exhausted turn budget is not an
// error and is reported through Result.State and Result.Answer.
func (a *Assistant) Ask(ctx context.Context, message string, options ...AskOption) (Result, error) {
	var req Request
	if err := opts.Apply(&req, options); err != nil {
		return Result{}, err
	}
	if message == "" {
		if req.Reset {
			return Result{}, nil
		}
		return Result{}, ErrEmptyMessage
	}

	preset, err := a.config.GenerationParameters(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read generation parameters: %w", err)
	}
	if req.Preset != nil {
		preset = preset.Merge(*req.Preset)
	}

	prov, err := a.providers.Resolve(ctx, a.config)
	if err != nil {
		return Result{}, err
	}

	var prior []messages.Message
	if !req.Reset {
		prior = req.History
	}
	input := append(messages.CloneHistory(prior), messages.User(message))

	tools := a.tools
	if req.Tools != nil {
		tools = req.Tools
	}

	cmd, err := executor.NewRunCommand(prov, a.hook())
	if err != nil {
		return Result{}, err
	}
	cmd = cmd.
		WithModel(preset.Model).
		WithInstructions(preset.SystemPrompt).
		WithHistory(input).
		WithTools(tools).
		WithGeneration(preset.Generation).
		WithStream(preset.StreamEnabled()).
		WithMaxTurns(a.turnLimit(preset)).
		WithDebug(req.Debug).
		WithConfig(snapshot(preset, prov.Name())).
		WithOnToken(req.OnToken).
		WithOnStatus(req.OnStatus)

	var debugID *string
	if req.Debug {
		id := cmd.ID().String()
		debugID = &id
	}

	res, err := a.executor.Run(ctx, cmd)
	if err != nil {
		return Result{DebugID: debugID}, err
	}

	full := append(input, res.History...)
	if a.history != nil {
		if err := a.history.Append(ctx, messages.CloneHistory(full)); err != nil {
			a.logger.WarnContext(ctx, "failed to persist history",
				slogx.Stringer("exchange", res.ExchangeID),
				slogx.Error(err),
			)
		}
	}

	return Result{
		Answer:   res.Answer,
		DebugID:  debugID,
		Usage:    res.Usage,
		Safety:   res.Safety,
		Model:    res.Model,
		Provider: res.Provider,
		Thinking: res.Thinking,
		State:    res.State,
		History:  full,
	}, nil
}

func (a *Assistant) hook() events.Hook {
	hooks := make([]events.Hook, 0, len(a.hooks)+1)
	if a.traces != nil {
		hooks = append(hooks, a.traces)
	}
	hooks = append(hooks, a.hooks...)
	return events.Multi(hooks...)
}

func (a *Assistant) turnLimit(preset config.Preset) int {
	if preset.MaxTurns > 0 {
		return preset.MaxTurns
	}
	if a.maxTurns > 0 {
		return a.maxTurns
	}
	return DefaultMaxTurns
}

func snapshot(preset config.Preset, providerName string) map[string]any {
	snap := preset.Snapshot()
	snap["provider"] = providerName
	return snap
}
