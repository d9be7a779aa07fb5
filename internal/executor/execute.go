package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/casualjim/parley/events"
	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/pkg/uuidx"
	"github.com/casualjim/parley/provider"
	"github.com/casualjim/parley/tool"
	"github.com/google/uuid"
)

// DefaultMaxTurns bounds an exchange when the command does not set MaxTurns.
const DefaultMaxTurns = 5

// State is a step of the exchange state machine.
type State int

const (
	Idle State = iota
	Requesting
	Processing
	ToolExecuting
	Done
	MaxTurnsExceeded
)

var stateNames = [...]string{
	Idle:             "Idle",
	Requesting:       "Requesting",
	Processing:       "Processing",
	ToolExecuting:    "ToolExecuting",
	Done:             "Done",
	MaxTurnsExceeded: "MaxTurnsExceeded",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the exchange stops in this state.
func (s State) Terminal() bool {
	return s == Done || s == MaxTurnsExceeded
}

// NewRunCommand creates a command for prov. A nil hook is replaced by events.Nop.
func NewRunCommand(prov provider.Provider, hook events.Hook) (RunCommand, error) {
	if prov == nil {
		return RunCommand{}, errors.New("provider is required")
	}
	if hook == nil {
		hook = events.Nop{}
	}

	return RunCommand{
		id:       uuidx.New(),
		Provider: prov,
		Hook:     hook,
		MaxTurns: DefaultMaxTurns,
	}, nil
}

// RunCommand carries everything one exchange needs.
type RunCommand struct {
	id           uuid.UUID
	Provider     provider.Provider
	Model        string
	Instructions string
	// History is the conversation so far. It is never modified.
	History    []messages.Message
	Tools      *tool.Registry
	Generation provider.Generation
	Stream     bool
	MaxTurns   int
	// Debug marks the exchange as one whose diagnostics should be kept.
	Debug bool
	// Config is a snapshot of the settings the exchange runs with, for diagnostics.
	Config   map[string]any
	Hook     events.Hook
	OnToken  func(string)
	OnStatus func(string, State)
}

func (r *RunCommand) Validate() error {
	var err error
	if r.Provider == nil {
		err = errors.Join(err, errors.New("provider cannot be nil"))
	}
	if r.Hook == nil {
		err = errors.Join(err, errors.New("hook cannot be nil"))
	}
	if r.MaxTurns < 0 {
		err = errors.Join(err, fmt.Errorf("max turns cannot be negative, got %d", r.MaxTurns))
	}
	for i, msg := range r.History {
		if verr := msg.Validate(); verr != nil {
			err = errors.Join(err, fmt.Errorf("history[%d]: %w", i, verr))
		}
	}
	return err
}

func (r *RunCommand) ID() uuid.UUID {
	return r.id
}

func (r RunCommand) WithModel(model string) RunCommand {
	r.Model = model
	return r
}

func (r RunCommand) WithInstructions(instructions string) RunCommand {
	r.Instructions = instructions
	return r
}

func (r RunCommand) WithHistory(history []messages.Message) RunCommand {
	r.History = history
	return r
}

func (r RunCommand) WithTools(tools *tool.Registry) RunCommand {
	r.Tools = tools
	return r
}

func (r RunCommand) WithGeneration(gen provider.Generation) RunCommand {
	r.Generation = gen
	return r
}

func (r RunCommand) WithStream(stream bool) RunCommand {
	r.Stream = stream
	return r
}

func (r RunCommand) WithMaxTurns(maxTurns int) RunCommand {
	r.MaxTurns = maxTurns
	return r
}

func (r RunCommand) WithDebug(debug bool) RunCommand {
	r.Debug = debug
	return r
}

func (r RunCommand) WithConfig(cfg map[string]any) RunCommand {
	r.Config = cfg
	return r
}

func (r RunCommand) WithHook(hook events.Hook) RunCommand {
	r.Hook = hook
	return r
}

func (r RunCommand) WithOnToken(fn func(string)) RunCommand {
	r.OnToken = fn
	return r
}

func (r RunCommand) WithOnStatus(fn func(string, State)) RunCommand {
	r.OnStatus = fn
	return r
}

// Result is the outcome of an exchange that did not fail.
type Result struct {
	ExchangeID uuid.UUID              `json:"exchange_id"`
	Answer     string                 `json:"answer"`
	Thinking   string                 `json:"thinking,omitempty"`
	Usage      messages.Usage         `json:"usage"`
	Safety     messages.SafetyRatings `json:"safety,omitempty"`
	Model      string                 `json:"model"`
	Provider   string                 `json:"provider"`
	State      State                  `json:"state"`
	Turns      int                    `json:"turns"`
	// History holds only the messages the exchange appended.
	History []messages.Message `json:"history"`
}

// ToolError reports a tool that failed while the exchange was running.
type ToolError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s (%s): %v", e.Tool, e.CallID, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Executor runs exchanges.
type Executor interface {
	Run(context.Context, RunCommand) (Result, error)
}
