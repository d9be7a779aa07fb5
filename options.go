package parley

import (
	"fmt"

	"github.com/casualjim/parley/config"
	"github.com/casualjim/parley/events"
	"github.com/casualjim/parley/history"
	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/provider"
	"github.com/casualjim/parley/tool"
	"github.com/casualjim/parley/trace"
	"github.com/fogfish/opts"
)

// Option configures an Assistant.
type Option = opts.Option[Assistant]

// WithConfig sets the source read at the start of every exchange.
func WithConfig(src config.Source) Option {
	return opts.Type[Assistant](func(a *Assistant) error {
		a.config = src
		return nil
	})
}

// WithProviders sets the registry the active provider is resolved from.
func WithProviders(reg *provider.Registry) Option {
	return opts.Type[Assistant](func(a *Assistant) error {
		a.providers = reg
		return nil
	})
}

// WithTools adds tools offered to the model on every exchange.
func WithTools(defs ...tool.Definition) Option {
	return opts.Type[Assistant](func(a *Assistant) error {
		if a.tools == nil {
			a.tools = &tool.Registry{}
		}
		return a.tools.Register(defs...)
	})
}

// WithToolRegistry replaces the default tool set with reg.
func WithToolRegistry(reg *tool.Registry) Option {
	return opts.Type[Assistant](func(a *Assistant) error {
		a.tools = reg
		return nil
	})
}

// WithHistorySink receives the full conversation after every successful exchange.
func WithHistorySink(sink history.Sink) Option {
	return opts.Type[Assistant](func(a *Assistant) error {
		a.history = sink
		return nil
	})
}

// WithTraceSink stores a trace for every exchange asked with Debug(true).
func WithTraceSink(sink trace.Sink) Option {
	return opts.Type[Assistant](func(a *Assistant) error {
		if sink == nil {
			a.traces = nil
			return nil
		}
		a.traces = trace.NewAccumulator(sink)
		return nil
	})
}

// WithHook adds an observer to every exchange.
func WithHook(hook events.Hook) Option {
	return opts.Type[Assistant](func(a *Assistant) error {
		if hook != nil {
			a.hooks = append(a.hooks, hook)
		}
		return nil
	})
}

// WithMaxTurns bounds the provider requests of one exchange when the preset
// does not.
func WithMaxTurns(n int) Option {
	return opts.Type[Assistant](func(a *Assistant) error {
		if n < 0 {
			return fmt.Errorf("max turns must not be negative, got %d", n)
		}
		a.maxTurns = n
		return nil
	})
}

// Request holds the per call settings of Ask.
type Request struct {
	// Debug records a trace and reports its id in Result.DebugID.
	Debug bool
	// Reset starts from an empty history. With an empty message Ask does nothing.
	Reset bool
	// History is the conversation preceding the message.
	History []messages.Message
	// Tools replaces the assistant tools for this call when set.
	Tools *tool.Registry
	// Preset is merged over the configured generation preset.
	Preset *config.Preset
	// OnStatus receives a human readable status on every state change.
	OnStatus func(status string, state State)
	// OnToken receives answer text as it arrives.
	OnToken func(text string)
}

// AskOption configures a single call to Ask.
type AskOption = opts.Option[Request]

var (
	// Debug requests a diagnostic trace for the exchange.
	Debug = opts.ForName[Request, bool]("Debug")
	// Reset discards the supplied history.
	Reset = opts.ForName[Request, bool]("Reset")
	// History supplies the conversation so far.
	History = opts.ForName[Request, []messages.Message]("History")
	// OnStatus registers a status callback.
	OnStatus = opts.ForName[Request, func(string, State)]("OnStatus")
	// OnToken registers a callback for streamed answer text.
	OnToken = opts.ForName[Request, func(string)]("OnToken")
)

// ToolsOverride offers exactly defs for this call. Calling it with no
// definitions disables tools.
func ToolsOverride(defs ...tool.Definition) AskOption {
	return opts.Type[Request](func(r *Request) error {
		reg, err := tool.NewRegistry(defs...)
		if err != nil {
			return err
		}
		r.Tools = reg
		return nil
	})
}

// PresetOverride merges preset over the configured one for this call.
func PresetOverride(preset config.Preset) AskOption {
	return opts.Type[Request](func(r *Request) error {
		if err := preset.Validate(); err != nil {
			return fmt.Errorf("%w: preset override: %w", config.ErrInvalid, err)
		}
		r.Preset = &preset
		return nil
	})
}
