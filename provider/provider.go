package provider

import (
	"context"
	"maps"
	"slices"

	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/tool"
)

// Provider is implemented by every backend protocol adapter.
//
// Adapters never mutate Params.History and never execute tools.
type Provider interface {
	// Name identifies the provider in logs, errors and traces.
	Name() string
	// StreamGenerateContent starts a streaming exchange. The returned Stream must be closed.
	StreamGenerateContent(ctx context.Context, params Params) (Stream, error)
	// GenerateContent performs one synchronous request and returns the fully populated
	// chunk together with the raw payloads.
	GenerateContent(ctx context.Context, params Params) (messages.Chunk, Wire, error)
}

// Stream is a forward-only, non-restartable sequence of chunks.
type Stream interface {
	// Next advances to the next chunk, reading from the network when needed.
	Next() bool
	// Chunk returns the current chunk.
	Chunk() messages.Chunk
	// Raw returns the wire event the current chunk was decoded from.
	Raw() []byte
	// Wire returns the payloads observed so far.
	Wire() Wire
	// Err returns the error that stopped the stream, if any.
	Err() error
	// Close releases the underlying connection.
	Close() error
}

// Params describes one request to a provider.
type Params struct {
	Instructions string
	History      []messages.Message
	Tools        []tool.Definition
	Model        string
	Generation   Generation
}

// Generation holds sampling and output settings. Nil pointers are left out of
// the request so the backend default applies.
type Generation struct {
	Temperature     *float64       `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP            *float64       `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	MaxTokens       *int64         `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	StopSequences   []string       `json:"stop_sequences,omitempty" yaml:"stop_sequences,omitempty"`
	ReasoningEffort string         `json:"reasoning_effort,omitempty" yaml:"reasoning_effort,omitempty"`
	Extra           map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Merge returns a copy of g with every field set in override applied on top.
func (g Generation) Merge(override Generation) Generation {
	out := g.Clone()
	if override.Temperature != nil {
		out.Temperature = override.Temperature
	}
	if override.TopP != nil {
		out.TopP = override.TopP
	}
	if override.MaxTokens != nil {
		out.MaxTokens = override.MaxTokens
	}
	if len(override.StopSequences) > 0 {
		out.StopSequences = slices.Clone(override.StopSequences)
	}
	if override.ReasoningEffort != "" {
		out.ReasoningEffort = override.ReasoningEffort
	}
	if len(override.Extra) > 0 {
		if out.Extra == nil {
			out.Extra = make(map[string]any, len(override.Extra))
		}
		maps.Copy(out.Extra, override.Extra)
	}
	return out
}

// Clone returns a copy of g that shares no slices or maps with it.
func (g Generation) Clone() Generation {
	out := g
	out.StopSequences = slices.Clone(g.StopSequences)
	if g.Extra != nil {
		out.Extra = maps.Clone(g.Extra)
	}
	return out
}

// Wire carries the exact bytes sent to and received from a provider.
// It exists for diagnostics only.
type Wire struct {
	Request   []byte
	Responses [][]byte
}

// Record appends a received payload.
func (w *Wire) Record(raw []byte) {
	w.Responses = append(w.Responses, raw)
}

// Clone returns a copy of the wire capture.
func (w Wire) Clone() Wire {
	out := Wire{Request: slices.Clone(w.Request)}
	if w.Responses != nil {
		out.Responses = make([][]byte, len(w.Responses))
		for i, r := range w.Responses {
			out.Responses[i] = slices.Clone(r)
		}
	}
	return out
}

// Credentials holds the provider settings resolved from configuration,
// typically api_key and base_url.
type Credentials map[string]string

const (
	CredentialAPIKey  = "api_key"
	CredentialBaseURL = "base_url"
)

// APIKey returns the api key entry.
func (c Credentials) APIKey() string {
	return c[CredentialAPIKey]
}

// BaseURL returns the base url entry.
func (c Credentials) BaseURL() string {
	return c[CredentialBaseURL]
}
