package events

import (
	"github.com/casualjim/parley/messages"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
)

// ExchangeStarted is emitted before the first provider request of an exchange.
type ExchangeStarted struct {
	ExchangeID uuid.UUID `json:"exchange_id"`
	// Debug reports whether diagnostics were requested for this exchange.
	Debug        bool               `json:"debug"`
	SystemPrompt string             `json:"system_prompt"`
	Provider     string             `json:"provider"`
	Model        string             `json:"model"`
	Config       map[string]any     `json:"config,omitempty"`
	History      []messages.Message `json:"history"`
	Timestamp    strfmt.DateTime    `json:"timestamp"`
}

// ChunkReceived is emitted for every chunk a provider produced.
type ChunkReceived struct {
	ExchangeID uuid.UUID      `json:"exchange_id"`
	Turn       int            `json:"turn"`
	Chunk      messages.Chunk `json:"chunk"`
	// Raw is the wire event the chunk was decoded from.
	Raw []byte `json:"raw,omitempty"`
	// Request is the payload sent to start the turn.
	Request   []byte          `json:"request,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

// TurnCompleted is emitted after every provider request, including one that
// failed. It carries the payloads exactly as they crossed the wire.
type TurnCompleted struct {
	ExchangeID uuid.UUID `json:"exchange_id"`
	Turn       int       `json:"turn"`
	// Request is the body sent to the provider, nil when nothing was sent.
	Request []byte `json:"request,omitempty"`
	// Responses holds every event or body received, skipped events included.
	Responses [][]byte        `json:"responses,omitempty"`
	Err       error           `json:"-"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

// ExchangeCompleted is emitted once the exchange reached a terminal state or failed.
type ExchangeCompleted struct {
	ExchangeID uuid.UUID              `json:"exchange_id"`
	Answer     string                 `json:"answer"`
	Thinking   string                 `json:"thinking,omitempty"`
	Model      string                 `json:"model"`
	Provider   string                 `json:"provider"`
	Usage      messages.Usage         `json:"usage"`
	Safety     messages.SafetyRatings `json:"safety,omitempty"`
	State      string                 `json:"state"`
	Turns      int                    `json:"turns"`
	// History is the complete conversation: the input history followed by
	// everything the exchange appended.
	History   []messages.Message `json:"history"`
	Err       error              `json:"-"`
	Timestamp strfmt.DateTime    `json:"timestamp"`
}
