package messages

import "maps"

// FunctionCall is a completely accumulated tool call emitted by an adapter.
// ID is set only when the provider assigned one.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Usage captures token accounting reported by a provider.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	ThinkingTokens   int64 `json:"thinking_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// IsZero reports whether no counter has been set.
func (u Usage) IsZero() bool {
	return u == Usage{}
}

// Merge overwrites the counters of u with every non-zero counter in other.
// Providers report cumulative totals, so the most recent value wins.
func (u *Usage) Merge(other Usage) {
	if other.PromptTokens != 0 {
		u.PromptTokens = other.PromptTokens
	}
	if other.CompletionTokens != 0 {
		u.CompletionTokens = other.CompletionTokens
	}
	if other.ThinkingTokens != 0 {
		u.ThinkingTokens = other.ThinkingTokens
	}
	if other.TotalTokens != 0 {
		u.TotalTokens = other.TotalTokens
	}
}

// Add sums the counters of other into u. Totals of separate requests are
// added this way; chunks of the same request go through Merge.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.ThinkingTokens += other.ThinkingTokens
	u.TotalTokens += other.TotalTokens
}

// SafetyRatings maps a safety category to the level the provider assigned.
type SafetyRatings map[string]string

// Clone returns a copy of the ratings.
func (s SafetyRatings) Clone() SafetyRatings {
	if s == nil {
		return nil
	}
	return maps.Clone(s)
}

// Chunk is the only unit a provider adapter emits. It carries at most a
// partial slice of the model output; accumulation across chunks and turns is
// the caller's job.
type Chunk struct {
	Text          *string        `json:"text"`
	Thinking      *string        `json:"thinking"`
	FunctionCalls []FunctionCall `json:"function_calls,omitempty"`
	Usage         Usage          `json:"usage"`
	SafetyRatings SafetyRatings  `json:"safety_ratings,omitempty"`
	Blocked       bool           `json:"blocked"`
	BlockedReason *string        `json:"blocked_reason"`
	FinishReason  string         `json:"finish_reason,omitempty"`
}

// TextString returns the chunk text or an empty string.
func (c Chunk) TextString() string {
	if c.Text == nil {
		return ""
	}
	return *c.Text
}

// ThinkingString returns the chunk reasoning text or an empty string.
func (c Chunk) ThinkingString() string {
	if c.Thinking == nil {
		return ""
	}
	return *c.Thinking
}

// BlockedReasonString returns the block reason or an empty string.
func (c Chunk) BlockedReasonString() string {
	if c.BlockedReason == nil {
		return ""
	}
	return *c.BlockedReason
}

// IsEmpty reports whether the chunk carries nothing a caller could act on.
func (c Chunk) IsEmpty() bool {
	return c.TextString() == "" &&
		c.ThinkingString() == "" &&
		len(c.FunctionCalls) == 0 &&
		c.Usage.IsZero() &&
		len(c.SafetyRatings) == 0 &&
		!c.Blocked &&
		c.FinishReason == ""
}
