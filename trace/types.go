package trace

import (
	"unicode/utf8"

	"github.com/casualjim/parley/messages"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// MaxPreviewBytes bounds the tool result text kept in a trace.
const MaxPreviewBytes = 500

const truncatedSuffix = "... (truncated)"

// ExchangeTrace is the diagnostic record of one exchange.
type ExchangeTrace struct {
	DebugID        string             `json:"debug_id"`
	StartedAt      strfmt.DateTime    `json:"started_at"`
	CompletedAt    strfmt.DateTime    `json:"completed_at"`
	SystemPrompt   string             `json:"system_prompt"`
	Config         map[string]any     `json:"config,omitempty"`
	InitialHistory []messages.Message `json:"initial_history"`
	Turns          []Turn             `json:"turns"`
	Requests       []json.RawMessage  `json:"requests"`
	// Responses holds every received payload exactly as read. Payloads that are
	// not JSON, such as SSE lines, are kept as JSON strings.
	Responses      []json.RawMessage      `json:"responses"`
	ToolExecutions []ToolExecution        `json:"tool_executions"`
	Model          string                 `json:"model"`
	Provider       string                 `json:"provider"`
	Usage          messages.Usage         `json:"usage"`
	Safety         messages.SafetyRatings `json:"safety,omitempty"`
	Answer         string                 `json:"answer"`
	Thinking       string                 `json:"thinking,omitempty"`
	State          string                 `json:"state"`
	Error          string                 `json:"error,omitempty"`
}

// Turn is what one provider request produced.
type Turn struct {
	Index         int                     `json:"turn_index"`
	Text          string                  `json:"text"`
	Thinking      string                  `json:"thinking,omitempty"`
	FunctionCalls []messages.FunctionCall `json:"function_calls,omitempty"`
	Usage         messages.Usage          `json:"usage"`
	Safety        messages.SafetyRatings  `json:"safety_ratings,omitempty"`
	Blocked       bool                    `json:"blocked,omitempty"`
	BlockedReason string                  `json:"blocked_reason,omitempty"`
	Error         string                  `json:"error,omitempty"`
}

// turn returns the entry for index, appending one when the last entry belongs
// to an earlier turn.
func (t *ExchangeTrace) turn(index int) *Turn {
	if n := len(t.Turns); n == 0 || t.Turns[n-1].Index != index {
		t.Turns = append(t.Turns, Turn{Index: index})
	}
	return &t.Turns[len(t.Turns)-1]
}

// ToolExecution is a tool call the model made, paired with its result.
type ToolExecution struct {
	ToolName      string `json:"tool_name"`
	CallID        string `json:"call_id"`
	Arguments     string `json:"arguments"`
	ResultPreview string `json:"result_preview"`
	Truncated     bool   `json:"truncated,omitempty"`
	// Answered is false when no result was sent back, e.g. for an unknown tool.
	Answered bool `json:"answered"`
}

// Metadata summarizes a trace for sinks that index records.
type Metadata struct {
	DebugID   string          `json:"debug_id"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	State     string          `json:"state"`
	Turns     int             `json:"turns"`
	Usage     messages.Usage  `json:"usage"`
	CreatedAt strfmt.DateTime `json:"created_at"`
	Failed    bool            `json:"failed,omitempty"`
}

// Record is the envelope sinks serialize.
type Record struct {
	Metadata Metadata       `json:"metadata"`
	Trace    *ExchangeTrace `json:"trace"`
}

// Preview cuts s to MaxPreviewBytes on a rune boundary and reports whether it
// had to.
func Preview(s string) (string, bool) {
	if len(s) <= MaxPreviewBytes {
		return s, false
	}
	cut := MaxPreviewBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncatedSuffix, true
}

// rawJSON embeds payloads that are JSON as is and quotes everything else.
func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	if gjson.ValidBytes(b) {
		return json.RawMessage(append([]byte(nil), b...))
	}
	quoted, err := json.Marshal(string(b))
	if err != nil {
		return nil
	}
	return quoted
}

func toolExecutions(history []messages.Message) []ToolExecution {
	results := make(map[string]string)
	for _, msg := range history {
		if msg.Role == messages.RoleTool {
			results[msg.ToolCallID] = msg.ContentString()
		}
	}

	var out []ToolExecution
	for _, msg := range history {
		for _, call := range msg.ToolCalls {
			exec := ToolExecution{ToolName: call.Name, CallID: call.ID, Arguments: call.Arguments}
			if result, ok := results[call.ID]; ok {
				exec.Answered = true
				exec.ResultPreview, exec.Truncated = Preview(result)
			}
			out = append(out, exec)
		}
	}
	return out
}
