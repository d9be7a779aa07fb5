package messages

import (
	"errors"
	"fmt"
	"slices"

	"github.com/tidwall/gjson"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of canonical conversation history.
//
// An assistant message with tool calls may have a nil Content. A tool message
// always carries both ToolCallID and Content.
type Message struct {
	Role       Role       `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	// Name is the tool name on tool-role messages. Parts-style providers address
	// function responses by name, so it travels with the result.
	Name string `json:"name,omitempty"`
}

// ToolCall is an assistant request to execute a named tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ParsedArguments decodes the raw argument text into a map.
// Malformed or non-object JSON yields an empty map, never an error.
func (t ToolCall) ParsedArguments() map[string]any {
	return ParseArguments(t.Arguments)
}

// ParseArguments decodes raw JSON argument text into a map, degrading to an
// empty map when the text is not a valid JSON object.
func ParseArguments(raw string) map[string]any {
	if raw == "" || !gjson.Valid(raw) {
		return map[string]any{}
	}
	res := gjson.Parse(raw)
	if !res.IsObject() {
		return map[string]any{}
	}
	args, ok := res.Value().(map[string]any)
	if !ok || args == nil {
		return map[string]any{}
	}
	return args
}

// ToolCallID derives the identifier assigned to the seq-th tool call of an
// exchange. The same inputs always produce the same identifier so a tool
// result can reference its call unambiguously.
func ToolCallID(name string, seq int) string {
	return fmt.Sprintf("call_%s_%d", name, seq)
}

// Text returns a pointer to s, for use in Message.Content and Chunk fields.
func Text(s string) *string {
	return &s
}

// User creates a user message with the provided text.
func User(text string) Message {
	return Message{Role: RoleUser, Content: Text(text)}
}

// Assistant creates a plain assistant answer.
func Assistant(text string) Message {
	return Message{Role: RoleAssistant, Content: Text(text)}
}

// AssistantToolCalls creates an assistant message that invokes tools. The
// content is optional and may be nil.
func AssistantToolCalls(content *string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: slices.Clone(calls)}
}

// ToolResult creates the tool-role message answering the call identified by id.
func ToolResult(id, name, content string) Message {
	return Message{Role: RoleTool, Content: Text(content), ToolCallID: id, Name: name}
}

// ContentString returns the message content or an empty string when nil.
func (m Message) ContentString() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// HasToolCalls reports whether the message requests tool execution.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	c := m
	if m.Content != nil {
		c.Content = Text(*m.Content)
	}
	c.ToolCalls = slices.Clone(m.ToolCalls)
	return c
}

// Validate checks the role specific invariants of a message.
func (m Message) Validate() error {
	switch m.Role {
	case RoleUser:
		if m.Content == nil {
			return errors.New("user message requires content")
		}
		if m.HasToolCalls() || m.ToolCallID != "" {
			return errors.New("user message cannot carry tool calls")
		}
	case RoleAssistant:
		if m.ToolCallID != "" {
			return errors.New("assistant message cannot carry a tool call id")
		}
		if m.Content == nil && !m.HasToolCalls() {
			return errors.New("assistant message requires content or tool calls")
		}
		for _, tc := range m.ToolCalls {
			if tc.ID == "" || tc.Name == "" {
				return fmt.Errorf("assistant tool call requires id and name, got %q/%q", tc.ID, tc.Name)
			}
		}
	case RoleTool:
		if m.ToolCallID == "" {
			return errors.New("tool message requires a tool call id")
		}
		if m.Content == nil {
			return errors.New("tool message requires content")
		}
	default:
		return fmt.Errorf("unknown role %q", m.Role)
	}
	return nil
}

// CloneHistory returns a deep copy of a history slice.
func CloneHistory(history []Message) []Message {
	if history == nil {
		return nil
	}
	out := make([]Message, len(history))
	for i, m := range history {
		out[i] = m.Clone()
	}
	return out
}
