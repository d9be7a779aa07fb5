// Package messages defines the canonical conversation vocabulary shared by every
// other package: the history entry (Message), the tool call it may carry
// (ToolCall), and the normalized unit every provider adapter produces (Chunk).
//
// Design decisions:
//   - Provider neutral: no field mirrors a specific wire format; adapters translate
//   - Nullable content: assistant turns that only call tools carry a nil Content
//   - Lazy arguments: tool call arguments stay raw JSON text until a tool needs them
//   - Partial chunks: a Chunk is a slice of model output; accumulation belongs to the caller
//
// Key concepts:
//   - Message: one turn of conversation history (user, assistant or tool)
//   - ToolCall: an assistant request to run a named function with JSON arguments
//   - FunctionCall: a fully resolved tool call as emitted inside a Chunk
//   - Chunk: text, thinking, function calls, usage and safety data from one wire event
//
// Example usage:
//
//	history := []messages.Message{
//	    messages.User("What is the weather in Paris?"),
//	    messages.AssistantToolCalls(nil, []messages.ToolCall{{
//	        ID:        messages.ToolCallID("get_weather", 0),
//	        Name:      "get_weather",
//	        Arguments: `{"city":"Paris"}`,
//	    }}),
//	    messages.ToolResult(messages.ToolCallID("get_weather", 0), "get_weather", "18°C"),
//	}
package messages
