/*
Package openai implements provider.Provider for OpenAI-compatible chat
completion endpoints: OpenAI itself and the many servers that speak the same
wire format.

# Design Decisions

  - Typed requests: payloads are built from openai-go parameter types and finished
    with sjson for the fields those types do not cover (stream options, stop,
    reasoning effort, extra parameters)
  - Own SSE loop: the response body is read with pkg/ssex so every raw event can be
    captured for traces and tool call fragments can be accumulated per index
  - Tool calls are surfaced whole: fragments are buffered per positional index and a
    call is emitted only on finish_reason=tool_calls, on [DONE] or at stream end
  - Lenient arguments: argument text that does not parse becomes an empty object

# Wire Mapping

History maps to chat messages as follows:

  - instructions become the leading system message
  - user text becomes a user message
  - assistant text and tool calls become one assistant message with nullable content
  - each tool result becomes one tool message addressed by tool_call_id

FromWire parses such a payload back into canonical history.

# Usage

	p, err := openai.New(
	    openai.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
	    openai.WithBaseURL("https://api.openai.com/v1"),
	)
	stream, err := p.StreamGenerateContent(ctx, provider.Params{
	    Model:   "gpt-4o-mini",
	    History: []messages.Message{messages.User("hi")},
	})
*/
package openai
