package openai

import (
	"errors"
	"fmt"

	"github.com/casualjim/parley/messages"
	json "github.com/goccy/go-json"
	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"
)

const (
	finishToolCalls     = "tool_calls"
	finishContentFilter = "content_filter"
)

// decodeEvent turns one streamed event into a chunk, feeding tool call
// fragments into acc. Completed calls are attached only when the event
// finishes the tool call phase.
func decodeEvent(data []byte, acc *toolCallAccumulator) (messages.Chunk, error) {
	if msg := gjson.GetBytes(data, "error.message"); msg.Exists() {
		return messages.Chunk{}, errors.New(msg.String())
	}

	var ev openai.ChatCompletionChunk
	if err := json.Unmarshal(data, &ev); err != nil {
		return messages.Chunk{}, fmt.Errorf("decode stream event: %w", err)
	}

	var chunk messages.Chunk
	if len(ev.Choices) > 0 {
		choice := ev.Choices[0]
		if choice.Delta.Content != "" {
			chunk.Text = messages.Text(choice.Delta.Content)
		}
		if thinking := reasoningText(gjson.GetBytes(data, "choices.0.delta")); thinking != "" {
			chunk.Thinking = messages.Text(thinking)
		}
		for _, tc := range choice.Delta.ToolCalls {
			acc.add(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)
		}

		finish := string(choice.FinishReason)
		chunk.FinishReason = finish
		switch finish {
		case finishToolCalls:
			chunk.FunctionCalls = acc.flush()
		case finishContentFilter:
			chunk.Blocked = true
			chunk.BlockedReason = messages.Text(finishContentFilter)
		}
	}

	chunk.Usage = usageFrom(gjson.GetBytes(data, "usage"))
	return chunk, nil
}

// decodeCompletion turns a whole chat completion document into one chunk.
func decodeCompletion(body []byte) (messages.Chunk, error) {
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		return messages.Chunk{}, errors.New(msg.String())
	}

	var completion openai.ChatCompletion
	if err := json.Unmarshal(body, &completion); err != nil {
		return messages.Chunk{}, fmt.Errorf("decode completion: %w", err)
	}

	var chunk messages.Chunk
	if len(completion.Choices) > 0 {
		choice := completion.Choices[0]
		if choice.Message.Content != "" {
			chunk.Text = messages.Text(choice.Message.Content)
		}
		if thinking := reasoningText(gjson.GetBytes(body, "choices.0.message")); thinking != "" {
			chunk.Thinking = messages.Text(thinking)
		}
		for _, tc := range choice.Message.ToolCalls {
			chunk.FunctionCalls = append(chunk.FunctionCalls, messages.FunctionCall{
				ID:   tc.ID,
				Name: tc.Function.Name,
				Args: messages.ParseArguments(tc.Function.Arguments),
			})
		}
		chunk.FinishReason = string(choice.FinishReason)
		if chunk.FinishReason == finishContentFilter {
			chunk.Blocked = true
			chunk.BlockedReason = messages.Text(finishContentFilter)
		}
		if refusal := gjson.GetBytes(body, "choices.0.message.refusal").String(); refusal != "" && chunk.Text == nil {
			chunk.Blocked = true
			chunk.BlockedReason = messages.Text(refusal)
		}
	}

	chunk.Usage = usageFrom(gjson.GetBytes(body, "usage"))
	return chunk, nil
}

// reasoningText reads the reasoning trace, which servers report under
// different keys.
func reasoningText(delta gjson.Result) string {
	for _, key := range []string{"reasoning_content", "reasoning"} {
		if v := delta.Get(key); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func usageFrom(u gjson.Result) messages.Usage {
	if !u.IsObject() {
		return messages.Usage{}
	}
	return messages.Usage{
		PromptTokens:     u.Get("prompt_tokens").Int(),
		CompletionTokens: u.Get("completion_tokens").Int(),
		ThinkingTokens:   u.Get("completion_tokens_details.reasoning_tokens").Int(),
		TotalTokens:      u.Get("total_tokens").Int(),
	}
}
