package gemini

import (
	"errors"
	"fmt"

	"github.com/casualjim/parley/messages"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

type safetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
	Blocked     bool   `json:"blocked,omitempty"`
}

type candidate struct {
	Content       content        `json:"content"`
	FinishReason  string         `json:"finishReason"`
	SafetyRatings []safetyRating `json:"safetyRatings"`
}

type usageMetadata struct {
	PromptTokenCount     int64 `json:"promptTokenCount"`
	CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	ThoughtsTokenCount   int64 `json:"thoughtsTokenCount"`
	TotalTokenCount      int64 `json:"totalTokenCount"`
}

type promptFeedback struct {
	BlockReason   string         `json:"blockReason"`
	SafetyRatings []safetyRating `json:"safetyRatings"`
}

type response struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback"`
	UsageMetadata  *usageMetadata  `json:"usageMetadata"`
}

// blockingFinishReasons are the finish reasons that mean the answer was withheld.
var blockingFinishReasons = map[string]struct{}{
	"SAFETY":             {},
	"PROHIBITED_CONTENT": {},
	"BLOCKLIST":          {},
	"SPII":               {},
	"RECITATION":         {},
}

// decodeResponse turns one GenerateContentResponse document into a chunk.
// Streaming events and synchronous bodies share this shape.
func decodeResponse(data []byte) (messages.Chunk, error) {
	if msg := gjson.GetBytes(data, "error.message"); msg.Exists() {
		return messages.Chunk{}, errors.New(msg.String())
	}

	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return messages.Chunk{}, fmt.Errorf("decode response: %w", err)
	}

	var chunk messages.Chunk
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]

		var text, thinking string
		var hasText, hasThinking bool
		for _, p := range cand.Content.Parts {
			switch {
			case p.FunctionCall != nil:
				args := p.FunctionCall.Args
				if args == nil {
					args = map[string]any{}
				}
				chunk.FunctionCalls = append(chunk.FunctionCalls, messages.FunctionCall{
					ID:   p.FunctionCall.ID,
					Name: p.FunctionCall.Name,
					Args: args,
				})
			case p.Text == nil:
			case p.Thought:
				thinking += *p.Text
				hasThinking = true
			default:
				text += *p.Text
				hasText = true
			}
		}
		if hasText && text != "" {
			chunk.Text = messages.Text(text)
		}
		if hasThinking && thinking != "" {
			chunk.Thinking = messages.Text(thinking)
		}

		chunk.FinishReason = cand.FinishReason
		if _, blocked := blockingFinishReasons[cand.FinishReason]; blocked {
			chunk.Blocked = true
			chunk.BlockedReason = messages.Text(cand.FinishReason)
		}
		chunk.SafetyRatings = ratings(chunk.SafetyRatings, cand.SafetyRatings)
	}

	if fb := resp.PromptFeedback; fb != nil {
		chunk.SafetyRatings = ratings(chunk.SafetyRatings, fb.SafetyRatings)
		if fb.BlockReason != "" {
			chunk.Blocked = true
			chunk.BlockedReason = messages.Text(fb.BlockReason)
		}
	}

	if u := resp.UsageMetadata; u != nil {
		chunk.Usage = messages.Usage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			ThinkingTokens:   u.ThoughtsTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}
	return chunk, nil
}

func ratings(dst messages.SafetyRatings, src []safetyRating) messages.SafetyRatings {
	for _, r := range src {
		if r.Category == "" {
			continue
		}
		if dst == nil {
			dst = make(messages.SafetyRatings, len(src))
		}
		dst[r.Category] = r.Probability
	}
	return dst
}
