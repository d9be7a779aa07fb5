// Package providertest provides a scripted provider for tests of code that
// drives provider.Provider.
package providertest

import (
	"context"
	"strings"
	"sync"

	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/provider"
	json "github.com/goccy/go-json"
)

// Scripted replays a fixed list of chunks per call. Call n receives Turns[n];
// once the script is exhausted the last turn repeats.
type Scripted struct {
	ProviderName string
	Turns        [][]messages.Chunk
	// Err, when set, is returned by every call instead of a stream.
	Err error

	mu    sync.Mutex
	calls []provider.Params
}

// New creates a scripted provider named "scripted".
func New(turns ...[]messages.Chunk) *Scripted {
	return &Scripted{ProviderName: "scripted", Turns: turns}
}

// Text is a convenience for a turn made of text chunks.
func Text(parts ...string) []messages.Chunk {
	chunks := make([]messages.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = messages.Chunk{Text: messages.Text(p)}
	}
	return chunks
}

// Call is a convenience for a turn that requests one tool.
func Call(name string, args map[string]any) []messages.Chunk {
	return []messages.Chunk{{FunctionCalls: []messages.FunctionCall{{Name: name, Args: args}}}}
}

// Factory returns a provider.Factory that always yields s.
func (s *Scripted) Factory() provider.Factory {
	return func(string, provider.Credentials) (provider.Provider, error) {
		return s, nil
	}
}

func (s *Scripted) Name() string {
	if s.ProviderName == "" {
		return "scripted"
	}
	return s.ProviderName
}

// Calls returns the parameters of every call made so far.
func (s *Scripted) Calls() []provider.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]provider.Params, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many requests were made.
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *Scripted) next(params provider.Params) ([]messages.Chunk, provider.Wire) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := params
	snapshot.History = messages.CloneHistory(params.History)
	s.calls = append(s.calls, snapshot)

	var turn []messages.Chunk
	if len(s.Turns) > 0 {
		idx := min(len(s.calls)-1, len(s.Turns)-1)
		turn = s.Turns[idx]
	}

	req, _ := json.Marshal(map[string]any{
		"model":        params.Model,
		"instructions": params.Instructions,
		"messages":     params.History,
	})
	return turn, provider.Wire{Request: req}
}

func (s *Scripted) StreamGenerateContent(ctx context.Context, params provider.Params) (provider.Stream, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	turn, wire := s.next(params)
	return &stream{ctx: ctx, chunks: turn, wire: wire, idx: -1}, nil
}

func (s *Scripted) GenerateContent(_ context.Context, params provider.Params) (messages.Chunk, provider.Wire, error) {
	if s.Err != nil {
		return messages.Chunk{}, provider.Wire{}, s.Err
	}
	turn, wire := s.next(params)

	var (
		out  messages.Chunk
		text strings.Builder
	)
	for _, c := range turn {
		raw, _ := json.Marshal(c)
		wire.Record(raw)

		text.WriteString(c.TextString())
		out.FunctionCalls = append(out.FunctionCalls, c.FunctionCalls...)
		out.Usage.Merge(c.Usage)
		if len(c.SafetyRatings) > 0 {
			out.SafetyRatings = c.SafetyRatings.Clone()
		}
		if c.Blocked {
			out.Blocked = true
			out.BlockedReason = c.BlockedReason
		}
		if c.Thinking != nil {
			out.Thinking = messages.Text(out.ThinkingString() + c.ThinkingString())
		}
	}
	if text.Len() > 0 {
		out.Text = messages.Text(text.String())
	}
	return out, wire, nil
}

type stream struct {
	ctx    context.Context
	chunks []messages.Chunk
	idx    int
	raw    []byte
	wire   provider.Wire
	err    error
}

func (s *stream) Next() bool {
	if s.err != nil {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return false
	}
	if s.idx+1 >= len(s.chunks) {
		return false
	}
	s.idx++
	s.raw, _ = json.Marshal(s.chunks[s.idx])
	s.wire.Record(s.raw)
	return true
}

func (s *stream) Chunk() messages.Chunk {
	if s.idx < 0 || s.idx >= len(s.chunks) {
		return messages.Chunk{}
	}
	return s.chunks[s.idx]
}

func (s *stream) Raw() []byte         { return s.raw }
func (s *stream) Wire() provider.Wire { return s.wire }
func (s *stream) Err() error          { return s.err }
func (s *stream) Close() error        { return nil }
