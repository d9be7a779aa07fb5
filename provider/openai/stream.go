package openai

import (
	"io"

	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/pkg/ssex"
	"github.com/casualjim/parley/provider"
)

type stream struct {
	provider *Provider
	body     io.ReadCloser
	sse      *ssex.Reader
	acc      toolCallAccumulator

	current messages.Chunk
	raw     []byte
	wire    provider.Wire

	finished bool
	err      error
}

func (s *stream) Next() bool {
	for !s.finished {
		if !s.sse.Next() {
			return s.finish()
		}

		s.wire.Record(s.sse.Raw())

		chunk, err := decodeEvent(s.sse.Data(), &s.acc)
		if err != nil {
			s.fail(err)
			return false
		}
		if chunk.IsEmpty() {
			continue
		}
		s.current = chunk
		s.raw = s.sse.Raw()
		return true
	}
	return false
}

// finish runs once the event source is exhausted and surfaces tool calls that
// never saw a tool_calls finish reason.
func (s *stream) finish() bool {
	s.finished = true
	if err := s.sse.Err(); err != nil {
		s.fail(err)
		return false
	}
	if s.sse.Done() {
		s.wire.Record(s.sse.Raw())
	}
	if !s.acc.pending() {
		return false
	}
	calls := s.acc.flush()
	if len(calls) == 0 {
		return false
	}
	s.current = messages.Chunk{FunctionCalls: calls, FinishReason: finishToolCalls}
	s.raw = nil
	if s.sse.Done() {
		s.raw = s.sse.Raw()
	}
	return true
}

func (s *stream) fail(err error) {
	s.finished = true
	s.err = provider.WrapTransport(s.provider.name, err, s.provider.apiKey)
}

func (s *stream) Chunk() messages.Chunk { return s.current }

func (s *stream) Raw() []byte { return s.raw }

func (s *stream) Wire() provider.Wire { return s.wire }

func (s *stream) Err() error { return s.err }

func (s *stream) Close() error {
	s.finished = true
	return s.body.Close()
}
