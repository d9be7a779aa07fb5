package openai

import (
	"slices"
	"strings"

	"github.com/casualjim/parley/messages"
)

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

// toolCallAccumulator merges streamed tool call fragments keyed by their
// positional index. Fragments for different indices may interleave freely.
// A name carried next to an id replaces the name so far; any other name
// fragment is appended to it.
type toolCallAccumulator struct {
	calls map[int64]*partialCall
}

func (a *toolCallAccumulator) add(index int64, id, name, args string) {
	if a.calls == nil {
		a.calls = make(map[int64]*partialCall)
	}
	p := a.calls[index]
	if p == nil {
		p = &partialCall{}
		a.calls[index] = p
	}
	switch {
	case name == "":
	case id != "" || p.name == "":
		// a fragment carrying the call id is a header, and some servers repeat
		// the header with the full name on every fragment
		p.name = name
	default:
		p.name += name
	}
	if id != "" {
		p.id = id
	}
	p.args.WriteString(args)
}

func (a *toolCallAccumulator) pending() bool {
	return len(a.calls) > 0
}

// flush returns the completed calls in index order and resets the accumulator.
func (a *toolCallAccumulator) flush() []messages.FunctionCall {
	if len(a.calls) == 0 {
		return nil
	}
	indices := make([]int64, 0, len(a.calls))
	for idx := range a.calls {
		indices = append(indices, idx)
	}
	slices.Sort(indices)

	out := make([]messages.FunctionCall, 0, len(indices))
	for _, idx := range indices {
		p := a.calls[idx]
		if p.name == "" {
			continue
		}
		out = append(out, messages.FunctionCall{
			ID:   p.id,
			Name: p.name,
			Args: messages.ParseArguments(p.args.String()),
		})
	}
	a.calls = nil
	return out
}
