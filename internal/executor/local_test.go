package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/provider"
	"github.com/casualjim/parley/provider/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weatherCall() []messages.Chunk {
	return providertest.Call("get_weather", map[string]any{"city": "Paris"})
}

func TestRun_SingleTurn(t *testing.T) {
	for _, stream := range []bool{true, false} {
		name := "sync"
		if stream {
			name = "stream"
		}
		t.Run(name, func(t *testing.T) {
			prov := providertest.New(providertest.Text("Hel", "lo!"))
			cmd := newCommand(t, prov, nil).
				WithStream(stream).
				WithHistory([]messages.Message{messages.User("hi")})

			res, err := NewLocal().Run(context.Background(), cmd)
			require.NoError(t, err)

			assert.Equal(t, "Hello!", res.Answer)
			assert.Equal(t, Done, res.State)
			assert.Equal(t, 1, res.Turns)
			assert.Equal(t, "scripted", res.Provider)
			assert.Equal(t, "test-model", res.Model)
			assert.Equal(t, cmd.ID(), res.ExchangeID)
			assert.Equal(t, []messages.Message{messages.Assistant("Hello!")}, res.History)
			assert.Equal(t, 1, prov.CallCount())

			params := prov.Calls()[0]
			assert.Equal(t, "You are helpful.", params.Instructions)
			assert.Equal(t, "test-model", params.Model)
			assert.Equal(t, []messages.Message{messages.User("hi")}, params.History)
		})
	}
}

func TestRun_ToolRoundTrip(t *testing.T) {
	var rec toolRecorder
	prov := providertest.New(weatherCall(), providertest.Text("It is 18°C in Paris."))
	cmd := newCommand(t, prov, nil, rec.tool(t, "get_weather", "18°C", nil)).
		WithHistory([]messages.Message{messages.User("What is the weather in Paris?")})

	res, err := NewLocal().Run(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, "It is 18°C in Paris.", res.Answer)
	assert.Equal(t, Done, res.State)
	assert.Equal(t, 2, res.Turns)

	require.Len(t, res.History, 3)
	assert.Equal(t, messages.AssistantToolCalls(nil, []messages.ToolCall{
		{ID: "call_get_weather_0", Name: "get_weather", Arguments: `{"city":"Paris"}`},
	}), res.History[0])
	assert.Equal(t, messages.ToolResult("call_get_weather_0", "get_weather", "18°C"), res.History[1])
	assert.Equal(t, messages.Assistant("It is 18°C in Paris."), res.History[2])

	require.Len(t, rec.calls, 1)
	assert.Equal(t, map[string]any{"city": "Paris"}, rec.calls[0].args)

	calls := prov.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[0].History, 1)
	require.Len(t, calls[1].History, 3, "second request sees the call and its result")
	assert.Equal(t, messages.RoleTool, calls[1].History[2].Role)
	require.Len(t, calls[1].Tools, 1)
	assert.Equal(t, "get_weather", calls[1].Tools[0].Name)
}

func TestRun_MalformedArgumentsDegradeToEmpty(t *testing.T) {
	var rec toolRecorder
	prov := providertest.New(
		[]messages.Chunk{{FunctionCalls: []messages.FunctionCall{{Name: "f", Args: map[string]any{}}}}},
		providertest.Text("ok"),
	)
	cmd := newCommand(t, prov, nil, rec.tool(t, "f", nil, nil))

	res, err := NewLocal().Run(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, "ok", res.Answer)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, map[string]any{}, rec.calls[0].args)
	assert.Equal(t, "{}", res.History[0].ToolCalls[0].Arguments)
	assert.Equal(t, "", res.History[1].ContentString(), "nil tool result becomes empty text")
}

func TestRun_MaxTurnsExceeded(t *testing.T) {
	for _, maxTurns := range []int{1, 3, 5} {
		var rec toolRecorder
		prov := providertest.New(weatherCall())
		cmd := newCommand(t, prov, nil, rec.tool(t, "get_weather", "18°C", nil)).WithMaxTurns(maxTurns)

		res, err := NewLocal().Run(context.Background(), cmd)
		require.NoError(t, err)

		assert.Equal(t, MaxTurnsExceeded, res.State)
		assert.Equal(t, maxTurns, prov.CallCount(), "never more requests than the budget")
		assert.Equal(t, maxTurns, res.Turns)
		assert.Equal(t, maxTurns-1, rec.count(), "tools of the last turn are not run")
		assert.Equal(t, maxTurnsMessage(maxTurns), res.Answer)
		assert.Len(t, res.History, 2*(maxTurns-1))
	}
}

func TestRun_DefaultMaxTurns(t *testing.T) {
	prov := providertest.New(weatherCall())
	var rec toolRecorder
	cmd := newCommand(t, prov, nil, rec.tool(t, "get_weather", "18°C", nil))
	cmd.MaxTurns = 0

	res, err := NewLocal().Run(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, MaxTurnsExceeded, res.State)
	assert.Equal(t, DefaultMaxTurns, prov.CallCount())
}

func TestRun_BlockedShortCircuit(t *testing.T) {
	for _, stream := range []bool{true, false} {
		var rec toolRecorder
		prov := providertest.New([]messages.Chunk{
			{Text: messages.Text("Partial")},
			{
				Blocked:       true,
				BlockedReason: messages.Text("SAFETY"),
				FunctionCalls: []messages.FunctionCall{{Name: "get_weather"}},
				SafetyRatings: messages.SafetyRatings{"HARM_CATEGORY_HARASSMENT": "HIGH"},
			},
			weatherCall()[0],
		})
		cmd := newCommand(t, prov, nil, rec.tool(t, "get_weather", "18°C", nil)).WithStream(stream)

		res, err := NewLocal().Run(context.Background(), cmd)
		require.NoError(t, err)

		assert.Equal(t, Done, res.State)
		assert.Equal(t, 0, rec.count(), "no tool runs after a block")
		assert.Equal(t, 1, prov.CallCount())
		assert.Equal(t, "Partial\n\n"+blockedNotice("SAFETY"), res.Answer)
		assert.Equal(t, "HIGH", res.Safety["HARM_CATEGORY_HARASSMENT"])
		assert.Equal(t, []messages.Message{messages.Assistant("Partial")}, res.History)
	}
}

func TestRun_ToolNotFoundIsSkipped(t *testing.T) {
	prov := providertest.New(
		providertest.Call("missing", map[string]any{"x": 1}),
		providertest.Text("Sorry, I cannot do that."),
	)
	cmd := newCommand(t, prov, nil)

	res, err := NewLocal().Run(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, Done, res.State)
	assert.Equal(t, "Sorry, I cannot do that.", res.Answer)
	require.Len(t, res.History, 2)
	assert.True(t, res.History[0].HasToolCalls())
	assert.Equal(t, messages.Assistant("Sorry, I cannot do that."), res.History[1])
}

func TestRun_ToolErrorIsFatal(t *testing.T) {
	cause := errors.New("weather service down")
	var rec toolRecorder
	hook := &mockHook{}
	prov := providertest.New(weatherCall(), providertest.Text("unreachable"))
	cmd := newCommand(t, prov, hook, rec.tool(t, "get_weather", nil, cause))

	res, err := NewLocal().Run(context.Background(), cmd)
	require.Error(t, err)
	assert.Equal(t, Result{}, res)

	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "get_weather", te.Tool)
	assert.Equal(t, "call_get_weather_0", te.CallID)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, prov.CallCount())

	require.Len(t, hook.completed, 1)
	assert.ErrorIs(t, hook.completed[0].Err, cause)
}

func TestRun_TransportError(t *testing.T) {
	for _, stream := range []bool{true, false} {
		prov := providertest.New()
		prov.Err = errors.New("connection refused")
		cmd := newCommand(t, prov, nil).WithStream(stream)

		_, err := NewLocal().Run(context.Background(), cmd)
		var te *provider.TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "scripted", te.Provider)
		assert.Contains(t, err.Error(), "connection refused")
	}
}

func TestRun_FailedTurnReportsWire(t *testing.T) {
	for _, stream := range []bool{true, false} {
		hook := &mockHook{}
		prov := providertest.New()
		prov.Err = &provider.TransportError{
			Provider: "scripted",
			Status:   500,
			Err:      errors.New("upstream exploded"),
			Wire: provider.Wire{
				Request:   []byte(`{"model":"test-model"}`),
				Responses: [][]byte{[]byte(`{"error":{"message":"upstream exploded"}}`)},
			},
		}
		cmd := newCommand(t, prov, hook).WithStream(stream)

		_, err := NewLocal().Run(context.Background(), cmd)
		require.Error(t, err)

		require.Len(t, hook.turns, 1)
		turn := hook.turns[0]
		assert.Equal(t, 0, turn.Turn)
		assert.Equal(t, `{"model":"test-model"}`, string(turn.Request))
		require.Len(t, turn.Responses, 1)
		assert.Contains(t, string(turn.Responses[0]), "upstream exploded")
		assert.ErrorIs(t, turn.Err, prov.Err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prov := providertest.New(providertest.Text("never"))
	_, err := NewLocal().Run(ctx, newCommand(t, prov, nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, prov.CallCount())
}

func TestRun_UsageAndSafety(t *testing.T) {
	var rec toolRecorder
	prov := providertest.New(
		[]messages.Chunk{
			{Usage: messages.Usage{PromptTokens: 10}, SafetyRatings: messages.SafetyRatings{"A": "LOW"}},
			{FunctionCalls: []messages.FunctionCall{{Name: "f"}}, Usage: messages.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12}},
		},
		[]messages.Chunk{
			{Text: messages.Text("done"), Usage: messages.Usage{PromptTokens: 20, CompletionTokens: 5, ThinkingTokens: 3, TotalTokens: 28}},
			{SafetyRatings: messages.SafetyRatings{"B": "NEGLIGIBLE"}},
		},
	)
	cmd := newCommand(t, prov, nil, rec.tool(t, "f", "ok", nil))

	res, err := NewLocal().Run(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, messages.Usage{PromptTokens: 30, CompletionTokens: 7, ThinkingTokens: 3, TotalTokens: 40}, res.Usage)
	assert.Equal(t, messages.SafetyRatings{"B": "NEGLIGIBLE"}, res.Safety, "latest ratings win")
}

func TestRun_ThinkingKeptApart(t *testing.T) {
	prov := providertest.New([]messages.Chunk{
		{Thinking: messages.Text("Let me think. ")},
		{Thinking: messages.Text("Yes."), Text: messages.Text("42")},
	})

	res, err := NewLocal().Run(context.Background(), newCommand(t, prov, nil))
	require.NoError(t, err)
	assert.Equal(t, "42", res.Answer)
	assert.Equal(t, "Let me think. Yes.", res.Thinking)
}

func TestRun_TextAcrossTurns(t *testing.T) {
	var rec toolRecorder
	prov := providertest.New(
		append(providertest.Text("Let me check."), weatherCall()...),
		providertest.Text("It is ", "18°C."),
	)
	var tokens []string
	cmd := newCommand(t, prov, nil, rec.tool(t, "get_weather", "18°C", nil)).
		WithOnToken(func(s string) { tokens = append(tokens, s) })

	res, err := NewLocal().Run(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, []string{"Let me check.", "\n\n", "It is ", "18°C."}, tokens)
	assert.Equal(t, "Let me check.\n\nIt is 18°C.", res.Answer)
	assert.Equal(t, "Let me check.", res.History[0].ContentString())
	assert.Equal(t, "It is 18°C.", res.History[2].ContentString())
}

func TestRun_ToolCallIDs(t *testing.T) {
	var rec toolRecorder
	prov := providertest.New(
		[]messages.Chunk{{FunctionCalls: []messages.FunctionCall{
			{Name: "f"},
			{ID: "provider-id", Name: "f"},
			{Name: "g"},
		}}},
		providertest.Text("done"),
	)
	history := []messages.Message{
		messages.User("earlier"),
		messages.AssistantToolCalls(nil, []messages.ToolCall{{ID: "call_f_0", Name: "f", Arguments: "{}"}}),
		messages.ToolResult("call_f_0", "f", "ok"),
		messages.Assistant("done before"),
		messages.User("again"),
	}
	cmd := newCommand(t, prov, nil, rec.tool(t, "f", "ok", nil), rec.tool(t, "g", "ok", nil)).WithHistory(history)

	res, err := NewLocal().Run(context.Background(), cmd)
	require.NoError(t, err)

	calls := res.History[0].ToolCalls
	require.Len(t, calls, 3)
	assert.Equal(t, "call_f_1", calls[0].ID, "numbering continues after the input history")
	assert.Equal(t, "provider-id", calls[1].ID)
	assert.Equal(t, "call_g_3", calls[2].ID)

	require.Len(t, res.History, 5)
	assert.Equal(t, "call_f_1", res.History[1].ToolCallID)
	assert.Equal(t, "provider-id", res.History[2].ToolCallID)
	assert.Equal(t, "call_g_3", res.History[3].ToolCallID)
}

func TestRun_DoesNotMutateHistory(t *testing.T) {
	var rec toolRecorder
	history := make([]messages.Message, 1, 8)
	history[0] = messages.User("What is the weather in Paris?")
	prov := providertest.New(weatherCall(), providertest.Text("It is 18°C in Paris."))
	cmd := newCommand(t, prov, nil, rec.tool(t, "get_weather", "18°C", nil)).WithHistory(history)

	_, err := NewLocal().Run(context.Background(), cmd)
	require.NoError(t, err)

	assert.Len(t, history, 1)
	assert.Equal(t, messages.User("What is the weather in Paris?"), history[:cap(history)][0])
	assert.Equal(t, messages.Message{}, history[:cap(history)][1], "spare capacity untouched")
}

func TestRun_Hooks(t *testing.T) {
	var rec toolRecorder
	hook := &mockHook{}
	prov := providertest.New(
		append(providertest.Text("checking"), weatherCall()...),
		[]messages.Chunk{{}, {Text: messages.Text("It is 18°C in Paris.")}},
	)
	history := []messages.Message{messages.User("weather?")}
	cmd := newCommand(t, prov, hook, rec.tool(t, "get_weather", "18°C", nil)).
		WithHistory(history).
		WithDebug(true).
		WithConfig(map[string]any{"temperature": 0.2})

	res, err := NewLocal().Run(context.Background(), cmd)
	require.NoError(t, err)

	require.Len(t, hook.started, 1)
	started := hook.started[0]
	assert.Equal(t, cmd.ID(), started.ExchangeID)
	assert.True(t, started.Debug)
	assert.Equal(t, "You are helpful.", started.SystemPrompt)
	assert.Equal(t, "scripted", started.Provider)
	assert.Equal(t, history, started.History)
	assert.Equal(t, 0.2, started.Config["temperature"])

	require.Len(t, hook.chunks, 3, "empty chunks are dropped")
	assert.Equal(t, []int{0, 0, 1}, []int{hook.chunks[0].Turn, hook.chunks[1].Turn, hook.chunks[2].Turn})
	for _, ev := range hook.chunks {
		assert.NotEmpty(t, ev.Raw)
		assert.NotEmpty(t, ev.Request)
	}

	require.Len(t, hook.turns, 2)
	assert.Equal(t, []int{0, 1}, []int{hook.turns[0].Turn, hook.turns[1].Turn})
	assert.Len(t, hook.turns[0].Responses, 2)
	assert.Len(t, hook.turns[1].Responses, 2, "events without content still reach the turn hook")
	for _, ev := range hook.turns {
		assert.NotEmpty(t, ev.Request)
		assert.NoError(t, ev.Err)
	}

	require.Len(t, hook.completed, 1)
	done := hook.completed[0]
	assert.Equal(t, "Done", done.State)
	assert.Equal(t, res.Answer, done.Answer)
	assert.Equal(t, 2, done.Turns)
	assert.NoError(t, done.Err)
	assert.Len(t, done.History, 4, "input history plus appended messages")
}

func TestRun_HooksDoNotChangeOutcome(t *testing.T) {
	run := func(withHook bool) Result {
		var rec toolRecorder
		prov := providertest.New(weatherCall(), providertest.Text("It is 18°C in Paris."))
		var hook *mockHook
		if withHook {
			hook = &mockHook{}
		}
		cmd := newCommand(t, prov, nil, rec.tool(t, "get_weather", "18°C", nil))
		if hook != nil {
			cmd = cmd.WithHook(hook)
		}
		res, err := NewLocal().Run(context.Background(), cmd)
		require.NoError(t, err)
		res.ExchangeID = [16]byte{}
		return res
	}

	assert.Equal(t, run(false), run(true))
}

func TestRun_StatusUpdates(t *testing.T) {
	var rec toolRecorder
	prov := providertest.New(weatherCall(), providertest.Text("It is 18°C in Paris."))
	var states []State
	var labels []string
	cmd := newCommand(t, prov, nil, rec.tool(t, "get_weather", "18°C", nil)).
		WithOnStatus(func(msg string, s State) {
			labels = append(labels, msg)
			states = append(states, s)
		})

	_, err := NewLocal().Run(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, []State{Requesting, Processing, ToolExecuting, Requesting, Processing, Done}, states)
	assert.Equal(t, "Running tool get_weather", labels[2])
}
