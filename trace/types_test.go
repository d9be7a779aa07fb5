package trace

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/casualjim/parley/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreview(t *testing.T) {
	short, cut := Preview("18°C")
	assert.Equal(t, "18°C", short)
	assert.False(t, cut)

	exact := strings.Repeat("a", MaxPreviewBytes)
	got, cut := Preview(exact)
	assert.Equal(t, exact, got)
	assert.False(t, cut)

	long := strings.Repeat("a", MaxPreviewBytes+10)
	got, cut = Preview(long)
	assert.True(t, cut)
	assert.Equal(t, strings.Repeat("a", MaxPreviewBytes)+truncatedSuffix, got)

	// a two byte rune straddling the limit is dropped whole
	multi := strings.Repeat("a", MaxPreviewBytes-1) + "é" + "tail"
	got, cut = Preview(multi)
	assert.True(t, cut)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", MaxPreviewBytes-1)+truncatedSuffix, got)
}

func TestRawJSON(t *testing.T) {
	assert.Nil(t, rawJSON(nil))
	assert.Equal(t, `{"a":1}`, string(rawJSON([]byte(`{"a":1}`))))
	assert.Equal(t, `"[DONE]"`, string(rawJSON([]byte(`[DONE]`))))
}

func TestToolExecutions(t *testing.T) {
	long := strings.Repeat("x", MaxPreviewBytes*2)
	history := []messages.Message{
		messages.AssistantToolCalls(nil, []messages.ToolCall{
			{ID: "call_get_weather_0", Name: "get_weather", Arguments: `{"city":"Paris"}`},
			{ID: "call_missing_1", Name: "missing", Arguments: `{}`},
			{ID: "call_dump_2", Name: "dump", Arguments: `{}`},
		}),
		messages.ToolResult("call_get_weather_0", "get_weather", "18°C"),
		messages.ToolResult("call_dump_2", "dump", long),
		messages.Assistant("done"),
	}

	execs := toolExecutions(history)
	require.Len(t, execs, 3)

	assert.Equal(t, ToolExecution{
		ToolName:      "get_weather",
		CallID:        "call_get_weather_0",
		Arguments:     `{"city":"Paris"}`,
		ResultPreview: "18°C",
		Answered:      true,
	}, execs[0])
	assert.False(t, execs[1].Answered)
	assert.Empty(t, execs[1].ResultPreview)
	assert.True(t, execs[2].Truncated)
	assert.Len(t, execs[2].ResultPreview, MaxPreviewBytes+len(truncatedSuffix))
}
