package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/casualjim/parley"
	"github.com/casualjim/parley/config"
	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/pkg/uuidx"
	"github.com/casualjim/parley/provider"
	"github.com/casualjim/parley/provider/providertest"
	"github.com/casualjim/parley/trace"
	"github.com/fogfish/opts"
	"github.com/go-openapi/swag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type fakeAsker struct {
	message string
	req     parley.Request
	res     parley.Result
	err     error
}

func (f *fakeAsker) Ask(_ context.Context, message string, options ...parley.AskOption) (parley.Result, error) {
	f.message = message
	if err := opts.Apply(&f.req, options); err != nil {
		return parley.Result{}, err
	}
	return f.res, f.err
}

func newTestServer(t *testing.T, asker Asker, options ...Option) *httptest.Server {
	t.Helper()
	srv, err := New(asker, options...)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, body []byte) []sseEvent {
	t.Helper()
	var (
		out []sseEvent
		cur sseEvent
	)
	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if cur.name != "" {
				out = append(out, cur)
			}
			cur = sseEvent{}
		}
	}
	return out
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeAsker{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", gjson.GetBytes(body, "status").String())
}

func TestAsk_JSON(t *testing.T) {
	id := "0190b6c4-0000-7000-8000-000000000000"
	asker := &fakeAsker{res: parley.Result{
		Answer:   "Hello!",
		DebugID:  &id,
		Model:    "gpt-4o-mini",
		Provider: "openai",
		State:    parley.Done,
		Usage:    messages.Usage{TotalTokens: 7},
	}}
	ts := newTestServer(t, asker)

	resp, body := post(t, ts.URL+"/v1/ask", `{
		"message": "hi",
		"debug": true,
		"history": [{"role":"user","content":"before"},{"role":"assistant","content":"ok"}],
		"preset": {"model": "other"}
	}`, nil)

	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "Hello!", gjson.GetBytes(body, "answer").String())
	assert.Equal(t, id, gjson.GetBytes(body, "debug_id").String())
	assert.Equal(t, "Done", gjson.GetBytes(body, "state").String())
	assert.Equal(t, int64(7), gjson.GetBytes(body, "usage.total_tokens").Int())

	assert.Equal(t, "hi", asker.message)
	assert.True(t, asker.req.Debug)
	require.Len(t, asker.req.History, 2)
	assert.Equal(t, "before", asker.req.History[0].ContentString())
	require.NotNil(t, asker.req.Preset)
	assert.Equal(t, "other", asker.req.Preset.Model)
}

func TestAsk_BadRequests(t *testing.T) {
	ts := newTestServer(t, &fakeAsker{})

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not json", "{"},
		{"two objects", `{"message":"a"}{"message":"b"}`},
		{"invalid history", `{"message":"a","history":[{"role":"tool","content":"x"}]}`},
		{"invalid preset", `{"message":"a","preset":{"generation":{"temperature":5}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := post(t, ts.URL+"/v1/ask", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "invalid_request_error", gjson.GetBytes(body, "error.type").String())
		})
	}
}

func TestAsk_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"empty message", parley.ErrEmptyMessage, http.StatusBadRequest, "invalid_request_error"},
		{"no provider", provider.ErrNoProvider, http.StatusServiceUnavailable, "provider_unavailable"},
		{"transport", &provider.TransportError{Provider: "openai", Status: 500, Err: errors.New("boom")}, http.StatusBadGateway, "upstream_error"},
		{"tool", &parley.ToolError{Tool: "f", CallID: "call_f_0", Err: errors.New("boom")}, http.StatusInternalServerError, "tool_error"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "server_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &fakeAsker{err: tt.err})
			resp, body := post(t, ts.URL+"/v1/ask", `{"message":"hi"}`, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.typ, gjson.GetBytes(body, "error.type").String())
		})
	}
}

func scriptedAssistant(t *testing.T, prov *providertest.Scripted, options ...parley.Option) *parley.Assistant {
	t.Helper()
	reg := provider.NewRegistry()
	require.NoError(t, reg.Register("scripted", prov.Factory()))
	src := config.NewStatic(config.Document{
		ActiveProvider: "scripted",
		Preset:         config.Preset{Model: "test-model", Stream: swag.Bool(true)},
		Providers:      map[string]provider.Credentials{"scripted": {}},
	})
	a, err := parley.New(append([]parley.Option{parley.WithConfig(src), parley.WithProviders(reg)}, options...)...)
	require.NoError(t, err)
	return a
}

func TestAsk_Stream(t *testing.T) {
	ts := newTestServer(t, scriptedAssistant(t, providertest.New(providertest.Text("Hel", "lo!"))))

	resp, body := post(t, ts.URL+"/v1/ask", `{"message":"hi"}`, map[string]string{"Accept": "text/event-stream"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(t, body)
	require.NotEmpty(t, events)

	var tokens []string
	var sawStatus bool
	for _, ev := range events {
		switch ev.name {
		case "token":
			tokens = append(tokens, gjson.Get(ev.data, "text").String())
		case "status":
			sawStatus = true
		}
	}
	assert.True(t, sawStatus)
	assert.Equal(t, []string{"Hel", "lo!"}, tokens)

	last := events[len(events)-1]
	assert.Equal(t, "result", last.name)
	assert.Equal(t, "Hello!", gjson.Get(last.data, "answer").String())
	assert.Equal(t, int64(2), gjson.Get(last.data, "history.#").Int())
}

func TestAsk_StreamError(t *testing.T) {
	ts := newTestServer(t, &fakeAsker{err: provider.ErrNoProvider})

	resp, body := post(t, ts.URL+"/v1/ask", `{"message":"hi","stream":true}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := readEvents(t, body)
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].name)
	assert.Equal(t, "provider_unavailable", gjson.Get(events[0].data, "error.type").String())
}

func TestTraces(t *testing.T) {
	traces := trace.NewMemorySink()
	a := scriptedAssistant(t, providertest.New(providertest.Text("traced")), parley.WithTraceSink(traces))
	ts := newTestServer(t, a, WithTraces(traces))

	resp, body := post(t, ts.URL+"/v1/ask", `{"message":"hi","debug":true}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := gjson.GetBytes(body, "debug_id").String()
	require.NotEmpty(t, id)

	got, err := http.Get(ts.URL + "/v1/traces/" + id)
	require.NoError(t, err)
	defer got.Body.Close()
	data, _ := io.ReadAll(got.Body)
	assert.Equal(t, http.StatusOK, got.StatusCode)
	assert.Equal(t, "traced", gjson.GetBytes(data, "trace.answer").String())

	missing, err := http.Get(ts.URL + "/v1/traces/" + uuidx.New().String())
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	invalid, err := http.Get(ts.URL + "/v1/traces/not-an-id")
	require.NoError(t, err)
	invalid.Body.Close()
	assert.Equal(t, http.StatusBadRequest, invalid.StatusCode)
}

func TestTraces_Disabled(t *testing.T) {
	ts := newTestServer(t, &fakeAsker{})
	resp, err := http.Get(ts.URL + "/v1/traces/" + uuidx.New().String())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
