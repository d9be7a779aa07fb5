package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/casualjim/parley/provider"
	"github.com/go-openapi/swag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
active_provider: openai
preset:
  model: gpt-4o-mini
  system_prompt: You are a helpful assistant.
  stream: true
  max_turns: 4
  generation:
    temperature: 0.2
    max_tokens: 512
    stop_sequences: ["END"]
    reasoning_effort: low
providers:
  openai:
    api_key: env:PARLEY_TEST_OPENAI_KEY
    base_url: https://api.example.com/v1
  gemini:
    api_key: literal-key
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parley.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	doc, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "openai", doc.ActiveProvider)
	assert.Equal(t, "gpt-4o-mini", doc.Preset.Model)
	assert.True(t, doc.Preset.StreamEnabled())
	assert.Equal(t, 4, doc.Preset.MaxTurns)
	require.NotNil(t, doc.Preset.Generation.Temperature)
	assert.InDelta(t, 0.2, *doc.Preset.Generation.Temperature, 1e-9)
	assert.Equal(t, int64(512), *doc.Preset.Generation.MaxTokens)
	assert.Equal(t, []string{"END"}, doc.Preset.Generation.StopSequences)
	assert.Equal(t, "env:PARLEY_TEST_OPENAI_KEY", doc.Providers["openai"].APIKey())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "active_provider: [unterminated"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "active_provider: anthropic\nproviders:\n  openai:\n    api_key: x\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDocument_Validate(t *testing.T) {
	tests := []struct {
		name    string
		doc     Document
		wantErr string
	}{
		{name: "empty", doc: Document{}},
		{
			name:    "temperature out of range",
			doc:     Document{Preset: Preset{Generation: provider.Generation{Temperature: swag.Float64(3)}}},
			wantErr: "temperature",
		},
		{
			name:    "top_p out of range",
			doc:     Document{Preset: Preset{Generation: provider.Generation{TopP: swag.Float64(1.5)}}},
			wantErr: "top_p",
		},
		{
			name:    "max tokens",
			doc:     Document{Preset: Preset{Generation: provider.Generation{MaxTokens: swag.Int64(0)}}},
			wantErr: "max_tokens",
		},
		{
			name:    "reasoning effort",
			doc:     Document{Preset: Preset{Generation: provider.Generation{ReasoningEffort: "extreme"}}},
			wantErr: "reasoning_effort",
		},
		{
			name:    "empty env ref",
			doc:     Document{Providers: map[string]provider.Credentials{"openai": {"api_key": "env: "}}},
			wantErr: "empty environment variable",
		},
		{
			name:    "negative max turns",
			doc:     Document{Preset: Preset{MaxTurns: -1}},
			wantErr: "max_turns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.doc.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPreset_Merge(t *testing.T) {
	base := Preset{
		Model:        "gpt-4o-mini",
		SystemPrompt: "base",
		Stream:       swag.Bool(true),
		MaxTurns:     5,
		Generation:   provider.Generation{Temperature: swag.Float64(0.2), StopSequences: []string{"END"}},
	}

	merged := base.Merge(Preset{
		Model:      "gpt-4o",
		Stream:     swag.Bool(false),
		Generation: provider.Generation{TopP: swag.Float64(0.9)},
	})

	assert.Equal(t, "gpt-4o", merged.Model)
	assert.Equal(t, "base", merged.SystemPrompt)
	assert.False(t, merged.StreamEnabled())
	assert.Equal(t, 5, merged.MaxTurns)
	assert.InDelta(t, 0.2, *merged.Generation.Temperature, 1e-9)
	assert.InDelta(t, 0.9, *merged.Generation.TopP, 1e-9)

	assert.True(t, base.StreamEnabled(), "base untouched")
	assert.Nil(t, base.Generation.TopP)

	assert.Equal(t, base, base.Merge(Preset{}))
}

func TestPreset_Snapshot(t *testing.T) {
	p := Preset{
		Model:    "m",
		MaxTurns: 3,
		Generation: provider.Generation{
			Temperature:     swag.Float64(0.5),
			MaxTokens:       swag.Int64(100),
			ReasoningEffort: "high",
			Extra:           map[string]any{"seed": 7},
		},
	}
	assert.Equal(t, map[string]any{
		"model":            "m",
		"stream":           false,
		"max_turns":        3,
		"temperature":      0.5,
		"max_tokens":       int64(100),
		"reasoning_effort": "high",
		"extra.seed":       7,
	}, p.Snapshot())
}

func TestFile_RereadsEveryCall(t *testing.T) {
	t.Setenv("PARLEY_TEST_OPENAI_KEY", "sk-from-env")
	path := writeConfig(t, sampleYAML)
	src := NewFile(path)
	ctx := context.Background()

	name, err := src.ActiveProviderName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "openai", name)

	creds, err := src.Credentials(ctx, "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", creds.APIKey())
	assert.Equal(t, "https://api.example.com/v1", creds.BaseURL())

	preset, err := src.GenerationParameters(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", preset.Model)

	require.NoError(t, os.WriteFile(path, []byte("active_provider: gemini\nproviders:\n  gemini:\n    api_key: k\n"), 0o600))
	name, err = src.ActiveProviderName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gemini", name)

	_, err = src.Credentials(ctx, "openai")
	assert.ErrorIs(t, err, provider.ErrMissingCredentials)
}

func TestStatic(t *testing.T) {
	ctx := context.Background()
	src := NewStatic(Document{
		ActiveProvider: "openai",
		Preset:         Preset{Model: "m", Generation: provider.Generation{Extra: map[string]any{"seed": 1}}},
		Providers: map[string]provider.Credentials{
			"openai": {"api_key": "env:PARLEY_TEST_UNSET_VARIABLE"},
			"gemini": {"api_key": "g"},
		},
	})

	creds, err := src.Credentials(ctx, "openai")
	require.NoError(t, err)
	assert.Equal(t, "", creds.APIKey(), "unset variables resolve to empty")

	preset, err := src.GenerationParameters(ctx)
	require.NoError(t, err)
	preset.Generation.Extra["seed"] = 2
	again, _ := src.GenerationParameters(ctx)
	assert.Equal(t, 1, again.Generation.Extra["seed"], "callers get copies")

	src.SetActiveProvider("gemini")
	name, _ := src.ActiveProviderName(ctx)
	assert.Equal(t, "gemini", name)

	src.Update(Document{})
	name, _ = src.ActiveProviderName(ctx)
	assert.Empty(t, name)

	_, err = src.Credentials(ctx, "gemini")
	assert.ErrorIs(t, err, provider.ErrMissingCredentials)
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("PARLEY_TEST_KEY", "secret")
	in := provider.Credentials{"api_key": "env:PARLEY_TEST_KEY", "base_url": "http://x"}
	out := ResolveEnv(in)

	assert.Equal(t, "secret", out.APIKey())
	assert.Equal(t, "http://x", out.BaseURL())
	assert.Equal(t, "env:PARLEY_TEST_KEY", in.APIKey(), "input untouched")
	assert.Nil(t, ResolveEnv(nil))
}
