// Package config supplies the settings an exchange runs with: the active
// provider, its credentials and the generation preset. Sources are read once
// per exchange, so edits take effect on the next one without a restart.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/casualjim/parley/provider"
	"github.com/go-openapi/swag"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

var reasoningEfforts = map[string]struct{}{"": {}, "low": {}, "medium": {}, "high": {}}

// Preset groups the settings that shape one exchange.
type Preset struct {
	Model        string              `yaml:"model" json:"model,omitempty"`
	SystemPrompt string              `yaml:"system_prompt" json:"system_prompt,omitempty"`
	Stream       *bool               `yaml:"stream" json:"stream,omitempty"`
	MaxTurns     int                 `yaml:"max_turns" json:"max_turns,omitempty"`
	Generation   provider.Generation `yaml:"generation" json:"generation"`
}

// StreamEnabled reports whether the preset asks for streaming. Unset means no.
func (p Preset) StreamEnabled() bool {
	return swag.BoolValue(p.Stream)
}

// Merge returns p with every field set in override applied on top.
func (p Preset) Merge(override Preset) Preset {
	out := p
	if override.Model != "" {
		out.Model = override.Model
	}
	if override.SystemPrompt != "" {
		out.SystemPrompt = override.SystemPrompt
	}
	if override.Stream != nil {
		out.Stream = swag.Bool(*override.Stream)
	}
	if override.MaxTurns > 0 {
		out.MaxTurns = override.MaxTurns
	}
	out.Generation = p.Generation.Merge(override.Generation)
	return out
}

// Validate checks value ranges.
func (p Preset) Validate() error {
	var errs []error
	gen := p.Generation
	if gen.Temperature != nil && (*gen.Temperature < 0 || *gen.Temperature > 2) {
		errs = append(errs, fmt.Errorf("temperature must be within [0, 2], got %v", *gen.Temperature))
	}
	if gen.TopP != nil && (*gen.TopP < 0 || *gen.TopP > 1) {
		errs = append(errs, fmt.Errorf("top_p must be within [0, 1], got %v", *gen.TopP))
	}
	if gen.MaxTokens != nil && *gen.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be positive, got %d", *gen.MaxTokens))
	}
	if _, ok := reasoningEfforts[gen.ReasoningEffort]; !ok {
		errs = append(errs, fmt.Errorf("reasoning_effort %q must be one of low, medium or high", gen.ReasoningEffort))
	}
	if p.MaxTurns < 0 {
		errs = append(errs, fmt.Errorf("max_turns must not be negative, got %d", p.MaxTurns))
	}
	return errors.Join(errs...)
}

// Snapshot flattens the preset into the map recorded with exchange traces.
func (p Preset) Snapshot() map[string]any {
	gen := p.Generation
	snap := map[string]any{
		"model":  p.Model,
		"stream": p.StreamEnabled(),
	}
	if p.MaxTurns > 0 {
		snap["max_turns"] = p.MaxTurns
	}
	if gen.Temperature != nil {
		snap["temperature"] = swag.Float64Value(gen.Temperature)
	}
	if gen.TopP != nil {
		snap["top_p"] = swag.Float64Value(gen.TopP)
	}
	if gen.MaxTokens != nil {
		snap["max_tokens"] = swag.Int64Value(gen.MaxTokens)
	}
	if len(gen.StopSequences) > 0 {
		snap["stop_sequences"] = gen.StopSequences
	}
	if gen.ReasoningEffort != "" {
		snap["reasoning_effort"] = gen.ReasoningEffort
	}
	for k, v := range gen.Extra {
		snap["extra."+k] = v
	}
	return snap
}

// Document is the YAML layout read by File.
//
//	active_provider: openai
//	preset:
//	  model: gpt-4o-mini
//	  stream: true
//	  generation:
//	    temperature: 0.2
//	providers:
//	  openai:
//	    api_key: env:OPENAI_API_KEY
//	  gemini:
//	    api_key: env:GEMINI_API_KEY
type Document struct {
	ActiveProvider string                          `yaml:"active_provider"`
	Preset         Preset                          `yaml:"preset"`
	Providers      map[string]provider.Credentials `yaml:"providers"`
}

// Validate performs sanity checks on the document.
func (d Document) Validate() error {
	var errs []error
	if d.ActiveProvider != "" {
		if _, ok := d.Providers[d.ActiveProvider]; !ok {
			errs = append(errs, fmt.Errorf("active_provider %q has no providers entry", d.ActiveProvider))
		}
	}
	for name, creds := range d.Providers {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("provider name must not be empty"))
		}
		for key, value := range creds {
			if ref, ok := strings.CutPrefix(value, envPrefix); ok && strings.TrimSpace(ref) == "" {
				errs = append(errs, fmt.Errorf("provider %s: %s references an empty environment variable name", name, key))
			}
		}
	}
	if err := d.Preset.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("preset: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Load reads a YAML document from disk and validates it.
func Load(path string) (Document, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Document{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Document{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}
