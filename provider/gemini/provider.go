package gemini

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/pkg/ssex"
	"github.com/casualjim/parley/provider"
	"github.com/fogfish/opts"
)

// DefaultBaseURL is the public Gemini API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const apiKeyHeader = "x-goog-api-key"

// Config holds the settings of a Gemini provider.
type Config struct {
	Name       string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Option configures a Provider.
type Option = opts.Option[Config]

var (
	WithName       = opts.ForName[Config, string]("Name")
	WithAPIKey     = opts.ForName[Config, string]("APIKey")
	WithBaseURL    = opts.ForName[Config, string]("BaseURL")
	WithHTTPClient = opts.ForName[Config, *http.Client]("HTTPClient")
)

// Provider talks to the Gemini generateContent API.
type Provider struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
}

// New creates a provider. An api key is required.
func New(options ...Option) (*Provider, error) {
	cfg := Config{Name: "gemini"}
	if err := opts.Apply(&cfg, options); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: %s requires an api key", provider.ErrMissingCredentials, cfg.Name)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = provider.NewHTTPClient()
	}

	return &Provider{name: cfg.Name, apiKey: cfg.APIKey, baseURL: baseURL, client: client}, nil
}

// Factory builds a provider from registry credentials.
func Factory(name string, creds provider.Credentials) (provider.Provider, error) {
	return New(WithName(name), WithAPIKey(creds.APIKey()), WithBaseURL(creds.BaseURL()))
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) endpoint(model string, stream bool) string {
	model = strings.TrimPrefix(model, "models/")
	if stream {
		return p.baseURL + "/models/" + url.PathEscape(model) + ":streamGenerateContent?alt=sse"
	}
	return p.baseURL + "/models/" + url.PathEscape(model) + ":generateContent"
}

func (p *Provider) do(ctx context.Context, params provider.Params, stream bool) ([]byte, *http.Response, error) {
	if strings.TrimSpace(params.Model) == "" {
		return nil, nil, fmt.Errorf("provider %s: model must not be empty", p.name)
	}
	body, err := BuildRequest(params)
	if err != nil {
		return nil, nil, fmt.Errorf("provider %s: build request: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(params.Model, stream), bytes.NewReader(body))
	if err != nil {
		return body, nil, fmt.Errorf("construct request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, p.apiKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return body, nil, provider.AttachRequest(provider.WrapTransport(p.name, err, p.apiKey), body)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		return body, nil, provider.AttachRequest(provider.ReadAPIError(p.name, resp, p.apiKey), body)
	}
	return body, resp, nil
}

// StreamGenerateContent sends a streaming request and returns the chunk stream.
func (p *Provider) StreamGenerateContent(ctx context.Context, params provider.Params) (provider.Stream, error) {
	body, resp, err := p.do(ctx, params, true)
	if err != nil {
		return nil, err
	}
	return &stream{
		provider: p,
		body:     resp.Body,
		sse:      ssex.NewReader(resp.Body),
		wire:     provider.Wire{Request: body},
	}, nil
}

// GenerateContent sends a synchronous request and decodes the whole response.
func (p *Provider) GenerateContent(ctx context.Context, params provider.Params) (messages.Chunk, provider.Wire, error) {
	body, resp, err := p.do(ctx, params, false)
	wire := provider.Wire{Request: body}
	if err != nil {
		return messages.Chunk{}, wire, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return messages.Chunk{}, wire, provider.WrapTransport(p.name, err, p.apiKey)
	}
	wire.Record(raw)

	chunk, err := decodeResponse(raw)
	if err != nil {
		return messages.Chunk{}, wire, &provider.TransportError{Provider: p.name, Status: resp.StatusCode, Err: provider.Redact(err, p.apiKey)}
	}
	return chunk, wire, nil
}

type stream struct {
	provider *Provider
	body     io.ReadCloser
	sse      *ssex.Reader

	current messages.Chunk
	raw     []byte
	wire    provider.Wire

	finished bool
	err      error
}

func (s *stream) Next() bool {
	for !s.finished {
		if !s.sse.Next() {
			s.finished = true
			if err := s.sse.Err(); err != nil {
				s.err = provider.WrapTransport(s.provider.name, err, s.provider.apiKey)
			}
			return false
		}

		s.wire.Record(s.sse.Raw())

		chunk, err := decodeResponse(s.sse.Data())
		if err != nil {
			s.finished = true
			s.err = provider.WrapTransport(s.provider.name, err, s.provider.apiKey)
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

func (s *stream) Chunk() messages.Chunk { return s.current }

func (s *stream) Raw() []byte { return s.raw }

func (s *stream) Wire() provider.Wire { return s.wire }

func (s *stream) Err() error { return s.err }

func (s *stream) Close() error {
	s.finished = true
	return s.body.Close()
}
