package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/pkg/ssex"
	"github.com/casualjim/parley/provider"
	"github.com/fogfish/opts"
)

const (
	// DefaultBaseURL is used when no base url is configured.
	DefaultBaseURL = "https://api.openai.com/v1"

	contentTypeJSON = "application/json"
	userAgent       = "parley/0.1"
)

// Config holds the settings of an OpenAI-compatible provider.
type Config struct {
	Name       string
	APIKey     string
	BaseURL    string
	Headers    map[string]string
	HTTPClient *http.Client
}

// Option configures a Provider.
type Option = opts.Option[Config]

var (
	// WithName sets the name reported in errors and traces.
	WithName = opts.ForName[Config, string]("Name")
	// WithAPIKey sets the bearer token.
	WithAPIKey = opts.ForName[Config, string]("APIKey")
	// WithBaseURL points the provider at another compatible server.
	WithBaseURL = opts.ForName[Config, string]("BaseURL")
	// WithHeaders adds headers to every request.
	WithHeaders = opts.ForName[Config, map[string]string]("Headers")
	// WithHTTPClient replaces the default transport.
	WithHTTPClient = opts.ForName[Config, *http.Client]("HTTPClient")
)

// Provider talks to an OpenAI-compatible chat completions endpoint.
type Provider struct {
	name    string
	apiKey  string
	chatURL string
	headers map[string]string
	client  *http.Client
}

// New creates a provider.
func New(options ...Option) (*Provider, error) {
	cfg := Config{Name: "openai"}
	if err := opts.Apply(&cfg, options); err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if cfg.APIKey == "" && baseURL == DefaultBaseURL {
		return nil, fmt.Errorf("%w: %s requires an api key", provider.ErrMissingCredentials, cfg.Name)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = provider.NewHTTPClient()
	}

	return &Provider{
		name:    cfg.Name,
		apiKey:  cfg.APIKey,
		chatURL: baseURL + "/chat/completions",
		headers: cfg.Headers,
		client:  client,
	}, nil
}

// Factory builds a provider from registry credentials. Credentials other than
// api_key and base_url are sent as request headers.
func Factory(name string, creds provider.Credentials) (provider.Provider, error) {
	headers := make(map[string]string)
	for k, v := range creds {
		if k == provider.CredentialAPIKey || k == provider.CredentialBaseURL {
			continue
		}
		headers[k] = v
	}
	return New(
		WithName(name),
		WithAPIKey(creds.APIKey()),
		WithBaseURL(creds.BaseURL()),
		WithHeaders(headers),
	)
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) newRequest(ctx context.Context, body []byte, stream bool) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", contentTypeJSON)
	}
	req.Header.Set("User-Agent", userAgent)
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (p *Provider) do(ctx context.Context, body []byte, stream bool) (*http.Response, error) {
	req, err := p.newRequest(ctx, body, stream)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, provider.AttachRequest(provider.WrapTransport(p.name, err, p.apiKey), body)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		return nil, provider.AttachRequest(provider.ReadAPIError(p.name, resp, p.apiKey), body)
	}
	return resp, nil
}

// StreamGenerateContent sends a streaming request and returns the chunk stream.
func (p *Provider) StreamGenerateContent(ctx context.Context, params provider.Params) (provider.Stream, error) {
	body, err := BuildRequest(params, true)
	if err != nil {
		return nil, fmt.Errorf("provider %s: build request: %w", p.name, err)
	}

	resp, err := p.do(ctx, body, true)
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
	body, err := BuildRequest(params, false)
	if err != nil {
		return messages.Chunk{}, provider.Wire{}, fmt.Errorf("provider %s: build request: %w", p.name, err)
	}
	wire := provider.Wire{Request: body}

	resp, err := p.do(ctx, body, false)
	if err != nil {
		return messages.Chunk{}, wire, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return messages.Chunk{}, wire, provider.WrapTransport(p.name, err, p.apiKey)
	}
	wire.Record(raw)

	chunk, err := decodeCompletion(raw)
	if err != nil {
		return messages.Chunk{}, wire, &provider.TransportError{Provider: p.name, Status: resp.StatusCode, Err: provider.Redact(err, p.apiKey)}
	}
	return chunk, wire, nil
}
