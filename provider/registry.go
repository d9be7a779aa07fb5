package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/casualjim/parley/internal/registry"
	"github.com/casualjim/parley/pkg/slogx"
)

// ErrDuplicateProvider is returned when a name is registered twice.
var ErrDuplicateProvider = errors.New("provider already registered")

// ConfigSource is the part of the configuration the registry reads on every
// Resolve. Results are not assumed to be stable between calls.
type ConfigSource interface {
	ActiveProviderName(ctx context.Context) (string, error)
	Credentials(ctx context.Context, name string) (Credentials, error)
}

// Factory builds a provider instance from its registered name and the current
// credentials.
type Factory func(name string, creds Credentials) (Provider, error)

// Registry maps provider names to factories. It is populated at startup and
// read concurrently afterwards.
type Registry struct {
	factories   registry.Registry[Factory]
	defaultName atomic.Pointer[string]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: registry.New[Factory]()}
}

// Register adds a factory under name. The first registered name becomes the
// default until SetDefault is called.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return errors.New("provider name must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("provider %q: factory must not be nil", name)
	}
	if !r.factories.AddIfAbsent(name, factory) {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, name)
	}
	r.defaultName.CompareAndSwap(nil, &name)
	return nil
}

// SetDefault selects the provider used when the configured one is unavailable.
func (r *Registry) SetDefault(name string) error {
	if _, ok := r.factories.Get(name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	r.defaultName.Store(&name)
	return nil
}

// Default returns the name of the fallback provider.
func (r *Registry) Default() string {
	if n := r.defaultName.Load(); n != nil {
		return *n
	}
	return ""
}

// Names lists the registered providers in sorted order.
func (r *Registry) Names() []string {
	return r.factories.Names()
}

// Resolve returns the provider the configuration currently selects. When that
// provider is unknown or cannot be built, the default provider is used instead.
func (r *Registry) Resolve(ctx context.Context, src ConfigSource) (Provider, error) {
	name, err := src.ActiveProviderName(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to read active provider name", slogx.LoggerName("provider.registry"), slogx.Error(err))
		name = ""
	}
	if name == "" {
		name = r.Default()
	}
	if name == "" {
		return nil, ErrNoProvider
	}

	p, err := r.Build(ctx, src, name)
	if err == nil {
		return p, nil
	}

	fallback := r.Default()
	if fallback == "" || fallback == name {
		return nil, fmt.Errorf("%w: %w", ErrNoProvider, err)
	}

	slog.WarnContext(ctx, "configured provider unavailable, falling back to default",
		slogx.LoggerName("provider.registry"),
		slog.String("provider", name),
		slog.String("fallback", fallback),
		slogx.Error(err),
	)

	p, ferr := r.Build(ctx, src, fallback)
	if ferr != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoProvider, errors.Join(err, ferr))
	}
	return p, nil
}

// Build instantiates the named provider with fresh credentials.
func (r *Registry) Build(ctx context.Context, src ConfigSource, name string) (Provider, error) {
	factory, ok := r.factories.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	creds, err := src.Credentials(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("credentials for provider %q: %w", name, err)
	}
	p, err := factory(name, creds)
	if err != nil {
		return nil, fmt.Errorf("build provider %q: %w", name, Redact(err, creds.APIKey()))
	}
	return p, nil
}
