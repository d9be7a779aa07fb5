package config

import (
	"context"
	"fmt"
	"maps"
	"os"
	"strings"
	"sync"

	"github.com/casualjim/parley/provider"
)

// envPrefix marks a credential value that names an environment variable.
const envPrefix = "env:"

// Source is everything an exchange reads from configuration. Every method may
// return a different answer on every call.
type Source interface {
	provider.ConfigSource
	GenerationParameters(ctx context.Context) (Preset, error)
}

var (
	_ Source = &Static{}
	_ Source = &File{}
)

// Static serves an in-memory document. It is safe for concurrent use and can
// be changed while exchanges run.
type Static struct {
	mu  sync.RWMutex
	doc Document
}

// NewStatic creates a source serving doc.
func NewStatic(doc Document) *Static {
	return &Static{doc: doc}
}

// Update replaces the served document.
func (s *Static) Update(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
}

// SetActiveProvider switches the provider used by the next exchange.
func (s *Static) SetActiveProvider(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.ActiveProvider = name
}

func (s *Static) document() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

func (s *Static) ActiveProviderName(context.Context) (string, error) {
	return s.document().ActiveProvider, nil
}

func (s *Static) GenerationParameters(context.Context) (Preset, error) {
	p := s.document().Preset
	p.Generation = p.Generation.Clone()
	return p, nil
}

func (s *Static) Credentials(_ context.Context, name string) (provider.Credentials, error) {
	return credentials(s.document(), name)
}

// File reads a YAML document from disk on every call.
type File struct {
	path string
}

// NewFile creates a source backed by the document at path. The file is not
// read until the first call.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string {
	return f.path
}

func (f *File) ActiveProviderName(context.Context) (string, error) {
	doc, err := Load(f.path)
	if err != nil {
		return "", err
	}
	return doc.ActiveProvider, nil
}

func (f *File) GenerationParameters(context.Context) (Preset, error) {
	doc, err := Load(f.path)
	if err != nil {
		return Preset{}, err
	}
	return doc.Preset, nil
}

func (f *File) Credentials(_ context.Context, name string) (provider.Credentials, error) {
	doc, err := Load(f.path)
	if err != nil {
		return nil, err
	}
	return credentials(doc, name)
}

func credentials(doc Document, name string) (provider.Credentials, error) {
	creds, ok := doc.Providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: no settings for provider %q", provider.ErrMissingCredentials, name)
	}
	return ResolveEnv(creds), nil
}

// ResolveEnv returns a copy of creds where every "env:NAME" value is replaced
// by the value of the environment variable NAME. Unset variables resolve to
// an empty string.
func ResolveEnv(creds provider.Credentials) provider.Credentials {
	out := maps.Clone(creds)
	for key, value := range out {
		if ref, ok := strings.CutPrefix(value, envPrefix); ok {
			out[key] = os.Getenv(strings.TrimSpace(ref))
		}
	}
	return out
}
