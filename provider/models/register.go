// Package models wires the built-in provider adapters into a registry.
package models

import (
	"errors"

	"github.com/casualjim/parley/provider"
	"github.com/casualjim/parley/provider/gemini"
	"github.com/casualjim/parley/provider/openai"
)

const (
	OpenAI = "openai"
	Gemini = "gemini"
)

// Builtin lists the adapters Register installs, in registration order.
var Builtin = map[string]provider.Factory{
	OpenAI: openai.Factory,
	Gemini: gemini.Factory,
}

// Register adds every built-in adapter to reg and makes defaultName the
// fallback. An empty defaultName keeps OpenAI as the fallback.
func Register(reg *provider.Registry, defaultName string) error {
	var errs []error
	for _, name := range []string{OpenAI, Gemini} {
		if err := reg.Register(name, Builtin[name]); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	if defaultName == "" {
		return nil
	}
	return reg.SetDefault(defaultName)
}

// NewRegistry returns a registry holding the built-in adapters.
func NewRegistry(defaultName string) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	if err := Register(reg, defaultName); err != nil {
		return nil, err
	}
	return reg, nil
}

// RegisterCompatible registers the OpenAI adapter under every name that is
// not already taken, for self-hosted servers speaking the same protocol.
func RegisterCompatible(reg *provider.Registry, names ...string) error {
	var errs []error
	for _, name := range names {
		if _, builtin := Builtin[name]; builtin {
			continue
		}
		if err := reg.Register(name, openai.Factory); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
