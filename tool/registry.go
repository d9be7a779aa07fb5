package tool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/casualjim/parley/internal/registry"
)

// ErrDuplicateTool is returned when two tools share a name.
var ErrDuplicateTool = errors.New("tool already registered")

// Registry holds the tools available to an exchange, keyed by name. The zero
// value is ready to use.
type Registry struct {
	// mu serialises Register so a batch is checked and stored as one step.
	mu    sync.Mutex
	once  sync.Once
	tools registry.Registry[Definition]
}

// NewRegistry creates a registry holding defs.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{}
	if err := r.Register(defs...); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) values() registry.Registry[Definition] {
	r.once.Do(func() {
		r.tools = registry.New[Definition]()
	})
	return r.tools
}

// Register adds tools. Nothing is added when any definition is invalid or
// its name is taken.
func (r *Registry) Register(defs ...Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tools := r.values()
	seen := make(map[string]struct{}, len(defs))
	var errs []error
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		_, dup := seen[def.Name]
		if _, exists := tools.Get(def.Name); exists || dup {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateTool, def.Name))
			continue
		}
		seen[def.Name] = struct{}{}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for _, def := range defs {
		tools.AddIfAbsent(def.Name, def)
	}
	return nil
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return r.values().Len()
}

// Definitions returns every tool sorted by name.
func (r *Registry) Definitions() []Definition {
	if r == nil {
		return nil
	}
	tools := r.values()
	names := tools.Names()
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		if def, ok := tools.Get(name); ok {
			defs = append(defs, def)
		}
	}
	return defs
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	return r.values().Get(name)
}

// Resolve runs the named tool and returns its result as text.
//
// An unknown name yields found=false and no error. Errors returned by the tool
// itself are passed through as is.
func (r *Registry) Resolve(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	def, ok := r.Lookup(name)
	if !ok {
		return "", false, nil
	}
	if args == nil {
		args = map[string]any{}
	}

	value, err := def.Execute(ctx, args)
	if err != nil {
		return "", true, err
	}

	result, err := Stringify(value)
	if err != nil {
		return "", true, fmt.Errorf("encode result of tool %q: %w", name, err)
	}
	return result, true, nil
}
