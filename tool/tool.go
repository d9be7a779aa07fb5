package tool

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/casualjim/parley/pkg/jsonx"
	"github.com/casualjim/parley/pkg/stdx"
	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Func executes a tool with the arguments the model supplied.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Definition describes one tool offered to the model.
type Definition struct {
	Name        string
	Description string
	// Schema describes the arguments object. A nil schema means an object with no properties.
	Schema  *jsonschema.Schema
	Execute Func
}

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

var functionReflector = jsonschema.Reflector{
	AllowAdditionalProperties: true,
	DoNotReference:            true,
}

// Validate checks that the definition can be offered to a provider.
func (d Definition) Validate() error {
	var errs []error
	if !namePattern.MatchString(d.Name) {
		errs = append(errs, fmt.Errorf("tool name %q must match %s", d.Name, namePattern))
	}
	if d.Execute == nil {
		errs = append(errs, fmt.Errorf("tool %q has no execute function", d.Name))
	}
	return errors.Join(errs...)
}

// Parameters returns the argument schema as a dynamic JSON object, the shape
// provider payloads embed.
func (d Definition) Parameters() (map[string]any, error) {
	schema := d.Schema
	if schema == nil {
		schema = Object(nil)
	}
	params, err := jsonx.ToMap(schema)
	if err != nil {
		return nil, fmt.Errorf("tool %q: encode schema: %w", d.Name, err)
	}
	delete(params, "$schema")
	delete(params, "$id")
	return params, nil
}

// Option configures a Definition.
type Option = opts.Option[Definition]

// Name sets the tool name the model calls.
var Name = opts.ForName[Definition, string]("Name")

// Description sets the human readable explanation offered to the model.
var Description = opts.ForName[Definition, string]("Description")

// Schema sets the argument schema.
var Schema = opts.ForName[Definition, *jsonschema.Schema]("Schema")

// New creates a Definition that runs fn.
func New(fn Func, options ...Option) (Definition, error) {
	if fn == nil {
		return Definition{}, errors.New("tool function must not be nil")
	}

	var def Definition
	if err := opts.Apply(&def, options); err != nil {
		return Definition{}, err
	}
	def.Execute = fn

	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Must is New that panics on error.
func Must(fn Func, options ...Option) Definition {
	return stdx.Must(New(fn, options...))
}

// Typed creates a Definition whose arguments are decoded into T. The schema is
// reflected from T, so struct tags drive what the model sees.
func Typed[T any](name, description string, fn func(context.Context, T) (any, error), options ...Option) (Definition, error) {
	if fn == nil {
		return Definition{}, errors.New("tool function must not be nil")
	}

	schema := functionReflector.Reflect(new(T))
	schema.Version = ""
	schema.ID = ""

	execute := func(ctx context.Context, args map[string]any) (any, error) {
		var value T
		b, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode arguments: %w", err)
		}
		if err := json.Unmarshal(b, &value); err != nil {
			return nil, fmt.Errorf("decode arguments into %T: %w", value, err)
		}
		return fn(ctx, value)
	}

	return New(execute, append([]Option{Name(name), Description(description), Schema(schema)}, options...)...)
}

// Property is one entry of an object schema built with Object.
type Property struct {
	Name        string
	Type        string
	Description string
	Enum        []any
}

// Object builds an object schema with properties in declaration order.
func Object(required []string, props ...Property) *jsonschema.Schema {
	properties := orderedmap.New[string, *jsonschema.Schema]()
	for _, p := range props {
		properties.Set(p.Name, &jsonschema.Schema{
			Type:        p.Type,
			Description: p.Description,
			Enum:        p.Enum,
		})
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}
