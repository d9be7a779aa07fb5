/*
Package tool defines the executable functions a model may call during an
exchange and the registry that resolves a call by name.

# Design Decisions

  - Closed registry: tools are registered once at startup under unique names and
    resolution is a map lookup, never reflection on the caller side
  - Dynamic arguments: a tool receives the decoded argument map exactly as the model
    produced it; Typed decodes that map into a struct for callers who want types
  - Transportable results: whatever a tool returns is coerced to a string before it
    travels back to the model
  - Errors propagate: the registry never swallows a tool failure

# Key Concepts

 1. Definition
    Name, description, JSON schema for the arguments and the Execute function.

 2. Registry
    Resolve returns (result, found, err). A miss is found=false with no error so the
    caller decides how to report it.

# Usage Examples

Dynamic tool:

	weather := tool.Must(
	    func(ctx context.Context, args map[string]any) (any, error) {
	        return "18°C", nil
	    },
	    tool.Name("get_weather"),
	    tool.Description("Current temperature for a city"),
	    tool.Schema(tool.Object([]string{"city"}, tool.Property{Name: "city", Type: "string"})),
	)

Typed tool:

	type weatherArgs struct {
	    City string `json:"city" jsonschema:"description=City name"`
	}

	weather, err := tool.Typed("get_weather", "Current temperature for a city",
	    func(ctx context.Context, args weatherArgs) (any, error) {
	        return lookup(args.City)
	    })

Resolution:

	reg, err := tool.NewRegistry(weather)
	result, found, err := reg.Resolve(ctx, "get_weather", map[string]any{"city": "Paris"})
*/
package tool
