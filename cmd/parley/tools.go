package main

import (
	"context"
	"fmt"
	"time"

	"github.com/casualjim/parley/tool"
)

type currentTimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA time zone such as Europe/Paris. Defaults to UTC."`
}

func currentTime(now func() time.Time) func(context.Context, currentTimeArgs) (any, error) {
	return func(_ context.Context, args currentTimeArgs) (any, error) {
		name := args.Timezone
		if name == "" {
			name = "UTC"
		}
		loc, err := time.LoadLocation(name)
		if err != nil {
			return fmt.Sprintf("unknown time zone %q", name), nil
		}
		return now().In(loc).Format(time.RFC1123), nil
	}
}

func builtinTools() (*tool.Registry, error) {
	clock, err := tool.Typed("current_time", "Returns the current date and time in a time zone.", currentTime(time.Now))
	if err != nil {
		return nil, err
	}
	return tool.NewRegistry(clock)
}
