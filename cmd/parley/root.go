package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

const usage = `parley talks to LLM providers with tool calling.

Usage:
  parley [chat] [flags]     Start an interactive session (default)
  parley serve [flags]      Serve the HTTP API
  parley trace <debug-id>   Print a stored debug trace

Run "parley <command> -h" for the flags of a command.`

// Execute dispatches args to a command.
func Execute(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdin, os.Stdout)
}

func execute(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return chat(ctx, args, in, out)
	}

	switch args[0] {
	case "chat":
		return chat(ctx, args[1:], in, out)
	case "serve":
		return serve(ctx, args[1:])
	case "trace":
		return showTrace(args[1:], out)
	case "help":
		fmt.Fprintln(out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}
