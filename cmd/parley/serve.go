package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/casualjim/parley/internal/server"
)

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var (
		flags commonFlags
		addr  string
	)
	flags.register(fs)
	fs.StringVar(&addr, "addr", envOr("PARLEY_ADDR", server.DefaultAddr), "listen address")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage:\n  parley serve [flags]\n\nFlags:")
		fs.PrintDefaults()
	}
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}

	setupLogging(flags.verbose)

	setup, err := newAssistant(flags)
	if err != nil {
		return err
	}
	defer setup.close()

	options := []server.Option{server.WithAddr(addr)}
	if setup.traces != nil {
		options = append(options, server.WithTraces(setup.traces))
	}
	srv, err := server.New(setup.assistant, options...)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "serving assistant", slog.String("config", absPath(flags.configPath)))
	return srv.Run(ctx)
}
