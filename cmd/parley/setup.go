package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/casualjim/parley"
	"github.com/casualjim/parley/config"
	"github.com/casualjim/parley/events"
	"github.com/casualjim/parley/pkg/natsx"
	"github.com/casualjim/parley/provider/models"
	"github.com/casualjim/parley/trace"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

const (
	defaultConfigPath = "parley.yaml"
	defaultTraceDir   = ".parley/traces"
)

// commonFlags are shared by chat and serve.
type commonFlags struct {
	configPath      string
	traceDir        string
	natsURL         string
	defaultProvider string
	maxTurns        int
	verbose         bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", envOr("PARLEY_CONFIG", defaultConfigPath), "path to the YAML configuration")
	fs.StringVar(&c.traceDir, "traces", envOr("PARLEY_TRACE_DIR", defaultTraceDir), "directory debug traces are written to")
	fs.StringVar(&c.natsURL, "nats", "", "publish debug traces to this NATS server instead of the trace directory")
	fs.StringVar(&c.defaultProvider, "fallback", models.OpenAI, "provider used when the configured one is unavailable")
	fs.IntVar(&c.maxTurns, "max-turns", parley.DefaultMaxTurns, "provider requests allowed per message")
	fs.BoolVar(&c.verbose, "v", false, "log debug output")
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log := zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: level}),
	))
}

// traceSink picks the NATS sink when a server is configured and the file sink
// otherwise. The returned loader is nil for NATS.
func traceSink(flags commonFlags) (trace.Sink, trace.Loader, func(), error) {
	if flags.natsURL != "" {
		conn, err := natsx.NewClient(flags.natsURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to nats: %w", err)
		}
		return trace.NewNATSSink(conn, ""), nil, func() { _ = conn.Drain() }, nil
	}

	sink, err := trace.NewFileSink(flags.traceDir)
	if err != nil {
		return nil, nil, nil, err
	}
	return sink, sink, func() {}, nil
}

type assistantSetup struct {
	assistant *parley.Assistant
	traces    trace.Loader
	close     func()
}

func newAssistant(flags commonFlags, extra ...parley.Option) (assistantSetup, error) {
	if _, err := os.Stat(flags.configPath); err != nil {
		return assistantSetup{}, fmt.Errorf("configuration %s: %w", flags.configPath, err)
	}
	doc, err := config.Load(flags.configPath)
	if err != nil {
		return assistantSetup{}, err
	}

	reg, err := models.NewRegistry(flags.defaultProvider)
	if err != nil {
		return assistantSetup{}, err
	}
	if err := models.RegisterCompatible(reg, slices.Sorted(maps.Keys(doc.Providers))...); err != nil {
		return assistantSetup{}, err
	}

	sink, loader, closeSink, err := traceSink(flags)
	if err != nil {
		return assistantSetup{}, err
	}

	tools, err := builtinTools()
	if err != nil {
		closeSink()
		return assistantSetup{}, err
	}

	options := []parley.Option{
		parley.WithConfig(config.NewFile(flags.configPath)),
		parley.WithProviders(reg),
		parley.WithToolRegistry(tools),
		parley.WithTraceSink(sink),
		parley.WithMaxTurns(flags.maxTurns),
		parley.WithHook(events.Logging(slog.Default())),
	}
	a, err := parley.New(append(options, extra...)...)
	if err != nil {
		closeSink()
		return assistantSetup{}, err
	}
	return assistantSetup{assistant: a, traces: loader, close: closeSink}, nil
}

func parseFlags(fs *flag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return false, nil
		}
		return false, fmt.Errorf("parse %s flags: %w", fs.Name(), err)
	}
	return true, nil
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
