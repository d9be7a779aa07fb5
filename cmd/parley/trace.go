package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/casualjim/parley/trace"
	"github.com/k0kubun/pp/v3"
)

func showTrace(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("trace", flag.ContinueOnError)
	var (
		dir     string
		noColor bool
	)
	fs.StringVar(&dir, "traces", envOr("PARLEY_TRACE_DIR", defaultTraceDir), "directory debug traces are read from")
	fs.BoolVar(&noColor, "no-color", false, "disable colored output")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage:\n  parley trace [flags] <debug-id>\n\nFlags:")
		fs.PrintDefaults()
	}
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("trace requires exactly one debug id")
	}

	sink, err := trace.NewFileSink(dir)
	if err != nil {
		return err
	}
	rec, err := sink.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	return printRecord(out, rec, !noColor)
}

func printRecord(out io.Writer, rec trace.Record, colored bool) error {
	printer := pp.New()
	printer.SetOutput(out)
	printer.SetColoringEnabled(colored)
	printer.SetExportedOnly(true)
	_, err := printer.Println(rec)
	return err
}
