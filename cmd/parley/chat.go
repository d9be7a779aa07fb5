package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/casualjim/parley"
	"github.com/casualjim/parley/history"
	"github.com/casualjim/parley/trace"
	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
)

const chatHelp = `Commands:
  /reset         forget the conversation
  /debug         toggle debug traces
  /trace <id>    print a stored trace
  /help          show this help
  exit           leave`

func chat(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	var (
		flags commonFlags
		raw   bool
		debug bool
	)
	flags.register(fs)
	fs.BoolVar(&raw, "raw", false, "stream answer text as it arrives instead of rendering markdown")
	fs.BoolVar(&debug, "debug", false, "record a debug trace for every message")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage:\n  parley chat [flags]\n\nFlags:")
		fs.PrintDefaults()
	}
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}

	setupLogging(flags.verbose)

	conversation := history.NewMemory()
	setup, err := newAssistant(flags, parley.WithHistorySink(conversation))
	if err != nil {
		return err
	}
	defer setup.close()

	r, err := newREPL(setup.assistant, conversation, setup.traces, out)
	if err != nil {
		return err
	}
	r.raw = raw
	r.debug = debug
	return r.run(ctx, in)
}

type asker interface {
	Ask(ctx context.Context, message string, options ...parley.AskOption) (parley.Result, error)
}

type repl struct {
	assistant    asker
	conversation *history.Memory
	traces       trace.Loader
	out          io.Writer
	renderer     *glamour.TermRenderer
	raw          bool
	debug        bool
	colored      bool
}

func newREPL(a asker, conversation *history.Memory, traces trace.Loader, out io.Writer) (*repl, error) {
	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	return &repl{
		assistant:    a,
		conversation: conversation,
		traces:       traces,
		out:          out,
		renderer:     renderer,
		colored:      !color.NoColor,
	}, nil
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		fmt.Fprintf(r.out, "%s: ", color.CyanString("User"))
		if !scanner.Scan() {
			fmt.Fprintln(r.out, "Exiting...")
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case strings.EqualFold(input, "exit"):
			return nil
		case strings.HasPrefix(input, "/"):
			r.command(ctx, input)
			continue
		}

		if err := r.ask(ctx, input); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintf(r.out, "%s %v\n", color.RedString("Error:"), err)
		}
	}
}

func (r *repl) command(ctx context.Context, input string) {
	name, arg, _ := strings.Cut(input, " ")
	switch name {
	case "/reset":
		_, _ = r.assistant.Ask(ctx, "", parley.Reset(true))
		r.conversation.Reset()
		fmt.Fprintln(r.out, color.YellowString("Conversation cleared."))
	case "/debug":
		r.debug = !r.debug
		fmt.Fprintf(r.out, "%s %t\n", color.YellowString("Debug traces:"), r.debug)
	case "/trace":
		r.showTrace(strings.TrimSpace(arg))
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	default:
		fmt.Fprintf(r.out, "unknown command %s\n%s\n", name, chatHelp)
	}
}

func (r *repl) showTrace(id string) {
	if r.traces == nil {
		fmt.Fprintln(r.out, "traces are not stored locally")
		return
	}
	rec, err := r.traces.Load(id)
	if err != nil {
		fmt.Fprintf(r.out, "%s %v\n", color.RedString("Error:"), err)
		return
	}
	if err := printRecord(r.out, rec, r.colored); err != nil {
		fmt.Fprintf(r.out, "%s %v\n", color.RedString("Error:"), err)
	}
}

func (r *repl) ask(ctx context.Context, input string) error {
	var streamed bool
	options := []parley.AskOption{
		parley.History(r.conversation.Messages()),
		parley.Debug(r.debug),
		parley.OnStatus(func(status string, state parley.State) {
			if state == parley.Requesting || state == parley.ToolExecuting {
				fmt.Fprintln(r.out, color.YellowString("… "+status))
			}
		}),
	}
	if r.raw {
		options = append(options, parley.OnToken(func(text string) {
			if !streamed {
				fmt.Fprint(r.out, color.MagentaString("Assistant")+": ")
				streamed = true
			}
			fmt.Fprint(r.out, text)
		}))
	}

	res, err := r.assistant.Ask(ctx, input, options...)
	if err != nil {
		return err
	}

	switch {
	case streamed && res.State == parley.MaxTurnsExceeded:
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, res.Answer)
	case streamed:
		fmt.Fprintln(r.out)
	default:
		fmt.Fprint(r.out, color.MagentaString("Assistant")+": ")
		fmt.Fprintln(r.out, r.render(res.Answer))
	}

	if res.DebugID != nil {
		fmt.Fprintf(r.out, "%s %s\n", color.YellowString("Debug id:"), *res.DebugID)
	}
	return nil
}

func (r *repl) render(answer string) string {
	if r.raw || r.renderer == nil {
		return answer
	}
	rendered, err := r.renderer.Render(answer)
	if err != nil {
		return answer
	}
	return strings.TrimSpace(rendered)
}
