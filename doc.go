/*
Package parley runs conversational exchanges against interchangeable LLM
providers. An exchange takes the conversation so far plus a new user message,
drives the active provider through a bounded loop of requests and tool calls,
and returns the final answer together with the history entries it produced.

The package glues together the pieces that live in sub packages:

  - config: the active provider, credentials and the generation preset, re-read per exchange
  - provider: the adapter contract and a registry with a fallback provider
  - tool: tool definitions and the registry used for dispatch
  - trace: optional per-exchange debug traces
  - history: where completed conversations are persisted

# Basic Usage

	providers := provider.NewRegistry()
	_ = providers.Register("openai", openai.Factory)

	assistant, err := parley.New(
		parley.WithConfig(config.NewFile("parley.yaml")),
		parley.WithProviders(providers),
		parley.WithTools(weatherTool),
	)
	if err != nil {
		return err
	}

	res, err := assistant.Ask(ctx, "What is the weather in Paris?",
		parley.History(previous),
		parley.OnToken(func(s string) { fmt.Print(s) }),
	)

An empty message combined with Reset(true) is a no-op that returns a zero
Result without reading configuration, which lets a caller clear its own state
through the same entrypoint.
*/
package parley
