// Package provider implements the contract every LLM backend adapter satisfies,
// plus the registry that picks the active adapter for an exchange.
//
// Design decisions:
//   - Pull-based streaming: adapters return a forward-only Stream instead of a channel,
//     so the caller controls when the next network read happens
//   - Diagnostics side channel: every call reports the exact request bytes and every raw
//     response event through Wire; nothing in the control flow reads it
//   - Blocks are data: a content-safety refusal is a chunk with Blocked set, not an error
//   - Secrets never leave: transport errors are redacted before they are returned
//   - Live configuration: the Registry reads the active provider name and credentials on
//     every Resolve, so configuration changes apply to the next exchange
//
// Key concepts:
//   - Provider: adapter interface with a streaming and a synchronous entry point
//   - Stream: iterator over canonical chunks, one per wire event that produced output
//   - Params: instructions, canonical history, tools, model and generation settings
//   - Wire: raw request and response payloads for trace purposes
//   - Registry: named factories with a default fallback
//
// Example usage:
//
//	reg := provider.NewRegistry()
//	reg.Register("openai", openai.Factory)
//	reg.SetDefault("openai")
//
//	p, err := reg.Resolve(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//
//	stream, err := p.StreamGenerateContent(ctx, provider.Params{History: history})
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//
//	for stream.Next() {
//	    fmt.Print(stream.Chunk().TextString())
//	}
//	if err := stream.Err(); err != nil {
//	    return err
//	}
package provider
