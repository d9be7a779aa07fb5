// Package trace rebuilds a diagnostic record of an exchange from its lifecycle
// events and hands finished records to a Sink.
//
// The Accumulator is an events.Hook. It only keeps state for exchanges that
// asked for diagnostics; for every other exchange it does nothing at all. A
// record holds the system prompt, the starting history, one Turn per provider
// request, the raw payloads sent and received, and the tools that ran.
//
// Example usage:
//
//	sink, err := trace.NewFileSink("./traces")
//	if err != nil {
//	    return err
//	}
//	traces := trace.NewAccumulator(sink)
//	cmd = cmd.WithHook(traces).WithDebug(true)
package trace
