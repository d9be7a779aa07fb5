// Package events defines the lifecycle notifications emitted while an
// exchange runs, and the Hook interface observers implement to receive them.
//
// Design decisions:
//   - Synchronous delivery: hooks run on the exchange goroutine at four fixed points
//   - Pure observation: nothing a hook does can change the outcome of an exchange
//   - Snapshots: every event carries copies, so a hook may retain what it receives
//   - No global bus: observers are passed to the executor explicitly
//
// Lifecycle:
//   - ExchangeStarted: once, before the first provider request
//   - ChunkReceived: for every chunk a provider produced, tagged with its turn index
//   - TurnCompleted: after every provider request, with the raw payloads, even when it failed
//   - ExchangeCompleted: once, after the last turn or on failure
//
// Example usage:
//
//	hook := events.Multi(
//	    events.Logging(slog.Default()),
//	    traces, // a *trace.Accumulator
//	)
//	res, err := executor.NewLocal().Run(ctx, cmd.WithHook(hook))
package events
