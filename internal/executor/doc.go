// Package executor drives a single exchange with a language model: it asks the
// provider, accumulates the streamed chunks, runs the tools the model asked
// for and loops until the model answers or the turn budget runs out.
//
// Design decisions:
//   - Command pattern: everything an exchange needs travels in a RunCommand
//   - Bounded loop: MaxTurns caps the number of provider requests, never wall-clock time
//   - Owned history: the executor works on a copy of the input history and reports what it appended
//   - Observers only: hooks, token and status callbacks see the exchange but cannot steer it
//   - Two fatal errors: transport failures and tool failures end the exchange, everything else is a result
//
// State machine:
//
//	Idle -> Requesting -> Processing -> (ToolExecuting -> Requesting)* -> Done | MaxTurnsExceeded
//
// Example usage:
//
//	cmd, err := executor.NewRunCommand(prov, hook)
//	if err != nil {
//	    return err
//	}
//	cmd = cmd.WithModel("gpt-4o-mini").
//	    WithHistory(history).
//	    WithTools(tools).
//	    WithStream(true)
//
//	res, err := executor.NewLocal().Run(ctx, cmd)
package executor
