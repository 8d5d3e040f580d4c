// Package chat runs the interactive conversation loop.
//
// Invariants:
// - The transcript is append-only; turns are never rewritten or dropped.
// - An assistant turn is appended only after its stream completed, and it
//   equals the concatenation of the fragments that were displayed.
// - Service failures are reported and the loop returns to awaiting input.
//
// Usage:
//
//	console := chat.NewConsole(os.Stdin, os.Stdout)
//	sess, _ := chat.NewSession(chat.Config{Service: svc, Console: console, Settings: settings})
//	_ = sess.Run(ctx)
package chat
