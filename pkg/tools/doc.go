// Package tools registers and executes the callable functions offered to the model.
//
// Invariants:
// - Tool names are unique.
// - Arguments are schema-validated before execution.
// - Every invocation runs under a timeout and returns text.
//
// Usage:
//
//	reg := tools.New()
//	_ = reg.Register(tools.Definition{
//		Name: "echo",
//		Description: "Echo input",
//		Parameters: []tools.Parameter{{Name: "text", Type: "string", Description: "text", Required: true}},
//		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return params["text"], nil },
//	})
//	out, _ := reg.Invoke(ctx, "echo", `{"text":"hi"}`)
package tools
