// Package completion streams chat completions from a hosted LLM endpoint.
//
// Invariants:
// - A Stream yields only assistant text; tool calls are resolved inside the provider.
// - Tool invocation follows the request's ToolBehavior (auto, manual, none).
// - Provider failures surface as *ServiceError from Stream.Err.
// - The SDK clients never retry on their own.
//
// Usage:
//
//	svc, _ := completion.NewService(completion.Options{Provider: "azure", Endpoint: endpoint, APIKey: key, Model: "gpt-35-turbo"})
//	stream, _ := svc.Stream(ctx, completion.Request{Messages: history, Settings: completion.DefaultSettings()})
//	defer stream.Close()
//	for stream.Next() {
//		fmt.Print(stream.Current())
//	}
//	_ = stream.Err()
package completion
