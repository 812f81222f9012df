package kansatsu

import "context"

// Agent is the adapter boundary to the system under eval. Implementations
// wrap a live agent; the runner only inspects the structure of responses,
// never how they were produced.
//
// All methods take a context so adapters can honor cancellation when
// calling out to a model or runtime.
type Agent interface {
	// GenerateStructured asks the agent for output conforming to schema.
	GenerateStructured(ctx context.Context, input, schema string) (StructuredResult, error)

	// RequestTool asks the agent which tool it would invoke for input.
	RequestTool(ctx context.Context, input string) (ToolCall, error)

	// Decide asks the agent to pick one of choices.
	Decide(ctx context.Context, input string, choices []string) (string, error)

	// Store persists input to the agent's memory.
	Store(ctx context.Context, input string) (string, error)

	// Query retrieves from the agent's memory.
	Query(ctx context.Context, input string) (string, error)
}
