package llm

import (
	"context"
)

// Stream is a normalized lazy sequence of assistant text deltas. All providers
// reduce their native event framing to this shape; events carrying no text are
// never surfaced.
//
// Usage follows the iterator pattern of the OpenAI SDK:
//
//	for stream.Next() {
//		handle(stream.Current())
//	}
//	if err := stream.Err(); err != nil { ... }
//
// Err reports a mid-stream failure; deltas consumed before the failure remain
// valid. Close releases the underlying connection and is safe to call at any
// point, including mid-stream to abandon the response.
type Stream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}

// Provider translates a uniform request into one provider-specific streaming
// call. Implementations make exactly one outbound call per invocation and do
// not retry; retry policy belongs to callers.
type Provider interface {
	Name() string
	// Configured reports whether the provider has the credentials it needs.
	// Callers use this as a cheap fail-fast check before opening a stream.
	Configured() bool
	Stream(ctx context.Context, req Request) (Stream, error)
}
