// Package transport is the boundary to the remote scoring backend.
package transport

import "context"

// Request is a scoring call in the backend's conversation format
type Request struct {
	Model       string
	Messages    []Message
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// Message is one conversation message
type Message struct {
	Role    string
	Content string
}

// Delta is one incremental chunk of a streamed response
type Delta struct {
	Content   string
	Reasoning string
}

// Response is a completed backend response
type Response struct {
	Content      string
	Reasoning    string
	FinishReason string
	// Metadata carries model id, token counts, latency, generation id
	Metadata map[string]any
}

// Client issues scoring calls. Stream delivers deltas in arrival
// order through onDelta and returns the assembled terminal response;
// cancelling ctx aborts the call and releases the connection.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request, onDelta func(Delta)) (*Response, error)
}
