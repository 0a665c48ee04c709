package llm

import (
	"context"
)

// Client defines the interface for chat-completion providers
type Client interface {
	// Do sends a chat request and returns the undecoded reply, whatever its
	// status. An error means no reply was received.
	Do(ctx context.Context, request *ChatRequest) (*RawResponse, error)

	// Chat sends a chat request and returns the decoded response, turning
	// non-2xx replies and embedded error objects into errors.
	Chat(ctx context.Context, request *ChatRequest) (*ChatResponse, error)

	// Close cleans up any resources
	Close() error
}
