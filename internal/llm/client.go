// Package llm defines the streaming chat client abstraction consumed by the
// conversation session.
package llm

import (
	"context"
)

// Role represents a message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a provider request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest contains parameters for a chat call.
type ChatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	System    string    `json:"system,omitempty"`
	MaxTokens int       `json:"max_tokens"`
}

// ChatResponse contains the complete response to a chat request.
type ChatResponse struct {
	Content string `json:"content"`
}

// StreamEvent is one incremental event during streaming. A stream is a
// sequence of "text" events terminated by exactly one "done" or "error"
// event; it is not restartable mid-stream.
type StreamEvent struct {
	Type string `json:"type"` // "text", "done", "error"

	// Text carries the fragment for "text" events.
	Text string `json:"text,omitempty"`

	// Response carries the accumulated result for "done" events.
	Response *ChatResponse `json:"response,omitempty"`

	// Error carries the failure for "error" events.
	Error error `json:"-"`
}

// Client is the interface for provider interactions.
type Client interface {
	// Chat sends a request and returns the complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ChatStream sends a request and returns a channel of streaming events.
	// The channel is closed after the terminal event.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error)
}
