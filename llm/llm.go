// Package llm defines the transport-neutral interface between the agent
// loop and a language model. Concrete transports live in subpackages:
// google (Gemini API), subprocess (an external CLI), and llmtest
// (scripted responses for tests).
package llm

import (
	"context"

	"github.com/deepnoodle-ai/conductor/schema"
)

// Role identifies the author of a message.
type Role string

const (
	User  Role = "user"
	Model Role = "model"
)

// Message is one history entry handed to the model.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// NewUserMessage returns a user message.
func NewUserMessage(text string) *Message {
	return &Message{Role: User, Text: text}
}

// NewModelMessage returns a model message.
func NewModelMessage(text string) *Message {
	return &Message{Role: Model, Text: text}
}

// Tool is the slice of a tool the transport needs to declare it to the
// model. The full Tool interface in the root package satisfies this.
type Tool interface {
	Name() string
	Description() string
	Schema() *schema.Schema
}

// Request carries everything one generation needs. Transports ignore the
// fields they cannot express.
type Request struct {
	// Model overrides the transport's default model name.
	Model string

	// System is the rendered static prompt sections.
	System string

	// Messages is the conversation history, chronological, ending with
	// the current instruction as a user message.
	Messages []*Message

	// Tools the model may call.
	Tools []Tool

	// Sampling overrides. Nil leaves the transport default in place.
	Temperature *float64
	TopP        *float64
	TopK        *float64

	// CachedContent names a server-side cached prefix to reuse.
	CachedContent string
}

// Generator produces complete responses.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Streamer produces incremental responses.
type Streamer interface {
	Generator
	Stream(ctx context.Context, req *Request) (Stream, error)
	SupportsStreaming() bool
}
