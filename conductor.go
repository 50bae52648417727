// Package conductor orchestrates task-oriented conversational agent
// sessions. A session is a durable JSON file holding the conversation
// history, pending tool transactions, references, and todos for one task.
// The agent package runs the reasoning loop against a language model
// transport, the toolkit package supplies the tools the model may call, and
// the mcpserver package exposes those tools over stdio JSON-RPC.
package conductor

// Version is the conductor release version.
var Version = "0.3.0"

// ToolCall describes a single function call requested by the model.
type ToolCall struct {
	// ID is the provider-assigned identifier for this call, used to pair
	// the eventual tool response with the request.
	ID string `json:"id"`

	// Name of the tool to invoke.
	Name string `json:"name"`

	// Input is the raw JSON arguments for the call.
	Input []byte `json:"input"`
}

// ToolCallResult records one completed tool invocation.
type ToolCallResult struct {
	ID     string
	Name   string
	Input  any
	Result *ToolResult
	Error  error
}
