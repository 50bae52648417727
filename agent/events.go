package agent

import (
	"encoding/json"
	"time"

	"github.com/deepnoodle-ai/conductor/llm"
	"github.com/deepnoodle-ai/conductor/session"
)

// EventType discriminates run events.
type EventType string

const (
	// EventRunStarted opens a run, carrying the instruction.
	EventRunStarted EventType = "run_started"
	// EventModelEvent carries a chunk of streamed model text.
	EventModelEvent EventType = "model_event"
	// EventToolCall announces a tool dispatch.
	EventToolCall EventType = "tool_call"
	// EventToolResult carries a dispatched tool's outcome.
	EventToolResult EventType = "tool_result"
	// EventCommitted reports the pool merged into the committed turns.
	EventCommitted EventType = "committed"
	// EventRunFinished closes a successful run.
	EventRunFinished EventType = "run_finished"
	// EventRunError closes a failed run.
	EventRunError EventType = "run_error"
)

// Event is one observable step of a run. Events marshal to single-line
// JSON so the stream-json output format and the supervisor can pipe them
// across process boundaries.
type Event struct {
	Type        EventType            `json:"type"`
	RunID       string               `json:"run_id"`
	SessionID   string               `json:"session_id,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
	Iteration   int                  `json:"iteration,omitempty"`
	Instruction string               `json:"instruction,omitempty"`
	Delta       string               `json:"delta,omitempty"`
	ToolName    string               `json:"tool_name,omitempty"`
	ToolArgs    json.RawMessage      `json:"tool_args,omitempty"`
	Outcome     *session.ToolOutcome `json:"outcome,omitempty"`
	Text        string               `json:"text,omitempty"`
	Turns       int                  `json:"turns,omitempty"`
	Usage       *llm.Usage           `json:"usage,omitempty"`
	Error       string               `json:"error,omitempty"`
}
