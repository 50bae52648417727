package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/deepnoodle-ai/conductor"
)

// TurnType discriminates the turn variants.
type TurnType string

const (
	TurnTypeUserTask          TurnType = "user_task"
	TurnTypeModelResponse     TurnType = "model_response"
	TurnTypeFunctionCalling   TurnType = "function_calling"
	TurnTypeToolResponse      TurnType = "tool_response"
	TurnTypeCompressedHistory TurnType = "compressed_history"
)

// Tool response statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ExpiredToolResponseMessage replaces the message of tool responses that
// have aged out of the retention window. The status is preserved so the
// model still sees that the call happened and succeeded.
const ExpiredToolResponseMessage = "(expired: tool response content removed to save context)"

// ToolOutcome is the normalized result carried by a tool_response turn.
type ToolOutcome struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Succeeded reports whether the outcome carries a success status.
func (o *ToolOutcome) Succeeded() bool {
	return o != nil && o.Status == StatusSucceeded
}

// Turn is one event in a session history, discriminated by Type. Exactly
// the fields for the variant are serialized; the JSON form uses a "type"
// tag with variant specific payload keys.
type Turn struct {
	Type      TurnType
	Timestamp time.Time

	// Instruction is set for user_task turns.
	Instruction string

	// Content is set for model_response and compressed_history turns.
	Content string

	// Call is set for function_calling turns: the tool name plus its
	// JSON arguments, rendered as a single string.
	Call string

	// ToolName and Outcome are set for tool_response turns.
	ToolName string
	Outcome  *ToolOutcome

	// OriginalRange is set for compressed_history turns: the [start, end]
	// turn indices the summary replaced.
	OriginalRange *[2]int
}

// NewUserTask returns a user_task turn.
func NewUserTask(instruction string, at time.Time) Turn {
	return Turn{Type: TurnTypeUserTask, Timestamp: at, Instruction: instruction}
}

// NewModelResponse returns a model_response turn.
func NewModelResponse(content string, at time.Time) Turn {
	return Turn{Type: TurnTypeModelResponse, Timestamp: at, Content: content}
}

// NewFunctionCalling returns a function_calling turn. The call string is
// the tool name plus JSON arguments, e.g. `search({"q":"X"})`.
func NewFunctionCalling(call string, at time.Time) Turn {
	return Turn{Type: TurnTypeFunctionCalling, Timestamp: at, Call: call}
}

// NewToolResponse returns a tool_response turn.
func NewToolResponse(name, status, message string, at time.Time) Turn {
	return Turn{
		Type:      TurnTypeToolResponse,
		Timestamp: at,
		ToolName:  name,
		Outcome:   &ToolOutcome{Status: status, Message: message},
	}
}

// NewCompressedHistory returns a compressed_history turn summarizing the
// original turns in [start, end].
func NewCompressedHistory(content string, start, end int, at time.Time) Turn {
	r := [2]int{start, end}
	return Turn{Type: TurnTypeCompressedHistory, Timestamp: at, Content: content, OriginalRange: &r}
}

// Editable reports whether the turn variant accepts EditByIndex updates.
func (t *Turn) Editable() bool {
	return t.Type == TurnTypeUserTask || t.Type == TurnTypeModelResponse
}

// Text returns the human readable body of the turn.
func (t *Turn) Text() string {
	switch t.Type {
	case TurnTypeUserTask:
		return t.Instruction
	case TurnTypeModelResponse, TurnTypeCompressedHistory:
		return t.Content
	case TurnTypeFunctionCalling:
		return t.Call
	case TurnTypeToolResponse:
		if t.Outcome != nil {
			return t.Outcome.Message
		}
		return ""
	}
	return ""
}

// Validate checks that the turn carries the payload its type requires.
func (t *Turn) Validate() error {
	switch t.Type {
	case TurnTypeUserTask, TurnTypeModelResponse, TurnTypeFunctionCalling:
		return nil
	case TurnTypeToolResponse:
		if t.Outcome == nil {
			return conductor.NewValidationError("turn", "tool_response requires a response payload")
		}
		if t.Outcome.Status != StatusSucceeded && t.Outcome.Status != StatusFailed {
			return conductor.NewValidationError("turn", fmt.Sprintf("unknown tool_response status %q", t.Outcome.Status))
		}
		return nil
	case TurnTypeCompressedHistory:
		if t.OriginalRange == nil {
			return conductor.NewValidationError("turn", "compressed_history requires original_turns_range")
		}
		return nil
	}
	return conductor.NewValidationError("turn", fmt.Sprintf("unknown turn type %q", t.Type))
}

type userTaskJSON struct {
	Type        TurnType  `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	Instruction string    `json:"instruction"`
}

type modelResponseJSON struct {
	Type      TurnType  `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}

type functionCallingJSON struct {
	Type      TurnType  `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Response  string    `json:"response"`
}

type toolResponseJSON struct {
	Type      TurnType    `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Name      string      `json:"name"`
	Response  ToolOutcome `json:"response"`
}

type compressedHistoryJSON struct {
	Type      TurnType  `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	Range     [2]int    `json:"original_turns_range"`
}

func (t Turn) MarshalJSON() ([]byte, error) {
	switch t.Type {
	case TurnTypeUserTask:
		return json.Marshal(userTaskJSON{t.Type, t.Timestamp, t.Instruction})
	case TurnTypeModelResponse:
		return json.Marshal(modelResponseJSON{t.Type, t.Timestamp, t.Content})
	case TurnTypeFunctionCalling:
		return json.Marshal(functionCallingJSON{t.Type, t.Timestamp, t.Call})
	case TurnTypeToolResponse:
		var outcome ToolOutcome
		if t.Outcome != nil {
			outcome = *t.Outcome
		}
		return json.Marshal(toolResponseJSON{t.Type, t.Timestamp, t.ToolName, outcome})
	case TurnTypeCompressedHistory:
		var r [2]int
		if t.OriginalRange != nil {
			r = *t.OriginalRange
		}
		return json.Marshal(compressedHistoryJSON{t.Type, t.Timestamp, t.Content, r})
	}
	return nil, fmt.Errorf("cannot marshal turn with unknown type %q", t.Type)
}

func (t *Turn) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type TurnType `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	switch tag.Type {
	case TurnTypeUserTask:
		var v userTaskJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*t = Turn{Type: v.Type, Timestamp: v.Timestamp, Instruction: v.Instruction}
	case TurnTypeModelResponse:
		var v modelResponseJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*t = Turn{Type: v.Type, Timestamp: v.Timestamp, Content: v.Content}
	case TurnTypeFunctionCalling:
		var v functionCallingJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*t = Turn{Type: v.Type, Timestamp: v.Timestamp, Call: v.Response}
	case TurnTypeToolResponse:
		var v toolResponseJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		outcome := v.Response
		*t = Turn{Type: v.Type, Timestamp: v.Timestamp, ToolName: v.Name, Outcome: &outcome}
	case TurnTypeCompressedHistory:
		var v compressedHistoryJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		r := v.Range
		*t = Turn{Type: v.Type, Timestamp: v.Timestamp, Content: v.Content, OriginalRange: &r}
	default:
		return fmt.Errorf("cannot unmarshal turn with unknown type %q", tag.Type)
	}
	return nil
}

// Copy returns a deep copy of the turn.
func (t Turn) Copy() Turn {
	cp := t
	if t.Outcome != nil {
		outcome := *t.Outcome
		cp.Outcome = &outcome
	}
	if t.OriginalRange != nil {
		r := *t.OriginalRange
		cp.OriginalRange = &r
	}
	return cp
}
