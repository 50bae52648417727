package llm

import "encoding/json"

// Stop reasons reported by transports.
const (
	StopEndTurn  = "end_turn"
	StopToolCall = "tool_call"
	StopMaxSize  = "max_tokens"
)

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Usage counts the tokens one generation consumed.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
	CachedTokens int `json:"cached_tokens,omitempty"`
}

// Add accumulates other into u.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.CachedTokens += other.CachedTokens
}

// Copy returns a copy of the usage data.
func (u *Usage) Copy() *Usage {
	cp := *u
	return &cp
}

// Response is the complete result of one generation.
type Response struct {
	Text       string     `json:"text,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Usage      Usage      `json:"usage"`
	StopReason string     `json:"stop_reason,omitempty"`
}

// HasToolCalls reports whether the model asked for a tool.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}
