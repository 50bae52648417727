// Package llmtest provides a scripted model for tests: it returns a
// fixed sequence of responses and records every request it receives.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/deepnoodle-ai/conductor/llm"
)

var _ llm.Streamer = &ScriptedModel{}

// ScriptedModel plays back queued responses in order.
type ScriptedModel struct {
	mu        sync.Mutex
	responses []*llm.Response
	requests  []*llm.Request
	failWith  error
}

// New creates a ScriptedModel that will return the given responses.
func New(responses ...*llm.Response) *ScriptedModel {
	return &ScriptedModel{responses: responses}
}

// Text builds a final text response with plausible usage numbers.
func Text(text string) *llm.Response {
	return &llm.Response{
		Text:       text,
		StopReason: llm.StopEndTurn,
		Usage:      llm.Usage{InputTokens: 100, OutputTokens: 20, TotalTokens: 120},
	}
}

// ToolCall builds a response requesting one tool invocation.
func ToolCall(name, arguments string) *llm.Response {
	return &llm.Response{
		ToolCalls: []llm.ToolCall{{
			ID:        "call_" + name,
			Name:      name,
			Arguments: json.RawMessage(arguments),
		}},
		StopReason: llm.StopToolCall,
		Usage:      llm.Usage{InputTokens: 100, OutputTokens: 10, TotalTokens: 110},
	}
}

// WithUsage overrides the usage numbers on a response.
func WithUsage(resp *llm.Response, input, output, cached int) *llm.Response {
	resp.Usage = llm.Usage{
		InputTokens:  input,
		OutputTokens: output,
		TotalTokens:  input + output,
		CachedTokens: cached,
	}
	return resp
}

// Enqueue appends more responses to the script.
func (m *ScriptedModel) Enqueue(responses ...*llm.Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

// FailWith makes every subsequent call return err.
func (m *ScriptedModel) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Requests returns the requests observed so far.
func (m *ScriptedModel) Requests() []*llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*llm.Request(nil), m.requests...)
}

// LastRequest returns the most recent request, or nil.
func (m *ScriptedModel) LastRequest() *llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

func (m *ScriptedModel) Name() string {
	return "scripted"
}

func (m *ScriptedModel) SupportsStreaming() bool {
	return true
}

func (m *ScriptedModel) next(req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.failWith != nil {
		return nil, m.failWith
	}
	if len(m.responses) == 0 {
		return nil, fmt.Errorf("scripted model exhausted after %d requests", len(m.requests))
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *ScriptedModel) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.next(req)
}

func (m *ScriptedModel) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	resp, err := m.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return llm.NewReplayStream(resp), nil
}
