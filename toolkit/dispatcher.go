package toolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/config"
	"github.com/deepnoodle-ai/conductor/log"
	"github.com/deepnoodle-ai/conductor/session"
)

// Execution records one completed tool invocation: the turn pair that was
// appended to the session pool plus the normalized outcome.
type Execution struct {
	ToolName string
	Call     session.Turn
	Response session.Turn
	Outcome  session.ToolOutcome
}

// Dispatcher executes tool calls against one session. Both the in-process
// agent loop and the stdio server run calls through here, so the pool
// receives identical function_calling/tool_response pairs no matter where
// the call originated.
type Dispatcher struct {
	registry  *Registry
	store     *session.Store
	sessionID string
	settings  *config.Settings
	root      string
	confirmer conductor.Confirmer
	confirm   config.PatternList
	logger    log.Logger
	now       func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSession binds the dispatcher to a session; executions append their
// turn pair to its pool.
func WithSession(store *session.Store, sessionID string) DispatcherOption {
	return func(d *Dispatcher) {
		d.store = store
		d.sessionID = sessionID
	}
}

// WithSettings supplies settings to injected tool contexts.
func WithSettings(settings *config.Settings) DispatcherOption {
	return func(d *Dispatcher) { d.settings = settings }
}

// WithRoot sets the project root file tools are jailed to.
func WithRoot(root string) DispatcherOption {
	return func(d *Dispatcher) { d.root = root }
}

// WithConfirmer gates tools whose names match the patterns behind the
// confirmer. An execution the confirmer declines fails without invoking
// the tool.
func WithConfirmer(confirmer conductor.Confirmer, patterns config.PatternList) DispatcherOption {
	return func(d *Dispatcher) {
		d.confirmer = confirmer
		d.confirm = patterns
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger log.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithClock overrides the turn timestamp source.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher returns a dispatcher over registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:  registry,
		confirmer: &conductor.AutoApproveConfirmer{},
		logger:    log.NewNullLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SessionID returns the bound session ID, or "".
func (d *Dispatcher) SessionID() string {
	return d.sessionID
}

// Registry returns the dispatcher's tool registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Execute runs one tool call end to end: name guard, resolution, context
// injection, invocation with panic recovery, outcome normalization, and
// the pool append. Tool-level failures come back as a failed outcome with
// a nil error; the returned error is reserved for calls that never reached
// a tool (bad name, unknown tool) and for store failures.
func (d *Dispatcher) Execute(ctx context.Context, call *conductor.ToolCall) (*Execution, error) {
	if strings.Contains(call.Name, "..") || strings.ContainsAny(call.Name, `/\`) {
		return nil, conductor.NewValidationError("tool_name", fmt.Sprintf("invalid tool name %q", call.Name))
	}
	tool, ok := d.registry.Get(call.Name)
	if !ok {
		return nil, conductor.NewNotFoundError("tool", call.Name)
	}

	ctx = WithContext(ctx, &Context{
		Store:     d.store,
		SessionID: d.sessionID,
		Settings:  d.settings,
		Root:      d.root,
		Logger:    d.logger,
	})

	started := d.now()
	outcome := d.invoke(ctx, tool, call)
	d.logger.Debug("tool executed",
		"tool", call.Name,
		"status", outcome.Status,
		"duration", time.Since(started).String())

	execution := &Execution{
		ToolName: call.Name,
		Call:     session.NewFunctionCalling(renderCall(call), d.now()),
		Response: session.NewToolResponse(call.Name, outcome.Status, outcome.Message, d.now()),
		Outcome:  outcome,
	}
	if d.store != nil && d.sessionID != "" {
		if _, err := d.store.AppendPool(d.sessionID, execution.Call, execution.Response); err != nil {
			return nil, err
		}
	}
	return execution, nil
}

// invoke runs the tool and normalizes whatever comes back. A panic inside
// a tool becomes a failed outcome, never a crashed loop.
func (d *Dispatcher) invoke(ctx context.Context, tool conductor.Tool, call *conductor.ToolCall) (outcome session.ToolOutcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked", "tool", tool.Name(), "panic", fmt.Sprint(r))
			outcome = session.ToolOutcome{
				Status:  session.StatusFailed,
				Message: fmt.Sprintf("tool %s panicked: %v", tool.Name(), r),
			}
		}
	}()

	if d.confirm.Matches(tool.Name()) {
		approved, err := d.confirmer.Confirm(ctx, tool, renderCall(call))
		if err != nil {
			return session.ToolOutcome{
				Status:  session.StatusFailed,
				Message: fmt.Sprintf("confirmation failed: %s", err.Error()),
			}
		}
		if !approved {
			return session.ToolOutcome{
				Status:  session.StatusFailed,
				Message: "call declined by the user",
			}
		}
	}

	// Models invoke no-argument tools with empty input; typed tools
	// expect an object either way.
	input := call.Input
	if len(bytes.TrimSpace(input)) == 0 {
		input = []byte("{}")
	}

	result, err := tool.Call(ctx, json.RawMessage(input))
	if err != nil {
		return session.ToolOutcome{Status: session.StatusFailed, Message: err.Error()}
	}
	if result == nil {
		return session.ToolOutcome{Status: session.StatusFailed, Message: "tool returned no result"}
	}
	if result.IsError {
		return session.ToolOutcome{Status: session.StatusFailed, Message: result.Text()}
	}
	return session.ToolOutcome{Status: session.StatusSucceeded, Message: result.Text()}
}

// renderCall flattens a call to "name({...})" for function_calling turns
// and confirmation prompts.
func renderCall(call *conductor.ToolCall) string {
	args := strings.TrimSpace(string(call.Input))
	if args == "" {
		args = "{}"
	}
	return fmt.Sprintf("%s(%s)", call.Name, args)
}
