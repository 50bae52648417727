// Package agent implements the instruction-processing loop: prompt
// assembly, cache decisions, model streaming, tool dispatch, and the
// pool transaction wrapped around one instruction.
//
// A run is transactional. The instruction and everything the model does
// with it accumulate in the session pool; only a run that reaches a
// final model response commits the pool into the turns, in one atomic
// save. Every other exit path rolls the pool back, leaving the committed
// history exactly as it was.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/config"
	"github.com/deepnoodle-ai/conductor/contextwindow"
	"github.com/deepnoodle-ai/conductor/llm"
	"github.com/deepnoodle-ai/conductor/log"
	"github.com/deepnoodle-ai/conductor/prompt"
	"github.com/deepnoodle-ai/conductor/session"
	"github.com/deepnoodle-ai/conductor/toolkit"
	"github.com/google/uuid"
)

// DefaultPoolDepthLimit bounds how many turns an instruction may
// accumulate in the pool before the run aborts. A run that reaches it is
// looping on tool calls without converging.
const DefaultPoolDepthLimit = 7

// Options configure a Runner. Store, Settings, Model, Registry, and
// Assembler are required.
type Options struct {
	Store           *session.Store
	Settings        *config.Settings
	Model           llm.Streamer
	Registry        *toolkit.Registry
	Assembler       *prompt.Assembler
	Contexts        *contextwindow.Manager
	Confirmer       conductor.Confirmer
	ConfirmPatterns config.PatternList
	Logger          log.Logger
	PoolDepthLimit  int
}

// Runner executes instructions against sessions.
type Runner struct {
	store           *session.Store
	settings        *config.Settings
	model           llm.Streamer
	registry        *toolkit.Registry
	assembler       *prompt.Assembler
	contexts        *contextwindow.Manager
	confirmer       conductor.Confirmer
	confirmPatterns config.PatternList
	logger          log.Logger
	poolDepthLimit  int
}

// NewRunner validates the options and returns a Runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Store == nil {
		return nil, conductor.NewValidationError("store", "is required")
	}
	if opts.Settings == nil {
		return nil, conductor.NewValidationError("settings", "is required")
	}
	if opts.Model == nil {
		return nil, conductor.NewValidationError("model", "is required")
	}
	if opts.Registry == nil {
		return nil, conductor.NewValidationError("registry", "is required")
	}
	if opts.Assembler == nil {
		return nil, conductor.NewValidationError("assembler", "is required")
	}
	if opts.Contexts == nil {
		opts.Contexts = contextwindow.NewManager(nil, opts.Store.Root())
	}
	if opts.Confirmer == nil {
		opts.Confirmer = &conductor.AutoApproveConfirmer{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNullLogger()
	}
	if opts.PoolDepthLimit <= 0 {
		opts.PoolDepthLimit = DefaultPoolDepthLimit
	}
	return &Runner{
		store:           opts.Store,
		settings:        opts.Settings,
		model:           opts.Model,
		registry:        opts.Registry,
		assembler:       opts.Assembler,
		contexts:        opts.Contexts,
		confirmer:       opts.Confirmer,
		confirmPatterns: opts.ConfirmPatterns,
		logger:          opts.Logger,
		poolDepthLimit:  opts.PoolDepthLimit,
	}, nil
}

// NewSession describes the session to create when RunInput names none.
type NewSession struct {
	Purpose            string
	Background         string
	Roles              []string
	Procedure          string
	MultiStepReasoning bool
	Hyperparameters    *session.Hyperparameters
	Parent             string
}

// RunInput is one instruction to process. Exactly one of SessionID and
// NewSession selects the session. When Events is non-nil, Run sends
// progress events to it and closes it before returning.
type RunInput struct {
	SessionID   string
	NewSession  *NewSession
	Instruction string
	DryRun      bool
	Events      chan<- *Event
}

// RunResult summarizes a completed run.
type RunResult struct {
	RunID      string    `json:"run_id"`
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text,omitempty"`
	Usage      llm.Usage `json:"usage"`
	Iterations int       `json:"iterations,omitempty"`
	Turns      int       `json:"turns"`
	Prompt     string    `json:"prompt,omitempty"`
}

// emitter decorates outbound events with run identity and timestamps.
// Sends respect context cancellation so a stalled consumer cannot wedge
// a shutting-down run.
type emitter struct {
	events    chan<- *Event
	runID     string
	sessionID string
	now       func() time.Time
}

func (e *emitter) emit(ctx context.Context, event *Event) {
	if e.events == nil {
		return
	}
	event.RunID = e.runID
	if event.SessionID == "" {
		event.SessionID = e.sessionID
	}
	event.Timestamp = e.now()
	select {
	case e.events <- event:
	case <-ctx.Done():
	}
}

// Run processes one instruction to completion.
func (r *Runner) Run(ctx context.Context, input RunInput) (*RunResult, error) {
	events := &emitter{events: input.Events, runID: uuid.NewString(), now: time.Now}
	if input.Events != nil {
		defer close(input.Events)
	}
	result, err := r.run(ctx, events, input)
	if err != nil {
		events.emit(ctx, &Event{Type: EventRunError, Error: err.Error()})
		return nil, err
	}
	return result, nil
}

func (r *Runner) run(ctx context.Context, events *emitter, input RunInput) (*RunResult, error) {
	sess, err := r.resolveSession(input)
	if err != nil {
		return nil, err
	}
	events.sessionID = sess.ID

	if input.DryRun {
		p := r.assembler.Assemble(sess, r.settings, input.Instruction)
		return &RunResult{
			RunID:     events.runID,
			SessionID: sess.ID,
			Turns:     len(sess.Turns),
			Prompt:    p.Render(),
		}, nil
	}
	if input.Instruction == "" {
		return nil, conductor.NewValidationError("instruction", "must not be empty")
	}

	events.emit(ctx, &Event{Type: EventRunStarted, Instruction: input.Instruction})

	if _, err := r.store.AppendPool(sess.ID, session.NewUserTask(input.Instruction, r.store.Now())); err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := r.store.RollbackPool(sess.ID); rbErr != nil {
			r.logger.Error("failed to roll back pool", "session_id", sess.ID, "error", rbErr)
		}
	}()

	if err := WritePIDFile(r.store.Root(), sess.ID, os.Getpid()); err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := RemovePIDFile(r.store.Root(), sess.ID); rmErr != nil {
			r.logger.Warn("failed to remove pid file", "session_id", sess.ID, "error", rmErr)
		}
	}()

	dispatcher := toolkit.NewDispatcher(r.registry,
		toolkit.WithSession(r.store, sess.ID),
		toolkit.WithSettings(r.settings),
		toolkit.WithRoot(r.assembler.Root()),
		toolkit.WithConfirmer(r.confirmer, r.confirmPatterns),
		toolkit.WithLogger(r.logger),
		toolkit.WithClock(r.store.Now))

	var (
		runUsage   llm.Usage
		lastUsage  llm.Usage
		finalText  string
		finished   bool
		iterations int
	)
	// A rebuilt cache only reaches disk at commit time, keeping
	// cached_turn_count within the committed turn count at every persist
	// point. Until then the fields are carried across iteration reloads
	// here.
	var cache struct {
		updated bool
		name    string
		count   int
	}

	for iteration := 1; iteration <= r.settings.MaxIterations; iteration++ {
		iterations = iteration
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Reload so pool appends made by the dispatcher are visible, then
		// age references and stale tool output.
		sess, err = r.store.AtomicUpdate(sess.ID, func(s *session.Session) error {
			s.References.DecrementAllTtl(r.settings.ReferenceTtl)
			s.ExpireOldToolResponses(r.settings.ToolResponseExpiration)
			return nil
		})
		if err != nil {
			return nil, err
		}
		if cache.updated {
			sess.CacheName = cache.name
			sess.CachedTurnCount = cache.count
		}

		if depth := len(sess.Pools); depth > r.poolDepthLimit {
			r.logger.Warn("pool depth exceeded, aborting run",
				"session_id", sess.ID, "depth", depth, "limit", r.poolDepthLimit)
			return nil, fmt.Errorf("pool depth %d exceeds limit %d", depth, r.poolDepthLimit)
		}

		p := r.assembler.Assemble(sess, r.settings, input.Instruction)
		decision, err := r.contexts.Refresh(ctx, sess, p.RenderSystem(), r.settings.Model.CacheUpdateThreshold)
		if err != nil {
			return nil, err
		}
		if decision.Rebuilt {
			cache.updated = true
			cache.name = sess.CacheName
			cache.count = sess.CachedTurnCount
		}

		promptTokens := r.assembler.EstimateTokens(p)
		if decision.CacheName != "" {
			promptTokens = decision.Summary.CurrentPromptTokens
		}
		if limit := r.settings.ContextLimit; limit > 0 && promptTokens > limit {
			return nil, &conductor.ContextOverflowError{Tokens: promptTokens, Limit: limit}
		}

		response, err := r.streamOnce(ctx, events, iteration, r.buildRequest(sess, p, decision))
		if err != nil {
			return nil, err
		}
		lastUsage = response.Usage
		runUsage.Add(&response.Usage)

		if !response.HasToolCalls() {
			finalText = response.Text
			if _, err := r.store.AppendPool(sess.ID, session.NewModelResponse(finalText, r.store.Now())); err != nil {
				return nil, err
			}
			finished = true
			break
		}

		for i := range response.ToolCalls {
			call := &response.ToolCalls[i]
			events.emit(ctx, &Event{
				Type:      EventToolCall,
				Iteration: iteration,
				ToolName:  call.Name,
				ToolArgs:  call.Arguments,
			})
			outcome, err := r.dispatch(ctx, dispatcher, call)
			if err != nil {
				return nil, err
			}
			events.emit(ctx, &Event{
				Type:      EventToolResult,
				Iteration: iteration,
				ToolName:  call.Name,
				Outcome:   &outcome,
			})
		}
	}

	if !finished {
		r.logger.Warn("run ended without a final response",
			"session_id", sess.ID, "iterations", iterations)
		return nil, fmt.Errorf("no final response after %d iteration(s)", iterations)
	}

	sess, err = r.store.AtomicUpdate(sess.ID, func(s *session.Session) error {
		s.CommitPool()
		s.TokenCount = lastUsage.TotalTokens
		s.CachedContentTokenCount = lastUsage.CachedTokens
		s.CumulativeTotalTokens += runUsage.TotalTokens
		s.CumulativeCachedTokens += runUsage.CachedTokens
		if cache.updated {
			s.CacheName = cache.name
			s.CachedTurnCount = cache.count
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	committed = true

	events.emit(ctx, &Event{Type: EventCommitted, Turns: len(sess.Turns)})
	events.emit(ctx, &Event{
		Type:      EventRunFinished,
		Text:      finalText,
		Usage:     runUsage.Copy(),
		Iteration: iterations,
	})

	return &RunResult{
		RunID:      events.runID,
		SessionID:  sess.ID,
		Text:       finalText,
		Usage:      runUsage,
		Iterations: iterations,
		Turns:      len(sess.Turns),
	}, nil
}

func (r *Runner) resolveSession(input RunInput) (*session.Session, error) {
	if input.SessionID != "" {
		return r.store.Find(input.SessionID)
	}
	if input.NewSession == nil {
		return nil, conductor.NewValidationError("session", "either a session id or new-session details are required")
	}
	n := input.NewSession
	return r.store.Create(session.CreateOptions{
		Purpose:            n.Purpose,
		Background:         n.Background,
		Roles:              n.Roles,
		Procedure:          n.Procedure,
		MultiStepReasoning: n.MultiStepReasoning,
		Hyperparameters:    n.Hyperparameters,
		ParentID:           n.Parent,
	})
}

// buildRequest maps the assembled prompt and the cache decision onto a
// transport request. With a live cache only the buffered suffix travels;
// the static payload and older turns are already baked server-side.
func (r *Runner) buildRequest(sess *session.Session, p *prompt.Prompt, decision *contextwindow.Decision) *llm.Request {
	req := &llm.Request{
		Model: r.settings.Model.Name,
		Tools: r.tools(),
	}
	req.Temperature, req.TopP, req.TopK = r.sampling(sess)
	if decision != nil && decision.CacheName != "" {
		req.CachedContent = decision.CacheName
		req.Messages = prompt.MessagesFromTurns(decision.Buffered)
	} else {
		req.System = p.RenderSystem()
		req.Messages = p.Messages()
	}
	return req
}

func (r *Runner) tools() []llm.Tool {
	all := r.registry.Tools()
	out := make([]llm.Tool, len(all))
	for i, tool := range all {
		out[i] = tool
	}
	return out
}

// sampling resolves the effective sampling parameters: session overrides
// win over settings defaults.
func (r *Runner) sampling(sess *session.Session) (temp, topP, topK *float64) {
	temp, topP, topK = r.settings.Temperature(), r.settings.TopP(), r.settings.TopK()
	if h := sess.Hyperparameters; h != nil {
		if h.Temperature != nil {
			temp = h.Temperature
		}
		if h.TopP != nil {
			topP = h.TopP
		}
		if h.TopK != nil {
			topK = h.TopK
		}
	}
	return temp, topP, topK
}

// streamOnce drives one generation, forwarding text deltas as events and
// returning the final aggregated response.
func (r *Runner) streamOnce(ctx context.Context, events *emitter, iteration int, req *llm.Request) (*llm.Response, error) {
	stream, err := r.model.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var final *llm.Response
	for {
		event, ok := stream.Next(ctx)
		if !ok {
			break
		}
		switch event.Type {
		case llm.EventDelta:
			events.emit(ctx, &Event{Type: EventModelEvent, Iteration: iteration, Delta: event.Text})
		case llm.EventDone:
			final = event.Response
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	if final == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, llm.ErrStreamTruncated
	}
	return final, nil
}

// dispatch executes one tool call. Calls the dispatcher rejects before
// reaching a tool (bad or unknown name) still produce a failed pair in
// the pool so the model sees what went wrong; store failures abort the
// run.
func (r *Runner) dispatch(ctx context.Context, d *toolkit.Dispatcher, call *llm.ToolCall) (session.ToolOutcome, error) {
	execution, err := d.Execute(ctx, &conductor.ToolCall{ID: call.ID, Name: call.Name, Input: call.Arguments})
	if err == nil {
		return execution.Outcome, nil
	}
	if !errors.Is(err, conductor.ErrValidation) && !errors.Is(err, conductor.ErrNotFound) {
		return session.ToolOutcome{}, err
	}

	outcome := session.ToolOutcome{Status: session.StatusFailed, Message: err.Error()}
	args := strings.TrimSpace(string(call.Arguments))
	if args == "" {
		args = "{}"
	}
	now := r.store.Now()
	if _, appendErr := r.store.AppendPool(d.SessionID(),
		session.NewFunctionCalling(fmt.Sprintf("%s(%s)", call.Name, args), now),
		session.NewToolResponse(call.Name, session.StatusFailed, outcome.Message, now),
	); appendErr != nil {
		return session.ToolOutcome{}, appendErr
	}
	return outcome, nil
}
