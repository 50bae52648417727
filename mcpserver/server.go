// Package mcpserver exposes the tool registry to external processes over
// newline-framed JSON-RPC 2.0 on stdin/stdout. One compact object per
// line, no Content-Length framing, logs on stderr only.
//
// The server binds to at most one session, resolved by the caller
// (normally from the environment variable the subprocess transport sets
// on its children). Tool executions run through the same dispatcher as
// the in-process agent loop, so each successful call appends the same
// function_calling/tool_response pair to the session pool.
package mcpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/config"
	"github.com/deepnoodle-ai/conductor/log"
	"github.com/deepnoodle-ai/conductor/schema"
	"github.com/deepnoodle-ai/conductor/session"
	"github.com/deepnoodle-ai/conductor/toolkit"
)

// ProtocolVersion is the MCP revision advertised by initialize.
const ProtocolVersion = "2024-11-05"

// JSON-RPC error codes. codeToolFailed is the server-defined code for a
// tool that ran and reported failure.
const (
	codeToolFailed     = -32000
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type toolsCapability struct {
	Call bool `json:"call"`
	List bool `json:"list"`
}

type capabilities struct {
	Tools toolsCapability `json:"tools"`
}

type initializeResult struct {
	ProtocolVersion string           `json:"protocolVersion"`
	Capabilities    capabilities     `json:"capabilities"`
	ServerInfo      serverInfo       `json:"serverInfo"`
	Tools           []toolDescriptor `json:"tools"`
}

type toolsListResult struct {
	Tools   []toolDescriptor `json:"tools"`
	Prompts []any            `json:"prompts"`
}

// toolDescriptor is the wire form of one registered tool.
type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema *schema.Schema `json:"inputSchema"`
}

// callParams accepts both the canonical tools/call shape and the legacy
// run_tool shape.
type callParams struct {
	Name      string          `json:"name"`
	ToolName  string          `json:"tool_name"`
	Args      json.RawMessage `json:"args"`
	Arguments json.RawMessage `json:"arguments"`
}

type callResult struct {
	Status string `json:"status"`
	Result string `json:"result"`
}

// Options configure a Server. Registry is required; everything else has
// a usable zero value.
type Options struct {
	Registry  *toolkit.Registry
	Store     *session.Store
	Settings  *config.Settings
	SessionID string
	Root      string
	Input     io.Reader
	Output    io.Writer
	Logger    log.Logger
	Name      string
	Version   string
}

// Server answers JSON-RPC requests for one stdio connection.
type Server struct {
	registry  *toolkit.Registry
	store     *session.Store
	sessionID string
	root      string
	reader    io.Reader
	writer    io.Writer
	logger    log.Logger
	name      string
	version   string

	mu       sync.RWMutex
	settings *config.Settings
}

// New returns a Server. With no session ID bound, tools that need a
// session fail validation when called; listing and schema inspection
// still work.
func New(opts Options) (*Server, error) {
	if opts.Registry == nil {
		return nil, conductor.NewValidationError("registry", "is required")
	}
	s := &Server{
		registry:  opts.Registry,
		store:     opts.Store,
		sessionID: opts.SessionID,
		root:      opts.Root,
		reader:    opts.Input,
		writer:    opts.Output,
		logger:    opts.Logger,
		name:      opts.Name,
		version:   opts.Version,
		settings:  opts.Settings,
	}
	if s.reader == nil {
		s.reader = os.Stdin
	}
	if s.writer == nil {
		s.writer = os.Stdout
	}
	if s.logger == nil {
		s.logger = log.NewNullLogger()
	}
	if s.settings == nil {
		s.settings = config.DefaultSettings()
	}
	if s.name == "" {
		s.name = "conductor"
	}
	if s.version == "" {
		s.version = "0.0.0"
	}
	return s, nil
}

// SessionID returns the bound session ID, or "".
func (s *Server) SessionID() string {
	return s.sessionID
}

// UpdateSettings swaps the settings used for subsequent tool calls.
// Safe to call while Serve is running; the settings watcher uses it.
func (s *Server) UpdateSettings(settings *config.Settings) {
	if settings == nil {
		return
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	s.logger.Info("settings reloaded")
}

func (s *Server) currentSettings() *config.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Serve reads requests line by line until EOF or context cancellation.
// Malformed lines are dropped without a response. Requests carrying an
// id get exactly one response each, in order; id-less requests and
// notifications/* produce none.
func (s *Server) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.reader)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Debug("dropping malformed request line", "error", err)
			continue
		}
		resp := s.dispatch(ctx, &req)
		if resp == nil || req.ID == nil {
			continue
		}
		if err := s.write(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// dispatch routes one request. A panic anywhere below becomes an
// internal-error response instead of a dead server.
func (s *Server) dispatch(ctx context.Context, req *request) (resp *response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked", "method", req.Method, "panic", fmt.Sprint(r))
			resp = s.fail(req.ID, codeInternal, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if strings.HasPrefix(req.Method, "notifications/") {
		return nil
	}
	switch req.Method {
	case "initialize":
		return s.reply(req.ID, initializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    capabilities{Tools: toolsCapability{Call: true, List: true}},
			ServerInfo:      serverInfo{Name: s.name, Version: s.version},
			Tools:           s.descriptors(),
		})
	case "tools/list":
		return s.reply(req.ID, toolsListResult{
			Tools:   s.descriptors(),
			Prompts: []any{},
		})
	case "tools/call", "run_tool":
		return s.handleToolCall(ctx, req)
	case "ping":
		return s.reply(req.ID, struct{}{})
	default:
		return s.fail(req.ID, codeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleToolCall(ctx context.Context, req *request) *response {
	var params callParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return s.fail(req.ID, codeInvalidParams, "invalid params: "+err.Error())
		}
	}
	name := params.Name
	if name == "" {
		name = params.ToolName
	}
	if name == "" {
		return s.fail(req.ID, codeInvalidParams, "tool name is required")
	}
	args := params.Args
	if len(args) == 0 {
		args = params.Arguments
	}

	opts := []toolkit.DispatcherOption{
		toolkit.WithSession(s.store, s.sessionID),
		toolkit.WithSettings(s.currentSettings()),
		toolkit.WithRoot(s.root),
		toolkit.WithLogger(s.logger),
	}
	if s.store != nil {
		opts = append(opts, toolkit.WithClock(s.store.Now))
	}
	dispatcher := toolkit.NewDispatcher(s.registry, opts...)
	execution, err := dispatcher.Execute(ctx, &conductor.ToolCall{Name: name, Input: args})
	if err != nil {
		if errors.Is(err, conductor.ErrValidation) || errors.Is(err, conductor.ErrNotFound) {
			return s.fail(req.ID, codeInvalidParams, err.Error())
		}
		s.logger.Error("tool call failed internally", "tool", name, "error", err)
		return s.fail(req.ID, codeInternal, err.Error())
	}
	if execution.Outcome.Status != session.StatusSucceeded {
		return s.fail(req.ID, codeToolFailed, execution.Outcome.Message)
	}
	return s.reply(req.ID, callResult{
		Status: session.StatusSucceeded,
		Result: execution.Outcome.Message,
	})
}

func (s *Server) descriptors() []toolDescriptor {
	tools := s.registry.Tools()
	descriptors := make([]toolDescriptor, 0, len(tools))
	for _, tool := range tools {
		descriptors = append(descriptors, toolDescriptor{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Schema(),
		})
	}
	return descriptors
}

func (s *Server) reply(id, result any) *response {
	return &response{JSONRPC: "2.0", ID: id, Result: result}
}

func (s *Server) fail(id any, code int, message string) *response {
	return &response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
}

func (s *Server) write(resp *response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(s.writer, "%s\n", data)
	return err
}
