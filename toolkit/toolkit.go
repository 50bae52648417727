// Package toolkit provides the built-in tools an agent may call and the
// dispatcher that executes them against a session.
//
// Tools are plain conductor.Tool implementations registered at compile
// time. Injected dependencies (the session store, the bound session ID,
// settings, the project root) travel on the context.Context, so tool
// schemas only ever describe the model-facing parameters.
package toolkit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/config"
	"github.com/deepnoodle-ai/conductor/log"
	"github.com/deepnoodle-ai/conductor/session"
)

// Context carries the injected dependencies for one dispatch.
type Context struct {
	Store     *session.Store
	SessionID string
	Settings  *config.Settings
	Root      string
	Logger    log.Logger
}

// Session loads the session bound to this call.
func (c *Context) Session() (*session.Session, error) {
	if c.Store == nil || c.SessionID == "" {
		return nil, conductor.NewValidationError("session_id", "no session bound to this call")
	}
	return c.Store.Find(c.SessionID)
}

// Update applies mutate to the bound session under the store lock.
func (c *Context) Update(mutate func(*session.Session) error) (*session.Session, error) {
	if c.Store == nil || c.SessionID == "" {
		return nil, conductor.NewValidationError("session_id", "no session bound to this call")
	}
	return c.Store.AtomicUpdate(c.SessionID, mutate)
}

// ReferenceTtl returns the configured default reference TTL.
func (c *Context) ReferenceTtl() int {
	if c.Settings == nil {
		return config.DefaultSettings().ReferenceTtl
	}
	return c.Settings.ReferenceTtl
}

type contextKey struct{}

// WithContext attaches tc to ctx for the duration of a tool call.
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext returns the attached Context. Calls dispatched outside a
// server get an empty Context, whose session accessors fail validation.
func FromContext(ctx context.Context) *Context {
	if tc, ok := ctx.Value(contextKey{}).(*Context); ok && tc != nil {
		return tc
	}
	return &Context{Logger: log.NewNullLogger()}
}

// Registry holds the tools available to a session, keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]conductor.Tool
}

// NewRegistry returns a registry seeded with tools.
func NewRegistry(tools ...conductor.Tool) (*Registry, error) {
	r := &Registry{tools: map[string]conductor.Tool{}}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds one tool. Registering a second tool under an existing
// name is an error; replace a tool by building a new registry.
func (r *Registry) Register(tool conductor.Tool) error {
	name := tool.Name()
	if name == "" {
		return conductor.NewValidationError("tool_name", "must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.tools[name] = tool
	return nil
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (conductor.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns the registered tools sorted by name.
func (r *Registry) Tools() []conductor.Tool {
	tools := make([]conductor.Tool, 0)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.namesLocked() {
		tools = append(tools, r.tools[name])
	}
	return tools
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithFilter returns a new registry holding only the tools the filter
// admits.
func (r *Registry) WithFilter(filter *config.ToolFilter) *Registry {
	filtered := &Registry{tools: map[string]conductor.Tool{}}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, tool := range r.tools {
		if filter.Allowed(name) {
			filtered.tools[name] = tool
		}
	}
	return filtered
}

// Builtins returns one instance of every built-in tool.
func Builtins() []conductor.Tool {
	return []conductor.Tool{
		NewReadFileTool(),
		NewWriteFileTool(),
		NewListDirectoryTool(),
		NewGlobTool(),
		NewAddReferenceTool(),
		NewUpdateReferenceTtlTool(),
		NewTodoWriteTool(),
		NewRecordArtifactTool(),
		NewCompressHistoryTool(),
		NewSpawnSessionTool(),
	}
}

// BuiltinRegistry returns a registry seeded with every built-in tool.
func BuiltinRegistry() *Registry {
	r, err := NewRegistry(Builtins()...)
	if err != nil {
		// Built-in names are unique by construction.
		panic(err)
	}
	return r
}
