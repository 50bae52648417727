package mcpclient

import (
	"context"
	"sort"
	"sync"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/config"
	"github.com/deepnoodle-ai/conductor/log"
)

// Manager owns the connections to all configured MCP servers and the
// adapted tools they contribute.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*Client
	tools   []conductor.Tool
	logger  log.Logger
}

// NewManager returns an empty manager. Call Initialize to connect.
func NewManager(logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNullLogger()
	}
	return &Manager{
		clients: map[string]*Client{},
		logger:  logger,
	}
}

// Initialize connects to every enabled server and collects its tools.
// A server that fails to connect is logged and skipped; one broken
// server must not keep the rest of the agent from running.
func (m *Manager) Initialize(ctx context.Context, servers map[string]config.MCPServerSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		settings := servers[name]
		if settings.Disabled {
			continue
		}
		if _, ok := m.clients[name]; ok {
			continue
		}
		client, err := NewClient(name, settings)
		if err != nil {
			m.logger.Warn("skipping mcp server", "server", name, "error", err)
			continue
		}
		if err := client.Connect(ctx); err != nil {
			m.logger.Warn("failed to connect to mcp server", "server", name, "error", err)
			continue
		}
		tools, err := client.ListTools(ctx)
		if err != nil {
			m.logger.Warn("failed to list mcp server tools", "server", name, "error", err)
			client.Close()
			continue
		}
		m.clients[name] = client
		for _, tool := range tools {
			m.tools = append(m.tools, NewToolAdapter(client, tool, name))
			m.logger.Debug("registered mcp tool",
				"server", name,
				"tool", tool.Name,
				"adapted_name", AdaptedName(name, tool.Name))
		}
		m.logger.Info("connected to mcp server", "server", name, "tools", len(tools))
	}
	return nil
}

// Tools returns every adapted tool from every connected server.
func (m *Manager) Tools() []conductor.Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]conductor.Tool, len(m.tools))
	copy(out, m.tools)
	return out
}

// ServerNames lists connected servers in sorted order.
func (m *Manager) ServerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close disconnects every server. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for name, client := range m.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.clients, name)
	}
	m.tools = nil
	return firstErr
}
