// Package mcpclient connects to external MCP tool servers over stdio and
// adapts their tools into the conductor tool interface. Adapted tool
// names carry an "mcp_<server>_" prefix so servers can never shadow the
// built-ins or each other.
package mcpclient

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/config"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

const initializeTimeout = 30 * time.Second

// Client wraps one stdio MCP server connection.
type Client struct {
	name      string
	settings  config.MCPServerSettings
	client    *client.Client
	connected bool
}

// NewClient returns an unconnected client for the named server.
func NewClient(name string, settings config.MCPServerSettings) (*Client, error) {
	if settings.Command == "" {
		return nil, conductor.NewValidationError("command", fmt.Sprintf("mcp server %s has no command", name))
	}
	return &Client{name: name, settings: settings}, nil
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.name
}

// Connected reports whether the connection handshake completed.
func (c *Client) Connected() bool {
	return c.connected
}

// Connect spawns the server process and performs the MCP handshake.
// Environment values and arguments go through ${VAR} expansion, so
// settings files can carry API keys by reference.
func (c *Client) Connect(ctx context.Context) error {
	args := make([]string, len(c.settings.Args))
	for i, arg := range c.settings.Args {
		args[i] = os.ExpandEnv(arg)
	}
	env := make([]string, 0, len(c.settings.Env))
	for key, value := range c.settings.Env {
		env = append(env, fmt.Sprintf("%s=%s", key, os.ExpandEnv(value)))
	}

	mc, err := client.NewStdioMCPClient(c.settings.Command, env, args...)
	if err != nil {
		return fmt.Errorf("failed to create mcp client for server %s: %w", c.name, err)
	}
	c.client = mc

	if err := c.client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start mcp server %s: %w", c.name, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()
	_, err = c.client.Initialize(initCtx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "conductor",
				Version: conductor.Version,
			},
		},
	})
	if err != nil {
		c.client.Close()
		return fmt.Errorf("failed to initialize mcp server %s: %w", c.name, err)
	}
	c.connected = true
	return nil
}

// ListTools returns the server's tool declarations.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if !c.connected {
		return nil, fmt.Errorf("mcp server %s is not connected", c.name)
	}
	response, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools on mcp server %s: %w", c.name, err)
	}
	return response.Tools, nil
}

// CallTool executes a tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	if !c.connected {
		return nil, fmt.Errorf("mcp server %s is not connected", c.name)
	}
	response, err := c.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: arguments,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("tool call failed on mcp server %s: %w", c.name, err)
	}
	return response, nil
}

// Close shuts the connection down.
func (c *Client) Close() error {
	c.connected = false
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
