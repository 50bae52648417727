package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/schema"
	"github.com/mark3labs/mcp-go/mcp"
)

var _ conductor.Tool = &ToolAdapter{}

// ToolAdapter exposes one remote MCP tool as a conductor.Tool.
type ToolAdapter struct {
	client     *Client
	info       mcp.Tool
	serverName string
}

// NewToolAdapter wraps a discovered MCP tool.
func NewToolAdapter(client *Client, info mcp.Tool, serverName string) *ToolAdapter {
	return &ToolAdapter{client: client, info: info, serverName: serverName}
}

// AdaptedName is the registry name for a remote tool: prefixed with the
// server so remote tools never shadow built-ins or each other.
func AdaptedName(serverName, toolName string) string {
	return fmt.Sprintf("mcp_%s_%s", serverName, toolName)
}

func (t *ToolAdapter) Name() string {
	return AdaptedName(t.serverName, t.info.Name)
}

func (t *ToolAdapter) Description() string {
	if t.info.Description != "" {
		return t.info.Description
	}
	return fmt.Sprintf("Tool %s provided by MCP server %s", t.info.Name, t.serverName)
}

func (t *ToolAdapter) Schema() *schema.Schema {
	in := t.info.InputSchema
	if in.Type == "" {
		return &schema.Schema{Type: schema.Object, Properties: map[string]*schema.Property{}}
	}
	out := &schema.Schema{
		Type:     schema.SchemaType(in.Type),
		Required: in.Required,
	}
	if in.Properties != nil {
		out.Properties = make(map[string]*schema.Property, len(in.Properties))
		for key, raw := range in.Properties {
			if propMap, ok := raw.(map[string]any); ok {
				out.Properties[key] = convertProperty(propMap)
			}
		}
	}
	return out
}

func (t *ToolAdapter) Annotations() *conductor.ToolAnnotations {
	return &conductor.ToolAnnotations{
		Title:         fmt.Sprintf("%s (mcp:%s)", t.info.Name, t.serverName),
		OpenWorldHint: true,
	}
}

func (t *ToolAdapter) Call(ctx context.Context, input any) (*conductor.ToolResult, error) {
	arguments, err := toArguments(input)
	if err != nil {
		return conductor.NewToolResultError(err.Error()), nil
	}
	result, err := t.client.CallTool(ctx, t.info.Name, arguments)
	if err != nil {
		return conductor.NewToolResultError(err.Error()), nil
	}
	return convertResult(result), nil
}

// toArguments coerces whatever the dispatcher hands over into the
// map form MCP requires.
func toArguments(input any) (map[string]any, error) {
	switch v := input.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case json.RawMessage:
		return unmarshalArguments([]byte(v))
	case []byte:
		return unmarshalArguments(v)
	case string:
		return unmarshalArguments([]byte(v))
	default:
		data, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tool arguments: %w", err)
		}
		return unmarshalArguments(data)
	}
}

func unmarshalArguments(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var arguments map[string]any
	if err := json.Unmarshal(data, &arguments); err != nil {
		return nil, fmt.Errorf("tool arguments must be a JSON object: %w", err)
	}
	if arguments == nil {
		arguments = map[string]any{}
	}
	return arguments, nil
}

// convertProperty maps a raw MCP JSON-Schema property into ours.
func convertProperty(raw map[string]any) *schema.Property {
	prop := &schema.Property{}
	if t, ok := raw["type"].(string); ok {
		prop.Type = schema.SchemaType(t)
	}
	if d, ok := raw["description"].(string); ok {
		prop.Description = d
	}
	if properties, ok := raw["properties"].(map[string]any); ok {
		prop.Properties = make(map[string]*schema.Property, len(properties))
		for key, sub := range properties {
			if subMap, ok := sub.(map[string]any); ok {
				prop.Properties[key] = convertProperty(subMap)
			}
		}
	}
	if required, ok := raw["required"].([]any); ok {
		for _, entry := range required {
			if s, ok := entry.(string); ok {
				prop.Required = append(prop.Required, s)
			}
		}
	}
	if items, ok := raw["items"].(map[string]any); ok {
		prop.Items = convertProperty(items)
	}
	if enum, ok := raw["enum"].([]any); ok {
		for _, entry := range enum {
			if s, ok := entry.(string); ok {
				prop.Enum = append(prop.Enum, s)
			}
		}
	}
	return prop
}

// convertResult maps an MCP call result into a ToolResult. Non-text
// content survives as typed content blocks; embedded resources flatten
// to text.
func convertResult(result *mcp.CallToolResult) *conductor.ToolResult {
	if result == nil {
		return conductor.NewToolResultError("mcp server returned no result")
	}
	var content []*conductor.ToolResultContent
	for _, block := range result.Content {
		switch c := block.(type) {
		case mcp.TextContent:
			content = append(content, &conductor.ToolResultContent{
				Type: conductor.ToolResultContentTypeText,
				Text: c.Text,
			})
		case mcp.ImageContent:
			content = append(content, &conductor.ToolResultContent{
				Type:     conductor.ToolResultContentTypeImage,
				Data:     c.Data,
				MimeType: c.MIMEType,
			})
		case mcp.AudioContent:
			content = append(content, &conductor.ToolResultContent{
				Type:     conductor.ToolResultContentTypeAudio,
				Data:     c.Data,
				MimeType: c.MIMEType,
			})
		case mcp.EmbeddedResource:
			text := "embedded resource"
			switch resource := c.Resource.(type) {
			case mcp.TextResourceContents:
				text = resource.Text
			case mcp.BlobResourceContents:
				text = fmt.Sprintf("binary resource %s (%s)", resource.URI, resource.MIMEType)
			}
			content = append(content, &conductor.ToolResultContent{
				Type: conductor.ToolResultContentTypeText,
				Text: text,
			})
		default:
			content = append(content, &conductor.ToolResultContent{
				Type: conductor.ToolResultContentTypeText,
				Text: fmt.Sprintf("(unsupported content type %T)", block),
			})
		}
	}
	return &conductor.ToolResult{Content: content, IsError: result.IsError}
}
