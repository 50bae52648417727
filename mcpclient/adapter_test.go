package mcpclient

import (
	"encoding/json"
	"testing"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/schema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

func TestAdaptedName(t *testing.T) {
	require.Equal(t, "mcp_github_create_issue", AdaptedName("github", "create_issue"))
}

func TestToolAdapterName(t *testing.T) {
	adapter := NewToolAdapter(nil, mcp.Tool{Name: "search"}, "web")
	require.Equal(t, "mcp_web_search", adapter.Name())
}

func TestToolAdapterDescription(t *testing.T) {
	described := NewToolAdapter(nil, mcp.Tool{
		Name:        "search",
		Description: "Searches the web",
	}, "web")
	require.Equal(t, "Searches the web", described.Description())

	bare := NewToolAdapter(nil, mcp.Tool{Name: "search"}, "web")
	require.Equal(t, "Tool search provided by MCP server web", bare.Description())
}

func TestToolAdapterSchema(t *testing.T) {
	adapter := NewToolAdapter(nil, mcp.Tool{
		Name: "create_issue",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Issue title",
				},
				"labels": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "string",
						"enum": []interface{}{"bug", "feature"},
					},
				},
				"assignee": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"login": map[string]interface{}{"type": "string"},
					},
					"required": []interface{}{"login"},
				},
			},
			Required: []string{"title"},
		},
	}, "github")

	s := adapter.Schema()
	require.Equal(t, schema.Object, s.Type)
	require.Equal(t, []string{"title"}, s.Required)
	require.Len(t, s.Properties, 3)

	title := s.Properties["title"]
	require.Equal(t, schema.String, title.Type)
	require.Equal(t, "Issue title", title.Description)

	labels := s.Properties["labels"]
	require.Equal(t, schema.Array, labels.Type)
	require.NotNil(t, labels.Items)
	require.Equal(t, schema.String, labels.Items.Type)
	require.Equal(t, []string{"bug", "feature"}, labels.Items.Enum)

	assignee := s.Properties["assignee"]
	require.Equal(t, schema.Object, assignee.Type)
	require.Equal(t, []string{"login"}, assignee.Required)
	require.Equal(t, schema.String, assignee.Properties["login"].Type)
}

func TestToolAdapterSchemaEmpty(t *testing.T) {
	adapter := NewToolAdapter(nil, mcp.Tool{Name: "ping"}, "web")
	s := adapter.Schema()
	require.Equal(t, schema.Object, s.Type)
	require.Empty(t, s.Properties)
}

func TestToolAdapterAnnotations(t *testing.T) {
	adapter := NewToolAdapter(nil, mcp.Tool{Name: "search"}, "web")
	annotations := adapter.Annotations()
	require.True(t, annotations.OpenWorldHint)
	require.Equal(t, "search (mcp:web)", annotations.Title)
}

func TestToArguments(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		arguments, err := toArguments(nil)
		require.NoError(t, err)
		require.Empty(t, arguments)
	})

	t.Run("map passthrough", func(t *testing.T) {
		in := map[string]any{"q": "weather"}
		arguments, err := toArguments(in)
		require.NoError(t, err)
		require.Equal(t, in, arguments)
	})

	t.Run("raw json", func(t *testing.T) {
		arguments, err := toArguments(json.RawMessage(`{"q":"weather"}`))
		require.NoError(t, err)
		require.Equal(t, map[string]any{"q": "weather"}, arguments)
	})

	t.Run("empty raw json", func(t *testing.T) {
		arguments, err := toArguments(json.RawMessage(""))
		require.NoError(t, err)
		require.Empty(t, arguments)
	})

	t.Run("struct marshals", func(t *testing.T) {
		arguments, err := toArguments(struct {
			Q string `json:"q"`
		}{Q: "weather"})
		require.NoError(t, err)
		require.Equal(t, map[string]any{"q": "weather"}, arguments)
	})

	t.Run("non-object rejected", func(t *testing.T) {
		_, err := toArguments(json.RawMessage(`[1,2]`))
		require.Error(t, err)
		require.Contains(t, err.Error(), "JSON object")
	})
}

func TestConvertResult(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		result := convertResult(&mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.TextContent{Type: "text", Text: "Hello, world!"},
			},
		})
		require.False(t, result.IsError)
		require.Len(t, result.Content, 1)
		require.Equal(t, conductor.ToolResultContentTypeText, result.Content[0].Type)
		require.Equal(t, "Hello, world!", result.Content[0].Text)
	})

	t.Run("image", func(t *testing.T) {
		result := convertResult(&mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.ImageContent{Type: "image", Data: "base64data", MIMEType: "image/png"},
			},
		})
		require.Equal(t, conductor.ToolResultContentTypeImage, result.Content[0].Type)
		require.Equal(t, "base64data", result.Content[0].Data)
		require.Equal(t, "image/png", result.Content[0].MimeType)
	})

	t.Run("audio", func(t *testing.T) {
		result := convertResult(&mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.AudioContent{Type: "audio", Data: "wavdata", MIMEType: "audio/wav"},
			},
		})
		require.Equal(t, conductor.ToolResultContentTypeAudio, result.Content[0].Type)
		require.Equal(t, "audio/wav", result.Content[0].MimeType)
	})

	t.Run("embedded text resource", func(t *testing.T) {
		result := convertResult(&mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.EmbeddedResource{
					Type: "resource",
					Resource: mcp.TextResourceContents{
						URI:  "file:///notes.txt",
						Text: "File content here",
					},
				},
			},
		})
		require.Equal(t, conductor.ToolResultContentTypeText, result.Content[0].Type)
		require.Equal(t, "File content here", result.Content[0].Text)
	})

	t.Run("embedded blob resource", func(t *testing.T) {
		result := convertResult(&mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.EmbeddedResource{
					Type: "resource",
					Resource: mcp.BlobResourceContents{
						URI:      "file:///data.bin",
						MIMEType: "application/octet-stream",
						Blob:     "SGVsbG8=",
					},
				},
			},
		})
		require.Equal(t, conductor.ToolResultContentTypeText, result.Content[0].Type)
		require.Equal(t, "binary resource file:///data.bin (application/octet-stream)", result.Content[0].Text)
	})

	t.Run("error passthrough", func(t *testing.T) {
		result := convertResult(&mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.TextContent{Type: "text", Text: "upstream exploded"},
			},
			IsError: true,
		})
		require.True(t, result.IsError)
		require.Equal(t, "upstream exploded", result.Text())
	})

	t.Run("nil result", func(t *testing.T) {
		result := convertResult(nil)
		require.True(t, result.IsError)
	})

	t.Run("multiple items", func(t *testing.T) {
		result := convertResult(&mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.TextContent{Type: "text", Text: "first"},
				mcp.TextContent{Type: "text", Text: "second"},
			},
		})
		require.Len(t, result.Content, 2)
		require.Equal(t, "firstsecond", result.Text())
	})
}
