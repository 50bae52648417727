package conductor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/deepnoodle-ai/conductor/schema"
	"github.com/stretchr/testify/require"
)

type echoInput struct {
	Message string `json:"message"`
	Repeat  int    `json:"repeat,omitempty"`
}

type echoTool struct{}

func (t *echoTool) Name() string        { return "echo" }
func (t *echoTool) Description() string { return "Echoes the input message" }

func (t *echoTool) Schema() *schema.Schema {
	return &schema.Schema{
		Type: schema.Object,
		Properties: map[string]*schema.Property{
			"message": {Type: schema.String, Description: "Text to echo"},
			"repeat":  {Type: schema.Integer, Description: "Repeat count"},
		},
		Required: []string{"message"},
	}
}

func (t *echoTool) Annotations() *ToolAnnotations {
	return &ToolAnnotations{Title: "Echo", ReadOnlyHint: true}
}

func (t *echoTool) Call(ctx context.Context, input echoInput) (*ToolResult, error) {
	out := input.Message
	for i := 1; i < input.Repeat; i++ {
		out += " " + input.Message
	}
	return NewToolResultText(out), nil
}

func TestTypedToolAdapter(t *testing.T) {
	adapter := ToolAdapter[echoInput](&echoTool{})
	ctx := context.Background()

	t.Run("typed input passes through", func(t *testing.T) {
		result, err := adapter.Call(ctx, echoInput{Message: "hi", Repeat: 2})
		require.NoError(t, err)
		require.False(t, result.IsError)
		require.Equal(t, "hi hi", result.Content[0].Text)
	})

	t.Run("raw json is unmarshaled", func(t *testing.T) {
		result, err := adapter.Call(ctx, json.RawMessage(`{"message":"hello"}`))
		require.NoError(t, err)
		require.Equal(t, "hello", result.Content[0].Text)
	})

	t.Run("byte slice is unmarshaled", func(t *testing.T) {
		result, err := adapter.Call(ctx, []byte(`{"message":"bytes"}`))
		require.NoError(t, err)
		require.Equal(t, "bytes", result.Content[0].Text)
	})

	t.Run("map input is converted", func(t *testing.T) {
		result, err := adapter.Call(ctx, map[string]any{"message": "mapped"})
		require.NoError(t, err)
		require.Equal(t, "mapped", result.Content[0].Text)
	})

	t.Run("invalid json yields error result not error", func(t *testing.T) {
		result, err := adapter.Call(ctx, json.RawMessage(`{"message":`))
		require.NoError(t, err)
		require.True(t, result.IsError)
		require.Contains(t, result.Content[0].Text, "invalid json")
	})

	t.Run("metadata is forwarded", func(t *testing.T) {
		require.Equal(t, "echo", adapter.Name())
		require.Equal(t, "Echoes the input message", adapter.Description())
		require.Equal(t, schema.Object, adapter.Schema().Type)
		require.True(t, adapter.Annotations().ReadOnlyHint)
		require.NotNil(t, adapter.Unwrap())
	})
}

func TestToolResultText(t *testing.T) {
	result := NewToolResult(
		&ToolResultContent{Type: ToolResultContentTypeText, Text: "one"},
		&ToolResultContent{Type: ToolResultContentTypeImage, Data: "AAAA"},
		&ToolResultContent{Type: ToolResultContentTypeText, Text: "two"},
	)
	require.Equal(t, "one\n(image content)\ntwo", result.Text())

	errResult := NewToolResultError("boom")
	require.True(t, errResult.IsError)
	require.Equal(t, "boom", errResult.Text())
}
