package toolkit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/schema"
	"github.com/pmezard/go-difflib/difflib"
)

var _ conductor.TypedTool[*WriteFileInput] = &WriteFileTool{}

// WriteFileInput is the model-facing parameter set for write_file.
type WriteFileInput struct {
	// Path to the file, relative to the project root.
	Path string `json:"path"`

	// Content replaces the entire file.
	Content string `json:"content"`
}

// WriteFileTool creates or overwrites a file within the project root and
// reports a unified diff of what changed.
type WriteFileTool struct{}

// NewWriteFileTool returns the write_file tool.
func NewWriteFileTool() *conductor.TypedToolAdapter[*WriteFileInput] {
	return conductor.ToolAdapter(&WriteFileTool{})
}

func (t *WriteFileTool) Name() string {
	return "write_file"
}

func (t *WriteFileTool) Description() string {
	return `Write content to a file, creating it (and any parent directories) if needed or replacing it entirely if it exists. Returns a unified diff of the change. Paths outside the project root are rejected.`
}

func (t *WriteFileTool) Schema() *schema.Schema {
	return &schema.Schema{
		Type:     schema.Object,
		Required: []string{"path", "content"},
		Properties: map[string]*schema.Property{
			"path": {
				Type:        schema.String,
				Description: "Path to the file, relative to the project root",
			},
			"content": {
				Type:        schema.String,
				Description: "Full content to write",
			},
		},
	}
}

func (t *WriteFileTool) Annotations() *conductor.ToolAnnotations {
	return &conductor.ToolAnnotations{
		Title:           "write_file",
		DestructiveHint: true,
	}
}

func (t *WriteFileTool) Call(ctx context.Context, input *WriteFileInput) (*conductor.ToolResult, error) {
	tc := FromContext(ctx)
	path, err := ResolveWithinRoot(tc.Root, input.Path)
	if err != nil {
		return conductor.NewToolResultError(err.Error()), nil
	}

	previous := ""
	existed := false
	if old, err := os.ReadFile(path); err == nil {
		previous = string(old)
		existed = true
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return conductor.NewToolResultError(fmt.Sprintf("failed to create parent directory: %s", err.Error())), nil
	}
	if err := os.WriteFile(path, []byte(input.Content), 0o644); err != nil {
		return conductor.NewToolResultError(fmt.Sprintf("failed to write %s: %s", input.Path, err.Error())), nil
	}

	action := "created"
	if existed {
		action = "updated"
	}
	summary := fmt.Sprintf("%s %s (%d bytes)", action, input.Path, len(input.Content))

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(previous),
		B:        difflib.SplitLines(input.Content),
		FromFile: input.Path + " (before)",
		ToFile:   input.Path + " (after)",
		Context:  3,
	})
	if err == nil && diff != "" {
		summary += "\n" + diff
	}
	return conductor.NewToolResultText(summary), nil
}
