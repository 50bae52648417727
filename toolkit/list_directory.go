package toolkit

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/schema"
)

var _ conductor.TypedTool[*ListDirectoryInput] = &ListDirectoryTool{}

// ListDirectoryInput is the model-facing parameter set for list_directory.
type ListDirectoryInput struct {
	// Path of the directory, relative to the project root. Empty lists
	// the root itself.
	Path string `json:"path,omitempty"`
}

// ListDirectoryTool lists the entries of one directory.
type ListDirectoryTool struct{}

// NewListDirectoryTool returns the list_directory tool.
func NewListDirectoryTool() *conductor.TypedToolAdapter[*ListDirectoryInput] {
	return conductor.ToolAdapter(&ListDirectoryTool{})
}

func (t *ListDirectoryTool) Name() string {
	return "list_directory"
}

func (t *ListDirectoryTool) Description() string {
	return `List the entries of a directory, one per line. Directories carry a trailing slash. Paths outside the project root are rejected.`
}

func (t *ListDirectoryTool) Schema() *schema.Schema {
	return &schema.Schema{
		Type: schema.Object,
		Properties: map[string]*schema.Property{
			"path": {
				Type:        schema.String,
				Description: "Directory path relative to the project root; empty for the root",
			},
		},
	}
}

func (t *ListDirectoryTool) Annotations() *conductor.ToolAnnotations {
	return &conductor.ToolAnnotations{
		Title:          "list_directory",
		ReadOnlyHint:   true,
		IdempotentHint: true,
	}
}

func (t *ListDirectoryTool) Call(ctx context.Context, input *ListDirectoryInput) (*conductor.ToolResult, error) {
	tc := FromContext(ctx)
	target := input.Path
	if target == "" {
		target = "."
	}
	path, err := ResolveWithinRoot(tc.Root, target)
	if err != nil {
		return conductor.NewToolResultError(err.Error()), nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return conductor.NewToolResultError(fmt.Sprintf("directory not found: %s", target)), nil
		}
		return conductor.NewToolResultError(fmt.Sprintf("failed to list %s: %s", target, err.Error())), nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		return conductor.NewToolResultText(fmt.Sprintf("%s is empty", target)), nil
	}
	return conductor.NewToolResultText(strings.Join(names, "\n")), nil
}
