package toolkit

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/schema"
)

var _ conductor.TypedTool[*ReadFileInput] = &ReadFileTool{}

// DefaultReadFileMaxSize caps whole-file reads at 100KB.
const DefaultReadFileMaxSize = 1024 * 100

// ReadFileInput is the model-facing parameter set for read_file.
type ReadFileInput struct {
	// Path to the file, relative to the project root or absolute within it.
	Path string `json:"path"`

	// Offset is the 1-based line to start from, for partial reads.
	Offset int `json:"offset,omitempty"`

	// Limit is the maximum number of lines to read.
	Limit int `json:"limit,omitempty"`
}

// ReadFileTool reads file contents from within the project root.
type ReadFileTool struct {
	maxSize int
}

// NewReadFileTool returns the read_file tool.
func NewReadFileTool() *conductor.TypedToolAdapter[*ReadFileInput] {
	return conductor.ToolAdapter(&ReadFileTool{maxSize: DefaultReadFileMaxSize})
}

func (t *ReadFileTool) Name() string {
	return "read_file"
}

func (t *ReadFileTool) Description() string {
	return `Read a file from the project. Reads the whole file by default; use offset and limit to read a slice of a large file. Paths outside the project root are rejected.`
}

func (t *ReadFileTool) Schema() *schema.Schema {
	return &schema.Schema{
		Type:     schema.Object,
		Required: []string{"path"},
		Properties: map[string]*schema.Property{
			"path": {
				Type:        schema.String,
				Description: "Path to the file, relative to the project root",
			},
			"offset": {
				Type:        schema.Integer,
				Description: "1-based line number to start reading from",
			},
			"limit": {
				Type:        schema.Integer,
				Description: "Maximum number of lines to read",
			},
		},
	}
}

func (t *ReadFileTool) Annotations() *conductor.ToolAnnotations {
	return &conductor.ToolAnnotations{
		Title:          "read_file",
		ReadOnlyHint:   true,
		IdempotentHint: true,
	}
}

func (t *ReadFileTool) Call(ctx context.Context, input *ReadFileInput) (*conductor.ToolResult, error) {
	tc := FromContext(ctx)
	path, err := ResolveWithinRoot(tc.Root, input.Path)
	if err != nil {
		return conductor.NewToolResultError(err.Error()), nil
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return conductor.NewToolResultError(fmt.Sprintf("file not found: %s", input.Path)), nil
		}
		return conductor.NewToolResultError(fmt.Sprintf("failed to open %s: %s", input.Path, err.Error())), nil
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return conductor.NewToolResultError(fmt.Sprintf("failed to stat %s: %s", input.Path, err.Error())), nil
	}
	if info.IsDir() {
		return conductor.NewToolResultError(fmt.Sprintf("path is a directory: %s", input.Path)), nil
	}

	if input.Offset == 0 && input.Limit == 0 {
		if info.Size() > int64(t.maxSize) {
			return conductor.NewToolResultError(fmt.Sprintf(
				"file %s is too large (%d bytes, limit %d); use offset and limit to read a slice",
				input.Path, info.Size(), t.maxSize)), nil
		}
		content, err := io.ReadAll(file)
		if err != nil {
			return conductor.NewToolResultError(fmt.Sprintf("failed to read %s: %s", input.Path, err.Error())), nil
		}
		if isBinaryContent(content) {
			return conductor.NewToolResultError(fmt.Sprintf("%s appears to be a binary file", input.Path)), nil
		}
		return conductor.NewToolResultText(string(content)), nil
	}

	start := input.Offset
	if start < 1 {
		start = 1
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 2000
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var out strings.Builder
	line := 0
	kept := 0
	for scanner.Scan() {
		line++
		if line < start {
			continue
		}
		if kept >= limit {
			break
		}
		fmt.Fprintf(&out, "%6d\t%s\n", line, scanner.Text())
		kept++
	}
	if err := scanner.Err(); err != nil {
		return conductor.NewToolResultError(fmt.Sprintf("failed to read %s: %s", input.Path, err.Error())), nil
	}
	return conductor.NewToolResultText(out.String()), nil
}
