package toolkit

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/schema"
)

var _ conductor.TypedTool[*GlobInput] = &GlobTool{}

// DefaultGlobMaxResults caps glob output.
const DefaultGlobMaxResults = 500

// GlobInput is the model-facing parameter set for glob.
type GlobInput struct {
	// Pattern supports ** for recursive matching, e.g. "**/*.go".
	Pattern string `json:"pattern"`
}

// GlobTool finds files under the project root by pattern. Matching runs
// against a filesystem rooted at the project root, so results can never
// reach outside it.
type GlobTool struct {
	maxResults int
}

// NewGlobTool returns the glob tool.
func NewGlobTool() *conductor.TypedToolAdapter[*GlobInput] {
	return conductor.ToolAdapter(&GlobTool{maxResults: DefaultGlobMaxResults})
}

func (t *GlobTool) Name() string {
	return "glob"
}

func (t *GlobTool) Description() string {
	return `Find files under the project root matching a glob pattern. Supports ** for recursive matching, e.g. "**/*.go" or "docs/**/*.md". Returns matching paths relative to the project root, sorted.`
}

func (t *GlobTool) Schema() *schema.Schema {
	return &schema.Schema{
		Type:     schema.Object,
		Required: []string{"pattern"},
		Properties: map[string]*schema.Property{
			"pattern": {
				Type:        schema.String,
				Description: "Glob pattern relative to the project root",
			},
		},
	}
}

func (t *GlobTool) Annotations() *conductor.ToolAnnotations {
	return &conductor.ToolAnnotations{
		Title:          "glob",
		ReadOnlyHint:   true,
		IdempotentHint: true,
	}
}

func (t *GlobTool) Call(ctx context.Context, input *GlobInput) (*conductor.ToolResult, error) {
	if input.Pattern == "" {
		return conductor.NewToolResultError("no pattern provided"), nil
	}
	tc := FromContext(ctx)
	root := tc.Root
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return conductor.NewToolResultError(fmt.Sprintf("failed to get working directory: %s", err.Error())), nil
		}
		root = cwd
	}

	matches, err := doublestar.Glob(os.DirFS(root), input.Pattern)
	if err != nil {
		return conductor.NewToolResultError(fmt.Sprintf("invalid pattern %q: %s", input.Pattern, err.Error())), nil
	}
	sort.Strings(matches)

	truncated := false
	if len(matches) > t.maxResults {
		matches = matches[:t.maxResults]
		truncated = true
	}
	if len(matches) == 0 {
		return conductor.NewToolResultText(fmt.Sprintf("no files match %q", input.Pattern)), nil
	}
	out := strings.Join(matches, "\n")
	if truncated {
		out += fmt.Sprintf("\n(truncated to %d results)", t.maxResults)
	}
	return conductor.NewToolResultText(out), nil
}
