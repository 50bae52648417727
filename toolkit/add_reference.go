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
	"github.com/deepnoodle-ai/conductor/session"
)

var _ conductor.TypedTool[*AddReferenceInput] = &AddReferenceTool{}

// AddReferenceInput is the model-facing parameter set for add_reference.
type AddReferenceInput struct {
	// Path of the file to keep in the prompt. Glob patterns add every
	// matching file.
	Path string `json:"path"`

	// Ttl is how many loop iterations the reference stays active.
	// Omitted means the configured default; 0 adds it disabled.
	Ttl *int `json:"ttl,omitempty"`

	// Persist pins the reference so its TTL never decays.
	Persist bool `json:"persist,omitempty"`
}

// AddReferenceTool registers files whose contents ride along with every
// prompt until their TTL runs out.
type AddReferenceTool struct{}

// NewAddReferenceTool returns the add_reference tool.
func NewAddReferenceTool() *conductor.TypedToolAdapter[*AddReferenceInput] {
	return conductor.ToolAdapter(&AddReferenceTool{})
}

func (t *AddReferenceTool) Name() string {
	return "add_reference"
}

func (t *AddReferenceTool) Description() string {
	return `Add a file reference to the session so its contents are included in every prompt. Accepts a single path or a glob pattern (e.g. "docs/**/*.md") relative to the project root. References expire after a number of iterations (ttl) unless persist is true.`
}

func (t *AddReferenceTool) Schema() *schema.Schema {
	return &schema.Schema{
		Type:     schema.Object,
		Required: []string{"path"},
		Properties: map[string]*schema.Property{
			"path": {
				Type:        schema.String,
				Description: "File path or glob pattern relative to the project root",
			},
			"ttl": {
				Type:        schema.Integer,
				Description: "Iterations the reference stays active; omit for the default",
			},
			"persist": {
				Type:        schema.Boolean,
				Description: "Pin the reference so it never expires",
			},
		},
	}
}

func (t *AddReferenceTool) Annotations() *conductor.ToolAnnotations {
	return &conductor.ToolAnnotations{
		Title:          "add_reference",
		IdempotentHint: true,
	}
}

func (t *AddReferenceTool) Call(ctx context.Context, input *AddReferenceInput) (*conductor.ToolResult, error) {
	if input.Path == "" {
		return conductor.NewToolResultError("no path provided"), nil
	}
	tc := FromContext(ctx)

	paths := []string{input.Path}
	if strings.ContainsAny(input.Path, "*?[{") {
		root := tc.Root
		if root == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return conductor.NewToolResultError(fmt.Sprintf("failed to get working directory: %s", err.Error())), nil
			}
			root = cwd
		}
		matches, err := doublestar.Glob(os.DirFS(root), input.Path)
		if err != nil {
			return conductor.NewToolResultError(fmt.Sprintf("invalid pattern %q: %s", input.Path, err.Error())), nil
		}
		if len(matches) == 0 {
			return conductor.NewToolResultError(fmt.Sprintf("no files match %q", input.Path)), nil
		}
		sort.Strings(matches)
		paths = matches
	}

	defaultTtl := tc.ReferenceTtl()
	added := make([]string, 0, len(paths))
	_, err := tc.Update(func(sess *session.Session) error {
		for _, path := range paths {
			if sess.References.Add(path, input.Ttl, input.Persist, defaultTtl) {
				added = append(added, path)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(added) == 0 {
		return conductor.NewToolResultText("all matching references were already present"), nil
	}
	return conductor.NewToolResultText(fmt.Sprintf("added %d reference(s):\n%s", len(added), strings.Join(added, "\n"))), nil
}
