package toolkit

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/schema"
	"github.com/deepnoodle-ai/conductor/session"
)

var _ conductor.TypedTool[*UpdateReferenceTtlInput] = &UpdateReferenceTtlTool{}

// UpdateReferenceTtlInput is the model-facing parameter set for
// update_reference_ttl.
type UpdateReferenceTtlInput struct {
	// Path identifying the reference.
	Path string `json:"path"`

	// Ttl is the new countdown; 0 disables the reference.
	Ttl int `json:"ttl"`
}

// UpdateReferenceTtlTool resets a reference's countdown, or disables it.
type UpdateReferenceTtlTool struct{}

// NewUpdateReferenceTtlTool returns the update_reference_ttl tool.
func NewUpdateReferenceTtlTool() *conductor.TypedToolAdapter[*UpdateReferenceTtlInput] {
	return conductor.ToolAdapter(&UpdateReferenceTtlTool{})
}

func (t *UpdateReferenceTtlTool) Name() string {
	return "update_reference_ttl"
}

func (t *UpdateReferenceTtlTool) Description() string {
	return `Change how long a file reference stays in the prompt. A ttl of 0 disables the reference; any positive ttl re-enables it for that many iterations.`
}

func (t *UpdateReferenceTtlTool) Schema() *schema.Schema {
	return &schema.Schema{
		Type:     schema.Object,
		Required: []string{"path", "ttl"},
		Properties: map[string]*schema.Property{
			"path": {
				Type:        schema.String,
				Description: "Path of an existing reference",
			},
			"ttl": {
				Type:        schema.Integer,
				Description: "New countdown in iterations; 0 disables",
			},
		},
	}
}

func (t *UpdateReferenceTtlTool) Annotations() *conductor.ToolAnnotations {
	return &conductor.ToolAnnotations{
		Title:          "update_reference_ttl",
		IdempotentHint: true,
	}
}

func (t *UpdateReferenceTtlTool) Call(ctx context.Context, input *UpdateReferenceTtlInput) (*conductor.ToolResult, error) {
	if input.Path == "" {
		return conductor.NewToolResultError("no path provided"), nil
	}
	if input.Ttl < 0 {
		return conductor.NewToolResultError("ttl must not be negative"), nil
	}
	tc := FromContext(ctx)

	found := false
	_, err := tc.Update(func(sess *session.Session) error {
		found = sess.References.UpdateTtl(input.Path, input.Ttl, tc.ReferenceTtl())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return conductor.NewToolResultError(fmt.Sprintf("no reference for %s", input.Path)), nil
	}
	if input.Ttl == 0 {
		return conductor.NewToolResultText(fmt.Sprintf("disabled reference %s", input.Path)), nil
	}
	return conductor.NewToolResultText(fmt.Sprintf("reference %s now lives for %d iteration(s)", input.Path, input.Ttl)), nil
}
