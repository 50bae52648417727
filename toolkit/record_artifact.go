package toolkit

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/schema"
	"github.com/deepnoodle-ai/conductor/session"
)

var _ conductor.TypedTool[*RecordArtifactInput] = &RecordArtifactTool{}

// RecordArtifactInput is the model-facing parameter set for
// record_artifact.
type RecordArtifactInput struct {
	// Path of the produced or consumed file.
	Path string `json:"path"`
}

// RecordArtifactTool marks a file as an artifact of the session, so later
// prompts carry its contents and humans can find what a run produced.
type RecordArtifactTool struct{}

// NewRecordArtifactTool returns the record_artifact tool.
func NewRecordArtifactTool() *conductor.TypedToolAdapter[*RecordArtifactInput] {
	return conductor.ToolAdapter(&RecordArtifactTool{})
}

func (t *RecordArtifactTool) Name() string {
	return "record_artifact"
}

func (t *RecordArtifactTool) Description() string {
	return `Record a file as an artifact of this session: a deliverable the work produced, or an input it depends on. Artifacts are listed in the session and included in prompts.`
}

func (t *RecordArtifactTool) Schema() *schema.Schema {
	return &schema.Schema{
		Type:     schema.Object,
		Required: []string{"path"},
		Properties: map[string]*schema.Property{
			"path": {
				Type:        schema.String,
				Description: "Path to the artifact, relative to the project root",
			},
		},
	}
}

func (t *RecordArtifactTool) Annotations() *conductor.ToolAnnotations {
	return &conductor.ToolAnnotations{
		Title:          "record_artifact",
		IdempotentHint: true,
	}
}

func (t *RecordArtifactTool) Call(ctx context.Context, input *RecordArtifactInput) (*conductor.ToolResult, error) {
	if input.Path == "" {
		return conductor.NewToolResultError("no path provided"), nil
	}
	tc := FromContext(ctx)
	recorded := false
	_, err := tc.Update(func(sess *session.Session) error {
		recorded = sess.RecordArtifact(input.Path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !recorded {
		return conductor.NewToolResultText(fmt.Sprintf("%s was already recorded", input.Path)), nil
	}
	return conductor.NewToolResultText(fmt.Sprintf("recorded artifact %s", input.Path)), nil
}
