package toolkit

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/schema"
	"github.com/deepnoodle-ai/conductor/session"
)

var _ conductor.TypedTool[*SpawnSessionInput] = &SpawnSessionTool{}

// SpawnSessionInput is the model-facing parameter set for spawn_session.
type SpawnSessionInput struct {
	// Purpose of the child session.
	Purpose string `json:"purpose"`

	// Background hands context down to the child.
	Background string `json:"background,omitempty"`

	// Roles are role file paths for the child.
	Roles []string `json:"roles,omitempty"`

	// MultiStepReasoning enables deliberate reasoning in the child.
	MultiStepReasoning bool `json:"multi_step_reasoning,omitempty"`
}

// SpawnSessionTool creates a child session nested under the current one.
// The child is created idle; a supervisor or operator starts it.
type SpawnSessionTool struct{}

// NewSpawnSessionTool returns the spawn_session tool.
func NewSpawnSessionTool() *conductor.TypedToolAdapter[*SpawnSessionInput] {
	return conductor.ToolAdapter(&SpawnSessionTool{})
}

func (t *SpawnSessionTool) Name() string {
	return "spawn_session"
}

func (t *SpawnSessionTool) Description() string {
	return `Create a child session for a subtask. The child nests under the current session, starts with its own empty history, and is returned by ID so it can be run separately.`
}

func (t *SpawnSessionTool) Schema() *schema.Schema {
	return &schema.Schema{
		Type:     schema.Object,
		Required: []string{"purpose"},
		Properties: map[string]*schema.Property{
			"purpose": {
				Type:        schema.String,
				Description: "What the child session is for",
			},
			"background": {
				Type:        schema.String,
				Description: "Context the child should start with",
			},
			"roles": {
				Type:        schema.Array,
				Description: "Role file paths for the child",
				Items:       &schema.Property{Type: schema.String},
			},
			"multi_step_reasoning": {
				Type:        schema.Boolean,
				Description: "Enable deliberate multi-step reasoning in the child",
			},
		},
	}
}

func (t *SpawnSessionTool) Annotations() *conductor.ToolAnnotations {
	return &conductor.ToolAnnotations{
		Title: "spawn_session",
	}
}

func (t *SpawnSessionTool) Call(ctx context.Context, input *SpawnSessionInput) (*conductor.ToolResult, error) {
	if input.Purpose == "" {
		return conductor.NewToolResultError("no purpose provided"), nil
	}
	tc := FromContext(ctx)
	if tc.Store == nil {
		return nil, conductor.NewValidationError("session_id", "no session bound to this call")
	}
	child, err := tc.Store.Create(session.CreateOptions{
		Purpose:            input.Purpose,
		Background:         input.Background,
		Roles:              input.Roles,
		MultiStepReasoning: input.MultiStepReasoning,
		ParentID:           tc.SessionID,
	})
	if err != nil {
		return nil, err
	}
	return conductor.NewToolResultText(fmt.Sprintf("spawned session %s", child.ID)), nil
}
