package toolkit

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/schema"
	"github.com/deepnoodle-ai/conductor/session"
)

var _ conductor.TypedTool[*TodoWriteInput] = &TodoWriteTool{}

// TodoWriteInput is the model-facing parameter set for todo_write.
type TodoWriteInput struct {
	// Todos replaces the session's entire checklist.
	Todos []session.TodoItem `json:"todos"`
}

// TodoWriteTool replaces the session's working checklist. The checklist
// is rendered into every prompt, so the model sees its own plan.
type TodoWriteTool struct{}

// NewTodoWriteTool returns the todo_write tool.
func NewTodoWriteTool() *conductor.TypedToolAdapter[*TodoWriteInput] {
	return conductor.ToolAdapter(&TodoWriteTool{})
}

func (t *TodoWriteTool) Name() string {
	return "todo_write"
}

func (t *TodoWriteTool) Description() string {
	return `Replace the session's todo checklist. Send the complete list every time: items you omit are removed. Mark finished items checked rather than deleting them so progress stays visible.`
}

func (t *TodoWriteTool) Schema() *schema.Schema {
	return &schema.Schema{
		Type:     schema.Object,
		Required: []string{"todos"},
		Properties: map[string]*schema.Property{
			"todos": {
				Type:        schema.Array,
				Description: "The full checklist",
				Items: &schema.Property{
					Type:     schema.Object,
					Required: []string{"title"},
					Properties: map[string]*schema.Property{
						"title": {
							Type:        schema.String,
							Description: "Short imperative summary of the item",
						},
						"description": {
							Type:        schema.String,
							Description: "Optional detail",
						},
						"checked": {
							Type:        schema.Boolean,
							Description: "Whether the item is done",
						},
					},
				},
			},
		},
	}
}

func (t *TodoWriteTool) Annotations() *conductor.ToolAnnotations {
	return &conductor.ToolAnnotations{
		Title:          "todo_write",
		IdempotentHint: true,
	}
}

func (t *TodoWriteTool) Call(ctx context.Context, input *TodoWriteInput) (*conductor.ToolResult, error) {
	for i, todo := range input.Todos {
		if todo.Title == "" {
			return conductor.NewToolResultError(fmt.Sprintf("todo %d has no title", i)), nil
		}
	}
	tc := FromContext(ctx)
	_, err := tc.Update(func(sess *session.Session) error {
		sess.SetTodos(input.Todos)
		return nil
	})
	if err != nil {
		return nil, err
	}

	done := 0
	for _, todo := range input.Todos {
		if todo.Checked {
			done++
		}
	}
	return conductor.NewToolResultText(fmt.Sprintf("checklist updated: %d item(s), %d done", len(input.Todos), done)), nil
}
