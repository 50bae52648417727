package toolkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/schema"
)

var _ conductor.TypedTool[*CompressHistoryInput] = &CompressHistoryTool{}

// CompressHistoryInput is the model-facing parameter set for
// compress_history.
type CompressHistoryInput struct {
	// StartTurn is the first committed turn index to replace (0-based,
	// inclusive).
	StartTurn int `json:"start_turn"`

	// EndTurn is the last committed turn index to replace (inclusive).
	EndTurn int `json:"end_turn"`

	// Summary replaces the range as a single compressed_history turn.
	Summary string `json:"summary"`
}

// CompressHistoryTool folds a span of old turns into one summary turn.
// A session backup is taken first, so the original turns remain
// recoverable.
type CompressHistoryTool struct{}

// NewCompressHistoryTool returns the compress_history tool.
func NewCompressHistoryTool() *conductor.TypedToolAdapter[*CompressHistoryInput] {
	return conductor.ToolAdapter(&CompressHistoryTool{})
}

func (t *CompressHistoryTool) Name() string {
	return "compress_history"
}

func (t *CompressHistoryTool) Description() string {
	return `Replace a contiguous range of old conversation turns with a single summary you write. Use this when the history has grown long and early turns matter only in outline. Indices are 0-based and inclusive, counting committed turns only.`
}

func (t *CompressHistoryTool) Schema() *schema.Schema {
	return &schema.Schema{
		Type:     schema.Object,
		Required: []string{"start_turn", "end_turn", "summary"},
		Properties: map[string]*schema.Property{
			"start_turn": {
				Type:        schema.Integer,
				Description: "First turn index of the range (inclusive)",
			},
			"end_turn": {
				Type:        schema.Integer,
				Description: "Last turn index of the range (inclusive)",
			},
			"summary": {
				Type:        schema.String,
				Description: "Summary text that stands in for the replaced turns",
			},
		},
	}
}

func (t *CompressHistoryTool) Annotations() *conductor.ToolAnnotations {
	return &conductor.ToolAnnotations{
		Title:           "compress_history",
		DestructiveHint: true,
	}
}

func (t *CompressHistoryTool) Call(ctx context.Context, input *CompressHistoryInput) (*conductor.ToolResult, error) {
	if input.Summary == "" {
		return conductor.NewToolResultError("no summary provided"), nil
	}
	tc := FromContext(ctx)
	if tc.Store == nil || tc.SessionID == "" {
		return nil, conductor.NewValidationError("session_id", "no session bound to this call")
	}
	err := tc.Store.ReplaceRangeWithSummary(tc.SessionID, input.StartTurn, input.EndTurn, input.Summary)
	if err != nil {
		if errors.Is(err, conductor.ErrValidation) {
			return conductor.NewToolResultError(err.Error()), nil
		}
		return nil, err
	}
	replaced := input.EndTurn - input.StartTurn + 1
	return conductor.NewToolResultText(fmt.Sprintf("compressed %d turn(s) into a summary", replaced)), nil
}
