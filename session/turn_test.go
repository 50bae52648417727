package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/deepnoodle-ai/conductor"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestTurnJSONRoundTrip(t *testing.T) {
	turns := []Turn{
		NewUserTask("summarize the report", testTime),
		NewModelResponse("Here is the summary.", testTime),
		NewFunctionCalling(`read_file({"path":"report.md"})`, testTime),
		NewToolResponse("read_file", StatusSucceeded, "file contents", testTime),
		NewToolResponse("write_file", StatusFailed, "permission denied", testTime),
		NewCompressedHistory("Earlier the user asked for a report.", 0, 7, testTime),
	}
	for _, original := range turns {
		data, err := json.Marshal(original)
		require.NoError(t, err)
		var decoded Turn
		require.NoError(t, json.Unmarshal(data, &decoded))
		require.Equal(t, original, decoded, "round trip changed %s", original.Type)
	}
}

func TestTurnJSONShape(t *testing.T) {
	data, err := json.Marshal(NewToolResponse("glob", StatusSucceeded, "3 files", testTime))
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Equal(t, "tool_response", raw["type"])
	require.Equal(t, "glob", raw["name"])
	response, ok := raw["response"].(map[string]any)
	require.True(t, ok, "tool_response payload must be an object")
	require.Equal(t, "succeeded", response["status"])
	require.Equal(t, "3 files", response["message"])

	// function_calling keeps its response as a plain string.
	data, err = json.Marshal(NewFunctionCalling(`glob({"pattern":"*.go"})`, testTime))
	require.NoError(t, err)
	raw = map[string]any{}
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Equal(t, "function_calling", raw["type"])
	_, isString := raw["response"].(string)
	require.True(t, isString, "function_calling payload must be a string")

	data, err = json.Marshal(NewCompressedHistory("summary", 2, 9, testTime))
	require.NoError(t, err)
	raw = map[string]any{}
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Equal(t, []any{float64(2), float64(9)}, raw["original_turns_range"])
}

func TestTurnUnmarshalUnknownType(t *testing.T) {
	var turn Turn
	err := json.Unmarshal([]byte(`{"type":"telepathy","timestamp":"2025-06-01T12:00:00Z"}`), &turn)
	require.Error(t, err)
}

func TestTurnEditable(t *testing.T) {
	userTask := NewUserTask("x", testTime)
	require.True(t, userTask.Editable())
	modelResponse := NewModelResponse("x", testTime)
	require.True(t, modelResponse.Editable())
	functionCalling := NewFunctionCalling("x", testTime)
	require.False(t, functionCalling.Editable())
	toolResponse := NewToolResponse("t", StatusSucceeded, "x", testTime)
	require.False(t, toolResponse.Editable())
	compressedHistory := NewCompressedHistory("x", 0, 1, testTime)
	require.False(t, compressedHistory.Editable())
}

func TestTurnListDeleteIndices(t *testing.T) {
	list := TurnList{
		NewUserTask("a", testTime),
		NewModelResponse("b", testTime),
		NewUserTask("c", testTime),
		NewModelResponse("d", testTime),
	}

	// Unordered and duplicated indices resolve against the original list.
	require.NoError(t, list.DeleteIndices([]int{3, 1, 1}))
	require.Len(t, list, 2)
	require.Equal(t, "a", list[0].Instruction)
	require.Equal(t, "c", list[1].Instruction)

	// Any out-of-range index rejects the whole batch.
	before := list.Copy()
	err := list.DeleteIndices([]int{0, 9})
	require.Error(t, err)
	require.Equal(t, before, list)
}

func TestTurnListEditByIndex(t *testing.T) {
	list := TurnList{
		NewUserTask("original", testTime),
		NewToolResponse("read_file", StatusSucceeded, "contents", testTime),
	}
	require.NoError(t, list.EditByIndex(0, "revised"))
	require.Equal(t, "revised", list[0].Instruction)

	err := list.EditByIndex(1, "tampered")
	require.Error(t, err)
	var verr *conductor.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "contents", list[1].Outcome.Message)
}

func TestReplaceRangeWithSummary(t *testing.T) {
	list := TurnList{
		NewUserTask("a", testTime),
		NewModelResponse("b", testTime),
		NewUserTask("c", testTime),
		NewModelResponse("d", testTime),
		NewUserTask("e", testTime),
	}
	require.NoError(t, list.ReplaceRangeWithSummary(1, 3, "b through d", testTime))
	require.Len(t, list, 3)
	require.Equal(t, TurnTypeCompressedHistory, list[1].Type)
	require.Equal(t, "b through d", list[1].Content)
	require.Equal(t, [2]int{1, 3}, *list[1].OriginalRange)
	require.Equal(t, "e", list[2].Instruction)

	require.Error(t, list.ReplaceRangeWithSummary(2, 1, "inverted", testTime))
	require.Error(t, list.ReplaceRangeWithSummary(1, 99, "oob", testTime))
}

func TestGetForPrompt(t *testing.T) {
	list := TurnList{
		NewUserTask("task", testTime),
		NewFunctionCalling("c1", testTime),
		NewToolResponse("t1", StatusSucceeded, "r1", testTime),
		NewModelResponse("thinking", testTime),
		NewFunctionCalling("c2", testTime),
		NewToolResponse("t2", StatusSucceeded, "r2", testTime),
		NewFunctionCalling("c3", testTime),
		NewToolResponse("t3", StatusFailed, "r3", testTime),
	}

	pruned := list.GetForPrompt(2)
	require.Len(t, pruned, 7)
	for _, turn := range pruned {
		if turn.Type == TurnTypeToolResponse {
			require.NotEqual(t, "r1", turn.Outcome.Message, "oldest tool response should be dropped")
		}
	}
	// Relative order of the survivors is unchanged.
	require.Equal(t, "task", pruned[0].Instruction)
	require.Equal(t, "c1", pruned[1].Call)
	require.Equal(t, "thinking", pruned[2].Content)
	require.Equal(t, "r2", pruned[4].Outcome.Message)
	require.Equal(t, "r3", pruned[6].Outcome.Message)

	// A negative limit disables pruning entirely.
	require.Len(t, list.GetForPrompt(-1), len(list))
	// Zero keeps no tool responses.
	for _, turn := range list.GetForPrompt(0) {
		require.NotEqual(t, TurnTypeToolResponse, turn.Type)
	}
}

func TestExpireOldToolResponses(t *testing.T) {
	t0 := testTime
	t1 := testTime.Add(time.Minute)
	t2 := testTime.Add(2 * time.Minute)
	list := TurnList{
		NewUserTask("first", t0),
		NewToolResponse("a", StatusSucceeded, "old success", t0),
		NewToolResponse("b", StatusFailed, "old failure", t0),
		NewUserTask("second", t1),
		NewToolResponse("c", StatusSucceeded, "at cutoff", t1),
		NewUserTask("third", t2),
		NewToolResponse("d", StatusSucceeded, "recent", t2),
	}

	// Three user tasks, threshold 2: the cutoff is the second task's
	// timestamp, so only turns stamped before t1 can expire.
	changed := list.ExpireOldToolResponses(2)
	require.True(t, changed)
	require.Equal(t, ExpiredToolResponseMessage, list[1].Outcome.Message)
	require.Equal(t, StatusSucceeded, list[1].Outcome.Status, "status survives expiration")
	require.Equal(t, "old failure", list[2].Outcome.Message, "failures are never expired")
	require.Equal(t, "at cutoff", list[4].Outcome.Message, "cutoff itself is not strictly before")
	require.Equal(t, "recent", list[6].Outcome.Message)

	// Second pass finds nothing new to expire.
	require.False(t, list.ExpireOldToolResponses(2))
}

func TestExpireOldToolResponsesUnderThreshold(t *testing.T) {
	list := TurnList{
		NewUserTask("only", testTime),
		NewToolResponse("a", StatusSucceeded, "one", testTime),
	}
	require.False(t, list.ExpireOldToolResponses(2))
	require.Equal(t, "one", list[1].Outcome.Message)

	require.False(t, TurnList{}.ExpireOldToolResponses(2))
}

func TestLastUserTask(t *testing.T) {
	list := TurnList{
		NewUserTask("first", testTime),
		NewModelResponse("answer", testTime),
		NewUserTask("second", testTime),
	}
	instruction, ok := list.LastUserTask()
	require.True(t, ok)
	require.Equal(t, "second", instruction)

	// Only a trailing user task counts as pending.
	list.Add(NewModelResponse("answer 2", testTime))
	_, ok = list.LastUserTask()
	require.False(t, ok)
}
