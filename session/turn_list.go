package session

import (
	"fmt"
	"sort"
	"time"

	"github.com/deepnoodle-ai/conductor"
)

// TurnList is an ordered sequence of turns with the collection operations
// the orchestrator needs. All operations are in-memory; persistence is the
// store's job.
type TurnList []Turn

// Add appends a turn.
func (l *TurnList) Add(t Turn) {
	*l = append(*l, t)
}

// MergeFrom appends every turn of other, preserving order.
func (l *TurnList) MergeFrom(other TurnList) {
	for _, t := range other {
		*l = append(*l, t.Copy())
	}
}

// DeleteByIndex removes the turn at i.
func (l *TurnList) DeleteByIndex(i int) error {
	if i < 0 || i >= len(*l) {
		return conductor.NewValidationError("index", fmt.Sprintf("turn index %d out of range [0,%d)", i, len(*l)))
	}
	*l = append((*l)[:i], (*l)[i+1:]...)
	return nil
}

// DeleteIndices removes the turns at the given indices. The order of the
// indices does not matter; duplicates are ignored.
func (l *TurnList) DeleteIndices(indices []int) error {
	if len(indices) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(indices))
	sorted := make([]int, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(*l) {
			return conductor.NewValidationError("indices", fmt.Sprintf("turn index %d out of range [0,%d)", i, len(*l)))
		}
		if !seen[i] {
			seen[i] = true
			sorted = append(sorted, i)
		}
	}
	// Delete from the back so earlier indices stay valid.
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	for _, i := range sorted {
		*l = append((*l)[:i], (*l)[i+1:]...)
	}
	return nil
}

// EditByIndex updates the editable text of the turn at i. Only user_task
// and model_response turns accept edits; other variants are rejected with
// a validation error.
func (l TurnList) EditByIndex(i int, text string) error {
	if i < 0 || i >= len(l) {
		return conductor.NewValidationError("index", fmt.Sprintf("turn index %d out of range [0,%d)", i, len(l)))
	}
	t := &l[i]
	switch t.Type {
	case TurnTypeUserTask:
		t.Instruction = text
	case TurnTypeModelResponse:
		t.Content = text
	default:
		return conductor.NewValidationError("index", fmt.Sprintf("cannot edit %s turn at index %d", t.Type, i))
	}
	return nil
}

// ReplaceRangeWithSummary splices the turns in [start, end] (inclusive)
// out of the list and inserts a single compressed_history turn in their
// place.
func (l *TurnList) ReplaceRangeWithSummary(start, end int, summary string, at time.Time) error {
	if start < 0 || end >= len(*l) || start > end {
		return conductor.NewValidationError("range", fmt.Sprintf("turn range [%d,%d] out of bounds for %d turns", start, end, len(*l)))
	}
	compressed := NewCompressedHistory(summary, start, end, at)
	replaced := append(TurnList{}, (*l)[:start]...)
	replaced = append(replaced, compressed)
	replaced = append(replaced, (*l)[end+1:]...)
	*l = replaced
	return nil
}

// GetForPrompt returns the turns to include in a prompt: every non-tool
// turn, plus only the most recent toolResponseLimit tool_response turns.
// Older tool responses are omitted entirely to bound context size while
// preserving the interleaving models expect. The result is chronological.
// A negative limit disables filtering.
func (l TurnList) GetForPrompt(toolResponseLimit int) TurnList {
	if toolResponseLimit < 0 {
		out := make(TurnList, 0, len(l))
		for _, t := range l {
			out = append(out, t.Copy())
		}
		return out
	}
	// Walk newest-first counting tool responses, then restore order.
	keep := make([]bool, len(l))
	seen := 0
	for i := len(l) - 1; i >= 0; i-- {
		if l[i].Type != TurnTypeToolResponse {
			keep[i] = true
			continue
		}
		if seen < toolResponseLimit {
			keep[i] = true
			seen++
		}
	}
	out := make(TurnList, 0, len(l))
	for i, t := range l {
		if keep[i] {
			out = append(out, t.Copy())
		}
	}
	return out
}

// ExpireOldToolResponses frees tokens held by stale tool output. With U
// the ascending timestamps of user_task turns: when len(U) < threshold
// nothing happens; otherwise every succeeded tool_response strictly older
// than U[len(U)-threshold] has its message replaced with the expired
// sentinel. Failed responses are left alone so their error text survives.
// Returns whether any turn changed; applying it twice is a no-op.
func (l TurnList) ExpireOldToolResponses(threshold int) bool {
	if threshold <= 0 {
		return false
	}
	var userTimes []time.Time
	for _, t := range l {
		if t.Type == TurnTypeUserTask {
			userTimes = append(userTimes, t.Timestamp)
		}
	}
	if len(userTimes) < threshold {
		return false
	}
	sort.Slice(userTimes, func(i, j int) bool { return userTimes[i].Before(userTimes[j]) })
	cutoff := userTimes[len(userTimes)-threshold]

	changed := false
	for i := range l {
		t := &l[i]
		if t.Type != TurnTypeToolResponse || !t.Outcome.Succeeded() {
			continue
		}
		if !t.Timestamp.Before(cutoff) {
			continue
		}
		if t.Outcome.Message == ExpiredToolResponseMessage {
			continue
		}
		t.Outcome.Message = ExpiredToolResponseMessage
		changed = true
	}
	return changed
}

// LastUserTask returns the trailing user_task instruction, if the final
// turn is one.
func (l TurnList) LastUserTask() (string, bool) {
	if len(l) == 0 {
		return "", false
	}
	last := l[len(l)-1]
	if last.Type != TurnTypeUserTask {
		return "", false
	}
	return last.Instruction, true
}

// Copy returns a deep copy of the list.
func (l TurnList) Copy() TurnList {
	out := make(TurnList, 0, len(l))
	for _, t := range l {
		out = append(out, t.Copy())
	}
	return out
}
