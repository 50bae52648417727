package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func TestReferenceActive(t *testing.T) {
	require.True(t, (&Reference{Path: "a"}).Active(), "nil ttl is active")
	require.True(t, (&Reference{Path: "a", Ttl: intp(3)}).Active())
	require.False(t, (&Reference{Path: "a", Ttl: intp(0)}).Active())
	require.False(t, (&Reference{Path: "a", Disabled: true}).Active())
	require.False(t, (&Reference{Path: "a", Ttl: intp(5), Disabled: true}).Active())
}

func TestReferenceListSort(t *testing.T) {
	list := ReferenceList{
		{Path: "disabled.md", Disabled: true},
		{Path: "low.md", Ttl: intp(1)},
		{Path: "fresh.md"}, // nil ttl sorts with the default value
		{Path: "high.md", Ttl: intp(9)},
		{Path: "zero.md", Ttl: intp(0)},
	}
	list.Sort(5)

	paths := make([]string, 0, len(list))
	for _, r := range list {
		paths = append(paths, r.Path)
	}
	require.Equal(t, []string{"high.md", "fresh.md", "low.md", "disabled.md", "zero.md"}, paths)
}

func TestReferenceListAdd(t *testing.T) {
	list := ReferenceList{}
	require.True(t, list.Add("a.md", nil, false, 5))
	require.True(t, list.Add("b.md", intp(9), false, 5))
	// The path is the key: re-adding never alters the existing entry.
	require.False(t, list.Add("a.md", intp(1), true, 5))
	require.Len(t, list, 2)
	require.Equal(t, "b.md", list[0].Path, "higher ttl sorts first")
	a := list.Find("a.md")
	require.NotNil(t, a)
	require.Nil(t, a.Ttl)
	require.False(t, a.Persist)
}

func TestReferenceListUpdateTtl(t *testing.T) {
	list := ReferenceList{{Path: "a.md", Ttl: intp(3)}}

	require.True(t, list.UpdateTtl("a.md", 0, 5))
	require.True(t, list[0].Disabled)
	require.Equal(t, 0, *list[0].Ttl)

	require.True(t, list.UpdateTtl("a.md", 7, 5))
	require.False(t, list[0].Disabled)
	require.Equal(t, 7, *list[0].Ttl)

	require.False(t, list.UpdateTtl("missing.md", 1, 5))
}

func TestReferenceListDecrementAllTtl(t *testing.T) {
	list := ReferenceList{
		{Path: "counting.md", Ttl: intp(2)},
		{Path: "last-breath.md", Ttl: intp(1)},
		{Path: "implicit.md"}, // nil starts from the default
		{Path: "pinned.md", Persist: true},
		{Path: "off.md", Disabled: true, Ttl: intp(4)},
	}

	newlyDisabled := list.DecrementAllTtl(5)
	require.Equal(t, 1, newlyDisabled)
	require.Equal(t, 1, *list.Find("counting.md").Ttl)
	require.Equal(t, 0, *list.Find("last-breath.md").Ttl)
	require.True(t, list.Find("last-breath.md").Disabled, "reaching zero disables")
	require.Equal(t, 4, *list.Find("implicit.md").Ttl)
	require.Nil(t, list.Find("pinned.md").Ttl, "persistent references never decay")
	require.Equal(t, 4, *list.Find("off.md").Ttl, "disabled references are skipped")
}

func TestReferenceListDecrementAllTtlRepeated(t *testing.T) {
	list := ReferenceList{
		{Path: "long.md", Ttl: intp(10)},
		{Path: "short.md", Ttl: intp(3)},
		{Path: "implicit.md"},
		{Path: "pinned.md", Persist: true},
	}

	// Four single decrements behave like subtracting four, clamped at zero.
	for i := 0; i < 4; i++ {
		list.DecrementAllTtl(5)
	}
	require.Equal(t, 6, *list.Find("long.md").Ttl)
	require.Equal(t, 0, *list.Find("short.md").Ttl)
	require.True(t, list.Find("short.md").Disabled)
	require.Equal(t, 1, *list.Find("implicit.md").Ttl)
	require.Nil(t, list.Find("pinned.md").Ttl)
}

func TestReferenceListToggleAndPersist(t *testing.T) {
	list := ReferenceList{{Path: "a.md", Ttl: intp(3)}}

	require.True(t, list.ToggleDisabled("a.md", 5))
	require.True(t, list[0].Disabled)
	require.True(t, list.ToggleDisabled("a.md", 5))
	require.False(t, list[0].Disabled)

	require.True(t, list.UpdatePersist("a.md", true, 5))
	require.True(t, list[0].Persist)
	require.False(t, list.UpdatePersist("missing.md", true, 5))
}

func TestReferenceLegacyStringForm(t *testing.T) {
	var list ReferenceList
	raw := `["notes.md", {"path":"plan.md","ttl":3,"disabled":false,"persist":true}]`
	require.NoError(t, json.Unmarshal([]byte(raw), &list))
	require.Len(t, list, 2)
	require.Equal(t, "notes.md", list[0].Path)
	require.Nil(t, list[0].Ttl)
	require.False(t, list[0].Persist)
	require.Equal(t, "plan.md", list[1].Path)
	require.Equal(t, 3, *list[1].Ttl)
	require.True(t, list[1].Persist)
}

func TestTodoLegacyStringForm(t *testing.T) {
	var todos []TodoItem
	raw := `["buy milk", {"title":"ship","description":"release v2","checked":true}]`
	require.NoError(t, json.Unmarshal([]byte(raw), &todos))
	require.Len(t, todos, 2)
	require.Equal(t, "buy milk", todos[0].Title)
	require.False(t, todos[0].Checked)
	require.Equal(t, "ship", todos[1].Title)
	require.Equal(t, "release v2", todos[1].Description)
	require.True(t, todos[1].Checked)
}
