package toolkit

import (
	"context"
	"testing"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/config"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegister(t *testing.T) {
	registry, err := NewRegistry(echoTool())
	require.NoError(t, err)

	tool, ok := registry.Get("echo")
	require.True(t, ok)
	require.Equal(t, "echo", tool.Name())

	_, ok = registry.Get("missing")
	require.False(t, ok)

	// Duplicate names are rejected.
	err = registry.Register(echoTool())
	require.Error(t, err)
	require.Contains(t, err.Error(), "already registered")

	// Empty names are rejected.
	err = registry.Register(&stubTool{name: "", fn: nil})
	require.ErrorIs(t, err, conductor.ErrValidation)
}

func TestRegistryNamesSorted(t *testing.T) {
	registry, err := NewRegistry(
		&stubTool{name: "zeta"},
		&stubTool{name: "alpha"},
		&stubTool{name: "mid"},
	)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "mid", "zeta"}, registry.Names())

	tools := registry.Tools()
	require.Len(t, tools, 3)
	require.Equal(t, "alpha", tools[0].Name())
	require.Equal(t, "zeta", tools[2].Name())
}

func TestRegistryWithFilter(t *testing.T) {
	registry, err := NewRegistry(
		&stubTool{name: "read_file"},
		&stubTool{name: "write_file"},
		&stubTool{name: "glob"},
	)
	require.NoError(t, err)

	filter, err := config.NewToolFilter(config.ToolSettings{Deny: []string{"write_*"}})
	require.NoError(t, err)

	filtered := registry.WithFilter(filter)
	require.Equal(t, []string{"glob", "read_file"}, filtered.Names())

	// The original registry is untouched.
	require.Len(t, registry.Names(), 3)
}

func TestBuiltins(t *testing.T) {
	registry := BuiltinRegistry()
	require.Equal(t, []string{
		"add_reference",
		"compress_history",
		"glob",
		"list_directory",
		"read_file",
		"record_artifact",
		"spawn_session",
		"todo_write",
		"update_reference_ttl",
		"write_file",
	}, registry.Names())

	// Every builtin declares a schema without injected parameters.
	for _, tool := range registry.Tools() {
		s := tool.Schema()
		require.NotNil(t, s, tool.Name())
		for _, injected := range []string{"session_id", "session_service", "settings", "project_root"} {
			_, found := s.Properties[injected]
			require.False(t, found, "%s schema leaks %s", tool.Name(), injected)
		}
	}
}

func TestContextWithoutSession(t *testing.T) {
	tc := FromContext(context.Background())
	_, err := tc.Session()
	require.ErrorIs(t, err, conductor.ErrValidation)
	_, err = tc.Update(nil)
	require.ErrorIs(t, err, conductor.ErrValidation)
	require.Equal(t, config.DefaultSettings().ReferenceTtl, tc.ReferenceTtl())
}
