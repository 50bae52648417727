package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	require.Equal(t, APIModeAPI, s.APIMode)
	require.Equal(t, "gemini-2.5-pro", s.Model.Name)
	require.Equal(t, 1048576, s.Model.ContextLimit)
	require.Equal(t, 40000, s.Model.CacheUpdateThreshold)
	require.Equal(t, 3, s.ToolResponseExpiration)
	require.Equal(t, 5, s.ReferenceTtl)
	require.Equal(t, time.UTC, s.Location())
	require.Equal(t, s.Model.ContextLimit, s.ContextLimit, "prompt bound defaults to the model window")
	require.Equal(t, "terminal", s.ConfirmMode())
}

func TestParseOverlaysDefaults(t *testing.T) {
	s, err := Parse([]byte(`
api_mode: cli
model:
  name: gemini-2.5-flash
  context_limit: 32768
  cache_update_threshold: 4096
timezone: America/New_York
parameters:
  temperature:
    value: 0.7
tool_response_expiration: 5
yolo: true
context_limit: 16000
`))
	require.NoError(t, err)
	require.Equal(t, APIModeCLI, s.APIMode)
	require.Equal(t, "gemini-2.5-flash", s.Model.Name)
	require.Equal(t, 32768, s.Model.ContextLimit)
	require.Equal(t, 16000, s.ContextLimit)
	require.Equal(t, "America/New_York", s.Location().String())
	require.Equal(t, 0.7, *s.Temperature())
	require.Equal(t, 5, s.ToolResponseExpiration)
	// Untouched keys keep their defaults.
	require.Equal(t, "gemini-2.5-flash", s.SearchModel)
	require.Equal(t, 5, s.ReferenceTtl)
	// Yolo overrides the confirmation gate.
	require.Equal(t, "auto", s.ConfirmMode())
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("api_mdoe: api\n"))
	require.Error(t, err)
}

func TestParseUnknownTimezoneFallsBackToUTC(t *testing.T) {
	s, err := Parse([]byte("timezone: Mars/Olympus_Mons\n"))
	require.NoError(t, err)
	require.Equal(t, "UTC", s.Timezone)
	require.Equal(t, time.UTC, s.Location())
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultSettings().Model.Name, s.Model.Name)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("language: French\nexpert_mode: true\n"), 0644))
	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "French", s.Language)
	require.True(t, s.ExpertMode)
}

func TestToolFilter(t *testing.T) {
	f, err := NewToolFilter(ToolSettings{
		Allow: []string{"read_*", "glob", "mcp_github_*"},
		Deny:  []string{"*_secrets", "mcp_github_delete_*"},
	})
	require.NoError(t, err)

	require.True(t, f.Allowed("read_file"))
	require.True(t, f.Allowed("glob"))
	require.True(t, f.Allowed("mcp_github_create_issue"))
	require.False(t, f.Allowed("write_file"), "not on the allow list")
	require.False(t, f.Allowed("read_secrets"), "deny wins over allow")
	require.False(t, f.Allowed("mcp_github_delete_repo"))
}

func TestToolFilterEmptyAllowsAll(t *testing.T) {
	f, err := NewToolFilter(ToolSettings{})
	require.NoError(t, err)
	require.True(t, f.Allowed("anything"))

	f, err = NewToolFilter(ToolSettings{Deny: []string{"rm_rf"}})
	require.NoError(t, err)
	require.True(t, f.Allowed("read_file"))
	require.False(t, f.Allowed("rm_rf"))

	var nilFilter *ToolFilter
	require.True(t, nilFilter.Allowed("read_file"))
}

func TestToolFilterBadPattern(t *testing.T) {
	_, err := NewToolFilter(ToolSettings{Allow: []string{"[unterminated"}})
	require.Error(t, err)
}
