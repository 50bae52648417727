// Package config loads and watches the conductor settings file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
)

// Transport modes for the api_mode setting.
const (
	APIModeAPI  = "api"
	APIModeCLI  = "cli"
	APIModeStub = "stub"
)

// ModelSettings configure the primary model and its caching behavior.
type ModelSettings struct {
	Name                 string `yaml:"name" json:"name"`
	ContextLimit         int    `yaml:"context_limit" json:"context_limit"`
	CacheUpdateThreshold int    `yaml:"cache_update_threshold" json:"cache_update_threshold"`
}

// Parameter is one sampling parameter with the description shown to users
// in expert mode.
type Parameter struct {
	Value       *float64 `yaml:"value" json:"value"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// ParameterSettings hold the default sampling parameters. Per-session
// hyperparameters override these.
type ParameterSettings struct {
	Temperature Parameter `yaml:"temperature" json:"temperature"`
	TopP        Parameter `yaml:"top_p" json:"top_p"`
	TopK        Parameter `yaml:"top_k" json:"top_k"`
}

// ToolSettings restrict which tools the model may call and how calls are
// confirmed.
type ToolSettings struct {
	Allow   []string `yaml:"allow,omitempty" json:"allow,omitempty"`
	Deny    []string `yaml:"deny,omitempty" json:"deny,omitempty"`
	Confirm string   `yaml:"confirm,omitempty" json:"confirm,omitempty"`
}

// MCPServerSettings describe one external MCP tool server to spawn over
// stdio.
type MCPServerSettings struct {
	Command  string            `yaml:"command" json:"command"`
	Args     []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env      map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Disabled bool              `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// Settings is the full configuration surface. Zero values fall back to
// the defaults from DefaultSettings.
type Settings struct {
	APIMode                string                       `yaml:"api_mode" json:"api_mode"`
	Model                  ModelSettings                `yaml:"model" json:"model"`
	SearchModel            string                       `yaml:"search_model" json:"search_model"`
	Timezone               string                       `yaml:"timezone" json:"timezone"`
	Language               string                       `yaml:"language" json:"language"`
	Parameters             ParameterSettings            `yaml:"parameters" json:"parameters"`
	ToolResponseExpiration int                          `yaml:"tool_response_expiration" json:"tool_response_expiration"`
	ToolResponseLimit      int                          `yaml:"tool_response_limit" json:"tool_response_limit"`
	ReferenceTtl           int                          `yaml:"reference_ttl" json:"reference_ttl"`
	ExpertMode             bool                         `yaml:"expert_mode" json:"expert_mode"`
	Yolo                   bool                         `yaml:"yolo" json:"yolo"`
	ContextLimit           int                          `yaml:"context_limit" json:"context_limit"`
	SessionsRoot           string                       `yaml:"sessions_root" json:"sessions_root"`
	MaxIterations          int                          `yaml:"max_iterations" json:"max_iterations"`
	LogLevel               string                       `yaml:"log_level" json:"log_level"`
	CLICommand             []string                     `yaml:"cli_command,omitempty" json:"cli_command,omitempty"`
	MainInstruction        string                       `yaml:"main_instruction,omitempty" json:"main_instruction,omitempty"`
	Tools                  ToolSettings                 `yaml:"tools" json:"tools"`
	MCPServers             map[string]MCPServerSettings `yaml:"mcp_servers,omitempty" json:"mcp_servers,omitempty"`

	location *time.Location
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() *Settings {
	temp := 0.3
	topP := 0.95
	topK := 40.0
	s := &Settings{
		APIMode: APIModeAPI,
		Model: ModelSettings{
			Name:                 "gemini-2.5-pro",
			ContextLimit:         1048576,
			CacheUpdateThreshold: 40000,
		},
		SearchModel: "gemini-2.5-flash",
		Timezone:    "UTC",
		Language:    "English",
		Parameters: ParameterSettings{
			Temperature: Parameter{Value: &temp, Description: "Sampling temperature"},
			TopP:        Parameter{Value: &topP, Description: "Nucleus sampling mass"},
			TopK:        Parameter{Value: &topK, Description: "Top-k candidate cutoff"},
		},
		ToolResponseExpiration: 3,
		ToolResponseLimit:      10,
		ReferenceTtl:           5,
		SessionsRoot:           "~/.conductor/sessions",
		MaxIterations:          16,
		LogLevel:               "warn",
		Tools:                  ToolSettings{Confirm: "terminal"},
	}
	s.Normalize()
	return s
}

// DefaultPath returns the conventional settings file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "settings.yaml"
	}
	return filepath.Join(home, ".conductor", "settings.yaml")
}

// Load reads settings from path, layered over the defaults. An empty path
// means the conventional location; a missing file yields the defaults.
func Load(path string) (*Settings, error) {
	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes settings YAML over the defaults. Unknown keys are
// rejected so typos surface immediately.
func Parse(data []byte) (*Settings, error) {
	settings := DefaultSettings()
	if err := yaml.UnmarshalWithOptions(data, settings, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	settings.Normalize()
	return settings, nil
}

// Normalize resolves derived fields and repairs out-of-range values. An
// unknown timezone degrades to UTC with a warning rather than failing
// start-up.
func (s *Settings) Normalize() {
	if s.ContextLimit <= 0 {
		s.ContextLimit = s.Model.ContextLimit
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = 16
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: unknown timezone %q, using UTC\n", s.Timezone)
		s.Timezone = "UTC"
		loc = time.UTC
	}
	s.location = loc
}

// Location returns the resolved timezone.
func (s *Settings) Location() *time.Location {
	if s.location == nil {
		return time.UTC
	}
	return s.location
}

// ConfirmMode resolves the tool confirmation mode, honoring yolo.
func (s *Settings) ConfirmMode() string {
	if s.Yolo {
		return "auto"
	}
	if s.Tools.Confirm == "" {
		return "terminal"
	}
	return s.Tools.Confirm
}

// Temperature returns the configured default temperature, or nil.
func (s *Settings) Temperature() *float64 { return s.Parameters.Temperature.Value }

// TopP returns the configured default top_p, or nil.
func (s *Settings) TopP() *float64 { return s.Parameters.TopP.Value }

// TopK returns the configured default top_k, or nil.
func (s *Settings) TopK() *float64 { return s.Parameters.TopK.Value }
