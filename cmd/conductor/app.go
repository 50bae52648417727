package main

import (
	"context"
	"os"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/config"
	"github.com/deepnoodle-ai/conductor/contextwindow"
	"github.com/deepnoodle-ai/conductor/llm"
	"github.com/deepnoodle-ai/conductor/llm/google"
	"github.com/deepnoodle-ai/conductor/llm/llmtest"
	"github.com/deepnoodle-ai/conductor/llm/subprocess"
	"github.com/deepnoodle-ai/conductor/log"
	"github.com/deepnoodle-ai/conductor/mcpclient"
	"github.com/deepnoodle-ai/conductor/session"
	"github.com/deepnoodle-ai/conductor/toolkit"
)

// app bundles the pieces every command needs: parsed settings, the
// session store, the project root, and a logger.
type app struct {
	settings     *config.Settings
	settingsPath string
	store        *session.Store
	logger       log.Logger
	root         string
}

func newApp() (*app, error) {
	settingsPath := flagSettings
	if settingsPath == "" {
		settingsPath = config.DefaultPath()
	}
	settings, err := config.Load(settingsPath)
	if err != nil {
		return nil, err
	}

	level := settings.LogLevel
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	logger := log.New(log.LevelFromString(level))

	root := flagRoot
	if root == "" {
		root, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}

	store, err := session.NewStore(settings.SessionsRoot, session.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &app{
		settings:     settings,
		settingsPath: settingsPath,
		store:        store,
		logger:       logger,
		root:         root,
	}, nil
}

// registry builds the tool registry: built-ins plus any tools from the
// configured MCP servers, filtered by the allow/deny patterns. The
// returned manager owns the MCP server processes; callers must Close it.
func (a *app) registry(ctx context.Context) (*toolkit.Registry, *mcpclient.Manager, error) {
	registry := toolkit.BuiltinRegistry()

	manager := mcpclient.NewManager(a.logger)
	if err := manager.Initialize(ctx, a.settings.MCPServers); err != nil {
		manager.Close()
		return nil, nil, err
	}
	for _, tool := range manager.Tools() {
		if err := registry.Register(tool); err != nil {
			a.logger.Warn("skipping conflicting MCP tool", "tool", tool.Name(), "error", err)
		}
	}

	filter, err := config.NewToolFilter(a.settings.Tools)
	if err != nil {
		manager.Close()
		return nil, nil, err
	}
	return registry.WithFilter(filter), manager, nil
}

// model builds the LM transport for the configured api_mode. The stub
// mode answers every run with a canned acknowledgement, which exercises
// the full loop offline.
func (a *app) model(sessionID, instruction string) (llm.Streamer, error) {
	switch a.settings.APIMode {
	case config.APIModeAPI:
		return google.New(
			google.WithModel(a.settings.Model.Name),
			google.WithLogger(a.logger),
		), nil
	case config.APIModeCLI:
		return subprocess.New(a.settings.CLICommand,
			subprocess.WithSessionID(sessionID),
			subprocess.WithLogger(a.logger))
	case config.APIModeStub:
		return llmtest.New(llmtest.Text("(stub) acknowledged: " + instruction)), nil
	default:
		return nil, conductor.NewValidationError("api_mode", "must be api, cli, or stub")
	}
}

// contexts builds the cache manager. Only the API transport can create
// server-side caches; the other modes run with caching disabled.
func (a *app) contexts(model llm.Streamer) *contextwindow.Manager {
	backend, _ := model.(contextwindow.Backend)
	return contextwindow.NewManager(backend, a.store.Root(),
		contextwindow.WithLogger(a.logger))
}

// confirmPatterns derives the names gated behind confirmation from tool
// annotations: anything flagged destructive or open-world asks first.
func confirmPatterns(registry *toolkit.Registry) (config.PatternList, error) {
	var names []string
	for _, tool := range registry.Tools() {
		a := tool.Annotations()
		if a == nil {
			continue
		}
		if a.DestructiveHint || a.OpenWorldHint {
			names = append(names, tool.Name())
		}
	}
	return config.CompilePatterns(names, "confirm")
}

// confirmer resolves the tool confirmer for the configured mode.
func (a *app) confirmer() (conductor.Confirmer, error) {
	return conductor.NewConfirmer(a.settings.ConfirmMode())
}
