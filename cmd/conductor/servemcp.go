package main

import (
	"context"
	"errors"
	"os"

	"github.com/deepnoodle-ai/conductor/config"
	"github.com/deepnoodle-ai/conductor/contextwindow"
	"github.com/deepnoodle-ai/conductor/llm/google"
	"github.com/deepnoodle-ai/conductor/llm/subprocess"
	"github.com/deepnoodle-ai/conductor/mcpserver"
	"github.com/spf13/cobra"
)

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the tool registry over JSON-RPC on stdin/stdout",
	Long: `Serve-mcp exposes every registered tool to a model process speaking
newline-framed JSON-RPC 2.0 on stdin/stdout. The session to bind is read
from the ` + subprocess.SessionEnvVar + ` environment variable; without
it, session-dependent tools fail validation. Settings changes on disk
are picked up without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp()
		if err != nil {
			return err
		}
		registry, manager, err := a.registry(ctx)
		if err != nil {
			return err
		}
		defer manager.Close()

		server, err := mcpserver.New(mcpserver.Options{
			Registry:  registry,
			Store:     a.store,
			Settings:  a.settings,
			SessionID: os.Getenv(subprocess.SessionEnvVar),
			Root:      a.root,
			Logger:    a.logger,
			Name:      "conductor",
			Version:   version,
		})
		if err != nil {
			return err
		}

		watcher, err := config.NewWatcher(a.settingsPath, a.logger, server.UpdateSettings)
		if err != nil {
			a.logger.Warn("settings watcher unavailable", "error", err)
		} else {
			go func() {
				if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
					a.logger.Warn("settings watcher stopped", "error", err)
				}
			}()
		}

		sweepExpiredCaches(ctx, a)

		if err := server.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// sweepExpiredCaches prunes lapsed cache registry entries on startup. The
// API transport doubles as the deletion backend; in the other modes only
// the registry is cleaned.
func sweepExpiredCaches(ctx context.Context, a *app) {
	var backend contextwindow.Backend
	if a.settings.APIMode == config.APIModeAPI {
		backend = google.New(
			google.WithModel(a.settings.Model.Name),
			google.WithLogger(a.logger),
		)
	}
	contexts := contextwindow.NewManager(backend, a.store.Root(),
		contextwindow.WithLogger(a.logger))
	n, err := contexts.SweepExpired(ctx)
	if err != nil {
		a.logger.Warn("cache sweep failed", "error", err)
		return
	}
	if n > 0 {
		a.logger.Info("swept expired caches", "count", n)
	}
}
