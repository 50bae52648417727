// Package main provides the conductor command line interface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/deepnoodle-ai/conductor"
	"github.com/spf13/cobra"
)

var version = conductor.Version

var (
	flagSettings string
	flagRoot     string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Task-oriented conversational agent",
	Long: `Conductor runs model-driven sessions: each instruction is processed by
a ReAct loop that assembles a prompt from the session history, streams
the model, executes tool calls, and commits the resulting turns
atomically. Sessions live as JSON files under the sessions root and can
be inspected, edited, forked, and compacted from here.

Settings are read from ~/.conductor/settings.yaml unless --settings
points elsewhere.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSettings, "settings", "",
		"Path to the settings file (default ~/.conductor/settings.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", "",
		"Project root for file tools and references (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides settings)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(psCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(serveMCPCmd)
	rootCmd.AddCommand(toolsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the documented exit codes: 0 success, 1
// retryable failure, 2 permanent failure.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if conductor.IsRetryable(err) {
		return 1
	}
	return 2
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigs:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigs)
	}()
	return ctx, cancel
}
