package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/agent"
	"github.com/deepnoodle-ai/conductor/prompt"
	"github.com/deepnoodle-ai/conductor/session"
	"github.com/spf13/cobra"
)

const (
	outputText       = "text"
	outputJSON       = "json"
	outputStreamJSON = "stream-json"
)

var (
	flagRunSession     string
	flagRunPurpose     string
	flagRunBackground  string
	flagRunRoles       string
	flagRunParent      string
	flagRunInstruction string
	flagRunReferences  string
	flagRunMultiStep   bool
	flagRunFork        string
	flagRunAtTurn      int
	flagRunFormat      string
	flagRunDryRun      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an instruction against a session",
	Long: `Run processes one instruction: the session history becomes a prompt,
the model streams its answer, tool calls are executed, and the finished
cycle is committed to the session atomically. Give --session to continue
an existing session, or --purpose to start a new one.

Examples:
  conductor run --purpose "Plan the trip" -i "Find flights to Osaka"
  conductor run -s 1f3a9c -i "Book the morning one"
  conductor run --fork 1f3a9c --at-turn 4
  conductor run -s 1f3a9c -i "Summarize" --dry-run -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		return runInstruction(ctx)
	},
}

func init() {
	runCmd.Flags().StringVarP(&flagRunSession, "session", "s", "", "Session ID to continue")
	runCmd.Flags().StringVar(&flagRunPurpose, "purpose", "", "Purpose for a new session")
	runCmd.Flags().StringVar(&flagRunBackground, "background", "", "Background for a new session")
	runCmd.Flags().StringVar(&flagRunRoles, "roles", "", "Comma-separated role file paths for a new session")
	runCmd.Flags().StringVar(&flagRunParent, "parent", "", "Parent session ID for a new session")
	runCmd.Flags().StringVarP(&flagRunInstruction, "instruction", "i", "", "Instruction to process")
	runCmd.Flags().StringVar(&flagRunReferences, "references", "", "Comma-separated file paths to pin as references")
	runCmd.Flags().BoolVar(&flagRunMultiStep, "multi-step-reasoning", false, "Enable multi-step reasoning for a new session")
	runCmd.Flags().StringVar(&flagRunFork, "fork", "", "Fork the given session before running")
	runCmd.Flags().IntVar(&flagRunAtTurn, "at-turn", -1, "Turn index to fork at (must address a model response)")
	runCmd.Flags().StringVarP(&flagRunFormat, "output-format", "o", outputText, "Output format: text, json, or stream-json")
	runCmd.Flags().BoolVar(&flagRunDryRun, "dry-run", false, "Assemble and print the prompt without calling the model")
}

func runInstruction(ctx context.Context) error {
	switch flagRunFormat {
	case outputText, outputJSON, outputStreamJSON:
	default:
		return conductor.NewValidationError("output_format", "must be text, json, or stream-json")
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	sessionID := flagRunSession
	switch {
	case flagRunFork != "":
		if flagRunAtTurn < 0 {
			return conductor.NewValidationError("at_turn", "is required with --fork")
		}
		src, err := a.store.Find(flagRunFork)
		if err != nil {
			return err
		}
		fork, err := a.store.Fork(src, flagRunAtTurn)
		if err != nil {
			return err
		}
		if flagRunInstruction == "" {
			fmt.Println(fork.ID)
			return nil
		}
		sessionID = fork.ID
	case sessionID == "":
		if flagRunPurpose == "" {
			return conductor.NewValidationError("purpose", "is required when starting a new session")
		}
		sess, err := a.store.Create(session.CreateOptions{
			Purpose:            flagRunPurpose,
			Background:         flagRunBackground,
			Roles:              splitList(flagRunRoles),
			MultiStepReasoning: flagRunMultiStep,
			ParentID:           flagRunParent,
		})
		if err != nil {
			return err
		}
		sessionID = sess.ID
	}

	if refs := splitList(flagRunReferences); len(refs) > 0 {
		if _, err := a.store.AtomicUpdate(sessionID, func(s *session.Session) error {
			for _, path := range refs {
				s.References.Add(path, nil, false, a.settings.ReferenceTtl)
			}
			return nil
		}); err != nil {
			return err
		}
	}

	registry, manager, err := a.registry(ctx)
	if err != nil {
		return err
	}
	defer manager.Close()

	patterns, err := confirmPatterns(registry)
	if err != nil {
		return err
	}
	confirmer, err := a.confirmer()
	if err != nil {
		return err
	}
	assembler, err := prompt.NewAssembler(a.root, prompt.WithLogger(a.logger))
	if err != nil {
		return err
	}
	model, err := a.model(sessionID, flagRunInstruction)
	if err != nil {
		return err
	}

	runner, err := agent.NewRunner(agent.Options{
		Store:           a.store,
		Settings:        a.settings,
		Model:           model,
		Registry:        registry,
		Assembler:       assembler,
		Contexts:        a.contexts(model),
		Confirmer:       confirmer,
		ConfirmPatterns: patterns,
		Logger:          a.logger,
	})
	if err != nil {
		return err
	}

	input := agent.RunInput{
		SessionID:   sessionID,
		Instruction: flagRunInstruction,
		DryRun:      flagRunDryRun,
	}

	if flagRunFormat == outputJSON {
		result, err := runner.Run(ctx, input)
		if err != nil {
			return err
		}
		return printJSON(result)
	}

	render := renderTextEvent
	if flagRunFormat == outputStreamJSON {
		render = renderStreamEvent
	}
	events := make(chan *agent.Event, 16)
	input.Events = events

	var (
		result *agent.RunResult
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		result, runErr = runner.Run(ctx, input)
	}()
	for event := range events {
		render(event)
	}
	<-done
	if runErr != nil {
		return runErr
	}
	if flagRunFormat == outputText {
		renderTextResult(result)
	}
	return nil
}

// splitList parses a comma-separated flag value, dropping empty entries.
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
