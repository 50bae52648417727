package main

import (
	"context"
	"fmt"
	"time"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/supervisor"
	"github.com/spf13/cobra"
)

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "Show which sessions have a running agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		statuses, err := supervisor.New(a.store, supervisor.WithLogger(a.logger)).List()
		if err != nil {
			return err
		}
		if len(statuses) == 0 {
			fmt.Println("No sessions found")
			return nil
		}
		for _, status := range statuses {
			if status.Running {
				fmt.Printf("%s %s\n", boldStyle.Sprint(status.SessionID),
					successStyle.Sprintf("running (pid %d)", status.PID))
			} else {
				fmt.Printf("%s %s\n", boldStyle.Sprint(status.SessionID),
					mutedStyle.Sprint("idle"))
			}
		}
		return nil
	},
}

var (
	flagStartInstruction string
	flagStartDetach      bool
)

var startCmd = &cobra.Command{
	Use:   "start <session-id>",
	Short: "Start a supervised agent for a session",
	Long: `Start launches a separate agent process for the session and streams its
progress here. At most one agent may run per session. With --detach the
process is left running and its PID printed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if flagStartInstruction == "" {
			return conductor.NewValidationError("instruction", "is required")
		}
		sup := supervisor.New(a.store, supervisor.WithLogger(a.logger))

		if flagStartDetach {
			// Background ctx so the agent is not tied to this process's
			// lifetime.
			proc, err := sup.Start(context.Background(), args[0], flagStartInstruction)
			if err != nil {
				return err
			}
			fmt.Printf("Started agent for %s (pid %d)\n", args[0], proc.PID())
			return nil
		}

		ctx, cancel := signalContext()
		defer cancel()
		proc, err := sup.Start(ctx, args[0], flagStartInstruction)
		if err != nil {
			return err
		}
		for event := range proc.Events() {
			renderTextEvent(event)
		}
		return proc.Wait()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <session-id>",
	Short: "Stop a session's agent and roll back its pending pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		sup := supervisor.New(a.store, supervisor.WithLogger(a.logger))
		if err := sup.Stop(args[0]); err != nil {
			return err
		}
		fmt.Printf("Stopped session %s\n", args[0])
		return nil
	},
}

var flagTailInterval time.Duration

var tailCmd = &cobra.Command{
	Use:   "tail <session-id>",
	Short: "Follow a session's committed turns",
	Long: `Tail prints the session's committed turns and keeps polling the session
file, printing each newly committed turn until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a, err := newApp()
		if err != nil {
			return err
		}
		return tailSession(ctx, a, args[0])
	},
}

func init() {
	startCmd.Flags().StringVarP(&flagStartInstruction, "instruction", "i", "", "Instruction for the agent to process")
	startCmd.Flags().BoolVar(&flagStartDetach, "detach", false, "Leave the agent running in the background")
	tailCmd.Flags().DurationVar(&flagTailInterval, "interval", 500*time.Millisecond, "Poll interval")
}

func tailSession(ctx context.Context, a *app, id string) error {
	printed := 0
	for {
		sess, err := a.store.Find(id)
		if err != nil {
			return err
		}
		for ; printed < len(sess.Turns); printed++ {
			printTurn(printed, &sess.Turns[printed])
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(flagTailInterval):
		}
	}
}
