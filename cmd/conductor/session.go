package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/session"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and edit stored sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		items, err := a.store.List()
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No sessions found")
			return nil
		}
		for _, item := range items {
			fmt.Printf("%s %s\n", boldStyle.Sprint(item.ID),
				mutedStyle.Sprintf("(%s)", formatTimeAgo(item.LastUpdatedAt)))
			if item.Purpose != "" {
				fmt.Printf("  %s\n", item.Purpose)
			}
		}
		return nil
	},
}

var flagSessionShowJSON bool

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session's turns and state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		sess, err := a.store.Find(args[0])
		if err != nil {
			return err
		}
		if flagSessionShowJSON {
			return printJSON(sess)
		}

		fmt.Printf("%s %s\n", boldStyle.Sprint(sess.ID),
			mutedStyle.Sprintf("(created %s)", sess.CreatedAt.Format("2006-01-02 15:04:05")))
		fmt.Printf("  Purpose: %s\n", sess.Purpose)
		if sess.Background != "" {
			fmt.Printf("  Background: %s\n", sess.Background)
		}
		if len(sess.References) > 0 {
			fmt.Printf("  References: %d\n", len(sess.References))
		}
		fmt.Printf("  Tokens: %d (%d cached)\n", sess.TokenCount, sess.CachedContentTokenCount)
		fmt.Println()

		if len(sess.Turns) == 0 {
			fmt.Println(mutedStyle.Sprint("  No turns yet"))
		}
		for i, turn := range sess.Turns {
			printTurn(i, &turn)
		}
		if len(sess.Pools) > 0 {
			fmt.Println()
			fmt.Println(mutedStyle.Sprintf("  %d pooled turns pending commit", len(sess.Pools)))
		}
		return nil
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session, its children, and their backups",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted session %s\n", args[0])
		return nil
	},
}

var (
	flagEditTurn        int
	flagEditText        string
	flagEditDeleteTurns string
	flagEditPurpose     string
	flagEditBackground  string
)

var sessionEditCmd = &cobra.Command{
	Use:   "edit <session-id>",
	Short: "Edit committed turns or session metadata",
	Long: `Edit rewrites one committed turn (--turn with --text), deletes turns
by index (--delete-turns), or updates session metadata (--purpose,
--background). A backup of the current state is taken before each edit;
see 'conductor session backups'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		id := args[0]

		switch {
		case flagEditTurn >= 0:
			if flagEditText == "" {
				return conductor.NewValidationError("text", "is required with --turn")
			}
			if err := a.store.EditTurn(id, flagEditTurn, flagEditText); err != nil {
				return err
			}
			fmt.Printf("Edited turn %d of %s\n", flagEditTurn, id)
		case flagEditDeleteTurns != "":
			indices, err := parseIndices(flagEditDeleteTurns)
			if err != nil {
				return err
			}
			if err := a.store.DeleteTurns(id, indices); err != nil {
				return err
			}
			fmt.Printf("Deleted %d turns from %s\n", len(indices), id)
		case flagEditPurpose != "" || flagEditBackground != "":
			_, err := a.store.UpdateWithBackup(id, func(s *session.Session) error {
				if flagEditPurpose != "" {
					s.Purpose = flagEditPurpose
				}
				if flagEditBackground != "" {
					s.Background = flagEditBackground
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Printf("Updated metadata of %s\n", id)
		default:
			return conductor.NewValidationError("edit",
				"give --turn with --text, --delete-turns, or --purpose/--background")
		}
		return nil
	},
}

var sessionBackupsCmd = &cobra.Command{
	Use:   "backups <session-id>",
	Short: "List point-in-time backups of a session, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		backups, err := a.store.Backups(args[0])
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			fmt.Println("No backups found")
			return nil
		}
		for _, name := range backups {
			fmt.Println(name)
		}
		return nil
	},
}

var (
	flagCompactFrom    int
	flagCompactTo      int
	flagCompactSummary string
)

var sessionCompactCmd = &cobra.Command{
	Use:   "compact <session-id>",
	Short: "Replace a turn range with a summary",
	Long: `Compact collapses the committed turns in [--from, --to] into a single
summary turn that records the replaced range. A backup is taken first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if flagCompactSummary == "" {
			return conductor.NewValidationError("summary", "must not be empty")
		}
		id := args[0]
		if err := a.store.ReplaceRangeWithSummary(id, flagCompactFrom, flagCompactTo, flagCompactSummary); err != nil {
			return err
		}
		fmt.Printf("Compacted turns %d-%d of %s\n", flagCompactFrom, flagCompactTo, id)
		return nil
	},
}

func init() {
	sessionShowCmd.Flags().BoolVar(&flagSessionShowJSON, "json", false, "Print the raw session JSON")

	sessionEditCmd.Flags().IntVar(&flagEditTurn, "turn", -1, "Index of the turn to rewrite")
	sessionEditCmd.Flags().StringVar(&flagEditText, "text", "", "Replacement text for --turn")
	sessionEditCmd.Flags().StringVar(&flagEditDeleteTurns, "delete-turns", "", "Comma-separated turn indices to delete")
	sessionEditCmd.Flags().StringVar(&flagEditPurpose, "purpose", "", "New purpose")
	sessionEditCmd.Flags().StringVar(&flagEditBackground, "background", "", "New background")

	sessionCompactCmd.Flags().IntVar(&flagCompactFrom, "from", 0, "First turn index of the range")
	sessionCompactCmd.Flags().IntVar(&flagCompactTo, "to", 0, "Last turn index of the range (inclusive)")
	sessionCompactCmd.Flags().StringVar(&flagCompactSummary, "summary", "", "Summary text replacing the range")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	sessionCmd.AddCommand(sessionEditCmd)
	sessionCmd.AddCommand(sessionBackupsCmd)
	sessionCmd.AddCommand(sessionCompactCmd)
}

// printTurn writes one indexed line per turn, with content clipped for
// terminal listing.
func printTurn(index int, turn *session.Turn) {
	label := mutedStyle.Sprintf("%3d", index)
	switch turn.Type {
	case session.TurnTypeUserTask:
		fmt.Printf("%s %s %s\n", label, boldStyle.Sprint("user"), firstLine(turn.Instruction, 100))
	case session.TurnTypeModelResponse:
		fmt.Printf("%s %s %s\n", label, successStyle.Sprint("model"), firstLine(turn.Content, 100))
	case session.TurnTypeFunctionCalling:
		fmt.Printf("%s %s %s\n", label, toolStyle.Sprint("call"), firstLine(turn.Call, 100))
	case session.TurnTypeToolResponse:
		mark := successStyle.Sprint("✓")
		message := ""
		if turn.Outcome != nil {
			message = turn.Outcome.Message
			if !turn.Outcome.Succeeded() {
				mark = failureStyle.Sprint("✗")
			}
		}
		fmt.Printf("%s %s %s %s\n", label, mark, turn.ToolName, firstLine(message, 90))
	case session.TurnTypeCompressedHistory:
		fmt.Printf("%s %s %s\n", label, mutedStyle.Sprint("summary"), firstLine(turn.Content, 100))
	default:
		fmt.Printf("%s %s\n", label, string(turn.Type))
	}
}

// parseIndices parses a comma-separated list of non-negative integers.
func parseIndices(value string) ([]int, error) {
	parts := splitList(value)
	if len(parts) == 0 {
		return nil, conductor.NewValidationError("indices", "must not be empty")
	}
	indices := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, conductor.NewValidationError("indices", fmt.Sprintf("%q is not an integer", part))
		}
		indices = append(indices, n)
	}
	return indices, nil
}

// formatTimeAgo renders a timestamp as a relative age for listings.
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
