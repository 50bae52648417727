package main

import (
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/conductor"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools available to the agent",
	Long: `Tools lists every registered tool after the allow/deny patterns from
settings are applied, including tools contributed by configured MCP
servers. Tools marked "confirm" ask before executing unless yolo mode
is on.`,
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

		for _, tool := range registry.Tools() {
			fmt.Printf("%s %s\n", boldStyle.Sprint(tool.Name()), annotationTags(tool))
			if desc := firstLine(tool.Description(), 100); desc != "" {
				fmt.Printf("  %s\n", desc)
			}
		}
		return nil
	},
}

func annotationTags(tool conductor.Tool) string {
	a := tool.Annotations()
	if a == nil {
		return ""
	}
	var tags []string
	if a.ReadOnlyHint {
		tags = append(tags, "read-only")
	}
	if a.DestructiveHint || a.OpenWorldHint {
		tags = append(tags, "confirm")
	}
	if a.IdempotentHint {
		tags = append(tags, "idempotent")
	}
	if len(tags) == 0 {
		return ""
	}
	return mutedStyle.Sprintf("[%s]", strings.Join(tags, ", "))
}
