package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/deepnoodle-ai/conductor/agent"
	"github.com/fatih/color"
)

var (
	boldStyle    = color.New(color.Bold)
	toolStyle    = color.New(color.FgMagenta)
	successStyle = color.New(color.FgGreen)
	failureStyle = color.New(color.FgRed)
	mutedStyle   = color.New(color.FgWhite, color.Faint)
)

// renderTextEvent prints one run event for a terminal. Model text streams
// through verbatim; tool activity gets its own status lines.
func renderTextEvent(e *agent.Event) {
	switch e.Type {
	case agent.EventRunStarted:
		fmt.Println(mutedStyle.Sprintf("session %s", e.SessionID))
	case agent.EventModelEvent:
		fmt.Print(e.Delta)
	case agent.EventToolCall:
		fmt.Printf("\n%s\n", toolStyle.Sprintf("→ %s(%s)", e.ToolName, compactJSON(e.ToolArgs)))
	case agent.EventToolResult:
		if e.Outcome.Succeeded() {
			fmt.Printf("%s %s\n", successStyle.Sprint("✓"), firstLine(e.Outcome.Message, 120))
		} else {
			fmt.Printf("%s %s\n", failureStyle.Sprint("✗"), firstLine(e.Outcome.Message, 120))
		}
	case agent.EventRunFinished:
		fmt.Println()
	case agent.EventRunError:
		fmt.Fprintln(os.Stderr, failureStyle.Sprintf("run failed: %s", e.Error))
	}
}

// renderTextResult prints the post-run footer. Dry runs carry the
// assembled prompt instead of an answer.
func renderTextResult(r *agent.RunResult) {
	if r == nil {
		return
	}
	if r.Prompt != "" {
		fmt.Println(r.Prompt)
		return
	}
	fmt.Println(mutedStyle.Sprintf("%d turns · %d in / %d out tokens",
		r.Turns, r.Usage.InputTokens, r.Usage.OutputTokens))
}

// renderStreamEvent writes one event as a line of JSON on stdout.
func renderStreamEvent(e *agent.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(os.Stdout, "%s\n", data)
}

// printJSON pretty-prints v on stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// compactJSON renders raw JSON on a single truncated line for status output.
func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return firstLine(string(raw), 80)
	}
	return firstLine(buf.String(), 80)
}

// firstLine clips s to its first line and at most max runes.
func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max]) + "…"
	}
	return s
}
