package conductor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// Confirmer abstracts user confirmation prompts for destructive tool calls.
type Confirmer interface {
	// Confirm presents a request to the user and returns true if the user
	// confirms, false otherwise.
	Confirm(ctx context.Context, tool Tool, summary string) (bool, error)
}

// AutoApproveConfirmer always approves confirmation requests.
type AutoApproveConfirmer struct{}

func (a *AutoApproveConfirmer) Confirm(ctx context.Context, tool Tool, summary string) (bool, error) {
	return true, nil
}

// DenyAllConfirmer always denies confirmation requests.
type DenyAllConfirmer struct{}

func (d *DenyAllConfirmer) Confirm(ctx context.Context, tool Tool, summary string) (bool, error) {
	return false, nil
}

// TerminalConfirmer prompts on the terminal and reads a y/n answer from
// stdin. Only usable when stdin is interactive.
type TerminalConfirmer struct{}

func (t *TerminalConfirmer) Confirm(ctx context.Context, tool Tool, summary string) (bool, error) {
	fmt.Fprintf(os.Stderr, "%s requests:\n%s\nProceed? [y/N]: ", tool.Name(), summary)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// NewConfirmer returns a Confirmer implementation based on the mode string.
// Supported modes: "auto", "deny", "terminal"
func NewConfirmer(mode string) (Confirmer, error) {
	switch mode {
	case "auto":
		return &AutoApproveConfirmer{}, nil
	case "deny":
		return &DenyAllConfirmer{}, nil
	case "terminal":
		return &TerminalConfirmer{}, nil
	default:
		return nil, fmt.Errorf("invalid confirmer mode: %s", mode)
	}
}
