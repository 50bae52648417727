// Package prompt assembles the structured prompt sent to the model on
// every loop iteration. The assembler produces a Prompt value; transports
// render it into their own wire shape.
package prompt

import (
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/conductor/session"
)

// SessionGoal restates why the session exists.
type SessionGoal struct {
	Purpose    string `json:"purpose"`
	Background string `json:"background,omitempty"`
}

// ProcessingConfig surfaces session processing switches to the model.
type ProcessingConfig struct {
	MultiStepReasoningActive bool `json:"multi_step_reasoning_active"`
}

// Constraints collect the behavioral guardrails for this run.
type Constraints struct {
	Language         string             `json:"language,omitempty"`
	Hyperparameters  map[string]float64 `json:"hyperparameters,omitempty"`
	ProcessingConfig ProcessingConfig   `json:"processing_config"`
}

// RoleDefinition is one role file, inlined.
type RoleDefinition struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Roles wraps the role definitions section.
type Roles struct {
	Definitions []RoleDefinition `json:"definitions"`
}

// FileReference is one active reference with its contents read at render
// time.
type FileReference struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ConversationHistory carries the pruned history turns, chronological.
type ConversationHistory struct {
	Turns session.TurnList `json:"turns"`
}

// CurrentTask is the instruction the model must answer now.
type CurrentTask struct {
	Instruction string `json:"instruction"`
}

// Artifact is a produced or consumed file inlined into the prompt.
type Artifact struct {
	Path     string `json:"path"`
	Contents string `json:"contents"`
}

// Prompt is the full structured prompt. Field order mirrors the rendered
// section order.
type Prompt struct {
	MainInstruction     string              `json:"main_instruction,omitempty"`
	SessionGoal         SessionGoal         `json:"session_goal"`
	Constraints         Constraints         `json:"constraints"`
	Roles               Roles               `json:"roles"`
	FileReferences      []FileReference     `json:"file_references,omitempty"`
	Todos               []session.TodoItem  `json:"todos,omitempty"`
	ConversationHistory ConversationHistory `json:"conversation_history"`
	CurrentTask         CurrentTask         `json:"current_task"`
	Artifacts           []Artifact          `json:"artifacts,omitempty"`
	Procedure           string              `json:"procedure,omitempty"`
	CurrentDatetime     string              `json:"current_datetime"`
	ReasoningProcess    string              `json:"reasoning_process,omitempty"`
}

// Render flattens the prompt into the plain-text form used by text-only
// transports and token estimation. Empty sections are omitted.
func (p *Prompt) Render() string {
	var b strings.Builder

	section := func(title, body string) {
		if body == "" {
			return
		}
		b.WriteString("## ")
		b.WriteString(title)
		b.WriteString("\n\n")
		b.WriteString(strings.TrimRight(body, "\n"))
		b.WriteString("\n\n")
	}

	section("Instructions", p.MainInstruction)

	goal := "Purpose: " + p.SessionGoal.Purpose
	if p.SessionGoal.Background != "" {
		goal += "\nBackground: " + p.SessionGoal.Background
	}
	section("Session Goal", goal)

	var constraints strings.Builder
	if p.Constraints.Language != "" {
		fmt.Fprintf(&constraints, "Respond in %s.\n", p.Constraints.Language)
	}
	if p.Constraints.ProcessingConfig.MultiStepReasoningActive {
		constraints.WriteString("Multi-step reasoning is active.\n")
	}
	section("Constraints", constraints.String())

	var roles strings.Builder
	for _, role := range p.Roles.Definitions {
		fmt.Fprintf(&roles, "### %s\n\n%s\n\n", role.Path, strings.TrimRight(role.Content, "\n"))
	}
	section("Roles", strings.TrimRight(roles.String(), "\n"))

	var refs strings.Builder
	for _, ref := range p.FileReferences {
		fmt.Fprintf(&refs, "### %s\n\n%s\n\n", ref.Path, strings.TrimRight(ref.Content, "\n"))
	}
	section("File References", strings.TrimRight(refs.String(), "\n"))

	if len(p.Todos) > 0 {
		var todos strings.Builder
		for _, todo := range p.Todos {
			mark := " "
			if todo.Checked {
				mark = "x"
			}
			fmt.Fprintf(&todos, "- [%s] %s", mark, todo.Title)
			if todo.Description != "" {
				fmt.Fprintf(&todos, ": %s", todo.Description)
			}
			todos.WriteString("\n")
		}
		section("Todos", todos.String())
	}

	section("Procedure", p.Procedure)

	if len(p.ConversationHistory.Turns) > 0 {
		var history strings.Builder
		for _, turn := range p.ConversationHistory.Turns {
			history.WriteString(renderTurn(turn))
			history.WriteString("\n")
		}
		section("Conversation History", history.String())
	}

	if len(p.Artifacts) > 0 {
		var artifacts strings.Builder
		for _, artifact := range p.Artifacts {
			fmt.Fprintf(&artifacts, "### %s\n\n%s\n\n", artifact.Path, strings.TrimRight(artifact.Contents, "\n"))
		}
		section("Artifacts", strings.TrimRight(artifacts.String(), "\n"))
	}

	section("Reasoning Process", p.ReasoningProcess)
	section("Current Datetime", p.CurrentDatetime)
	section("Current Task", p.CurrentTask.Instruction)

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func renderTurn(t session.Turn) string {
	switch t.Type {
	case session.TurnTypeUserTask:
		return "[user] " + t.Instruction
	case session.TurnTypeModelResponse:
		return "[model] " + t.Content
	case session.TurnTypeFunctionCalling:
		return "[tool call] " + t.Call
	case session.TurnTypeToolResponse:
		status := ""
		message := ""
		if t.Outcome != nil {
			status = t.Outcome.Status
			message = t.Outcome.Message
		}
		return fmt.Sprintf("[tool %s %s] %s", t.ToolName, status, message)
	case session.TurnTypeCompressedHistory:
		return "[summary] " + t.Content
	}
	return ""
}
