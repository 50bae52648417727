package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/deepnoodle-ai/conductor/config"
	"github.com/deepnoodle-ai/conductor/log"
	"github.com/deepnoodle-ai/conductor/session"
	"github.com/deepnoodle-ai/conductor/tokens"
)

// reasoningBoilerplate is inserted when multi-step reasoning is enabled.
const reasoningBoilerplate = `Before answering, work through the task deliberately:
1. Restate the task in your own words and note what a complete answer requires.
2. List the facts you already have from the history, references, and tool responses.
3. Identify what is missing and whether a tool call can supply it.
4. Only after the gaps are closed, compose the final answer.`

// Assembler builds Prompt values from session state. All file reads are
// confined to the project root; paths resolving outside it are skipped
// silently.
type Assembler struct {
	root      string
	logger    log.Logger
	estimator *tokens.Estimator
	now       func() time.Time
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithLogger sets the assembler logger.
func WithLogger(logger log.Logger) AssemblerOption {
	return func(a *Assembler) { a.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) AssemblerOption {
	return func(a *Assembler) { a.now = now }
}

// NewAssembler creates an Assembler rooted at the project directory.
func NewAssembler(root string, opts ...AssemblerOption) (*Assembler, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	a := &Assembler{
		root:      abs,
		logger:    log.NewNullLogger(),
		estimator: tokens.Get(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Root returns the project root all file reads are confined to.
func (a *Assembler) Root() string { return a.root }

// Assemble builds the prompt for one loop iteration. currentInstruction
// is the instruction being answered now; when empty, a trailing user_task
// turn supplies it.
func (a *Assembler) Assemble(sess *session.Session, settings *config.Settings, currentInstruction string) *Prompt {
	history := sess.FullHistory().GetForPrompt(settings.ToolResponseLimit)

	instruction := currentInstruction
	if instruction == "" {
		if pending, ok := history.LastUserTask(); ok {
			instruction = pending
		}
	}
	// The current instruction lives in current_task, not in the history.
	if n := len(history); n > 0 &&
		history[n-1].Type == session.TurnTypeUserTask &&
		history[n-1].Instruction == instruction {
		history = history[:n-1]
	}

	p := &Prompt{
		MainInstruction: settings.MainInstruction,
		SessionGoal: SessionGoal{
			Purpose:    sess.Purpose,
			Background: sess.Background,
		},
		Constraints: Constraints{
			Language:        settings.Language,
			Hyperparameters: effectiveHyperparameters(sess, settings),
			ProcessingConfig: ProcessingConfig{
				MultiStepReasoningActive: sess.MultiStepReasoning,
			},
		},
		Roles:               Roles{Definitions: a.readRoles(sess.Roles)},
		FileReferences:      a.readReferences(sess.References),
		Todos:               sess.Todos,
		ConversationHistory: ConversationHistory{Turns: history},
		CurrentTask:         CurrentTask{Instruction: instruction},
		Artifacts:           a.readArtifacts(sess.Artifacts),
		Procedure:           a.readProcedure(sess.Procedure),
		CurrentDatetime:     a.now().In(settings.Location()).Format(time.RFC3339),
	}
	if sess.MultiStepReasoning {
		p.ReasoningProcess = reasoningBoilerplate
	}
	return p
}

// EstimateTokens estimates the rendered prompt size.
func (a *Assembler) EstimateTokens(p *Prompt) int {
	return a.estimator.Count(p.Render())
}

func effectiveHyperparameters(sess *session.Session, settings *config.Settings) map[string]float64 {
	out := map[string]float64{}
	put := func(key string, defaultValue, override *float64) {
		v := defaultValue
		if override != nil {
			v = override
		}
		if v != nil {
			out[key] = *v
		}
	}
	var temp, topP, topK *float64
	if h := sess.Hyperparameters; h != nil {
		temp, topP, topK = h.Temperature, h.TopP, h.TopK
	}
	put("temperature", settings.Temperature(), temp)
	put("top_p", settings.TopP(), topP)
	put("top_k", settings.TopK(), topK)
	if len(out) == 0 {
		return nil
	}
	return out
}

func (a *Assembler) readRoles(paths []string) []RoleDefinition {
	defs := make([]RoleDefinition, 0, len(paths))
	for _, path := range paths {
		content, ok := a.readWithinRoot(path)
		if !ok {
			continue
		}
		defs = append(defs, RoleDefinition{Path: path, Content: content})
	}
	return defs
}

func (a *Assembler) readReferences(refs session.ReferenceList) []FileReference {
	var out []FileReference
	for _, ref := range refs {
		if !ref.Active() {
			continue
		}
		content, ok := a.readWithinRoot(ref.Path)
		if !ok {
			continue
		}
		out = append(out, FileReference{Path: ref.Path, Content: content})
	}
	return out
}

func (a *Assembler) readArtifacts(paths []string) []Artifact {
	var out []Artifact
	for _, path := range paths {
		contents, ok := a.readWithinRoot(path)
		if !ok {
			continue
		}
		out = append(out, Artifact{Path: path, Contents: contents})
	}
	return out
}

// readProcedure treats the procedure as a file path when it resolves to a
// readable file inside the root, and as inline text otherwise.
func (a *Assembler) readProcedure(procedure string) string {
	if procedure == "" {
		return ""
	}
	if content, ok := a.readWithinRoot(procedure); ok {
		return content
	}
	return procedure
}

// readWithinRoot reads a file confined to the project root. Relative
// paths resolve against the root. Escapes and read failures return false.
func (a *Assembler) readWithinRoot(path string) (string, bool) {
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(a.root, resolved)
	}
	resolved = filepath.Clean(resolved)
	rel, err := filepath.Rel(a.root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		a.logger.Debug("skipping path outside project root", "path", path)
		return "", false
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		a.logger.Debug("skipping unreadable file", "path", path, "error", err)
		return "", false
	}
	return string(data), true
}
