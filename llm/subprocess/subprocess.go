// Package subprocess implements the llm interfaces by shelling out to an
// external model CLI. The rendered prompt goes to the child's stdin and
// its stdout is streamed back as the response text. Tool calls do not
// flow through this transport: an external CLI reaches tools through the
// stdio MCP server, keyed by the session ID in the child's environment.
package subprocess

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/llm"
	"github.com/deepnoodle-ai/conductor/log"
	"github.com/deepnoodle-ai/conductor/tokens"
)

// SessionEnvVar carries the session ID to the child process so the MCP
// server it spawns can find the session.
const SessionEnvVar = "CONDUCTOR_SESSION_ID"

var _ llm.Streamer = &Model{}

// Model runs one command per generation.
type Model struct {
	command   []string
	env       []string
	logger    log.Logger
	estimator *tokens.Estimator
}

// Option configures a Model.
type Option func(*Model)

// WithEnv appends KEY=VALUE pairs to the child environment.
func WithEnv(env ...string) Option {
	return func(m *Model) { m.env = append(m.env, env...) }
}

// WithSessionID sets the session environment variable for the child.
func WithSessionID(sessionID string) Option {
	return func(m *Model) {
		m.env = append(m.env, SessionEnvVar+"="+sessionID)
	}
}

// WithLogger sets the model logger.
func WithLogger(logger log.Logger) Option {
	return func(m *Model) { m.logger = logger }
}

// New creates a Model that invokes command for each generation.
func New(command []string, opts ...Option) (*Model, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("subprocess model requires a command")
	}
	m := &Model{
		command:   command,
		logger:    log.NewNullLogger(),
		estimator: tokens.Get(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Model) Name() string {
	return "subprocess"
}

func (m *Model) SupportsStreaming() bool {
	return true
}

// Generate runs the command to completion and returns its stdout.
func (m *Model) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	stream, err := m.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return llm.Drain(ctx, stream)
}

// Stream starts the command and yields stdout chunks as delta events.
func (m *Model) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	input := renderRequest(req)

	cmd := exec.CommandContext(ctx, m.command[0], m.command[1:]...)
	cmd.Env = append(os.Environ(), m.env...)
	cmd.Stdin = strings.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, conductor.NewTransportError(err, false)
	}
	if err := cmd.Start(); err != nil {
		// Startup failures are almost always a missing or broken binary,
		// which a retry will not fix.
		return nil, conductor.NewTransportError(fmt.Errorf("failed to start %s: %w", m.command[0], err), false)
	}
	m.logger.Debug("subprocess model started", "command", m.command[0], "pid", cmd.Process.Pid)

	return &processStream{
		cmd:         cmd,
		stdout:      stdout,
		stderr:      &stderr,
		inputTokens: m.estimator.Count(input),
		estimator:   m.estimator,
	}, nil
}

// renderRequest flattens the request into the plain-text protocol the
// child reads on stdin.
func renderRequest(req *llm.Request) string {
	var b strings.Builder
	if req.System != "" {
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}
	for _, message := range req.Messages {
		fmt.Fprintf(&b, "[%s] %s\n", message.Role, message.Text)
	}
	return b.String()
}

type processStream struct {
	cmd         *exec.Cmd
	stdout      io.ReadCloser
	stderr      *bytes.Buffer
	inputTokens int
	estimator   *tokens.Estimator
	text        strings.Builder
	buf         [4096]byte
	err         error
	done        bool
	waited      bool
}

func (s *processStream) Next(ctx context.Context) (*llm.Event, bool) {
	for {
		if s.done || s.err != nil {
			return nil, false
		}
		if ctx.Err() != nil {
			s.err = ctx.Err()
			s.finish()
			return nil, false
		}

		n, err := s.stdout.Read(s.buf[:])
		if n > 0 {
			chunk := string(s.buf[:n])
			s.text.WriteString(chunk)
			return &llm.Event{Type: llm.EventDelta, Text: chunk}, true
		}
		if err == io.EOF {
			s.done = true
			if waitErr := s.wait(); waitErr != nil {
				s.err = waitErr
				return nil, false
			}
			text := strings.TrimRight(s.text.String(), "\n")
			outputTokens := s.estimator.Count(text)
			return &llm.Event{
				Type: llm.EventDone,
				Response: &llm.Response{
					Text:       text,
					StopReason: llm.StopEndTurn,
					Usage: llm.Usage{
						InputTokens:  s.inputTokens,
						OutputTokens: outputTokens,
						TotalTokens:  s.inputTokens + outputTokens,
					},
				},
			}, true
		}
		if err != nil {
			s.err = conductor.NewTransportError(err, false)
			s.finish()
			return nil, false
		}
	}
}

func (s *processStream) wait() error {
	if s.waited {
		return nil
	}
	s.waited = true
	if err := s.cmd.Wait(); err != nil {
		detail := strings.TrimSpace(s.stderr.String())
		if detail != "" {
			err = fmt.Errorf("%w: %s", err, detail)
		}
		// A crashed CLI is usually worth one more attempt.
		return conductor.NewTransportError(err, true)
	}
	return nil
}

func (s *processStream) finish() {
	s.stdout.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.wait()
}

func (s *processStream) Err() error {
	return s.err
}

func (s *processStream) Close() error {
	if !s.done {
		s.done = true
		s.finish()
	}
	return nil
}
