package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/deepnoodle-ai/conductor/agent"
	"github.com/deepnoodle-ai/conductor/log"
)

// Process is a spawned agent. Events carries the agent's streamed run
// events until its stdout closes; Wait blocks for exit.
type Process struct {
	sessionID string
	cmd       *exec.Cmd
	events    chan *agent.Event
	done      chan struct{}
	err       error
}

// SessionID returns the session the process is running against.
func (p *Process) SessionID() string { return p.sessionID }

// PID returns the operating system process ID.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Events returns the agent's event stream. The channel closes when the
// process closes its stdout.
func (p *Process) Events() <-chan *agent.Event { return p.events }

// Wait blocks until the process exits and returns its exit error.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Start launches an agent process for the session. The session must
// exist, and no other agent may be running against it. The child is a
// re-invocation of the supervisor's binary with the run subcommand; it
// writes its own PID file and streams run events as JSON lines on
// stdout.
func (s *Supervisor) Start(ctx context.Context, sessionID, instruction string) (*Process, error) {
	if _, err := s.store.Find(sessionID); err != nil {
		return nil, err
	}
	running, err := s.IsRunning(sessionID)
	if err != nil {
		return nil, err
	}
	if running {
		return nil, ErrAlreadyRunning
	}
	binary := s.binary
	if binary == "" {
		binary, err = os.Executable()
		if err != nil {
			return nil, err
		}
	}
	cmd := exec.CommandContext(ctx, binary,
		"run",
		"--session", sessionID,
		"--instruction", instruction,
		"--output-format", "stream-json",
	)
	// Own process group, so Stop can signal the agent and anything it
	// spawned in one shot.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = s.stopTimeout
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	s.logger.Info("started agent",
		"session_id", sessionID, "pid", cmd.Process.Pid, "binary", binary)
	p := &Process{
		sessionID: sessionID,
		cmd:       cmd,
		events:    make(chan *agent.Event, 16),
		done:      make(chan struct{}),
	}
	go func() {
		decodeEvents(stdout, p.events, s.logger)
		close(p.events)
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// decodeEvents reads newline-delimited JSON run events from r and sends
// them on events. Blank lines and undecodable lines are skipped.
func decodeEvents(r io.Reader, events chan<- *agent.Event, logger log.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event agent.Event
		if err := json.Unmarshal(line, &event); err != nil {
			logger.Debug("skipping undecodable event line", "error", err)
			continue
		}
		events <- &event
	}
	if err := scanner.Err(); err != nil {
		logger.Debug("event stream read failed", "error", err)
	}
}
