// Package supervisor manages agent processes: one per active session,
// tracked through PID files under the sessions root. It enforces the
// single-writer rule (a session refuses a second agent) and guarantees
// that stopping a process rolls the session pool back, so killed runs
// never leave half-finished turn sequences behind.
package supervisor

import (
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/deepnoodle-ai/conductor/agent"
	"github.com/deepnoodle-ai/conductor/log"
	"github.com/deepnoodle-ai/conductor/session"
)

// ErrAlreadyRunning reports a session that already has a live agent.
var ErrAlreadyRunning = errors.New("agent already running")

// DefaultStopTimeout is how long Stop waits after SIGTERM before
// escalating to SIGKILL.
const DefaultStopTimeout = 5 * time.Second

// Supervisor starts, inspects, and stops agent processes.
type Supervisor struct {
	store       *session.Store
	binary      string
	logger      log.Logger
	stopTimeout time.Duration
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithBinary overrides the agent executable. The default is the current
// executable, re-invoked as a subcommand.
func WithBinary(path string) Option {
	return func(s *Supervisor) { s.binary = path }
}

// WithLogger sets the supervisor logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// WithStopTimeout sets the SIGTERM grace period.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.stopTimeout = d }
}

// New returns a Supervisor over the store's sessions.
func New(store *session.Store, opts ...Option) *Supervisor {
	s := &Supervisor{
		store:       store,
		logger:      log.NewNullLogger(),
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsRunning reports whether the session has a live agent process. Stale
// PID files, left by crashed agents, are cleaned up on sight.
func (s *Supervisor) IsRunning(sessionID string) (bool, error) {
	pid, err := agent.ReadPIDFile(s.store.Root(), sessionID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		if errors.Is(err, agent.ErrMalformedPIDFile) {
			s.logger.Warn("removing malformed pid file", "session_id", sessionID)
			return false, agent.RemovePIDFile(s.store.Root(), sessionID)
		}
		return false, err
	}
	if processAlive(pid) {
		return true, nil
	}
	s.logger.Debug("removing stale pid file", "session_id", sessionID, "pid", pid)
	if err := agent.RemovePIDFile(s.store.Root(), sessionID); err != nil {
		return false, err
	}
	return false, nil
}

// Status describes one session's process state.
type Status struct {
	SessionID string `json:"session_id"`
	Running   bool   `json:"running"`
	PID       int    `json:"pid,omitempty"`
}

// Status returns the process state for one session.
func (s *Supervisor) Status(sessionID string) (Status, error) {
	running, err := s.IsRunning(sessionID)
	if err != nil {
		return Status{}, err
	}
	status := Status{SessionID: sessionID, Running: running}
	if running {
		if pid, err := agent.ReadPIDFile(s.store.Root(), sessionID); err == nil {
			status.PID = pid
		}
	}
	return status, nil
}

// List returns the process state of every session in the store's index.
func (s *Supervisor) List() ([]Status, error) {
	items, err := s.store.List()
	if err != nil {
		return nil, err
	}
	statuses := make([]Status, 0, len(items))
	for _, item := range items {
		status, err := s.Status(item.ID)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Stop terminates the session's agent process if one is alive, rolls the
// session pool back, and removes the PID file, in that order. The
// rollback runs even when no process is found so an abandoned pool from
// a crash is cleared too.
func (s *Supervisor) Stop(sessionID string) error {
	pid, err := agent.ReadPIDFile(s.store.Root(), sessionID)
	switch {
	case err == nil:
		if processAlive(pid) {
			if err := s.terminate(pid); err != nil {
				return err
			}
		}
	case errors.Is(err, os.ErrNotExist), errors.Is(err, agent.ErrMalformedPIDFile):
	default:
		return err
	}
	if err := s.store.RollbackPool(sessionID); err != nil {
		return err
	}
	return agent.RemovePIDFile(s.store.Root(), sessionID)
}

// terminate signals SIGTERM, waits for exit, and escalates to SIGKILL
// when the grace period lapses. Signals target the process group the
// agent was spawned into, falling back to the single process when the
// agent was not started through the supervisor.
func (s *Supervisor) terminate(pid int) error {
	if err := signalGroup(pid, syscall.SIGTERM); err != nil {
		return err
	}
	deadline := time.Now().Add(s.stopTimeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	s.logger.Warn("process ignored SIGTERM, killing", "pid", pid)
	return signalGroup(pid, syscall.SIGKILL)
}

func signalGroup(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		if err != nil {
			err = syscall.Kill(pid, sig)
			if errors.Is(err, syscall.ESRCH) {
				return nil
			}
		}
		return err
	}
	return err
}

// processAlive reports whether pid names a live process. EPERM means the
// process exists but belongs to someone else.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if errors.Is(err, os.ErrProcessDone) {
		return false
	}
	return errors.Is(err, syscall.EPERM)
}
