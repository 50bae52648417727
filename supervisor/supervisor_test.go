package supervisor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/agent"
	"github.com/deepnoodle-ai/conductor/log"
	"github.com/deepnoodle-ai/conductor/session"
	"github.com/stretchr/testify/require"
)

func newTestSupervisor(t *testing.T, opts ...Option) (*Supervisor, *session.Store) {
	t.Helper()
	store, err := session.NewStore(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)
	return New(store, opts...), store
}

func createSession(t *testing.T, store *session.Store) *session.Session {
	t.Helper()
	sess, err := store.Create(session.CreateOptions{Purpose: "supervised"})
	require.NoError(t, err)
	return sess
}

func TestIsRunningNoPIDFile(t *testing.T) {
	sup, store := newTestSupervisor(t)
	sess := createSession(t, store)

	running, err := sup.IsRunning(sess.ID)
	require.NoError(t, err)
	require.False(t, running)
}

func TestIsRunningLiveProcess(t *testing.T) {
	sup, store := newTestSupervisor(t)
	sess := createSession(t, store)
	require.NoError(t, agent.WritePIDFile(store.Root(), sess.ID, os.Getpid()))

	running, err := sup.IsRunning(sess.ID)
	require.NoError(t, err)
	require.True(t, running)
}

func TestIsRunningStalePIDFileRemoved(t *testing.T) {
	sup, store := newTestSupervisor(t)
	sess := createSession(t, store)
	// PIDs near the ceiling are almost never in use.
	require.NoError(t, agent.WritePIDFile(store.Root(), sess.ID, 4194000))

	running, err := sup.IsRunning(sess.ID)
	require.NoError(t, err)
	require.False(t, running)

	_, err = os.Stat(agent.PIDFilePath(store.Root(), sess.ID))
	require.True(t, os.IsNotExist(err))
}

func TestIsRunningMalformedPIDFileRemoved(t *testing.T) {
	sup, store := newTestSupervisor(t)
	sess := createSession(t, store)
	path := agent.PIDFilePath(store.Root(), sess.ID)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("not a pid\n"), 0o644))

	running, err := sup.IsRunning(sess.ID)
	require.NoError(t, err)
	require.False(t, running)

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestStopWithDeadProcessRollsBackPool(t *testing.T) {
	sup, store := newTestSupervisor(t)
	sess := createSession(t, store)
	_, err := store.AppendPool(sess.ID,
		session.NewUserTask("interrupted work", store.Now()))
	require.NoError(t, err)
	require.NoError(t, agent.WritePIDFile(store.Root(), sess.ID, 4194000))

	require.NoError(t, sup.Stop(sess.ID))

	reloaded, err := store.Find(sess.ID)
	require.NoError(t, err)
	require.Empty(t, reloaded.Pools)
	require.Empty(t, reloaded.Turns)

	_, err = os.Stat(agent.PIDFilePath(store.Root(), sess.ID))
	require.True(t, os.IsNotExist(err))
}

func TestStopWithoutPIDFileStillRollsBack(t *testing.T) {
	sup, store := newTestSupervisor(t)
	sess := createSession(t, store)
	_, err := store.AppendPool(sess.ID,
		session.NewUserTask("abandoned", store.Now()))
	require.NoError(t, err)

	require.NoError(t, sup.Stop(sess.ID))

	reloaded, err := store.Find(sess.ID)
	require.NoError(t, err)
	require.Empty(t, reloaded.Pools)
}

func TestStopUnknownSession(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	err := sup.Stop("doesnotexist")
	require.ErrorIs(t, err, conductor.ErrNotFound)
}

func TestStopKillsLiveProcess(t *testing.T) {
	sup, store := newTestSupervisor(t, WithStopTimeout(2*time.Second))
	sess := createSession(t, store)

	cmd := exec.Command("sleep", "60")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	require.NoError(t, cmd.Start())
	// Reap promptly so the child does not linger as a zombie, which
	// signal probes would still report alive.
	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()

	require.NoError(t, agent.WritePIDFile(store.Root(), sess.ID, cmd.Process.Pid))
	_, err := store.AppendPool(sess.ID,
		session.NewUserTask("long running", store.Now()))
	require.NoError(t, err)

	require.NoError(t, sup.Stop(sess.ID))

	select {
	case err := <-waited:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after stop")
	}
	require.False(t, processAlive(cmd.Process.Pid))

	reloaded, err := store.Find(sess.ID)
	require.NoError(t, err)
	require.Empty(t, reloaded.Pools)

	_, err = os.Stat(agent.PIDFilePath(store.Root(), sess.ID))
	require.True(t, os.IsNotExist(err))
}

func TestStartRefusesSecondAgent(t *testing.T) {
	sup, store := newTestSupervisor(t)
	sess := createSession(t, store)
	require.NoError(t, agent.WritePIDFile(store.Root(), sess.ID, os.Getpid()))

	_, err := sup.Start(context.Background(), sess.ID, "do more")
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestStartUnknownSession(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	_, err := sup.Start(context.Background(), "doesnotexist", "hi")
	require.ErrorIs(t, err, conductor.ErrNotFound)
}

func TestStartSpawnsProcess(t *testing.T) {
	sup, store := newTestSupervisor(t, WithBinary("/bin/echo"))
	sess := createSession(t, store)

	p, err := sup.Start(context.Background(), sess.ID, "hello")
	require.NoError(t, err)
	require.Greater(t, p.PID(), 0)
	require.Equal(t, sess.ID, p.SessionID())

	// echo prints its arguments, which are not JSON, so the stream
	// yields nothing.
	var events []*agent.Event
	for event := range p.Events() {
		events = append(events, event)
	}
	require.Empty(t, events)
	require.NoError(t, p.Wait())
}

func TestStatusAndList(t *testing.T) {
	sup, store := newTestSupervisor(t)
	running := createSession(t, store)
	idle := createSession(t, store)
	require.NoError(t, agent.WritePIDFile(store.Root(), running.ID, os.Getpid()))

	status, err := sup.Status(running.ID)
	require.NoError(t, err)
	require.True(t, status.Running)
	require.Equal(t, os.Getpid(), status.PID)

	status, err = sup.Status(idle.ID)
	require.NoError(t, err)
	require.False(t, status.Running)
	require.Zero(t, status.PID)

	statuses, err := sup.List()
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	byID := map[string]Status{}
	for _, st := range statuses {
		byID[st.SessionID] = st
	}
	require.True(t, byID[running.ID].Running)
	require.False(t, byID[idle.ID].Running)
}

func TestDecodeEvents(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"run_started","run_id":"r1","session_id":"s1","timestamp":"2026-03-01T10:00:00Z","instruction":"hi"}`,
		``,
		`this line is not json`,
		`{"type":"run_finished","run_id":"r1","timestamp":"2026-03-01T10:00:05Z","text":"done"}`,
	}, "\n")

	events := make(chan *agent.Event, 8)
	decodeEvents(strings.NewReader(input), events, log.NewNullLogger())
	close(events)

	var got []*agent.Event
	for event := range events {
		got = append(got, event)
	}
	require.Len(t, got, 2)
	require.Equal(t, agent.EventRunStarted, got[0].Type)
	require.Equal(t, "hi", got[0].Instruction)
	require.Equal(t, agent.EventRunFinished, got[1].Type)
	require.Equal(t, "done", got[1].Text)
}

func TestProcessAlive(t *testing.T) {
	require.True(t, processAlive(os.Getpid()))
	require.False(t, processAlive(0))
	require.False(t, processAlive(-5))
	require.False(t, processAlive(4194000))
}
