package contextwindow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/deepnoodle-ai/conductor/llm"
	"github.com/deepnoodle-ai/conductor/session"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	createCalls  int
	deleteCalls  []string
	failCreate   bool
	failDelete   bool
	lastSystem   string
	lastMessages []*llm.Message
	lastTTL      time.Duration
}

func (f *fakeBackend) CreateCache(ctx context.Context, system string, messages []*llm.Message, ttl time.Duration) (string, time.Time, error) {
	f.createCalls++
	f.lastSystem = system
	f.lastMessages = messages
	f.lastTTL = ttl
	if f.failCreate {
		return "", time.Time{}, errors.New("quota exhausted")
	}
	return fmt.Sprintf("caches/test-%d", f.createCalls), time.Now().Add(ttl), nil
}

func (f *fakeBackend) DeleteCache(ctx context.Context, name string) error {
	f.deleteCalls = append(f.deleteCalls, name)
	if f.failDelete {
		return errors.New("cache already gone")
	}
	return nil
}

// chatSession builds a session with n alternating user/model turns.
func chatSession(n int) *session.Session {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sess := &session.Session{ID: "abc123def456", Purpose: "cache testing"}
	for i := 0; i < n; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		if i%2 == 0 {
			sess.Turns = append(sess.Turns, session.NewUserTask(
				fmt.Sprintf("please summarize document %d in a few sentences", i), at))
		} else {
			sess.Turns = append(sess.Turns, session.NewModelResponse(
				fmt.Sprintf("document %d covers quarterly revenue and growth targets", i), at))
		}
	}
	return sess
}

func TestRefreshRebuild(t *testing.T) {
	backend := &fakeBackend{}
	m := NewManager(backend, t.TempDir())
	sess := chatSession(4)

	decision, err := m.Refresh(context.Background(), sess, "You are a helpful analyst.", 0)
	require.NoError(t, err)
	require.True(t, decision.Rebuilt)
	require.Equal(t, "caches/test-1", decision.CacheName)
	require.Equal(t, 3, decision.CachedTurnCount)
	require.Len(t, decision.Buffered, 1)
	require.Equal(t, session.TurnTypeModelResponse, decision.Buffered[0].Type)

	// The cache bakes the static payload plus all but the last turn.
	require.Equal(t, "You are a helpful analyst.", backend.lastSystem)
	require.Len(t, backend.lastMessages, 3)
	require.Equal(t, DefaultCacheTTL, backend.lastTTL)

	// Session fields updated and the registry knows the cache.
	require.Equal(t, "caches/test-1", sess.CacheName)
	require.Equal(t, 3, sess.CachedTurnCount)
	entry, ok := m.registry.Lookup(sess.ID)
	require.True(t, ok)
	require.Equal(t, "caches/test-1", entry.Name)
	require.Equal(t, sess.ID, entry.SessionID)
	require.False(t, entry.ExpireTime.IsZero())
}

func TestRefreshRebuildDeletesOldCache(t *testing.T) {
	backend := &fakeBackend{failDelete: true}
	m := NewManager(backend, t.TempDir())
	sess := chatSession(5)
	sess.CacheName = "caches/old"
	sess.CachedTurnCount = 2

	decision, err := m.Refresh(context.Background(), sess, "system", 0)
	require.NoError(t, err)
	require.True(t, decision.Rebuilt)

	// Old cache deletion is attempted and its failure ignored.
	require.Equal(t, []string{"caches/old"}, backend.deleteCalls)
	require.Equal(t, "caches/test-1", sess.CacheName)
	require.Equal(t, 4, sess.CachedTurnCount)
	require.Len(t, decision.Buffered, 1)
}

func TestRefreshRebuildLongSession(t *testing.T) {
	backend := &fakeBackend{}
	m := NewManager(backend, t.TempDir())
	sess := chatSession(10)
	sess.CacheName = "caches/old"
	sess.CachedTurnCount = 2

	decision, err := m.Refresh(context.Background(), sess, "system", 0)
	require.NoError(t, err)
	require.True(t, decision.Rebuilt)

	// All but the trailing turn is baked: 2 cached turns become 9.
	require.Equal(t, 9, sess.CachedTurnCount)
	require.Len(t, backend.lastMessages, 9)
	require.Len(t, decision.Buffered, 1)
	require.Equal(t, []string{"caches/old"}, backend.deleteCalls)
}

func TestRefreshReuse(t *testing.T) {
	backend := &fakeBackend{}
	m := NewManager(backend, t.TempDir())
	sess := chatSession(5)
	sess.CacheName = "caches/keep"
	sess.CachedTurnCount = 3

	decision, err := m.Refresh(context.Background(), sess, "system", 1<<20)
	require.NoError(t, err)
	require.False(t, decision.Rebuilt)
	require.Equal(t, "caches/keep", decision.CacheName)
	require.Equal(t, 3, decision.CachedTurnCount)
	require.Len(t, decision.Buffered, 2)
	require.Zero(t, backend.createCalls)
	require.Empty(t, backend.deleteCalls)
}

func TestRefreshNoCache(t *testing.T) {
	backend := &fakeBackend{}
	m := NewManager(backend, t.TempDir())
	sess := chatSession(3)

	decision, err := m.Refresh(context.Background(), sess, "system", 1<<20)
	require.NoError(t, err)
	require.False(t, decision.Rebuilt)
	require.Empty(t, decision.CacheName)
	require.Zero(t, decision.CachedTurnCount)
	require.Len(t, decision.Buffered, 3)
	require.Zero(t, backend.createCalls)
}

func TestRefreshCreateFailureLeavesSessionUnchanged(t *testing.T) {
	backend := &fakeBackend{failCreate: true}
	m := NewManager(backend, t.TempDir())
	sess := chatSession(6)
	sess.CacheName = "caches/old"
	sess.CachedTurnCount = 2

	decision, err := m.Refresh(context.Background(), sess, "system", 0)
	require.NoError(t, err)
	require.False(t, decision.Rebuilt)

	// No partial updates: the session still points at the old cache and
	// the decision falls back to reusing it.
	require.Equal(t, "caches/old", sess.CacheName)
	require.Equal(t, 2, sess.CachedTurnCount)
	require.Equal(t, "caches/old", decision.CacheName)
	require.Equal(t, 2, decision.CachedTurnCount)
	require.Len(t, decision.Buffered, 4)
	_, ok := m.registry.Lookup(sess.ID)
	require.False(t, ok)
}

func TestRefreshSingleTurnNeverBakes(t *testing.T) {
	backend := &fakeBackend{}
	m := NewManager(backend, t.TempDir())
	sess := chatSession(1)

	decision, err := m.Refresh(context.Background(), sess, "system", 0)
	require.NoError(t, err)
	require.False(t, decision.Rebuilt)
	require.Empty(t, decision.CacheName)
	require.Zero(t, backend.createCalls)
}

func TestRefreshNilBackend(t *testing.T) {
	m := NewManager(nil, t.TempDir())
	sess := chatSession(4)

	decision, err := m.Refresh(context.Background(), sess, "system", 0)
	require.NoError(t, err)
	require.False(t, decision.Rebuilt)
	require.Empty(t, decision.CacheName)
	require.Len(t, decision.Buffered, 4)
}

func TestRefreshIncludesPoolTurns(t *testing.T) {
	backend := &fakeBackend{}
	m := NewManager(backend, t.TempDir())
	sess := chatSession(3)
	sess.Pools = session.TurnList{
		session.NewFunctionCalling(`{"name":"read_file"}`, time.Now()),
		session.NewToolResponse("read_file", session.StatusSucceeded, "file contents", time.Now()),
	}

	decision, err := m.Refresh(context.Background(), sess, "system", 0)
	require.NoError(t, err)
	require.True(t, decision.Rebuilt)
	// 5 turns total: 4 baked, the trailing tool response stays fresh.
	require.Equal(t, 4, decision.CachedTurnCount)
	require.Len(t, decision.Buffered, 1)
	require.Equal(t, session.TurnTypeToolResponse, decision.Buffered[0].Type)
}

func TestRefreshSummary(t *testing.T) {
	backend := &fakeBackend{}
	m := NewManager(backend, t.TempDir())
	sess := chatSession(4)
	sess.CachedContentTokenCount = 1200

	decision, err := m.Refresh(context.Background(), sess, "a reasonably long static payload", 1<<20)
	require.NoError(t, err)
	require.Equal(t, 1200, decision.Summary.CachedTokens)
	require.Greater(t, decision.Summary.BufferedTokens, 0)
	require.Greater(t, decision.Summary.CurrentPromptTokens, decision.Summary.BufferedTokens)
}

func TestForget(t *testing.T) {
	backend := &fakeBackend{}
	m := NewManager(backend, t.TempDir())
	require.NoError(t, m.registry.Put(RegistryEntry{
		Name:       "caches/doomed",
		ExpireTime: time.Now().Add(time.Hour),
		SessionID:  "abc123def456",
	}))

	m.Forget(context.Background(), "abc123def456")
	require.Equal(t, []string{"caches/doomed"}, backend.deleteCalls)
	_, ok := m.registry.Lookup("abc123def456")
	require.False(t, ok)

	// Forgetting an unknown session is a no-op.
	m.Forget(context.Background(), "ffffffffffff")
	require.Len(t, backend.deleteCalls, 1)
}

func TestSweepExpired(t *testing.T) {
	backend := &fakeBackend{}
	m := NewManager(backend, t.TempDir())
	now := time.Now()
	require.NoError(t, m.registry.Put(RegistryEntry{
		Name: "caches/stale", ExpireTime: now.Add(-time.Minute), SessionID: "aaaaaaaaaaaa",
	}))
	require.NoError(t, m.registry.Put(RegistryEntry{
		Name: "caches/live", ExpireTime: now.Add(time.Hour), SessionID: "bbbbbbbbbbbb",
	}))

	swept, err := m.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, swept)
	require.Equal(t, []string{"caches/stale"}, backend.deleteCalls)

	_, ok := m.registry.Lookup("aaaaaaaaaaaa")
	require.False(t, ok)
	_, ok = m.registry.Lookup("bbbbbbbbbbbb")
	require.True(t, ok)
}
