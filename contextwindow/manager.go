// Package contextwindow decides, once per agent iteration, how much of a
// session's history is served from a server-side cache and how much is
// sent fresh. The stable prefix of the conversation gets baked into a
// cache; the churning suffix rides along in the request.
package contextwindow

import (
	"context"
	"time"

	"github.com/deepnoodle-ai/conductor/llm"
	"github.com/deepnoodle-ai/conductor/log"
	"github.com/deepnoodle-ai/conductor/prompt"
	"github.com/deepnoodle-ai/conductor/session"
	"github.com/deepnoodle-ai/conductor/tokens"
)

// Backend creates and deletes server-side content caches.
type Backend interface {
	CreateCache(ctx context.Context, system string, messages []*llm.Message, ttl time.Duration) (string, time.Time, error)
	DeleteCache(ctx context.Context, name string) error
}

// TokenCountSummary breaks a prompt down by where its tokens live.
type TokenCountSummary struct {
	CachedTokens        int `json:"cached_tokens"`
	CurrentPromptTokens int `json:"current_prompt_tokens"`
	BufferedTokens      int `json:"buffered_tokens"`
}

// Decision is the outcome of one cache evaluation. Buffered holds the
// turns that must be sent fresh alongside the cache reference.
type Decision struct {
	CacheName       string
	CachedTurnCount int
	Buffered        session.TurnList
	Summary         TokenCountSummary
	Rebuilt         bool
}

// Manager owns the cache lifecycle for sessions under one root.
type Manager struct {
	backend   Backend
	registry  *Registry
	estimator *tokens.Estimator
	logger    log.Logger
	ttl       time.Duration
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger log.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithTTL overrides the requested cache lifetime.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = ttl }
}

// NewManager returns a manager for sessions stored under root. A nil
// backend disables cache creation; the decision then always falls through
// to sending history fresh.
func NewManager(backend Backend, root string, opts ...ManagerOption) *Manager {
	m := &Manager{
		backend:   backend,
		registry:  NewRegistry(root),
		estimator: tokens.Get(),
		logger:    log.NewNullLogger(),
		ttl:       DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Refresh evaluates the session against threshold and rebuilds the cache
// when the uncached suffix has grown past it. The new cache bakes the
// static payload plus all but the very last turn; that last turn is the
// one most likely to still be mid tool-call cycle, so it stays out. On
// rebuild the session's cache fields are updated in place and the cache
// name is recorded in the registry. A failed creation leaves the session
// exactly as it was.
func (m *Manager) Refresh(ctx context.Context, sess *session.Session, staticPayload string, threshold int) (*Decision, error) {
	full := sess.FullHistory()
	cachedCount := sess.CachedTurnCount
	if cachedCount > len(full) {
		cachedCount = len(full)
	}
	buffered := full[cachedCount:]
	bufferedTokens := m.countTurns(buffered)

	decision := &Decision{
		Buffered: buffered,
		Summary: TokenCountSummary{
			CachedTokens:        sess.CachedContentTokenCount,
			CurrentPromptTokens: m.estimator.Count(staticPayload) + bufferedTokens,
			BufferedTokens:      bufferedTokens,
		},
	}

	if bufferedTokens > threshold && m.backend != nil && len(full) > 1 {
		if m.rebuild(ctx, sess, staticPayload, full) {
			decision.Rebuilt = true
			decision.CacheName = sess.CacheName
			decision.CachedTurnCount = sess.CachedTurnCount
			decision.Buffered = full[sess.CachedTurnCount:]
			return decision, nil
		}
	}
	if cachedCount > 0 && sess.CacheName != "" {
		decision.CacheName = sess.CacheName
		decision.CachedTurnCount = cachedCount
	}
	return decision, nil
}

// rebuild replaces the session's cache and reports whether it succeeded.
// The session is only mutated on success.
func (m *Manager) rebuild(ctx context.Context, sess *session.Session, staticPayload string, full session.TurnList) bool {
	if sess.CacheName != "" {
		if err := m.backend.DeleteCache(ctx, sess.CacheName); err != nil {
			m.logger.Warn("stale cache delete failed",
				"session_id", sess.ID, "cache_name", sess.CacheName, "error", err)
		}
	}
	newCount := len(full) - 1
	name, expire, err := m.backend.CreateCache(ctx, staticPayload, prompt.MessagesFromTurns(full[:newCount]), m.ttl)
	if err != nil || name == "" {
		m.logger.Warn("cache creation failed, sending history uncached",
			"session_id", sess.ID, "error", err)
		return false
	}
	sess.CacheName = name
	sess.CachedTurnCount = newCount
	if expire.IsZero() {
		expire = time.Now().Add(m.ttl)
	}
	if err := m.registry.Put(RegistryEntry{Name: name, ExpireTime: expire, SessionID: sess.ID}); err != nil {
		m.logger.Warn("cache registry update failed", "session_id", sess.ID, "error", err)
	}
	m.logger.Info("context cache rebuilt",
		"session_id", sess.ID, "cache_name", name, "cached_turns", newCount)
	return true
}

// Forget drops the registry entry for sessionID and deletes its cache.
// Used when a session is deleted.
func (m *Manager) Forget(ctx context.Context, sessionID string) {
	entry, ok, err := m.registry.Forget(sessionID)
	if err != nil {
		m.logger.Warn("cache registry forget failed", "session_id", sessionID, "error", err)
		return
	}
	if !ok || m.backend == nil {
		return
	}
	if err := m.backend.DeleteCache(ctx, entry.Name); err != nil {
		m.logger.Warn("cache delete failed", "cache_name", entry.Name, "error", err)
	}
}

// SweepExpired removes registry entries whose TTL has lapsed and deletes
// the corresponding caches best-effort. Returns how many entries were
// swept.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	expired, err := m.registry.Sweep()
	if err != nil {
		return 0, err
	}
	for _, entry := range expired {
		if m.backend == nil {
			continue
		}
		if err := m.backend.DeleteCache(ctx, entry.Name); err != nil {
			m.logger.Warn("expired cache delete failed", "cache_name", entry.Name, "error", err)
		}
	}
	return len(expired), nil
}

func (m *Manager) countTurns(turns session.TurnList) int {
	total := 0
	for _, msg := range prompt.MessagesFromTurns(turns) {
		total += m.estimator.Count(msg.Text)
	}
	return total
}
