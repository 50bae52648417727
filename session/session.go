// Package session provides the durable conversation state for conductor
// agents: the session data model, the turn and reference collections, and
// a file-backed store with locking, indexing, backups, and forking.
//
// A session is one JSON file under the sessions root. Hierarchy is encoded
// in the ID: every forward slash becomes a directory, so session
// "a1b2/c3d4" lives at <root>/a1b2/c3d4.json and is a child of "a1b2".
// Committed history lives in turns; the pool holds the uncommitted turns
// of an in-flight instruction and is either drained into turns atomically
// or dropped.
package session

import (
	"strings"
	"time"

	"github.com/deepnoodle-ai/conductor"
)

// Hyperparameters are optional per-session sampling overrides.
type Hyperparameters struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *float64 `json:"top_k,omitempty"`
}

// Copy returns a deep copy.
func (h *Hyperparameters) Copy() *Hyperparameters {
	if h == nil {
		return nil
	}
	cp := Hyperparameters{}
	if h.Temperature != nil {
		v := *h.Temperature
		cp.Temperature = &v
	}
	if h.TopP != nil {
		v := *h.TopP
		cp.TopP = &v
	}
	if h.TopK != nil {
		v := *h.TopK
		cp.TopK = &v
	}
	return &cp
}

// Session is one persistent conversation thread plus all of its state.
type Session struct {
	ID                      string           `json:"session_id"`
	CreatedAt               time.Time        `json:"created_at"`
	Purpose                 string           `json:"purpose"`
	Background              string           `json:"background"`
	Roles                   []string         `json:"roles"`
	Procedure               string           `json:"procedure,omitempty"`
	MultiStepReasoning      bool             `json:"multi_step_reasoning_enabled"`
	Hyperparameters         *Hyperparameters `json:"hyperparameters,omitempty"`
	Turns                   TurnList         `json:"turns"`
	Pools                   TurnList         `json:"pools"`
	References              ReferenceList    `json:"references"`
	Todos                   []TodoItem       `json:"todos,omitempty"`
	Artifacts               []string         `json:"artifacts"`
	TokenCount              int              `json:"token_count"`
	CachedContentTokenCount int              `json:"cached_content_token_count"`
	CumulativeTotalTokens   int              `json:"cumulative_total_tokens"`
	CumulativeCachedTokens  int              `json:"cumulative_cached_tokens"`
	CacheName               string           `json:"cache_name,omitempty"`
	CachedTurnCount         int              `json:"cached_turn_count"`
}

// ParentID returns the ID of the session's parent in the hierarchy, or ""
// for a root session.
func (s *Session) ParentID() string {
	idx := strings.LastIndex(s.ID, "/")
	if idx < 0 {
		return ""
	}
	return s.ID[:idx]
}

// AppendToPool stages turns on the pending transaction.
func (s *Session) AppendToPool(turns ...Turn) {
	for _, t := range turns {
		s.Pools.Add(t)
	}
}

// CommitPool drains the pool into turns, preserving order, and clears it.
func (s *Session) CommitPool() {
	s.Turns.MergeFrom(s.Pools)
	s.Pools = TurnList{}
}

// RollbackPool drops the pool without merging.
func (s *Session) RollbackPool() {
	s.Pools = TurnList{}
}

// FullHistory returns committed turns followed by the pool, chronological.
func (s *Session) FullHistory() TurnList {
	out := s.Turns.Copy()
	out.MergeFrom(s.Pools)
	return out
}

// ExpireOldToolResponses runs tool-response expiration over the committed
// turns and the pool as one chronological history, so the cutoff sees the
// in-flight user_task too. The shallow append shares outcome pointers,
// which is what lets replacements land in both lists.
func (s *Session) ExpireOldToolResponses(threshold int) bool {
	combined := append(append(TurnList{}, s.Turns...), s.Pools...)
	return combined.ExpireOldToolResponses(threshold)
}

// SetTodos replaces the working checklist.
func (s *Session) SetTodos(todos []TodoItem) {
	s.Todos = todos
}

// RecordArtifact registers a produced file path, deduplicated.
func (s *Session) RecordArtifact(path string) bool {
	if path == "" {
		return false
	}
	for _, a := range s.Artifacts {
		if a == path {
			return false
		}
	}
	s.Artifacts = append(s.Artifacts, path)
	return true
}

// Validate checks structural invariants. Sessions loaded from disk are
// validated before use; a violated cache bound is repaired rather than
// fatal because the cache is always rebuildable.
func (s *Session) Validate() error {
	if s.ID == "" {
		return conductor.NewValidationError("session_id", "must not be empty")
	}
	for _, t := range s.Turns {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	for _, t := range s.Pools {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	if s.CachedTurnCount < 0 {
		s.CachedTurnCount = 0
	}
	if s.CacheName == "" {
		s.CachedTurnCount = 0
	}
	if s.CachedTurnCount > len(s.Turns)+len(s.Pools) {
		s.CachedTurnCount = len(s.Turns) + len(s.Pools)
	}
	return nil
}

// Copy returns a deep copy of the session.
func (s *Session) Copy() *Session {
	cp := *s
	cp.Roles = append([]string(nil), s.Roles...)
	cp.Turns = s.Turns.Copy()
	cp.Pools = s.Pools.Copy()
	cp.References = s.References.Copy()
	cp.Todos = append([]TodoItem(nil), s.Todos...)
	cp.Artifacts = append([]string(nil), s.Artifacts...)
	cp.Hyperparameters = s.Hyperparameters.Copy()
	return &cp
}
