package session

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// IndexEntry summarizes one session for listings without opening its file.
type IndexEntry struct {
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	Purpose       string    `json:"purpose,omitempty"`
}

// UnmarshalJSON migrates the legacy "last_updated" key on read. When both
// keys are present the newer-schema key wins.
func (e *IndexEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		CreatedAt     time.Time  `json:"created_at"`
		LastUpdatedAt *time.Time `json:"last_updated_at"`
		LastUpdated   *time.Time `json:"last_updated"`
		Purpose       string     `json:"purpose"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.CreatedAt = raw.CreatedAt
	e.Purpose = raw.Purpose
	switch {
	case raw.LastUpdatedAt != nil:
		e.LastUpdatedAt = *raw.LastUpdatedAt
	case raw.LastUpdated != nil:
		e.LastUpdatedAt = *raw.LastUpdated
	}
	return nil
}

// Index maps session IDs to their summaries. It lives in index.json under
// the sessions root, guarded by its own lock.
type Index struct {
	Sessions map[string]IndexEntry `json:"sessions"`
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{Sessions: map[string]IndexEntry{}}
}

// Put inserts or refreshes the entry for id.
func (x *Index) Put(id string, entry IndexEntry) {
	if x.Sessions == nil {
		x.Sessions = map[string]IndexEntry{}
	}
	x.Sessions[id] = entry
}

// Remove deletes id and, when removeChildren is set, every entry nested
// under it.
func (x *Index) Remove(id string, removeChildren bool) {
	delete(x.Sessions, id)
	if !removeChildren {
		return
	}
	prefix := id + "/"
	for key := range x.Sessions {
		if strings.HasPrefix(key, prefix) {
			delete(x.Sessions, key)
		}
	}
}

// IDs returns the indexed session IDs sorted lexicographically, which
// groups children under their parents.
func (x *Index) IDs() []string {
	ids := make([]string, 0, len(x.Sessions))
	for id := range x.Sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
