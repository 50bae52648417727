package contextwindow

import (
	"path/filepath"
	"time"

	"github.com/deepnoodle-ai/conductor/lockfile"
)

const (
	// RegistryFileName is the cache registry stored at the sessions root.
	RegistryFileName = ".cache_registry.json"

	// DefaultCacheTTL is how long a created cache is asked to live.
	DefaultCacheTTL = 3600 * time.Second

	registryLockTimeout = 5 * time.Second
)

// RegistryEntry records one live server-side cache.
type RegistryEntry struct {
	Name       string    `json:"name"`
	ExpireTime time.Time `json:"expire_time"`
	SessionID  string    `json:"session_id"`
}

// Registry persists cache names keyed by session ID so caches can be
// cleaned up even after the process that created them is gone.
type Registry struct {
	path string
	now  func() time.Time
}

// NewRegistry returns a registry backed by .cache_registry.json under root.
func NewRegistry(root string) *Registry {
	return &Registry{
		path: filepath.Join(root, RegistryFileName),
		now:  time.Now,
	}
}

// Put records or replaces the entry for entry.SessionID.
func (r *Registry) Put(entry RegistryEntry) error {
	entries := map[string]RegistryEntry{}
	return lockfile.ReadModifyWrite(r.path, registryLockTimeout, &entries, func(loaded bool) error {
		if !loaded {
			entries = map[string]RegistryEntry{}
		}
		entries[entry.SessionID] = entry
		return nil
	})
}

// Forget removes the entry for sessionID and reports what was removed.
func (r *Registry) Forget(sessionID string) (RegistryEntry, bool, error) {
	var (
		removed RegistryEntry
		found   bool
	)
	entries := map[string]RegistryEntry{}
	err := lockfile.ReadModifyWrite(r.path, registryLockTimeout, &entries, func(loaded bool) error {
		if !loaded {
			return nil
		}
		removed, found = entries[sessionID]
		delete(entries, sessionID)
		return nil
	})
	if err != nil {
		return RegistryEntry{}, false, err
	}
	return removed, found, nil
}

// Lookup returns the entry for sessionID, if any.
func (r *Registry) Lookup(sessionID string) (RegistryEntry, bool) {
	entries := map[string]RegistryEntry{}
	if !lockfile.ReadJSONOr(r.path, &entries) {
		return RegistryEntry{}, false
	}
	entry, ok := entries[sessionID]
	return entry, ok
}

// Sweep removes every entry whose expiry has passed and returns them so
// the caller can delete the corresponding server-side caches.
func (r *Registry) Sweep() ([]RegistryEntry, error) {
	var expired []RegistryEntry
	entries := map[string]RegistryEntry{}
	err := lockfile.ReadModifyWrite(r.path, registryLockTimeout, &entries, func(loaded bool) error {
		if !loaded {
			return nil
		}
		cutoff := r.now()
		for id, entry := range entries {
			if entry.ExpireTime.Before(cutoff) {
				expired = append(expired, entry)
				delete(entries, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}
