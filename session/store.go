package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/internal/random"
	"github.com/deepnoodle-ai/conductor/lockfile"
	"github.com/deepnoodle-ai/conductor/log"
)

const (
	indexFileName   = "index.json"
	backupDirName   = "backups"
	backupTimestamp = "20060102T150405.000000000Z"
)

// ErrInvalidSessionID is returned when a session ID contains empty or
// relative path segments or characters that could escape the store root.
var ErrInvalidSessionID = errors.New("invalid session ID")

// Store is the file-backed session repository. Every session is one JSON
// file under the root; hierarchical IDs map to nested directories. All
// mutations serialize on per-file locks so the CLI, background agents,
// and the MCP server can share a root safely.
type Store struct {
	root        string
	logger      log.Logger
	lockTimeout time.Duration
	now         func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger log.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithLockTimeout overrides the per-file lock acquisition timeout.
func WithLockTimeout(d time.Duration) StoreOption {
	return func(s *Store) { s.lockTimeout = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store rooted at dir. The directory is created if it
// does not exist.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, dir[2:])
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	s := &Store{
		root:        dir,
		logger:      log.NewNullLogger(),
		lockTimeout: lockfile.DefaultTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the sessions root directory.
func (s *Store) Root() string { return s.root }

// validateID rejects IDs that could escape the store root. Slashes are
// legal: they encode the parent/child hierarchy.
func validateID(id string) error {
	if id == "" || strings.HasPrefix(id, "/") || strings.HasSuffix(id, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	for _, segment := range strings.Split(id, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
		}
		for _, c := range segment {
			if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
				c == '-' || c == '_' || c == '.') {
				return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
			}
		}
	}
	return nil
}

// path returns the session file path for id after confining it to the
// store root.
func (s *Store) path(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	p := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(id)+".json"))
	if !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q resolves outside store root", ErrInvalidSessionID, id)
	}
	return p, nil
}

func (s *Store) indexPath() string {
	return filepath.Join(s.root, indexFileName)
}

func (s *Store) backupDir() string {
	return filepath.Join(s.root, backupDirName)
}

// hashID keys backup files: hierarchical IDs collapse to one flat name.
func hashID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// newSessionID derives a fresh short ID from the creation identity plus a
// random salt.
func newSessionID(purpose, background string, at time.Time) string {
	sum := sha256.Sum256([]byte(purpose + "\x00" + background + "\x00" +
		at.Format(time.RFC3339Nano) + "\x00" + random.Hex(8)))
	return hex.EncodeToString(sum[:])[:12]
}

// CreateOptions name the inputs of Create.
type CreateOptions struct {
	Purpose            string
	Background         string
	Roles              []string
	Procedure          string
	MultiStepReasoning bool
	Hyperparameters    *Hyperparameters
	ParentID           string
}

// Create builds and persists a new session. The ID is a generated content
// hash; when ParentID names an existing session the new ID nests under it,
// otherwise the session is created at the root.
func (s *Store) Create(opts CreateOptions) (*Session, error) {
	now := s.now()

	prefix := ""
	if opts.ParentID != "" {
		if _, err := s.Find(opts.ParentID); err == nil {
			prefix = opts.ParentID + "/"
		} else if !errors.Is(err, conductor.ErrNotFound) {
			return nil, err
		}
	}

	var id, path string
	for attempt := 0; ; attempt++ {
		id = prefix + newSessionID(opts.Purpose, opts.Background, now)
		p, err := s.path(id)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(p); os.IsNotExist(err) {
			path = p
			break
		}
		if attempt >= 3 {
			return nil, conductor.NewFatalError(fmt.Errorf("could not allocate a unique session ID under %q", prefix))
		}
	}

	sess := &Session{
		ID:                 id,
		CreatedAt:          now,
		Purpose:            opts.Purpose,
		Background:         opts.Background,
		Roles:              append([]string(nil), opts.Roles...),
		Procedure:          opts.Procedure,
		MultiStepReasoning: opts.MultiStepReasoning,
		Hyperparameters:    opts.Hyperparameters.Copy(),
		Turns:              TurnList{},
		Pools:              TurnList{},
		References:         ReferenceList{},
		Artifacts:          []string{},
	}
	if err := lockfile.WriteJSON(path, sess); err != nil {
		return nil, err
	}
	if err := s.indexPut(sess); err != nil {
		return nil, err
	}
	s.logger.Info("session created", "session_id", id, "purpose", opts.Purpose)
	return sess, nil
}

// Find loads, migrates, and validates the session with the given ID.
func (s *Store) Find(id string) (*Session, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	sess := &Session{}
	if err := lockfile.ReadJSON(path, sess); err != nil {
		if errors.Is(err, conductor.ErrNotFound) {
			return nil, conductor.NewNotFoundError("session", id)
		}
		return nil, err
	}
	if sess.ID != id {
		// The file is authoritative for content, the location for identity.
		sess.ID = id
	}
	if err := sess.Validate(); err != nil {
		return nil, fmt.Errorf("session %s is invalid: %w", id, err)
	}
	return sess, nil
}

// Save overwrites the session file and refreshes its index entry.
func (s *Store) Save(sess *Session) error {
	path, err := s.path(sess.ID)
	if err != nil {
		return err
	}
	if err := lockfile.WriteJSON(path, sess); err != nil {
		return err
	}
	return s.indexPut(sess)
}

// AtomicUpdate locks the session file, loads the session, applies mutate,
// and saves. All internal edits go through it.
func (s *Store) AtomicUpdate(id string, mutate func(*Session) error) (*Session, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	var sess *Session
	err = lockfile.Update(path, s.lockTimeout, func() error {
		var err error
		sess, err = s.Find(id)
		if err != nil {
			return err
		}
		if err := mutate(sess); err != nil {
			return err
		}
		return s.Save(sess)
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// UpdateWithBackup is AtomicUpdate preceded by a Backup of the on-disk
// state, the discipline every mutating edit of committed turns follows.
func (s *Store) UpdateWithBackup(id string, mutate func(*Session) error) (*Session, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	var sess *Session
	err = lockfile.Update(path, s.lockTimeout, func() error {
		if _, err := s.backupLocked(id); err != nil {
			return err
		}
		var err error
		sess, err = s.Find(id)
		if err != nil {
			return err
		}
		if err := mutate(sess); err != nil {
			return err
		}
		return s.Save(sess)
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Backup snapshots the session's current on-disk bytes into the backups
// directory and returns the backup path. Nothing is written when the
// session has no file yet.
func (s *Store) Backup(sess *Session) (string, error) {
	path, err := s.path(sess.ID)
	if err != nil {
		return "", err
	}
	var backupPath string
	err = lockfile.Update(path, s.lockTimeout, func() error {
		var err error
		backupPath, err = s.backupLocked(sess.ID)
		return err
	})
	return backupPath, err
}

// backupLocked performs the snapshot. Callers hold the session lock.
func (s *Store) backupLocked(id string) (string, error) {
	path, err := s.path(id)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read session for backup: %w", err)
	}
	name := fmt.Sprintf("%s-%s.json", hashID(id), s.now().UTC().Format(backupTimestamp))
	backupPath := filepath.Join(s.backupDir(), name)
	if err := lockfile.WriteFile(backupPath, data); err != nil {
		return "", err
	}
	s.logger.Debug("session backup written", "session_id", id, "backup", name)
	return backupPath, nil
}

// Backups lists the backup files for id, newest first.
func (s *Store) Backups(id string) ([]string, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.backupDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	prefix := hashID(id) + "-"
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			names = append(names, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Fork creates a sibling of sess containing the turn prefix up through
// forkIndex, which must point at a model_response. Token counters and the
// cache handle reset; the purpose records the lineage.
func (s *Store) Fork(sess *Session, forkIndex int) (*Session, error) {
	if forkIndex < 0 || forkIndex >= len(sess.Turns) {
		return nil, conductor.NewValidationError("fork_index",
			fmt.Sprintf("index %d out of range [0,%d)", forkIndex, len(sess.Turns)))
	}
	if sess.Turns[forkIndex].Type != TurnTypeModelResponse {
		return nil, conductor.NewValidationError("fork_index",
			fmt.Sprintf("turn %d is %s, forking requires a model_response", forkIndex, sess.Turns[forkIndex].Type))
	}

	now := s.now()
	purpose := "Fork of: " + sess.Purpose

	prefix := ""
	if parent := sess.ParentID(); parent != "" {
		prefix = parent + "/"
	}

	var id, path string
	for attempt := 0; ; attempt++ {
		id = prefix + newSessionID(purpose, sess.Background, now)
		p, err := s.path(id)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(p); os.IsNotExist(err) {
			path = p
			break
		}
		if attempt >= 3 {
			return nil, conductor.NewFatalError(fmt.Errorf("could not allocate a unique fork ID under %q", prefix))
		}
	}

	fork := &Session{
		ID:                 id,
		CreatedAt:          now,
		Purpose:            purpose,
		Background:         sess.Background,
		Roles:              append([]string(nil), sess.Roles...),
		Procedure:          sess.Procedure,
		MultiStepReasoning: sess.MultiStepReasoning,
		Hyperparameters:    sess.Hyperparameters.Copy(),
		Turns:              sess.Turns[:forkIndex+1].Copy(),
		Pools:              TurnList{},
		References:         sess.References.Copy(),
		Artifacts:          []string{},
	}
	if err := lockfile.WriteJSON(path, fork); err != nil {
		return nil, err
	}
	if err := s.indexPut(fork); err != nil {
		return nil, err
	}
	s.logger.Info("session forked", "source", sess.ID, "fork", id, "at_turn", forkIndex)
	return fork, nil
}

// Delete removes the session file, its children, every backup keyed to the
// removed IDs, and the matching index entries. Emptied ancestor
// directories are pruned best-effort.
func (s *Store) Delete(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	// Children first: collect their IDs from the index so their backups
	// can be swept along with their files.
	doomed := []string{id}
	if items, err := s.List(); err == nil {
		prefix := id + "/"
		for _, item := range items {
			if strings.HasPrefix(item.ID, prefix) {
				doomed = append(doomed, item.ID)
			}
		}
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	os.Remove(lockfile.LockPath(path))
	// The children directory mirrors the ID.
	os.RemoveAll(strings.TrimSuffix(path, ".json"))

	s.sweepBackups(doomed)

	idx := NewIndex()
	err = lockfile.ReadModifyWrite(s.indexPath(), s.lockTimeout, idx, func(loaded bool) error {
		idx.Remove(id, true)
		return nil
	})
	if err != nil {
		return err
	}

	s.pruneEmptyDirs(filepath.Dir(path))
	s.logger.Info("session deleted", "session_id", id, "children", len(doomed)-1)
	return nil
}

func (s *Store) sweepBackups(ids []string) {
	entries, err := os.ReadDir(s.backupDir())
	if err != nil {
		return
	}
	prefixes := make([]string, 0, len(ids))
	for _, id := range ids {
		prefixes = append(prefixes, hashID(id)+"-")
	}
	for _, entry := range entries {
		for _, prefix := range prefixes {
			if strings.HasPrefix(entry.Name(), prefix) {
				os.Remove(filepath.Join(s.backupDir(), entry.Name()))
				break
			}
		}
	}
}

// pruneEmptyDirs removes now-empty directories between dir and the store
// root. Failures are ignored: a non-empty directory simply stops the walk.
func (s *Store) pruneEmptyDirs(dir string) {
	for dir != s.root && strings.HasPrefix(dir, s.root) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// ListItem pairs a session ID with its index entry.
type ListItem struct {
	ID string
	IndexEntry
}

// List returns the indexed sessions sorted by ID.
func (s *Store) List() ([]ListItem, error) {
	idx := NewIndex()
	lockfile.ReadJSONOr(s.indexPath(), idx)
	items := make([]ListItem, 0, len(idx.Sessions))
	for _, id := range idx.IDs() {
		items = append(items, ListItem{ID: id, IndexEntry: idx.Sessions[id]})
	}
	return items, nil
}

func (s *Store) indexPut(sess *Session) error {
	idx := NewIndex()
	return lockfile.ReadModifyWrite(s.indexPath(), s.lockTimeout, idx, func(loaded bool) error {
		idx.Put(sess.ID, IndexEntry{
			CreatedAt:     sess.CreatedAt,
			LastUpdatedAt: s.now(),
			Purpose:       sess.Purpose,
		})
		return nil
	})
}

// EditTurn rewrites the editable text of one committed turn, after taking
// a backup.
func (s *Store) EditTurn(id string, index int, text string) error {
	_, err := s.UpdateWithBackup(id, func(sess *Session) error {
		return sess.Turns.EditByIndex(index, text)
	})
	return err
}

// DeleteTurns removes the committed turns at indices (order-independent),
// after taking a backup.
func (s *Store) DeleteTurns(id string, indices []int) error {
	_, err := s.UpdateWithBackup(id, func(sess *Session) error {
		return sess.Turns.DeleteIndices(indices)
	})
	return err
}

// ReplaceRangeWithSummary compacts the committed turns in [start, end]
// into a single compressed_history turn, after taking a backup.
func (s *Store) ReplaceRangeWithSummary(id string, start, end int, summary string) error {
	_, err := s.UpdateWithBackup(id, func(sess *Session) error {
		return sess.Turns.ReplaceRangeWithSummary(start, end, summary, s.now())
	})
	return err
}

// AppendPool stages turns on the session's pending transaction and
// persists immediately. Out-of-process tool executions land in the same
// pool the owning agent will later commit or roll back.
func (s *Store) AppendPool(id string, turns ...Turn) (*Session, error) {
	return s.AtomicUpdate(id, func(sess *Session) error {
		sess.AppendToPool(turns...)
		return nil
	})
}

// CommitPool merges the pool into the committed turns in a single save.
func (s *Store) CommitPool(id string) (*Session, error) {
	return s.AtomicUpdate(id, func(sess *Session) error {
		sess.CommitPool()
		return nil
	})
}

// RollbackPool clears the session's pool, dropping any half-finished
// instruction. The supervisor calls this after stopping an agent process.
func (s *Store) RollbackPool(id string) error {
	_, err := s.AtomicUpdate(id, func(sess *Session) error {
		sess.RollbackPool()
		return nil
	})
	return err
}

// Now exposes the store clock so collaborators stamp turns consistently.
func (s *Store) Now() time.Time {
	return s.now()
}
