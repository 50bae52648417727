package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/internal/random"
)

// WriteJSON marshals v with two-space indentation and writes it to path
// atomically: the bytes land in a temp file in the same directory which is
// fsynced and renamed over the target. Readers see either the old or the
// new content, never a partial write.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	return WriteFile(path, append(data, '\n'))
}

// WriteFile writes data to path atomically, creating parent directories as
// needed.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp := fmt.Sprintf("%s.tmp.%d.%s", path, os.Getpid(), random.Hex(4))
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// ReadJSON reads path and unmarshals it into v. A missing file is reported
// via conductor.ErrNotFound so callers can branch on it.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return conductor.NewNotFoundError("file", path)
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return nil
}

// ReadJSONOr reads path into v, reporting whether the load succeeded.
// Missing files and malformed JSON both return false, so callers fall
// back to a default instead of failing.
func ReadJSONOr(path string, v any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// ReadModifyWrite locks path, loads it into v (tolerating missing and
// corrupt files; modify receives whether a load happened), applies modify,
// and writes v back atomically.
func ReadModifyWrite(path string, timeout time.Duration, v any, modify func(loaded bool) error) error {
	return Update(path, timeout, func() error {
		loaded := ReadJSONOr(path, v)
		if err := modify(loaded); err != nil {
			return err
		}
		return WriteJSON(path, v)
	})
}
