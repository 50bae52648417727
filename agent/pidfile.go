package agent

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/deepnoodle-ai/conductor/lockfile"
)

// ProcessDirName is the directory under the sessions root holding one
// PID file per running agent process.
const ProcessDirName = ".processes"

// ErrMalformedPIDFile reports a PID file whose contents are not a PID,
// usually debris from a crashed process.
var ErrMalformedPIDFile = errors.New("malformed pid file")

// PIDFilePath returns the PID file location for a session. Hierarchical
// session IDs map to subdirectories, mirroring the session files.
func PIDFilePath(root, sessionID string) string {
	return filepath.Join(root, ProcessDirName, filepath.FromSlash(sessionID)+".pid")
}

// WritePIDFile records pid as the process owning the session.
func WritePIDFile(root, sessionID string, pid int) error {
	path := PIDFilePath(root, sessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return lockfile.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"))
}

// ReadPIDFile returns the recorded PID for a session.
func ReadPIDFile(root, sessionID string) (int, error) {
	data, err := os.ReadFile(PIDFilePath(root, sessionID))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("%w for session %s", ErrMalformedPIDFile, sessionID)
	}
	return pid, nil
}

// RemovePIDFile deletes the session's PID file. Missing files are not an
// error.
func RemovePIDFile(root, sessionID string) error {
	err := os.Remove(PIDFilePath(root, sessionID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
