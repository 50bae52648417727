// Package lockfile provides advisory file locks and atomic JSON writes for
// session files shared between the CLI, background runs, and the MCP
// server. Locks are sidecar files created with O_EXCL so they work on any
// filesystem without flock support.
package lockfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/deepnoodle-ai/conductor"
)

const (
	// DefaultTimeout bounds how long Acquire waits for a contended lock.
	DefaultTimeout = 10 * time.Second

	// pollInterval is the wait between acquisition attempts.
	pollInterval = 100 * time.Millisecond

	// staleAge is the age past which a lock held by a dead process is
	// reclaimed. Liveness is checked first; the age guards against PID
	// reuse racing the check.
	staleAge = 30 * time.Second
)

// LockPath returns the sidecar lock path for a file.
func LockPath(path string) string {
	return path + ".lock"
}

// Acquire takes the advisory lock for path, waiting up to timeout. The
// returned release function removes the lock and must be called exactly
// once. A timeout of zero uses DefaultTimeout.
func Acquire(path string, timeout time.Duration) (func(), error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	lockPath := LockPath(path)
	deadline := time.Now().Add(timeout)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() {
				os.Remove(lockPath)
			}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock %s: %w", lockPath, err)
		}

		if isStale(lockPath) {
			// Reclaim and retry immediately.
			os.Remove(lockPath)
			continue
		}

		if !time.Now().Before(deadline) {
			return nil, &conductor.LockTimeoutError{Path: lockPath, Waited: timeout}
		}
		time.Sleep(pollInterval)
	}
}

// isStale reports whether the lock at lockPath belongs to a process that no
// longer exists and is old enough to reclaim safely.
func isStale(lockPath string) bool {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) > staleAge {
		return true
	}
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false
	}
	// Signal 0 probes for existence without delivering anything.
	if err := syscall.Kill(pid, 0); err == syscall.ESRCH {
		return time.Since(info.ModTime()) > pollInterval
	}
	return false
}

// Update acquires the lock for path, runs fn, and releases the lock.
func Update(path string, timeout time.Duration, fn func() error) error {
	release, err := Acquire(path, timeout)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
