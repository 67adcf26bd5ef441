// Package lockfile provides advisory per-file locking and atomic writes
// for safe concurrent access to a shared workspace directory.
//
// Locks are best-effort: acquisition retries until a timeout and then
// proceeds without the lock rather than deadlocking. Atomic rename is the
// real corruption guard; under sustained contention the outcome is
// last-write-wins, never a torn file.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultTimeout bounds how long Lock waits before giving up and
	// proceeding unlocked.
	DefaultTimeout = 5 * time.Second

	retryInterval = 50 * time.Millisecond
)

// Lock acquires an advisory lock on path by exclusively creating
// <path>.lock. It returns a release function and whether the lock was
// actually acquired. On timeout the caller proceeds without the lock;
// release is always safe to call.
func Lock(path string, timeout time.Duration) (release func(), acquired bool) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	lockPath := path + ".lock"
	deadline := time.Now().Add(timeout)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return func() {
				// Removal failure is non-fatal: a stale lock file only
				// delays the next writer by one timeout.
				_ = os.Remove(lockPath)
			}, true
		}
		if !os.IsExist(err) || time.Now().After(deadline) {
			return func() {}, false
		}
		time.Sleep(retryInterval)
	}
}

// AtomicWrite writes data to path via a sibling temporary file and rename,
// so no reader ever observes a partially written file.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// WriteLocked performs an AtomicWrite under the file's advisory lock.
func WriteLocked(path string, data []byte, timeout time.Duration) error {
	release, _ := Lock(path, timeout)
	defer release()
	return AtomicWrite(path, data)
}

// LockedAppend appends data to path under the file's advisory lock.
func LockedAppend(path string, data []byte, timeout time.Duration) error {
	release, _ := Lock(path, timeout)
	defer release()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open for append: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("append: %w", err)
	}
	return f.Close()
}
