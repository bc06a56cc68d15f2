// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrLockHeld is returned when another CLI instance holds the
// checkout lock.
var ErrLockHeld = errors.New("checkout is locked by another copro instance")

// =============================================================================
// RepoLock
// =============================================================================

// RepoLock serializes checkout access across CLI instances.
//
// # Description
//
// Uses flock(2) advisory locking on a file next to the checkout so
// two concurrent invocations (say, a `devnet start` racing a `devnet
// reset`) fail fast instead of corrupting the working copy or the
// container state.
//
// # How It Works
//
//  1. Creates a lock file at {Dir}/{Name}.lock
//  2. Attempts a non-blocking exclusive flock on it
//  3. Writes the PID to {Dir}/{Name}.pid for diagnostics
//  4. On release, removes the PID file and drops the flock
//
// # Limitations
//
//   - Advisory only; processes that do not take the lock are not
//     excluded
//   - flock is unreliable on NFS and some network filesystems
//   - The OS releases the flock if the holder crashes; the PID file
//     may then be stale
//
// # Thread Safety
//
// RepoLock is not safe for concurrent use from multiple goroutines.
// Use one instance from a single goroutine per invocation.
type RepoLock struct {
	lockPath string
	pidPath  string
	lockFile *os.File
	held     bool
}

// NewRepoLock creates a lock rooted in dir. The lock file is named
// after name; dir defaults to the system temp directory.
func NewRepoLock(dir, name string) *RepoLock {
	if dir == "" {
		dir = os.TempDir()
	}
	if name == "" {
		name = "copro-sync"
	}

	return &RepoLock{
		lockPath: filepath.Join(dir, name+".lock"),
		pidPath:  filepath.Join(dir, name+".pid"),
	}
}

// Acquire attempts to take the exclusive lock without blocking.
//
// # Description
//
// Returns nil if the lock was acquired (or is already held by this
// instance). If another process holds it, returns ErrLockHeld wrapped
// with the holder's PID when the PID file is readable.
func (l *RepoLock) Acquire() error {
	if l.held {
		return nil
	}

	f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create lock file %s: %w", l.lockPath, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			if pid := l.holderPID(); pid > 0 {
				return fmt.Errorf("%w (PID %d); if stale, remove %s",
					ErrLockHeld, pid, l.pidPath)
			}
			return fmt.Errorf("%w; check: lsof %s", ErrLockHeld, l.lockPath)
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	l.lockFile = f
	l.held = true

	// PID file is diagnostics only; the flock is the lock.
	if err := os.WriteFile(l.pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return nil
	}

	return nil
}

// Release drops the lock if held. Safe to call multiple times.
func (l *RepoLock) Release() error {
	if !l.held || l.lockFile == nil {
		return nil
	}

	os.Remove(l.pidPath)

	err := unix.Flock(int(l.lockFile.Fd()), unix.LOCK_UN)

	l.lockFile.Close()
	l.lockFile = nil
	l.held = false

	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// IsHeld reports whether this instance currently holds the lock.
func (l *RepoLock) IsHeld() bool {
	return l.held
}

// LockPath returns the lock file path, for error messages.
func (l *RepoLock) LockPath() string {
	return l.lockPath
}

// holderPID reads the diagnostic PID file. Returns 0 if unreadable.
func (l *RepoLock) holderPID() int {
	data, err := os.ReadFile(l.pidPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
