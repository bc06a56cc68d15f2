// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package git keeps the coprocessor checkout in sync with its remote.
//
// The Synchronizer owns the full checkout lifecycle: clone when the
// directory is missing, pull when the local branch is behind upstream,
// leave it alone otherwise, and materialize submodules with streamed
// progress. All git interaction goes through the process.Runner so
// tests can script it.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/infra/process"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrSync indicates a git operation failed while preparing
	// the checkout.
	ErrSync = errors.New("repository sync failed")

	// ErrFilesystem indicates the checkout directory could not be
	// created or removed.
	ErrFilesystem = errors.New("checkout filesystem operation failed")
)

// =============================================================================
// Configuration
// =============================================================================

// SyncConfig describes the checkout the Synchronizer maintains.
type SyncConfig struct {
	// RemoteURL is the git remote to clone from.
	RemoteURL string

	// Branch is the upstream branch tracked for behind detection.
	Branch string

	// Dir is the absolute path of the checkout.
	Dir string

	// Submodules controls polling for the streamed submodule
	// update.
	Submodules process.PollConfig

	// LockDir holds the advisory lock file; defaults to the
	// checkout's parent directory.
	LockDir string
}

func (c SyncConfig) lockDir() string {
	if c.LockDir != "" {
		return c.LockDir
	}
	return filepath.Dir(c.Dir)
}

// =============================================================================
// Synchronizer
// =============================================================================

// Synchronizer prepares and disposes of the coprocessor checkout.
//
// # Description
//
// EnsureReady is the sync entry point every lifecycle action runs
// first: it guarantees that after a nil return, Dir contains a git
// checkout of RemoteURL with current submodules. Remove deletes the
// checkout entirely so the next EnsureReady clones fresh.
//
// # Thread Safety
//
// Implementations must tolerate concurrent CLI instances; the default
// implementation serializes them with a file lock.
type Synchronizer interface {
	// EnsureReady clones or updates the checkout and materializes
	// submodules, relaying progress lines to sink.
	EnsureReady(ctx context.Context, sink process.LineSink) error

	// Remove deletes the checkout directory. Missing directories
	// are not an error.
	Remove() error

	// Path returns the checkout directory.
	Path() string
}

// DefaultSynchronizer implements Synchronizer with the git CLI.
type DefaultSynchronizer struct {
	cfg    SyncConfig
	runner process.Runner
	lock   *process.RepoLock
}

var _ Synchronizer = (*DefaultSynchronizer)(nil)

// NewDefaultSynchronizer creates a synchronizer for cfg. A nil runner
// defaults to the real process runner.
func NewDefaultSynchronizer(cfg SyncConfig, runner process.Runner) *DefaultSynchronizer {
	if runner == nil {
		runner = process.NewDefaultRunner()
	}
	return &DefaultSynchronizer{
		cfg:    cfg,
		runner: runner,
		lock:   process.NewRepoLock(cfg.lockDir(), filepath.Base(cfg.Dir)+"-sync"),
	}
}

// Path returns the checkout directory.
func (s *DefaultSynchronizer) Path() string {
	return s.cfg.Dir
}

// EnsureReady brings the checkout to a usable state.
//
// # Description
//
// Runs the full sync sequence:
//
//  1. Take the checkout lock (fail fast if another instance holds it)
//  2. Clone if {Dir}/.git is missing, otherwise pull iff the tracked
//     branch is behind upstream
//  3. Stream `git submodule update --init --recursive` through sink,
//     polling until it completes or the submodule deadline passes
//
// # Inputs
//
//   - ctx: cancels in-flight git commands
//   - sink: receives submodule progress lines; must not be nil
//
// # Outputs
//
//   - error: nil on success; wraps ErrSync or ErrFilesystem, or
//     process.ErrLockHeld when another instance is syncing
func (s *DefaultSynchronizer) EnsureReady(ctx context.Context, sink process.LineSink) error {
	if err := s.lock.Acquire(); err != nil {
		return err
	}
	defer s.lock.Release()

	cloned, err := s.ensureCheckout(ctx)
	if err != nil {
		return err
	}

	// A fresh clone is at the remote tip already.
	if !cloned {
		if err := s.pullIfBehind(ctx); err != nil {
			return err
		}
	}

	return s.updateSubmodules(ctx, sink)
}

// Remove deletes the checkout directory.
func (s *DefaultSynchronizer) Remove() error {
	if err := os.RemoveAll(s.cfg.Dir); err != nil {
		return fmt.Errorf("%w: removing %s: %v", ErrFilesystem, s.cfg.Dir, err)
	}
	return nil
}

// =============================================================================
// Sync steps
// =============================================================================

// ensureCheckout clones the remote when no checkout exists. Returns
// true if a clone was performed.
func (s *DefaultSynchronizer) ensureCheckout(ctx context.Context) (bool, error) {
	if _, err := os.Stat(filepath.Join(s.cfg.Dir, ".git")); err == nil {
		return false, nil
	}

	parent := filepath.Dir(s.cfg.Dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return false, fmt.Errorf("%w: creating %s: %v", ErrFilesystem, parent, err)
	}

	res, err := s.git(ctx, "", "clone", s.cfg.RemoteURL, s.cfg.Dir)
	if err != nil {
		return false, err
	}
	if !res.Success {
		return false, fmt.Errorf("%w: clone of %s exited %d: %s",
			ErrSync, s.cfg.RemoteURL, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return true, nil
}

// pullIfBehind fetches the remote and pulls only when the local HEAD
// is strictly behind the tracked branch. An up-to-date or diverged
// checkout is left untouched.
func (s *DefaultSynchronizer) pullIfBehind(ctx context.Context) error {
	res, err := s.git(ctx, s.cfg.Dir, "fetch", "origin")
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%w: fetch exited %d: %s",
			ErrSync, res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	behind, err := s.behindCount(ctx)
	if err != nil {
		// rev-list needs an upstream ref that exists; fall back
		// to the porcelain status text before giving up.
		var statusBehind bool
		statusBehind, err = s.statusSaysBehind(ctx)
		if err != nil {
			return err
		}
		if !statusBehind {
			return nil
		}
		behind = 1
	}
	if behind == 0 {
		return nil
	}

	res, err = s.git(ctx, s.cfg.Dir, "pull", "origin", s.cfg.Branch)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%w: pull exited %d: %s",
			ErrSync, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// behindCount returns how many commits HEAD is behind origin/{Branch}.
func (s *DefaultSynchronizer) behindCount(ctx context.Context) (int, error) {
	ref := "HEAD..origin/" + s.cfg.Branch
	res, err := s.git(ctx, s.cfg.Dir, "rev-list", "--count", ref)
	if err != nil {
		return 0, err
	}
	if !res.Success {
		return 0, fmt.Errorf("%w: rev-list %s exited %d: %s",
			ErrSync, ref, res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	n, err := strconv.Atoi(strings.TrimSpace(res.Stdout))
	if err != nil {
		return 0, fmt.Errorf("%w: unparseable rev-list count %q", ErrSync, res.Stdout)
	}
	return n, nil
}

// statusSaysBehind is the fallback behind check for checkouts whose
// upstream ref rev-list cannot resolve.
func (s *DefaultSynchronizer) statusSaysBehind(ctx context.Context) (bool, error) {
	res, err := s.git(ctx, s.cfg.Dir, "status")
	if err != nil {
		return false, err
	}
	if !res.Success {
		return false, fmt.Errorf("%w: status exited %d: %s",
			ErrSync, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return strings.Contains(res.Stdout, "Your branch is behind"), nil
}

// submoduleStderrTail bounds how many relayed stderr lines a failed
// submodule update carries.
const submoduleStderrTail = 20

// updateSubmodules streams the recursive submodule update through
// sink and polls until completion. Large submodules take minutes; the
// poll deadline bounds how long we are willing to watch.
func (s *DefaultSynchronizer) updateSubmodules(ctx context.Context, sink process.LineSink) error {
	inv := process.Invocation{
		Program: "git",
		Args:    []string{"submodule", "update", "--init", "--recursive"},
		Dir:     s.cfg.Dir,
	}

	tail := process.NewTailSink(sink, submoduleStderrTail)
	proc, err := s.runner.Stream(ctx, inv, tail)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSync, err)
	}

	outcome, err := process.Await(ctx, proc, s.cfg.Submodules)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSync, err)
	}
	switch outcome {
	case process.OutcomeSuccess:
		return nil
	case process.OutcomeTimedOut:
		return fmt.Errorf("%w: submodule update exceeded %s",
			ErrSync, s.cfg.Submodules.MaxWait)
	default:
		if diag := tail.Stderr(); diag != "" {
			return fmt.Errorf("%w: submodule update failed: %s", ErrSync, diag)
		}
		return fmt.Errorf("%w: submodule update failed", ErrSync)
	}
}

// git runs a git subcommand via the runner. Launch failures are
// wrapped in ErrSync; non-zero exits come back in the Result for the
// caller to phrase.
func (s *DefaultSynchronizer) git(ctx context.Context, dir string, args ...string) (*process.Result, error) {
	res, err := s.runner.Run(ctx, process.Invocation{
		Program: "git",
		Args:    args,
		Dir:     dir,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: git %s: %v", ErrSync, strings.Join(args, " "), err)
	}
	return res, nil
}
