// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package devnet is the lifecycle controller for the coprocessor
// devnet.
//
// The Manager sequences every user-facing action over the same two
// collaborators: the git synchronizer that maintains the checkout and
// the compose executor that drives the container stack. Each action
// is a fixed phase sequence; the first failing phase aborts the
// action, triggers diagnostics collection, and surfaces as a phase
// sentinel error.
package devnet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/diag"
	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/infra/compose"
	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/infra/git"
	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/infra/process"
	"github.com/zippiehq/coprocessor-devnet/pkg/logging"
)

// =============================================================================
// Errors
// =============================================================================

// Phase sentinels. Each wraps the underlying infra error so callers
// can match either the phase or the cause.
var (
	ErrSyncFailed  = errors.New("checkout sync failed")
	ErrBuildFailed = errors.New("container build failed")
	ErrPullFailed  = errors.New("image pull failed")
	ErrStartFailed = errors.New("devnet start failed")
	ErrStopFailed  = errors.New("devnet stop failed")
	ErrResetFailed = errors.New("devnet reset failed")
)

// =============================================================================
// Progress
// =============================================================================

// Progress receives phase transitions during a lifecycle action.
//
// # Description
//
// The manager reports what it is doing; the caller decides how to
// show it (styled lines, a spinner, nothing). Phases that stream
// subprocess output report through the sinks instead, so a Progress
// implementation must not assume it owns the terminal between Phase
// and PhaseDone.
type Progress interface {
	// Phase marks the beginning of a named phase.
	Phase(name string)

	// PhaseDone marks the named phase as completed.
	PhaseDone(name string)

	// PhaseFailed marks the named phase as failed.
	PhaseFailed(name string, err error)
}

// NopProgress discards all phase events.
type NopProgress struct{}

var _ Progress = NopProgress{}

func (NopProgress) Phase(string)              {}
func (NopProgress) PhaseDone(string)          {}
func (NopProgress) PhaseFailed(string, error) {}

// Phase names reported to Progress.
const (
	PhaseSync   = "sync"
	PhaseBuild  = "build"
	PhasePull   = "pull"
	PhaseUp     = "up"
	PhaseDown   = "down"
	PhaseRemove = "remove"
)

// =============================================================================
// Manager
// =============================================================================

// Manager is the devnet lifecycle surface the CLI commands call.
//
// # Description
//
// Every action starts from a synced checkout:
//
//   - Start: sync, build, pull, up --wait
//   - Stop: sync, down -v
//   - Update: sync only
//   - Reset: remove the checkout, then sync fresh
//
// Status and Logs are passive queries against the running stack.
type Manager interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Update(ctx context.Context) error
	Reset(ctx context.Context) error
	Status(ctx context.Context) ([]compose.ContainerStatus, error)
	Logs(ctx context.Context, follow bool) error
}

// Deps are the collaborators a DefaultManager drives.
type Deps struct {
	// Sync maintains the coprocessor checkout. Required.
	Sync git.Synchronizer

	// Stack drives docker compose. Required.
	Stack compose.Executor

	// GitSink receives streamed git output. Required.
	GitSink process.LineSink

	// DockerSink receives streamed container engine output.
	// Required.
	DockerSink process.LineSink

	// Diag collects failure bundles. Optional.
	Diag diag.Collector

	// Progress receives phase events. Optional; defaults to
	// NopProgress.
	Progress Progress

	// Log is the structured logger. Optional; defaults to the
	// package default.
	Log *logging.Logger
}

// DefaultManager implements Manager.
//
// # Thread Safety
//
// Lifecycle actions are serialized with a mutex; concurrent Start and
// Stop on the same manager run one at a time. Status and Logs do not
// take the action lock.
type DefaultManager struct {
	sync     git.Synchronizer
	stack    compose.Executor
	diag     diag.Collector
	progress Progress
	log      *logging.Logger

	gitSink    process.LineSink
	dockerSink process.LineSink

	mu sync.Mutex
}

var _ Manager = (*DefaultManager)(nil)

// NewDefaultManager validates deps and creates a manager.
func NewDefaultManager(deps Deps) (*DefaultManager, error) {
	if deps.Sync == nil {
		return nil, errors.New("devnet manager requires a synchronizer")
	}
	if deps.Stack == nil {
		return nil, errors.New("devnet manager requires a compose executor")
	}
	if deps.GitSink == nil || deps.DockerSink == nil {
		return nil, errors.New("devnet manager requires output sinks")
	}
	if deps.Progress == nil {
		deps.Progress = NopProgress{}
	}
	if deps.Log == nil {
		deps.Log = logging.Default()
	}

	return &DefaultManager{
		sync:       deps.Sync,
		stack:      deps.Stack,
		diag:       deps.Diag,
		progress:   deps.Progress,
		log:        deps.Log,
		gitSink:    deps.GitSink,
		dockerSink: deps.DockerSink,
	}, nil
}

// Start brings the devnet up from a synced checkout.
//
// # Description
//
// Runs sync, build, pull, then `up --wait`. Build precedes pull so
// locally built images are current before registry images are
// refreshed; `up --wait` blocks until every service reports healthy.
//
// # Outputs
//
//   - error: nil on success; otherwise wraps the failing phase
//     sentinel (ErrSyncFailed, ErrBuildFailed, ErrPullFailed, or
//     ErrStartFailed)
func (m *DefaultManager) Start(ctx context.Context) (err error) {
	return m.action(ctx, "start", func(ctx context.Context) error {
		if err := m.runSync(ctx); err != nil {
			return err
		}
		if err := m.phase(ctx, PhaseBuild, ErrBuildFailed, m.stack.Build); err != nil {
			return err
		}
		if err := m.phase(ctx, PhasePull, ErrPullFailed, m.stack.Pull); err != nil {
			return err
		}
		return m.phase(ctx, PhaseUp, ErrStartFailed, m.stack.Up)
	})
}

// Stop syncs the checkout and takes the stack down with volumes.
func (m *DefaultManager) Stop(ctx context.Context) (err error) {
	return m.action(ctx, "stop", func(ctx context.Context) error {
		if err := m.runSync(ctx); err != nil {
			return err
		}
		return m.phase(ctx, PhaseDown, ErrStopFailed, m.stack.Down)
	})
}

// Update syncs the checkout without touching the stack.
func (m *DefaultManager) Update(ctx context.Context) (err error) {
	return m.action(ctx, "update", m.runSync)
}

// Reset deletes the checkout and syncs it fresh. Running containers
// are left alone; stop first for a full teardown.
func (m *DefaultManager) Reset(ctx context.Context) (err error) {
	return m.action(ctx, "reset", func(ctx context.Context) error {
		m.progress.Phase(PhaseRemove)
		if err := m.sync.Remove(); err != nil {
			m.progress.PhaseFailed(PhaseRemove, err)
			return fmt.Errorf("%w: %v", ErrResetFailed, err)
		}
		m.progress.PhaseDone(PhaseRemove)

		return m.runSync(ctx)
	})
}

// Status returns the current container states.
func (m *DefaultManager) Status(ctx context.Context) ([]compose.ContainerStatus, error) {
	return m.stack.Status(ctx)
}

// Logs streams stack logs until the process exits or ctx cancels.
func (m *DefaultManager) Logs(ctx context.Context, follow bool) error {
	return m.stack.Logs(ctx, m.dockerSink, follow)
}

// =============================================================================
// Internals
// =============================================================================

// action serializes the lifecycle verbs, converts panics in the
// underlying plumbing to errors, and collects diagnostics on failure.
func (m *DefaultManager) action(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s: %v", name, r)
		}
		if err != nil {
			m.log.Error("devnet action failed", "action", name, "error", err)
			m.collectDiagnostics(name, err)
		} else {
			m.log.Info("devnet action complete", "action", name)
		}
	}()

	m.log.Info("devnet action starting", "action", name, "checkout", m.sync.Path())
	return fn(ctx)
}

// runSync is the shared sync phase every action begins with.
func (m *DefaultManager) runSync(ctx context.Context) error {
	m.progress.Phase(PhaseSync)
	if err := m.sync.EnsureReady(ctx, m.gitSink); err != nil {
		m.progress.PhaseFailed(PhaseSync, err)
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	m.progress.PhaseDone(PhaseSync)
	return nil
}

// phase runs one compose step under its progress events and phase
// sentinel.
func (m *DefaultManager) phase(ctx context.Context, name string, sentinel error,
	fn func(context.Context, process.LineSink) error) error {

	m.progress.Phase(name)
	if err := fn(ctx, m.dockerSink); err != nil {
		m.progress.PhaseFailed(name, err)
		return fmt.Errorf("%w: %v", sentinel, err)
	}
	m.progress.PhaseDone(name)
	return nil
}

// collectDiagnostics is best effort; a failure to collect is logged
// and otherwise ignored.
func (m *DefaultManager) collectDiagnostics(action string, cause error) {
	if m.diag == nil {
		return
	}

	// Fresh context: the action's context is often already
	// cancelled or past its deadline when we get here.
	path, err := m.diag.Collect(context.Background(), diag.Failure{
		Action: action,
		Err:    cause,
	})
	if err != nil {
		m.log.Warn("diagnostics collection failed", "action", action, "error", err)
		return
	}
	m.log.Info("diagnostics collected", "action", action, "bundle", path)
}
