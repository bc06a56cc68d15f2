// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package compose drives the devnet's docker compose stack.
//
// Every operation shells out to `docker compose -f <file>` in the
// checkout directory through the process.Runner, streaming container
// engine output to the caller's sink. The package never talks to the
// Docker API directly; the compose CLI owns service dependency
// ordering and health gating (`up --wait`).
package compose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/infra/process"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrCompose indicates a compose command failed.
	ErrCompose = errors.New("compose operation failed")

	// ErrComposeFileMissing indicates the checkout has no compose
	// file, usually a sign the sync step was skipped or the remote
	// layout changed.
	ErrComposeFileMissing = errors.New("compose file not found in checkout")
)

// =============================================================================
// Configuration
// =============================================================================

// ComposeConfig locates the stack definition.
type ComposeConfig struct {
	// File is the compose file name relative to Dir.
	File string

	// Dir is the checkout directory compose runs in.
	Dir string

	// Poll bounds how long streamed compose commands may run.
	Poll process.PollConfig
}

func (c ComposeConfig) filePath() string {
	return filepath.Join(c.Dir, c.File)
}

// =============================================================================
// Container status
// =============================================================================

// ContainerStatus is one row of `docker compose ps`.
type ContainerStatus struct {
	Name    string `json:"Name"`
	Service string `json:"Service"`
	State   string `json:"State"`
	Status  string `json:"Status"`
	Health  string `json:"Health"`
}

// Running reports whether the container is in the running state.
func (s ContainerStatus) Running() bool {
	return strings.EqualFold(s.State, "running")
}

// =============================================================================
// Executor
// =============================================================================

// Executor is the compose lifecycle surface the devnet manager
// drives.
//
// # Description
//
// Build, Pull, Up, and Down stream engine output to sink and block
// until the command finishes or the poll deadline passes. Status is a
// quiet query. Logs streams service logs until the process exits or
// ctx is cancelled.
type Executor interface {
	Build(ctx context.Context, sink process.LineSink) error
	Pull(ctx context.Context, sink process.LineSink) error
	Up(ctx context.Context, sink process.LineSink) error
	Down(ctx context.Context, sink process.LineSink) error
	Status(ctx context.Context) ([]ContainerStatus, error)
	Logs(ctx context.Context, sink process.LineSink, follow bool) error
}

// DefaultExecutor implements Executor with the docker CLI.
type DefaultExecutor struct {
	cfg    ComposeConfig
	runner process.Runner
}

var _ Executor = (*DefaultExecutor)(nil)

// NewDefaultExecutor creates an executor for cfg. A nil runner
// defaults to the real process runner.
func NewDefaultExecutor(cfg ComposeConfig, runner process.Runner) *DefaultExecutor {
	if runner == nil {
		runner = process.NewDefaultRunner()
	}
	return &DefaultExecutor{cfg: cfg, runner: runner}
}

// Build runs `docker compose build`.
func (e *DefaultExecutor) Build(ctx context.Context, sink process.LineSink) error {
	return e.streamed(ctx, sink, "build", "build")
}

// Pull runs `docker compose pull`.
func (e *DefaultExecutor) Pull(ctx context.Context, sink process.LineSink) error {
	return e.streamed(ctx, sink, "pull", "pull")
}

// Up starts the stack detached and waits for service health.
func (e *DefaultExecutor) Up(ctx context.Context, sink process.LineSink) error {
	return e.streamed(ctx, sink, "up", "up", "--wait", "-d")
}

// Down stops the stack and removes its volumes. The devnet keeps no
// state worth preserving across runs.
func (e *DefaultExecutor) Down(ctx context.Context, sink process.LineSink) error {
	return e.streamed(ctx, sink, "down", "down", "-v")
}

// Status returns the current container states.
//
// # Outputs
//
//   - []ContainerStatus: one entry per compose service container;
//     empty when the stack is down
//   - error: wraps ErrCompose on command failure
func (e *DefaultExecutor) Status(ctx context.Context) ([]ContainerStatus, error) {
	if err := e.checkComposeFile(); err != nil {
		return nil, err
	}

	res, err := e.runner.Run(ctx, e.invocation("ps", "--format", "json"))
	if err != nil {
		return nil, fmt.Errorf("%w: ps: %v", ErrCompose, err)
	}
	if !res.Success {
		return nil, fmt.Errorf("%w: ps exited %d: %s",
			ErrCompose, res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	return parseContainerStatuses(res.Stdout)
}

// Logs streams stack logs to sink.
func (e *DefaultExecutor) Logs(ctx context.Context, sink process.LineSink, follow bool) error {
	args := []string{"logs"}
	if follow {
		args = append(args, "--follow")
	}

	if err := e.checkComposeFile(); err != nil {
		return err
	}

	proc, err := e.runner.Stream(ctx, e.invocation(args...), sink)
	if err != nil {
		return fmt.Errorf("%w: logs: %v", ErrCompose, err)
	}

	ok, err := proc.Wait()
	if err != nil {
		return fmt.Errorf("%w: logs: %v", ErrCompose, err)
	}
	// `logs --follow` interrupted by ctx cancel exits non-zero;
	// that is the expected way to stop following.
	if !ok && ctx.Err() == nil {
		return fmt.Errorf("%w: logs exited with failure", ErrCompose)
	}
	return nil
}

// =============================================================================
// Internals
// =============================================================================

// stderrTailLines bounds how many relayed stderr lines streamed
// failures carry.
const stderrTailLines = 20

// streamed runs one compose subcommand with output relayed to sink,
// bounded by the configured poll deadline. Failures carry the tail of
// the command's stderr.
func (e *DefaultExecutor) streamed(ctx context.Context, sink process.LineSink, name string, args ...string) error {
	if err := e.checkComposeFile(); err != nil {
		return err
	}

	tail := process.NewTailSink(sink, stderrTailLines)
	proc, err := e.runner.Stream(ctx, e.invocation(args...), tail)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCompose, name, err)
	}

	outcome, err := process.Await(ctx, proc, e.cfg.Poll)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCompose, name, err)
	}
	switch outcome {
	case process.OutcomeSuccess:
		return nil
	case process.OutcomeTimedOut:
		return e.failure(name, fmt.Sprintf("exceeded %s", e.cfg.Poll.MaxWait), tail)
	default:
		return e.failure(name, "failed", tail)
	}
}

// failure wraps ErrCompose for one step, appending the stderr tail
// when the command produced any.
func (e *DefaultExecutor) failure(name, reason string, tail *process.TailSink) error {
	if diag := tail.Stderr(); diag != "" {
		return fmt.Errorf("%w: %s %s: %s", ErrCompose, name, reason, diag)
	}
	return fmt.Errorf("%w: %s %s", ErrCompose, name, reason)
}

func (e *DefaultExecutor) invocation(args ...string) process.Invocation {
	full := append([]string{"compose", "-f", e.cfg.File}, args...)
	return process.Invocation{
		Program: "docker",
		Args:    full,
		Dir:     e.cfg.Dir,
	}
}

func (e *DefaultExecutor) checkComposeFile() error {
	if _, err := os.Stat(e.cfg.filePath()); err != nil {
		return fmt.Errorf("%w: %s", ErrComposeFileMissing, e.cfg.filePath())
	}
	return nil
}

// parseContainerStatuses handles both JSON shapes compose emits: one
// object per line (v2.21+) and a single JSON array (older releases).
func parseContainerStatuses(out string) ([]ContainerStatus, error) {
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}

	if strings.HasPrefix(out, "[") {
		var statuses []ContainerStatus
		if err := json.Unmarshal([]byte(out), &statuses); err != nil {
			return nil, fmt.Errorf("%w: unparseable ps output: %v", ErrCompose, err)
		}
		return statuses, nil
	}

	var statuses []ContainerStatus
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var s ContainerStatus
		if err := json.Unmarshal([]byte(line), &s); err != nil {
			return nil, fmt.Errorf("%w: unparseable ps line %q: %v", ErrCompose, firstLine(line), err)
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
