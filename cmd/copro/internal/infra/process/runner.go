// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrLaunch is returned when the external program cannot be spawned
	// (not found on PATH, permission denied, bad working directory).
	ErrLaunch = errors.New("failed to launch process")

	// ErrWait is returned when a spawned process cannot be waited on.
	ErrWait = errors.New("failed to wait on process")

	// ErrNoProcess is returned by Handle operations before the child
	// has been started or after it has been reaped.
	ErrNoProcess = errors.New("no running process")
)

// =============================================================================
// Supporting Types
// =============================================================================

// Invocation describes one external program run.
//
// # Description
//
// Program is resolved against PATH. Dir is the working directory for
// the child; empty means the caller's working directory. Invocations
// are consumed, not retained.
type Invocation struct {
	// Program is the executable name or path.
	Program string

	// Args is the ordered argument list, excluding the program name.
	Args []string

	// Dir is the working directory for the child process.
	Dir string
}

// String renders the invocation for logging. Arguments are joined
// verbatim; callers must not put secrets in argument lists.
func (inv Invocation) String() string {
	if len(inv.Args) == 0 {
		return inv.Program
	}
	return inv.Program + " " + strings.Join(inv.Args, " ")
}

// Result is the outcome of a completed buffered invocation.
//
// # Description
//
// Success is true only for a zero exit status. Stdout and Stderr hold
// the raw captured text; callers that surface failures to the user
// must pass Stderr through verbatim.
type Result struct {
	// Success is true if the process exited with status zero.
	Success bool

	// ExitCode is the process exit status (-1 if unknown).
	ExitCode int

	// Stdout is the captured standard output.
	Stdout string

	// Stderr is the captured standard error.
	Stderr string

	// Duration is how long the process ran.
	Duration time.Duration
}

// =============================================================================
// Interface Definition
// =============================================================================

// Runner executes external programs in buffered or streamed mode.
//
// # Description
//
// This is the single choke point for process execution in the CLI.
// Buffered mode (Run) blocks until exit and captures both output
// channels. Streamed mode (Stream) spawns the process, hands its
// pipes to a Relay, and returns a Process handle for the Poller.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple
// goroutines.
//
// # Context Handling
//
// Both methods accept a context.Context. In buffered mode the child
// is killed on cancellation. In streamed mode cancellation kills the
// child; the relay then terminates naturally at end-of-stream.
type Runner interface {
	// Run executes an invocation and blocks until it exits.
	//
	// # Description
	//
	// A non-zero exit status is not an error: the Result is returned
	// with Success=false and the captured stderr, and the caller
	// decides how to surface it. Only launch and wait failures
	// produce a non-nil error (ErrLaunch, ErrWait).
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - inv: Program, arguments, and working directory
	//
	// # Outputs
	//
	//   - *Result: Captured output and exit status (nil on error)
	//   - error: ErrLaunch or ErrWait wrapped with detail
	//
	// # Example
	//
	//	res, err := runner.Run(ctx, Invocation{
	//	    Program: "git",
	//	    Args:    []string{"status", "--porcelain"},
	//	    Dir:     checkout,
	//	})
	Run(ctx context.Context, inv Invocation) (*Result, error)

	// Stream spawns an invocation and relays its output while it runs.
	//
	// # Description
	//
	// Stdout and stderr are piped and handed to a Relay before Stream
	// returns: stdout lines go to sink.Info, stderr lines to
	// sink.Warn, each drained on its own goroutine so neither pipe
	// can stall the other. The returned Process is ready for the
	// Poller.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation (kills the child)
	//   - inv: Program, arguments, and working directory
	//   - sink: Receiver for relayed output lines
	//
	// # Outputs
	//
	//   - Process: Handle for completion checks and kill
	//   - error: ErrLaunch wrapped with detail
	//
	// # Limitations
	//
	//   - Output is not captured; only relayed. Failure diagnostics
	//     for streamed invocations come from the sink.
	Stream(ctx context.Context, inv Invocation, sink LineSink) (Process, error)
}

// Process is a handle to a streamed invocation in flight.
//
// # Description
//
// TryWait is the non-blocking completion check the Poller relies on.
// Wait blocks until exit and output drain. Kill terminates the child;
// it is the Poller's timeout escalation, not a graceful stop.
type Process interface {
	// TryWait reports whether the process has exited, and if so
	// whether it succeeded. It never blocks.
	TryWait() (done bool, success bool, err error)

	// Wait blocks until the process exits and its output is drained.
	Wait() (success bool, err error)

	// Kill forcibly terminates the process.
	Kill() error
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultRunner implements Runner using os/exec.
//
// This is the production implementation. Use MockRunner in tests.
type DefaultRunner struct{}

// NewDefaultRunner creates a Runner that executes real processes.
func NewDefaultRunner() *DefaultRunner {
	return &DefaultRunner{}
}

// Run executes an invocation and blocks until it exits.
func (r *DefaultRunner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, inv.Program, inv.Args...)
	cmd.Dir = inv.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLaunch, inv.Program, err)
	}

	err := cmd.Wait()
	res := &Result{
		Success:  err == nil,
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Non-zero exit is a result, not an error.
			return res, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrWait, inv.Program, err)
	}

	slog.Debug("process completed", "command", inv.String(), "duration", res.Duration)
	return res, nil
}

// Stream spawns an invocation and relays its output while it runs.
func (r *DefaultRunner) Stream(ctx context.Context, inv Invocation, sink LineSink) (Process, error) {
	cmd := exec.CommandContext(ctx, inv.Program, inv.Args...)
	cmd.Dir = inv.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: stdout pipe: %v", ErrLaunch, inv.Program, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: stderr pipe: %v", ErrLaunch, inv.Program, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLaunch, inv.Program, err)
	}

	relay := NewRelay(stdout, stderr, sink)
	relay.Start()

	h := &Handle{
		cmd:    cmd,
		relay:  relay,
		doneCh: make(chan struct{}),
	}
	go h.reap()

	slog.Debug("process streaming", "command", inv.String(), "pid", cmd.Process.Pid)
	return h, nil
}

// =============================================================================
// Handle
// =============================================================================

// Handle is the Process implementation backing DefaultRunner.Stream.
//
// # Description
//
// A single reaper goroutine waits for the relay to drain both pipes
// and then calls Wait exactly once, recording the outcome. TryWait
// and Wait observe that record; they never race on the underlying
// exec.Cmd.
type Handle struct {
	cmd   *exec.Cmd
	relay *Relay

	doneCh chan struct{}

	mu      sync.Mutex
	success bool
	waitErr error
}

// Compile-time interface check.
var _ Process = (*Handle)(nil)

// reap waits for output drain, then reaps the child.
//
// exec.Cmd pipes must be fully read before Wait; the relay signals
// that through Drained.
func (h *Handle) reap() {
	<-h.relay.Drained()

	err := h.cmd.Wait()

	h.mu.Lock()
	if err == nil {
		h.success = true
	} else {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			h.success = false
		} else {
			h.waitErr = fmt.Errorf("%w: %v", ErrWait, err)
		}
	}
	h.mu.Unlock()

	close(h.doneCh)
}

// TryWait reports completion without blocking.
func (h *Handle) TryWait() (bool, bool, error) {
	select {
	case <-h.doneCh:
		h.mu.Lock()
		defer h.mu.Unlock()
		return true, h.success, h.waitErr
	default:
		return false, false, nil
	}
}

// Wait blocks until the process exits and its output is drained.
func (h *Handle) Wait() (bool, error) {
	<-h.doneCh
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.success, h.waitErr
}

// Kill forcibly terminates the process.
func (h *Handle) Kill() error {
	if h.cmd.Process == nil {
		return ErrNoProcess
	}
	return h.cmd.Process.Kill()
}

// Compile-time interface compliance check.
var _ Runner = (*DefaultRunner)(nil)
