// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package process

import (
	"context"
	"log/slog"
	"time"
)

// =============================================================================
// Outcome
// =============================================================================

// Outcome is the result of supervising a streamed process.
type Outcome int

const (
	// OutcomeSuccess means the process exited with status zero.
	OutcomeSuccess Outcome = iota

	// OutcomeFailure means the process exited with non-zero status.
	OutcomeFailure

	// OutcomeTimedOut means the process was still running when the
	// supervision deadline passed.
	OutcomeTimedOut
)

// String returns the human-readable name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeTimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// =============================================================================
// Poll Configuration
// =============================================================================

// PollConfig configures process supervision.
//
// # Description
//
// Interval is the sleep between completion checks; worst-case
// detection latency equals one Interval. MaxWait bounds the whole
// supervision. KillOnTimeout controls whether a timed-out child is
// terminated or left running.
type PollConfig struct {
	// Interval is the time between completion checks.
	// Default: 5s
	Interval time.Duration

	// MaxWait is the maximum supervision duration.
	// Default: 8h (effectively no timeout for routine syncs)
	MaxWait time.Duration

	// KillOnTimeout terminates the child when MaxWait elapses.
	// Default: true. Disabling it restores the legacy best-effort
	// supervision that leaves the child orphaned.
	KillOnTimeout bool
}

// DefaultPollConfig returns the supervision defaults.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:      5 * time.Second,
		MaxWait:       8 * time.Hour,
		KillOnTimeout: true,
	}
}

// validated returns a copy with minimums enforced so a zero-valued
// config cannot spin or return immediately.
func (c PollConfig) validated() PollConfig {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 8 * time.Hour
	}
	return c
}

// =============================================================================
// Await
// =============================================================================

// Await supervises a streamed process with a cooperative poll loop.
//
// # Description
//
// Repeatedly performs a non-blocking completion check, sleeping
// cfg.Interval between checks, until the process completes or
// cfg.MaxWait elapses. On timeout the child is killed if
// cfg.KillOnTimeout is set, and OutcomeTimedOut is returned either
// way. The poll loop suspends only the supervising goroutine; the
// relay goroutines keep draining output throughout.
//
// # Inputs
//
//   - ctx: Context; cancellation aborts supervision between checks
//   - p: Handle returned by Runner.Stream
//   - cfg: Poll interval, deadline, and kill policy
//
// # Outputs
//
//   - Outcome: Success, Failure, or TimedOut
//   - error: Context or wait error; nil for all three plain outcomes
//
// # Example
//
//	proc, _ := runner.Stream(ctx, inv, sink)
//	outcome, err := process.Await(ctx, proc, process.DefaultPollConfig())
//	if outcome != process.OutcomeSuccess {
//	    return fmt.Errorf("submodule update %s", outcome)
//	}
func Await(ctx context.Context, p Process, cfg PollConfig) (Outcome, error) {
	cfg = cfg.validated()
	deadline := time.Now().Add(cfg.MaxWait)

	for {
		done, success, err := p.TryWait()
		if err != nil {
			return OutcomeFailure, err
		}
		if done {
			if success {
				return OutcomeSuccess, nil
			}
			return OutcomeFailure, nil
		}

		if time.Now().After(deadline) {
			if cfg.KillOnTimeout {
				if killErr := p.Kill(); killErr != nil {
					slog.Warn("failed to kill timed-out process", "error", killErr)
				}
			}
			return OutcomeTimedOut, nil
		}

		select {
		case <-ctx.Done():
			return OutcomeFailure, ctx.Err()
		case <-time.After(cfg.Interval):
		}
	}
}
