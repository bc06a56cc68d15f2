// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package util

import (
	"fmt"
	"time"
)

// =============================================================================
// Timeout Constants
// =============================================================================

// Deadlines and poll intervals for the devnet lifecycle. Config may
// override them; these are the floors and defaults.
const (
	// DefaultSubmodulePollInterval is how often the submodule
	// update is checked for completion.
	DefaultSubmodulePollInterval = 5 * time.Second

	// DefaultSubmoduleMaxWait bounds the recursive submodule
	// update. The eigenlayer and cartesi submodules are large;
	// first materialization on a slow link can take hours.
	DefaultSubmoduleMaxWait = 30000 * time.Second

	// DefaultComposePollInterval is how often streamed compose
	// commands are checked for completion.
	DefaultComposePollInterval = 2 * time.Second

	// DefaultComposeMaxWait bounds compose build/pull/up/down.
	// Image builds dominate; an hour covers cold caches.
	DefaultComposeMaxWait = 1 * time.Hour

	// DefaultQuietCommandTimeout bounds short non-streamed
	// commands like git fetch or compose ps.
	DefaultQuietCommandTimeout = 5 * time.Minute

	// MinPollInterval is the floor for any poll interval; anything
	// lower burns CPU without improving latency.
	MinPollInterval = 100 * time.Millisecond

	// MinOperationTimeout is the floor for any operation deadline.
	MinOperationTimeout = 1 * time.Second
)

// ValidateTimeout checks an operation deadline against the floor.
//
// # Inputs
//
//   - name: which setting is being validated, for the error message
//   - d: the configured value
//
// # Outputs
//
//   - error: nil when d is at or above MinOperationTimeout
func ValidateTimeout(name string, d time.Duration) error {
	if d < MinOperationTimeout {
		return fmt.Errorf("%s timeout %s is below the minimum %s", name, d, MinOperationTimeout)
	}
	return nil
}

// ValidatePollInterval checks a poll interval against the floor.
func ValidatePollInterval(name string, d time.Duration) error {
	if d < MinPollInterval {
		return fmt.Errorf("%s interval %s is below the minimum %s", name, d, MinPollInterval)
	}
	return nil
}
