// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package diag captures failure diagnostics for devnet lifecycle
// actions.
//
// When an action fails, the collector snapshots what it can reach
// (container states, checkout path, the failing error) into a JSON
// bundle under the state directory, so a bug report can carry the
// whole picture instead of one error line.
package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/infra/compose"
)

// Failure describes the failed action being diagnosed.
type Failure struct {
	// Action is the lifecycle verb that failed: start, stop,
	// update, reset.
	Action string

	// Err is the error it failed with.
	Err error
}

// Bundle is the persisted diagnostic snapshot.
type Bundle struct {
	ID         string                    `json:"id"`
	Action     string                    `json:"action"`
	Error      string                    `json:"error"`
	Timestamp  time.Time                 `json:"timestamp"`
	Checkout   string                    `json:"checkout"`
	Containers []compose.ContainerStatus `json:"containers,omitempty"`

	// StatusError records why container states are missing, when
	// they are.
	StatusError string `json:"status_error,omitempty"`
}

// Collector writes diagnostic bundles.
type Collector interface {
	// Collect snapshots the failure and returns the bundle path.
	Collect(ctx context.Context, failure Failure) (string, error)
}

// DefaultCollector implements Collector against the real filesystem
// and compose stack.
type DefaultCollector struct {
	dir      string
	checkout string
	executor compose.Executor
}

var _ Collector = (*DefaultCollector)(nil)

// NewDefaultCollector creates a collector writing bundles into dir.
// executor may be nil when the stack is unreachable; container states
// are then omitted.
func NewDefaultCollector(dir, checkout string, executor compose.Executor) *DefaultCollector {
	return &DefaultCollector{dir: dir, checkout: checkout, executor: executor}
}

// Collect writes diag_{uuid}.json under the collector's directory.
//
// # Description
//
// Everything here is best effort: a failed container status query is
// recorded in the bundle rather than failing the collection, because
// the most interesting failures are exactly the ones where the engine
// is unreachable.
func (c *DefaultCollector) Collect(ctx context.Context, failure Failure) (string, error) {
	bundle := Bundle{
		ID:        uuid.NewString(),
		Action:    failure.Action,
		Timestamp: time.Now().UTC(),
		Checkout:  c.checkout,
	}
	if failure.Err != nil {
		bundle.Error = failure.Err.Error()
	}

	if c.executor != nil {
		statuses, err := c.executor.Status(ctx)
		if err != nil {
			bundle.StatusError = err.Error()
		} else {
			bundle.Containers = statuses
		}
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating diagnostics dir %s: %w", c.dir, err)
	}

	path := filepath.Join(c.dir, "diag_"+bundle.ID+".json")
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding diagnostic bundle: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing diagnostic bundle: %w", err)
	}
	return path, nil
}
