// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package git

import (
	"context"
	"sync"

	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/infra/process"
)

// MockSynchronizer is a test double for Synchronizer. Nil function
// fields succeed; calls are recorded by method name.
type MockSynchronizer struct {
	EnsureReadyFunc func(ctx context.Context, sink process.LineSink) error
	RemoveFunc      func() error
	PathValue       string

	mu    sync.Mutex
	Calls []string
}

var _ Synchronizer = (*MockSynchronizer)(nil)

func (m *MockSynchronizer) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, method)
}

func (m *MockSynchronizer) EnsureReady(ctx context.Context, sink process.LineSink) error {
	m.record("EnsureReady")
	if m.EnsureReadyFunc != nil {
		return m.EnsureReadyFunc(ctx, sink)
	}
	return nil
}

func (m *MockSynchronizer) Remove() error {
	m.record("Remove")
	if m.RemoveFunc != nil {
		return m.RemoveFunc()
	}
	return nil
}

func (m *MockSynchronizer) Path() string {
	m.record("Path")
	if m.PathValue != "" {
		return m.PathValue
	}
	return "/tmp/copro-test-checkout"
}
