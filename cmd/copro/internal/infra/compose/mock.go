// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package compose

import (
	"context"
	"sync"

	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/infra/process"
)

// MockExecutor is a test double for Executor. Nil function fields
// succeed; calls are recorded by method name in order.
type MockExecutor struct {
	BuildFunc  func(ctx context.Context, sink process.LineSink) error
	PullFunc   func(ctx context.Context, sink process.LineSink) error
	UpFunc     func(ctx context.Context, sink process.LineSink) error
	DownFunc   func(ctx context.Context, sink process.LineSink) error
	StatusFunc func(ctx context.Context) ([]ContainerStatus, error)
	LogsFunc   func(ctx context.Context, sink process.LineSink, follow bool) error

	mu    sync.Mutex
	Calls []string
}

var _ Executor = (*MockExecutor)(nil)

func (m *MockExecutor) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, method)
}

// CallOrder returns the recorded method names.
func (m *MockExecutor) CallOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}

func (m *MockExecutor) Build(ctx context.Context, sink process.LineSink) error {
	m.record("Build")
	if m.BuildFunc != nil {
		return m.BuildFunc(ctx, sink)
	}
	return nil
}

func (m *MockExecutor) Pull(ctx context.Context, sink process.LineSink) error {
	m.record("Pull")
	if m.PullFunc != nil {
		return m.PullFunc(ctx, sink)
	}
	return nil
}

func (m *MockExecutor) Up(ctx context.Context, sink process.LineSink) error {
	m.record("Up")
	if m.UpFunc != nil {
		return m.UpFunc(ctx, sink)
	}
	return nil
}

func (m *MockExecutor) Down(ctx context.Context, sink process.LineSink) error {
	m.record("Down")
	if m.DownFunc != nil {
		return m.DownFunc(ctx, sink)
	}
	return nil
}

func (m *MockExecutor) Status(ctx context.Context) ([]ContainerStatus, error) {
	m.record("Status")
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}
	return nil, nil
}

func (m *MockExecutor) Logs(ctx context.Context, sink process.LineSink, follow bool) error {
	m.record("Logs")
	if m.LogsFunc != nil {
		return m.LogsFunc(ctx, sink, follow)
	}
	return nil
}
