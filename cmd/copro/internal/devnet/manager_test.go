// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package devnet

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/diag"
	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/infra/compose"
	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/infra/git"
	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/infra/process"
	"github.com/zippiehq/coprocessor-devnet/pkg/logging"
)

type nopSink struct{}

func (nopSink) Info(string) {}
func (nopSink) Warn(string) {}

// recordingProgress captures phase events as "phase", "phase done",
// "phase failed" strings.
type recordingProgress struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingProgress) add(e string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingProgress) Phase(name string)                { p.add(name) }
func (p *recordingProgress) PhaseDone(name string)            { p.add(name + " done") }
func (p *recordingProgress) PhaseFailed(name string, _ error) { p.add(name + " failed") }

func (p *recordingProgress) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// recordingCollector captures diag.Collect calls.
type recordingCollector struct {
	mu       sync.Mutex
	failures []diag.Failure
}

func (c *recordingCollector) Collect(ctx context.Context, f diag.Failure) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, f)
	return "/tmp/diag_test.json", nil
}

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError, Quiet: true})
}

func newTestManager(t *testing.T, sync *git.MockSynchronizer, stack *compose.MockExecutor) (*DefaultManager, *recordingProgress, *recordingCollector) {
	t.Helper()
	progress := &recordingProgress{}
	collector := &recordingCollector{}

	m, err := NewDefaultManager(Deps{
		Sync:       sync,
		Stack:      stack,
		GitSink:    nopSink{},
		DockerSink: nopSink{},
		Diag:       collector,
		Progress:   progress,
		Log:        quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewDefaultManager failed: %v", err)
	}
	return m, progress, collector
}

func TestStartRunsPhasesInOrder(t *testing.T) {
	syncer := &git.MockSynchronizer{}
	stack := &compose.MockExecutor{}
	m, progress, _ := newTestManager(t, syncer, stack)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if got := strings.Join(stack.CallOrder(), ","); got != "Build,Pull,Up" {
		t.Errorf("compose calls = %s, want Build,Pull,Up", got)
	}

	synced := false
	for _, c := range syncer.Calls {
		if c == "EnsureReady" {
			synced = true
		}
	}
	if !synced {
		t.Error("Start never synced the checkout")
	}

	want := "sync,sync done,build,build done,pull,pull done,up,up done"
	if got := strings.Join(progress.all(), ","); got != want {
		t.Errorf("progress events = %s, want %s", got, want)
	}
}

func TestStartAbortsOnBuildFailure(t *testing.T) {
	syncer := &git.MockSynchronizer{}
	stack := &compose.MockExecutor{
		BuildFunc: func(ctx context.Context, sink process.LineSink) error {
			return errors.New("no space left on device")
		},
	}
	m, progress, collector := newTestManager(t, syncer, stack)

	err := m.Start(context.Background())
	if !errors.Is(err, ErrBuildFailed) {
		t.Fatalf("error = %v, want ErrBuildFailed", err)
	}

	for _, call := range stack.CallOrder() {
		if call == "Pull" || call == "Up" {
			t.Errorf("phase %s ran after build failure", call)
		}
	}

	events := strings.Join(progress.all(), ",")
	if !strings.Contains(events, "build failed") {
		t.Errorf("progress events = %s, want build failed", events)
	}

	if len(collector.failures) != 1 || collector.failures[0].Action != "start" {
		t.Errorf("diagnostics = %+v, want one start failure", collector.failures)
	}
}

func TestStartSyncFailure(t *testing.T) {
	syncer := &git.MockSynchronizer{
		EnsureReadyFunc: func(ctx context.Context, sink process.LineSink) error {
			return git.ErrSync
		},
	}
	stack := &compose.MockExecutor{}
	m, _, _ := newTestManager(t, syncer, stack)

	err := m.Start(context.Background())
	if !errors.Is(err, ErrSyncFailed) {
		t.Fatalf("error = %v, want ErrSyncFailed", err)
	}
	if len(stack.CallOrder()) != 0 {
		t.Errorf("compose ran despite sync failure: %v", stack.CallOrder())
	}
}

func TestStopSyncsThenTearsDown(t *testing.T) {
	syncer := &git.MockSynchronizer{}
	stack := &compose.MockExecutor{}
	m, _, _ := newTestManager(t, syncer, stack)

	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := strings.Join(stack.CallOrder(), ","); got != "Down" {
		t.Errorf("compose calls = %s, want Down", got)
	}
}

func TestStopDownFailure(t *testing.T) {
	stack := &compose.MockExecutor{
		DownFunc: func(ctx context.Context, sink process.LineSink) error {
			return errors.New("container refuses to die")
		},
	}
	m, _, collector := newTestManager(t, &git.MockSynchronizer{}, stack)

	err := m.Stop(context.Background())
	if !errors.Is(err, ErrStopFailed) {
		t.Fatalf("error = %v, want ErrStopFailed", err)
	}
	if len(collector.failures) != 1 || collector.failures[0].Action != "stop" {
		t.Errorf("diagnostics = %+v", collector.failures)
	}
}

func TestUpdateOnlySyncs(t *testing.T) {
	syncer := &git.MockSynchronizer{}
	stack := &compose.MockExecutor{}
	m, _, _ := newTestManager(t, syncer, stack)

	if err := m.Update(context.Background()); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(stack.CallOrder()) != 0 {
		t.Errorf("Update touched the stack: %v", stack.CallOrder())
	}
}

func TestResetRemovesThenSyncs(t *testing.T) {
	syncer := &git.MockSynchronizer{}
	m, progress, _ := newTestManager(t, syncer, &compose.MockExecutor{})

	if err := m.Reset(context.Background()); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	var order []string
	for _, c := range syncer.Calls {
		if c == "Remove" || c == "EnsureReady" {
			order = append(order, c)
		}
	}
	if got := strings.Join(order, ","); got != "Remove,EnsureReady" {
		t.Errorf("sync calls = %s, want Remove,EnsureReady", got)
	}

	events := strings.Join(progress.all(), ",")
	if !strings.HasPrefix(events, "remove,remove done,sync") {
		t.Errorf("progress events = %s", events)
	}
}

func TestResetRemoveFailure(t *testing.T) {
	syncer := &git.MockSynchronizer{
		RemoveFunc: func() error { return git.ErrFilesystem },
	}
	m, _, _ := newTestManager(t, syncer, &compose.MockExecutor{})

	err := m.Reset(context.Background())
	if !errors.Is(err, ErrResetFailed) {
		t.Fatalf("error = %v, want ErrResetFailed", err)
	}

	for _, c := range syncer.Calls {
		if c == "EnsureReady" {
			t.Error("sync ran after remove failure")
		}
	}
}

func TestActionRecoversPanic(t *testing.T) {
	stack := &compose.MockExecutor{
		BuildFunc: func(ctx context.Context, sink process.LineSink) error {
			panic("executor bug")
		},
	}
	m, _, collector := newTestManager(t, &git.MockSynchronizer{}, stack)

	err := m.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "panic during start") {
		t.Fatalf("error = %v, want recovered panic", err)
	}
	if len(collector.failures) != 1 {
		t.Errorf("panic should still collect diagnostics, got %d", len(collector.failures))
	}
}

func TestStatusDelegates(t *testing.T) {
	stack := &compose.MockExecutor{
		StatusFunc: func(ctx context.Context) ([]compose.ContainerStatus, error) {
			return []compose.ContainerStatus{{Service: "anvil", State: "running"}}, nil
		},
	}
	m, _, _ := newTestManager(t, &git.MockSynchronizer{}, stack)

	statuses, err := m.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(statuses) != 1 || statuses[0].Service != "anvil" {
		t.Errorf("statuses = %+v", statuses)
	}
}

func TestLogsDelegatesFollow(t *testing.T) {
	var gotFollow bool
	stack := &compose.MockExecutor{
		LogsFunc: func(ctx context.Context, sink process.LineSink, follow bool) error {
			gotFollow = follow
			return nil
		},
	}
	m, _, _ := newTestManager(t, &git.MockSynchronizer{}, stack)

	if err := m.Logs(context.Background(), true); err != nil {
		t.Fatalf("Logs failed: %v", err)
	}
	if !gotFollow {
		t.Error("follow flag not forwarded")
	}
}

func TestNewDefaultManagerValidation(t *testing.T) {
	base := Deps{
		Sync:       &git.MockSynchronizer{},
		Stack:      &compose.MockExecutor{},
		GitSink:    nopSink{},
		DockerSink: nopSink{},
	}

	cases := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"missing sync", func(d *Deps) { d.Sync = nil }},
		{"missing stack", func(d *Deps) { d.Stack = nil }},
		{"missing git sink", func(d *Deps) { d.GitSink = nil }},
		{"missing docker sink", func(d *Deps) { d.DockerSink = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deps := base
			tc.mutate(&deps)
			if _, err := NewDefaultManager(deps); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if _, err := NewDefaultManager(base); err != nil {
		t.Errorf("valid deps rejected: %v", err)
	}
}
