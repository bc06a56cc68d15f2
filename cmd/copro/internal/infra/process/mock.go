// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package process

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// MockRunner
// =============================================================================

// RunnerCall records one invocation against a MockRunner.
type RunnerCall struct {
	Method     string // "Run" or "Stream"
	Invocation Invocation
}

// MockRunner is a test double for Runner.
//
// # Description
//
// Each method delegates to an optional function field and records the
// call. When a function field is nil the method returns a benign
// success so tests only stub what they assert on.
//
// # Example
//
//	mock := &MockRunner{
//	    RunFunc: func(ctx context.Context, inv Invocation) (*Result, error) {
//	        if inv.Program == "git" {
//	            return &Result{Success: false, ExitCode: 128}, nil
//	        }
//	        return &Result{Success: true}, nil
//	    },
//	}
type MockRunner struct {
	RunFunc    func(ctx context.Context, inv Invocation) (*Result, error)
	StreamFunc func(ctx context.Context, inv Invocation, sink LineSink) (Process, error)

	mu    sync.Mutex
	Calls []RunnerCall
}

var _ Runner = (*MockRunner)(nil)

func (m *MockRunner) record(method string, inv Invocation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, RunnerCall{Method: method, Invocation: inv})
}

func (m *MockRunner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	m.record("Run", inv)
	if m.RunFunc != nil {
		return m.RunFunc(ctx, inv)
	}
	return &Result{Success: true, ExitCode: 0}, nil
}

func (m *MockRunner) Stream(ctx context.Context, inv Invocation, sink LineSink) (Process, error) {
	m.record("Stream", inv)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, inv, sink)
	}
	return &FakeProcess{DoneAfter: 1, ExitSuccess: true}, nil
}

// CallsFor returns the recorded invocations for one program, in order.
func (m *MockRunner) CallsFor(program string) []RunnerCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []RunnerCall
	for _, c := range m.Calls {
		if c.Invocation.Program == program {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears the recorded calls.
func (m *MockRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// =============================================================================
// FakeProcess
// =============================================================================

// FakeProcess is a scripted Process for exercising Await without
// spawning anything.
//
// DoneAfter is the number of TryWait calls before the process reports
// completion; zero means done immediately. If DoneAfter is negative
// the process never completes on its own.
type FakeProcess struct {
	DoneAfter   int
	ExitSuccess bool
	TryWaitErr  error
	KillErr     error

	mu       sync.Mutex
	tryWaits int
	killed   bool
}

var _ Process = (*FakeProcess)(nil)

func (p *FakeProcess) TryWait() (bool, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.TryWaitErr != nil {
		return false, false, p.TryWaitErr
	}
	p.tryWaits++
	if p.DoneAfter < 0 || p.tryWaits <= p.DoneAfter {
		return false, false, nil
	}
	return true, p.ExitSuccess, nil
}

func (p *FakeProcess) Wait() (bool, error) {
	for {
		done, ok, err := p.TryWait()
		if err != nil {
			return false, err
		}
		if done {
			return ok, nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (p *FakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = true
	return p.KillErr
}

// Killed reports whether Kill was called.
func (p *FakeProcess) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// TryWaits returns how many times TryWait was called.
func (p *FakeProcess) TryWaits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tryWaits
}
