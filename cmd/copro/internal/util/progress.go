// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package util

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// =============================================================================
// Progress Indicator Interface
// =============================================================================

// ProgressIndicator provides visual feedback during long-running
// operations.
//
// # Description
//
// Lifecycle actions like cloning the coprocessor repo or waiting on
// `up --wait` can run for minutes; the indicator keeps the terminal
// alive while they do. Implementations must be safe for concurrent
// use.
//
// # Example
//
//	var ind ProgressIndicator = NewSpinner(DefaultSpinnerConfig())
//	ind.Start()
//	defer ind.Stop()
type ProgressIndicator interface {
	// Start begins the progress indication.
	Start()

	// Stop halts the progress indication.
	Stop()

	// StopSuccess halts with a success line; an empty message uses
	// the configured default.
	StopSuccess(message string)

	// StopFailure halts with a failure line.
	StopFailure(message string)

	// SetMessage updates the displayed message.
	SetMessage(message string)

	// IsRunning returns whether the indicator is active.
	IsRunning() bool
}

// =============================================================================
// Spinner Configuration
// =============================================================================

// SpinnerConfig configures spinner behavior.
//
// # Description
//
// Controls appearance, speed, and output destination. Zero values are
// replaced with defaults by NewSpinner.
//
// # Limitations
//
//   - Writer must support ANSI escape codes for animation; when
//     Animate is false only the final success/failure line is printed
type SpinnerConfig struct {
	// Message is the text displayed next to the spinner.
	Message string

	// Interval is the time between frame updates.
	// Default: 100ms
	Interval time.Duration

	// Frames are the animation characters.
	// Default: Braille dots (⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏)
	Frames []string

	// Writer is where output is written.
	// Default: os.Stderr
	Writer io.Writer

	// Animate enables the frame animation and cursor handling.
	// DefaultSpinnerConfig sets it from TTY detection on stderr;
	// streamed subprocess output shares the terminal, so piping the
	// CLI must not leave escape codes in logs.
	Animate bool

	// SuccessMessage shown when StopSuccess is called with "".
	SuccessMessage string

	// FailureMessage shown when StopFailure is called with "".
	FailureMessage string
}

// DefaultSpinnerConfig returns defaults: Braille frames at 100ms on
// stderr, animating only when stderr is a terminal.
func DefaultSpinnerConfig() SpinnerConfig {
	return SpinnerConfig{
		Message:  "Working...",
		Interval: 100 * time.Millisecond,
		Frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		Writer:   os.Stderr,
		Animate:  isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()),
	}
}

// =============================================================================
// Spinner
// =============================================================================

// Spinner provides animated progress feedback for CLI operations.
//
// # Thread Safety
//
// Spinner is safe for concurrent use. Start/Stop can be called from
// different goroutines; repeated calls are no-ops.
//
// # Example
//
//	spinner := NewSpinner(SpinnerConfig{Message: "Syncing checkout..."})
//	spinner.Start()
//	defer spinner.Stop()
type Spinner struct {
	config  SpinnerConfig
	frame   int
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
}

// Compile-time interface check
var _ ProgressIndicator = (*Spinner)(nil)

// NewSpinner creates a spinner; zero config fields get defaults.
func NewSpinner(config SpinnerConfig) *Spinner {
	if config.Interval <= 0 {
		config.Interval = 100 * time.Millisecond
	}
	if len(config.Frames) == 0 {
		config.Frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	}
	if config.Writer == nil {
		config.Writer = os.Stderr
	}

	return &Spinner{config: config}
}

// Start begins the spinner animation. No-op when already running or
// when animation is disabled.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	if !s.config.Animate {
		close(s.doneCh)
		return
	}

	if _, err := fmt.Fprint(s.config.Writer, "\033[?25l"); err != nil {
		slog.Warn("failed to hide cursor", "error", err)
	}

	go s.spin()
}

// Stop halts the animation and clears the line. Blocks until the
// animation goroutine exits.
func (s *Spinner) Stop() {
	if !s.halt() {
		return
	}
	if s.config.Animate {
		s.clearLine()
		s.showCursor()
	}
}

// StopSuccess stops and prints a ✓ line.
func (s *Spinner) StopSuccess(message string) {
	if !s.halt() {
		return
	}
	if s.config.Animate {
		s.clearLine()
	}

	if message == "" {
		message = s.config.SuccessMessage
	}
	if message == "" {
		message = "Done"
	}
	if _, err := fmt.Fprintf(s.config.Writer, "✓ %s\n", message); err != nil {
		slog.Warn("failed to write success message", "error", err)
	}
	if s.config.Animate {
		s.showCursor()
	}
}

// StopFailure stops and prints a ✗ line.
func (s *Spinner) StopFailure(message string) {
	if !s.halt() {
		return
	}
	if s.config.Animate {
		s.clearLine()
	}

	if message == "" {
		message = s.config.FailureMessage
	}
	if message == "" {
		message = "Failed"
	}
	if _, err := fmt.Fprintf(s.config.Writer, "✗ %s\n", message); err != nil {
		slog.Warn("failed to write failure message", "error", err)
	}
	if s.config.Animate {
		s.showCursor()
	}
}

// SetMessage updates the displayed message. Safe while running.
func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	s.config.Message = message
	s.mu.Unlock()
}

// IsRunning returns whether the spinner is active. Point-in-time
// snapshot.
func (s *Spinner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// halt transitions running -> stopped and waits for the animation
// goroutine. Returns false when the spinner was not running.
func (s *Spinner) halt() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh
	return true
}

// spin is the animation loop.
func (s *Spinner) spin() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.render()
		case <-s.stopCh:
			return
		}
	}
}

// render draws the current frame.
func (s *Spinner) render() {
	s.mu.Lock()
	frame := s.config.Frames[s.frame%len(s.config.Frames)]
	message := s.config.Message
	s.frame++
	s.mu.Unlock()

	if _, err := fmt.Fprintf(s.config.Writer, "\r%s %s", frame, message); err != nil {
		slog.Warn("failed to render spinner frame", "error", err)
	}
}

func (s *Spinner) clearLine() {
	if _, err := fmt.Fprint(s.config.Writer, "\r\033[K"); err != nil {
		slog.Warn("failed to clear line", "error", err)
	}
}

func (s *Spinner) showCursor() {
	if _, err := fmt.Fprint(s.config.Writer, "\033[?25h"); err != nil {
		slog.Warn("failed to show cursor", "error", err)
	}
}

// =============================================================================
// Convenience Functions
// =============================================================================

// SpinWhile runs fn with a spinner, then shows success or failure
// from fn's return value.
//
// # Example
//
//	err := SpinWhile("Stopping devnet...", func() error {
//	    return mgr.Stop(ctx)
//	})
func SpinWhile(message string, fn func() error) error {
	spinner := NewSpinner(withMessage(DefaultSpinnerConfig(), message))
	spinner.Start()

	err := fn()

	if err != nil {
		spinner.StopFailure(err.Error())
	} else {
		spinner.StopSuccess("")
	}
	return err
}

func withMessage(cfg SpinnerConfig, message string) SpinnerConfig {
	cfg.Message = message
	return cfg
}
