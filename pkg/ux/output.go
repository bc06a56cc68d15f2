// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the copro CLI.
package ux

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Zippie palette
var (
	ColorPrimary = lipgloss.Color("#7C5CFF") // violet - brand
	ColorAccent  = lipgloss.Color("#4FD1C5") // teal - highlights
	ColorSuccess = lipgloss.Color("#48BB78") // green
	ColorWarning = lipgloss.Color("#F4D03F") // amber
	ColorError   = lipgloss.Color("#E74C3C") // red
	ColorMuted   = lipgloss.Color("#5C6773") // gray
	ColorGit     = lipgloss.Color("#48BB78") // green - git stream prefix
	ColorDocker  = lipgloss.Color("#4299E1") // blue - docker stream prefix
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style

	GitPrefix    lipgloss.Style
	DockerPrefix lipgloss.Style

	Box lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),

	GitPrefix:    lipgloss.NewStyle().Bold(true).Foreground(ColorGit),
	DockerPrefix: lipgloss.NewStyle().Bold(true).Foreground(ColorDocker),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorPrimary).
		Padding(0, 1),
}

// plain disables styling and icons; set automatically when stdout is
// not a terminal, overridable for tests and --plain.
var (
	plainMu sync.RWMutex
	plain   = !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())

	// out and errOut are swappable for tests.
	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr
)

// SetPlain forces plain output on or off.
func SetPlain(v bool) {
	plainMu.Lock()
	defer plainMu.Unlock()
	plain = v
}

// Plain reports whether plain output is active.
func Plain() bool {
	plainMu.RLock()
	defer plainMu.RUnlock()
	return plain
}

// SetWriters redirects output, primarily for tests. Passing nil keeps
// the current writer.
func SetWriters(stdout, stderr io.Writer) {
	plainMu.Lock()
	defer plainMu.Unlock()
	if stdout != nil {
		out = stdout
	}
	if stderr != nil {
		errOut = stderr
	}
}

func writers() (io.Writer, io.Writer) {
	plainMu.RLock()
	defer plainMu.RUnlock()
	return out, errOut
}

// =============================================================================
// Status lines
// =============================================================================

// Title prints a styled heading.
func Title(text string) {
	w, _ := writers()
	if Plain() {
		fmt.Fprintln(w, text)
		return
	}
	fmt.Fprintln(w, Styles.Title.Render(text))
}

// Success prints a success line with a checkmark.
func Success(text string) {
	w, _ := writers()
	if Plain() {
		fmt.Fprintf(w, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(w, "%s %s\n", Styles.Success.Render("✓"), text)
}

// Warning prints a warning line.
func Warning(text string) {
	_, e := writers()
	if Plain() {
		fmt.Fprintf(e, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(e, "%s %s\n", Styles.Warning.Render("⚠"), Styles.Warning.Render(text))
}

// Error prints an error line.
func Error(text string) {
	_, e := writers()
	if Plain() {
		fmt.Fprintf(e, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(e, "%s %s\n", Styles.Error.Render("✗"), Styles.Error.Render(text))
}

// Info prints an informational line.
func Info(text string) {
	w, _ := writers()
	if Plain() {
		fmt.Fprintln(w, text)
		return
	}
	fmt.Fprintf(w, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary text; suppressed in plain mode.
func Muted(text string) {
	if Plain() {
		return
	}
	w, _ := writers()
	fmt.Fprintln(w, Styles.Muted.Render(text))
}

// Box prints content under a titled rounded box.
func Box(title, content string) {
	w, _ := writers()
	if Plain() {
		fmt.Fprintf(w, "%s: %s\n", title, content)
		return
	}
	fmt.Fprintln(w, Styles.Box.Width(60).Render(Styles.Title.Render(title)+"\n"+content))
}

// =============================================================================
// Stream printers
// =============================================================================

// StreamPrinter relays subprocess output lines under a colored
// prefix, matching the GIT::/DOCKER:: convention of the devnet
// scripts. Info lines go to stdout, Warn lines to stderr.
//
// StreamPrinter satisfies the process package's LineSink.
type StreamPrinter struct {
	Prefix string
	Style  lipgloss.Style
}

// GitStream returns the printer for git subprocess output.
func GitStream() StreamPrinter {
	return StreamPrinter{Prefix: "GIT:: ", Style: Styles.GitPrefix}
}

// DockerStream returns the printer for container engine output.
func DockerStream() StreamPrinter {
	return StreamPrinter{Prefix: "DOCKER:: ", Style: Styles.DockerPrefix}
}

// Info prints a stdout line from the subprocess.
func (p StreamPrinter) Info(line string) {
	w, _ := writers()
	fmt.Fprintf(w, "%s%s\n", p.prefix(), line)
}

// Warn prints a stderr line from the subprocess. Container engines
// chat on stderr, so this is not styled as an error.
func (p StreamPrinter) Warn(line string) {
	_, e := writers()
	fmt.Fprintf(e, "%s%s\n", p.prefix(), line)
}

func (p StreamPrinter) prefix() string {
	if Plain() {
		return p.Prefix
	}
	return p.Style.Render(p.Prefix)
}
