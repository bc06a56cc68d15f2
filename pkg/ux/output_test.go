// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

// capture redirects ux output for the duration of the test.
func capture(t *testing.T, plainMode bool) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	wasPlain := Plain()

	SetWriters(stdout, stderr)
	SetPlain(plainMode)
	t.Cleanup(func() {
		SetWriters(os.Stdout, os.Stderr)
		SetPlain(wasPlain)
	})

	return stdout, stderr
}

func TestSuccessPlain(t *testing.T) {
	stdout, _ := capture(t, true)
	Success("devnet is up")
	if got := stdout.String(); got != "OK: devnet is up\n" {
		t.Errorf("plain success = %q", got)
	}
}

func TestErrorPlainGoesToStderr(t *testing.T) {
	stdout, stderr := capture(t, true)
	Error("sync failed")
	if stdout.Len() != 0 {
		t.Errorf("error leaked to stdout: %q", stdout.String())
	}
	if got := stderr.String(); got != "ERROR: sync failed\n" {
		t.Errorf("plain error = %q", got)
	}
}

func TestWarningPlain(t *testing.T) {
	_, stderr := capture(t, true)
	Warning("checkout diverged")
	if got := stderr.String(); !strings.HasPrefix(got, "WARN: ") {
		t.Errorf("plain warning = %q", got)
	}
}

func TestMutedSuppressedInPlainMode(t *testing.T) {
	stdout, _ := capture(t, true)
	Muted("detail")
	if stdout.Len() != 0 {
		t.Errorf("muted text printed in plain mode: %q", stdout.String())
	}
}

func TestBoxPlainFallsBackToKeyValue(t *testing.T) {
	stdout, _ := capture(t, true)
	Box("Devnet", "3 containers running")
	if got := stdout.String(); got != "Devnet: 3 containers running\n" {
		t.Errorf("plain box = %q", got)
	}
}

func TestStreamPrinterPrefixes(t *testing.T) {
	stdout, stderr := capture(t, true)

	git := GitStream()
	git.Info("Cloning into '/home/u/.cartesi-coprocessor-repo'...")
	git.Warn("warning: redirecting")

	docker := DockerStream()
	docker.Info("Container devnet-anvil-1  Healthy")

	if got := stdout.String(); !strings.Contains(got, "GIT:: Cloning") {
		t.Errorf("git info = %q, want GIT:: prefix", got)
	}
	if got := stderr.String(); !strings.Contains(got, "GIT:: warning") {
		t.Errorf("git warn = %q, want GIT:: prefix on stderr", got)
	}
	if got := stdout.String(); !strings.Contains(got, "DOCKER:: Container") {
		t.Errorf("docker info = %q, want DOCKER:: prefix", got)
	}
}

func TestStreamPrinterStyledPrefixKeepsText(t *testing.T) {
	stdout, _ := capture(t, false)

	GitStream().Info("Updating files")
	if got := stdout.String(); !strings.Contains(got, "Updating files") {
		t.Errorf("styled output lost the line text: %q", got)
	}
}

func TestSetPlainToggles(t *testing.T) {
	capture(t, false)
	if Plain() {
		t.Error("Plain() should be false after SetPlain(false)")
	}
	SetPlain(true)
	if !Plain() {
		t.Error("Plain() should be true after SetPlain(true)")
	}
}
