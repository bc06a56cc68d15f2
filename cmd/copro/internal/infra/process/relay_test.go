// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package process

import (
	"io"
	"strings"
	"testing"
	"time"
)

func waitDrained(t *testing.T, r *Relay) {
	t.Helper()
	select {
	case <-r.Drained():
	case <-time.After(5 * time.Second):
		t.Fatal("relay never drained")
	}
}

func TestRelayPreservesPerStreamOrder(t *testing.T) {
	stdout := strings.NewReader("A\nB\n")
	stderr := strings.NewReader("X\nY\n")
	sink := &collectSink{}

	r := NewRelay(stdout, stderr, sink)
	r.Start()
	waitDrained(t, r)

	if got := sink.infoLines(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("stdout lines = %v, want [A B]", got)
	}
	if got := sink.warnLines(); len(got) != 2 || got[0] != "X" || got[1] != "Y" {
		t.Errorf("stderr lines = %v, want [X Y]", got)
	}
}

func TestRelayHandlesEmptyStreams(t *testing.T) {
	sink := &collectSink{}

	r := NewRelay(strings.NewReader(""), strings.NewReader(""), sink)
	r.Start()
	waitDrained(t, r)

	if len(sink.infoLines()) != 0 || len(sink.warnLines()) != 0 {
		t.Errorf("expected no lines, got info=%v warn=%v", sink.infoLines(), sink.warnLines())
	}
}

func TestRelayHandlesMissingTrailingNewline(t *testing.T) {
	sink := &collectSink{}

	r := NewRelay(strings.NewReader("partial"), strings.NewReader(""), sink)
	r.Start()
	waitDrained(t, r)

	got := sink.infoLines()
	if len(got) != 1 || got[0] != "partial" {
		t.Errorf("lines = %v, want [partial]", got)
	}
}

func TestRelayDrainedWaitsForBothStreams(t *testing.T) {
	slowOut, slowIn := io.Pipe()
	sink := &collectSink{}

	r := NewRelay(slowOut, strings.NewReader("done\n"), sink)
	r.Start()

	select {
	case <-r.Drained():
		t.Fatal("Drained closed while stdout pipe is still open")
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := slowIn.Write([]byte("late\n")); err != nil {
		t.Fatalf("pipe write failed: %v", err)
	}
	slowIn.Close()

	waitDrained(t, r)

	got := sink.infoLines()
	if len(got) != 1 || got[0] != "late" {
		t.Errorf("stdout lines = %v, want [late]", got)
	}
}

func TestRelayReportsReadErrors(t *testing.T) {
	brokenOut, brokenIn := io.Pipe()
	sink := &collectSink{}

	r := NewRelay(brokenOut, strings.NewReader(""), sink)
	r.Start()

	brokenIn.CloseWithError(io.ErrUnexpectedEOF)
	waitDrained(t, r)

	warns := sink.warnLines()
	found := false
	for _, w := range warns {
		if strings.Contains(w, "read error") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a read error warning, got %v", warns)
	}
}

func TestRelayLongLines(t *testing.T) {
	// Longer than the reader's initial buffer but under the cap.
	line := strings.Repeat("z", 200*1024)
	sink := &collectSink{}

	r := NewRelay(strings.NewReader(line+"\n"), strings.NewReader(""), sink)
	r.Start()
	waitDrained(t, r)

	got := sink.infoLines()
	if len(got) != 1 || len(got[0]) != len(line) {
		t.Errorf("long line not relayed intact; got %d lines", len(got))
	}
}

func TestTailSinkRetainsRecentStderr(t *testing.T) {
	inner := &collectSink{}
	tail := NewTailSink(inner, 2)

	tail.Info("progress")
	tail.Warn("first")
	tail.Warn("second")
	tail.Warn("third")

	if got := tail.Stderr(); got != "second\nthird" {
		t.Errorf("Stderr() = %q, want the two most recent warn lines", got)
	}
	if got := inner.infoLines(); len(got) != 1 || got[0] != "progress" {
		t.Errorf("info forwarding broken: %v", got)
	}
	if got := inner.warnLines(); len(got) != 3 {
		t.Errorf("warn lines forwarded = %d, want 3", len(got))
	}
}

func TestTailSinkEmptyWhenNoStderr(t *testing.T) {
	tail := NewTailSink(&collectSink{}, 4)
	tail.Info("only stdout")

	if got := tail.Stderr(); got != "" {
		t.Errorf("Stderr() = %q, want empty", got)
	}
}

func TestRelayTruncatesOverlongLineAndContinues(t *testing.T) {
	// A line past the cap must not end the stream: the line arrives
	// truncated, a warning is emitted, and later lines still flow.
	huge := strings.Repeat("z", 2*maxRelayLine)
	sink := &collectSink{}

	r := NewRelay(strings.NewReader(huge+"\nafter\n"), strings.NewReader(""), sink)
	r.Start()
	waitDrained(t, r)

	got := sink.infoLines()
	if len(got) != 2 {
		t.Fatalf("info lines = %d, want 2", len(got))
	}
	if len(got[0]) != maxRelayLine {
		t.Errorf("truncated line length = %d, want %d", len(got[0]), maxRelayLine)
	}
	if got[1] != "after" {
		t.Errorf("line after the over-long one = %q, want \"after\"", got[1])
	}

	warned := false
	for _, w := range sink.warnLines() {
		if strings.Contains(w, "truncated") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("expected a truncation warning, got %v", sink.warnLines())
	}
}
