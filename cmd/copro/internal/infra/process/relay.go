// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package process

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// maxRelayLine bounds a single relayed line. git and docker both emit
// progress lines well under this; a longer line is delivered truncated
// to this many bytes with a note on the warn channel, and relaying
// continues with the next line.
const maxRelayLine = 1024 * 1024

// =============================================================================
// LineSink
// =============================================================================

// LineSink receives relayed output lines tagged by channel.
//
// # Description
//
// Info receives stdout lines, Warn receives stderr lines. Lines
// within one channel arrive in program emission order; no ordering
// holds between channels.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use: the relay calls
// Info and Warn from two different goroutines.
type LineSink interface {
	// Info receives one stdout line, without the trailing newline.
	Info(line string)

	// Warn receives one stderr line, without the trailing newline.
	Warn(line string)
}

// =============================================================================
// Relay
// =============================================================================

// Relay drains the two output streams of a running process.
//
// # Description
//
// Each stream is consumed by its own goroutine performing a blocking
// line-read loop until end-of-stream, so a process that fills one OS
// pipe buffer while the other is idle never stalls. An over-long line
// is relayed truncated and noted on the warn channel; relaying then
// continues with the next line. A read error on either stream is
// reported once on the warn channel and the remainder of that stream
// is discarded, keeping the child from blocking on a full pipe; the
// other stream is unaffected.
//
// # Example
//
//	relay := NewRelay(stdoutPipe, stderrPipe, sink)
//	relay.Start()
//	<-relay.Drained()
type Relay struct {
	stdout io.Reader
	stderr io.Reader
	sink   LineSink

	wg      sync.WaitGroup
	drained chan struct{}
	once    sync.Once
}

// NewRelay creates a relay over the given stream pair.
func NewRelay(stdout, stderr io.Reader, sink LineSink) *Relay {
	return &Relay{
		stdout:  stdout,
		stderr:  stderr,
		sink:    sink,
		drained: make(chan struct{}),
	}
}

// Start launches the two drain goroutines. Safe to call once; later
// calls are no-ops.
func (r *Relay) Start() {
	r.once.Do(func() {
		r.wg.Add(2)
		go r.drain(r.stdout, r.sink.Info)
		go r.drain(r.stderr, r.sink.Warn)
		go func() {
			r.wg.Wait()
			close(r.drained)
		}()
	})
}

// Drained returns a channel closed when both streams reached EOF.
func (r *Relay) Drained() <-chan struct{} {
	return r.drained
}

// drain performs the blocking line-read loop for one stream.
func (r *Relay) drain(stream io.Reader, emit func(string)) {
	defer r.wg.Done()

	reader := bufio.NewReaderSize(stream, 64*1024)
	line := make([]byte, 0, 256)
	truncated := false

	for {
		frag, isPrefix, err := reader.ReadLine()
		if len(frag) > 0 {
			if room := maxRelayLine - len(line); room > 0 {
				if len(frag) > room {
					frag = frag[:room]
					truncated = true
				}
				line = append(line, frag...)
			} else {
				truncated = true
			}
		}
		if err == nil && isPrefix {
			continue
		}

		if err == nil || len(line) > 0 {
			emit(string(line))
		}
		if truncated {
			r.sink.Warn(fmt.Sprintf("output relay: line exceeded %d bytes, truncated", maxRelayLine))
			truncated = false
		}
		line = line[:0]

		if err != nil {
			if err != io.EOF {
				r.sink.Warn(fmt.Sprintf("output relay: read error: %v", err))
				// Keep consuming so the child never stalls on a
				// full pipe buffer.
				io.Copy(io.Discard, stream)
			}
			return
		}
	}
}

// =============================================================================
// TailSink
// =============================================================================

// TailSink forwards relayed lines to an inner sink while retaining the
// most recent warn lines.
//
// # Description
//
// Streamed commands only show their stderr to the relay sink, so a
// failure would otherwise surface with no diagnostic text. Wrapping
// the sink in a TailSink lets the caller attach the stderr tail to the
// error it returns.
//
// # Thread Safety
//
// Safe for concurrent use; the relay calls Info and Warn from two
// goroutines.
type TailSink struct {
	inner LineSink
	limit int

	mu   sync.Mutex
	tail []string
}

var _ LineSink = (*TailSink)(nil)

// NewTailSink wraps inner, retaining at most limit warn lines.
func NewTailSink(inner LineSink, limit int) *TailSink {
	if limit <= 0 {
		limit = 1
	}
	return &TailSink{inner: inner, limit: limit}
}

// Info forwards a stdout line unchanged.
func (s *TailSink) Info(line string) {
	s.inner.Info(line)
}

// Warn forwards a stderr line and records it in the tail.
func (s *TailSink) Warn(line string) {
	s.mu.Lock()
	s.tail = append(s.tail, line)
	if len(s.tail) > s.limit {
		s.tail = s.tail[1:]
	}
	s.mu.Unlock()
	s.inner.Warn(line)
}

// Stderr returns the retained tail as one block, oldest line first.
func (s *TailSink) Stderr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(strings.Join(s.tail, "\n"))
}
