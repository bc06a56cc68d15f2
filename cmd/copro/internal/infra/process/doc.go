// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package process abstracts external process execution for the devnet CLI.

All git and docker invocations go through the Runner interface so the
higher layers (repository synchronizer, compose executor, lifecycle
manager) can be unit tested against MockRunner without spawning real
processes.

# Components

  - Runner: buffered (Run) and streamed (Stream) execution modes.
  - Relay: drains stdout and stderr of a streamed process on two
    independent goroutines, forwarding each line to a LineSink.
  - Poller: supervises a streamed process with an interval/deadline
    loop instead of a blocking wait.
  - RepoLock: flock-based advisory lock serializing checkout access
    across CLI instances.

# Execution Modes

Buffered mode blocks until the child exits and returns the full
captured stdout/stderr. Streamed mode returns a Process handle right
after spawn; output is relayed line by line while the caller drives
the Poller.

# Thread Safety

DefaultRunner is stateless and safe for concurrent use. A Handle is
safe for concurrent TryWait/Wait/Kill. Relay goroutines share no
mutable state beyond the caller-supplied LineSink, which must be safe
for concurrent use from two goroutines.
*/
package process
