// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pool

import (
	"context"
	"io"
)

// Process is a running worker as seen by the supervisor
type Process interface {
	// Requests returns the parent's end of the request pipe
	Requests() io.WriteCloser
	// Results returns the parent's end of the result pipe
	Results() io.ReadCloser
	// Wait blocks until the process exits
	Wait() error
	// Exited reports whether the process has exited
	Exited() bool
	// Terminate asks the process to exit
	Terminate() error
	Pid() int
}

// Spawner starts worker processes
type Spawner interface {
	Spawn(ctx context.Context, index int) (Process, error)
}

// SpawnerFunc is a function which implements Spawner
type SpawnerFunc func(ctx context.Context, index int) (Process, error)

func (f SpawnerFunc) Spawn(ctx context.Context, index int) (Process, error) {
	return f(ctx, index)
}

// Sink receives the blocks delivered by workers
type Sink interface {
	Set(height uint64, block []byte)
}
