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

//go:build unix

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"
)

// File descriptors the supervisor hands to a worker process
const (
	RequestsFd = 3
	ResultsFd  = 4
)

// Main runs a worker process on the pipes inherited at RequestsFd and
// ResultsFd
func Main(ctx context.Context, logger *slog.Logger) error {
	// The inherited ends arrive in blocking mode. Switching them back lets the
	// runtime poller manage them, so a pending read can be interrupted.
	for _, fd := range []int{RequestsFd, ResultsFd} {
		if err := syscall.SetNonblock(fd, true); err != nil {
			return fmt.Errorf("worker: fd %d: %w", fd, err)
		}
	}
	in := os.NewFile(RequestsFd, "requests")
	out := os.NewFile(ResultsFd, "results")
	defer out.Close()
	rt, err := New(in, out, WithLogger(logger))
	if err != nil {
		return err
	}
	stop := rt.HandleSignals(ctx)
	defer stop()
	return rt.Run(ctx)
}
