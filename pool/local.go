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
	"os"
	"sync/atomic"

	"github.com/blinklabs-io/blockloader/worker"
)

// RunFunc runs the worker side of a pair of pipes until it returns
type RunFunc func(ctx context.Context, index int, in io.Reader, out io.Writer) error

// LocalSpawner runs each worker on a goroutine inside the current process,
// connected through in-memory pipes. It speaks the same protocol as a child
// process and is used for tests and single-process deployments.
type LocalSpawner struct {
	run RunFunc
}

// NewLocalSpawner returns a LocalSpawner which runs workers with run
func NewLocalSpawner(run RunFunc) *LocalSpawner {
	return &LocalSpawner{
		run: run,
	}
}

// RuntimeRunFunc returns a RunFunc which runs a worker.Runtime built with
// the given options
func RuntimeRunFunc(opts ...worker.RuntimeOptionFunc) RunFunc {
	return func(ctx context.Context, _ int, in io.Reader, out io.Writer) error {
		rt, err := worker.New(in, out, opts...)
		if err != nil {
			return err
		}
		return rt.Run(ctx)
	}
}

// Spawn starts a worker goroutine
func (s *LocalSpawner) Spawn(ctx context.Context, index int) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reqR, reqW := io.Pipe()
	resR, resW := io.Pipe()
	runCtx, cancel := context.WithCancel(context.Background())
	p := &localProcess{
		requests: reqW,
		results:  resR,
		cancel:   cancel,
		doneChan: make(chan struct{}),
	}
	go func() {
		err := s.run(runCtx, index, reqR, resW)
		_ = resW.Close()
		_ = reqR.Close()
		cancel()
		p.err = err
		p.exited.Store(true)
		close(p.doneChan)
	}()
	return p, nil
}

type localProcess struct {
	requests *io.PipeWriter
	results  *io.PipeReader
	cancel   context.CancelFunc
	err      error
	exited   atomic.Bool
	doneChan chan struct{}
}

func (p *localProcess) Requests() io.WriteCloser {
	return p.requests
}

func (p *localProcess) Results() io.ReadCloser {
	return p.results
}

func (p *localProcess) Wait() error {
	<-p.doneChan
	return p.err
}

func (p *localProcess) Exited() bool {
	return p.exited.Load()
}

func (p *localProcess) Terminate() error {
	p.cancel()
	return nil
}

func (p *localProcess) Pid() int {
	return os.Getpid()
}
