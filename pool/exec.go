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
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync/atomic"
	"syscall"
)

// WorkerIndexEnv is set in the environment of every worker process
const WorkerIndexEnv = "BLOCKLOADER_WORKER_INDEX"

// ExecSpawner starts each worker as a child process. By default the child is
// the current executable run with a single "worker" argument. The request
// pipe is handed over as fd 3 and the result pipe as fd 4.
type ExecSpawner struct {
	path   string
	args   []string
	env    []string
	stderr io.Writer
}

// ExecSpawnerOptionFunc is a type that represents functions that modify the ExecSpawner config
type ExecSpawnerOptionFunc func(*ExecSpawner)

// WithPath specifies the executable to run
func WithPath(path string) ExecSpawnerOptionFunc {
	return func(s *ExecSpawner) {
		s.path = path
	}
}

// WithArgs specifies the arguments for the child
func WithArgs(args ...string) ExecSpawnerOptionFunc {
	return func(s *ExecSpawner) {
		s.args = args
	}
}

// WithEnv specifies extra environment variables (KEY=value) for the child
func WithEnv(env ...string) ExecSpawnerOptionFunc {
	return func(s *ExecSpawner) {
		s.env = append(s.env, env...)
	}
}

// WithStderr specifies where the child's stderr goes
func WithStderr(stderr io.Writer) ExecSpawnerOptionFunc {
	return func(s *ExecSpawner) {
		s.stderr = stderr
	}
}

// NewExecSpawner returns a new ExecSpawner
func NewExecSpawner(opts ...ExecSpawnerOptionFunc) *ExecSpawner {
	s := &ExecSpawner{
		args:   []string{"worker"},
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spawn starts a worker process for the given index
func (s *ExecSpawner) Spawn(ctx context.Context, index int) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.path
	if path == "" {
		var err error
		path, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
	}
	reqR, reqW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create request pipe: %w", err)
	}
	resR, resW, err := os.Pipe()
	if err != nil {
		_ = reqR.Close()
		_ = reqW.Close()
		return nil, fmt.Errorf("create result pipe: %w", err)
	}
	// The lifetime of the child is managed by the pool, not by ctx
	cmd := exec.Command(path, s.args...) // #nosec G204
	cmd.ExtraFiles = []*os.File{reqR, resW}
	cmd.Env = append(os.Environ(), s.env...)
	cmd.Env = append(cmd.Env, WorkerIndexEnv+"="+strconv.Itoa(index))
	cmd.Stderr = s.stderr
	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{reqR, reqW, resR, resW} {
			_ = f.Close()
		}
		return nil, fmt.Errorf("start worker: %w", err)
	}
	// Only the child holds these ends from now on, so it sees EOF when we
	// close ours and we see EOF when it exits
	_ = reqR.Close()
	_ = resW.Close()
	p := &execProcess{
		cmd:      cmd,
		requests: reqW,
		results:  resR,
		doneChan: make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

type execProcess struct {
	cmd      *exec.Cmd
	requests *os.File
	results  *os.File
	err      error
	exited   atomic.Bool
	doneChan chan struct{}
}

func (p *execProcess) wait() {
	p.err = p.cmd.Wait()
	p.exited.Store(true)
	close(p.doneChan)
}

func (p *execProcess) Requests() io.WriteCloser {
	return p.requests
}

func (p *execProcess) Results() io.ReadCloser {
	return p.results
}

func (p *execProcess) Wait() error {
	<-p.doneChan
	return p.err
}

func (p *execProcess) Exited() bool {
	return p.exited.Load()
}

func (p *execProcess) Terminate() error {
	if p.Exited() {
		return nil
	}
	err := p.cmd.Process.Signal(syscall.SIGTERM)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}
