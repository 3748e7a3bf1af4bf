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

// Package pool supervises a fixed number of worker processes. It spawns them,
// hands out get requests, routes their results to a sink and notices when
// they die.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/blinklabs-io/blockloader/frame"
	"github.com/blinklabs-io/blockloader/pipe"
	"github.com/blinklabs-io/blockloader/worker"
	"github.com/jinzhu/copier"
)

var (
	ErrWorkerNotFound = errors.New("worker not found")
	ErrWorkerBusy     = errors.New("worker busy")
	ErrWorkerExists   = errors.New("worker already running")
	ErrInvalidIndex   = errors.New("invalid worker index")
	ErrPoolStopped    = errors.New("pool stopped")
	ErrNoSink         = errors.New("no sink configured")
	ErrInvalidCount   = errors.New("invalid batch count")
)

// Worker is a registered worker process and the parent's ends of its pipes
type Worker struct {
	Index    int
	process  Process
	writer   *pipe.Writer
	reader   *pipe.Reader
	busy     bool
	pending  uint64
	goneChan chan struct{}
	goneOnce sync.Once
}

// Pid returns the process id of the worker
func (w *Worker) Pid() int {
	return w.process.Pid()
}

func (w *Worker) markGone() {
	w.goneOnce.Do(func() {
		close(w.goneChan)
	})
}

// Pool owns the worker registry. The registry and the busy flags are guarded
// by mu, and no I/O happens while it is held.
type Pool struct {
	mu       sync.Mutex
	config   Config
	spawner  Spawner
	sink     Sink
	logger   *slog.Logger
	metrics  *Metrics
	workers  map[int]*Worker
	spawning map[int]bool
	attempts map[int]int
	stopped  bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New returns a new Pool. No workers are started until Spawn or SpawnAll is
// called.
func New(opts ...OptionFunc) (*Pool, error) {
	p := &Pool{
		config:   DefaultConfig(),
		workers:  make(map[int]*Worker),
		spawning: make(map[int]bool),
		attempts: make(map[int]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sink == nil {
		return nil, ErrNoSink
	}
	if p.config.Workers < 1 {
		return nil, fmt.Errorf("%w: need at least one worker", ErrInvalidIndex)
	}
	if p.config.BatchLimit < 1 {
		p.config.BatchLimit = worker.DefaultBatchLimit
	}
	if p.config.ReadRetryInterval <= 0 {
		p.config.ReadRetryInterval = DefaultReadRetryInterval
	}
	if p.spawner == nil {
		p.spawner = NewExecSpawner()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "pool")
	if p.metrics == nil {
		p.metrics = NopMetrics()
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p, nil
}

// Config returns the pool config
func (p *Pool) Config() Config {
	return p.config
}

// Spawn starts a worker for index, sends it its config and registers it as
// idle. The worker's result loop and exit watcher run until it exits.
func (p *Pool) Spawn(ctx context.Context, index int) (*Worker, error) {
	if index < 0 || index >= p.config.Workers {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil, ErrPoolStopped
	}
	if _, ok := p.workers[index]; ok || p.spawning[index] {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrWorkerExists, index)
	}
	p.spawning[index] = true
	p.mu.Unlock()
	w, err := p.startWorker(ctx, index)
	p.mu.Lock()
	delete(p.spawning, index)
	if err != nil {
		p.mu.Unlock()
		p.metrics.SpawnFailures.Add(1)
		return nil, err
	}
	if p.stopped {
		p.mu.Unlock()
		_ = w.process.Terminate()
		_ = w.writer.Close()
		_ = w.reader.Close()
		return nil, ErrPoolStopped
	}
	p.workers[index] = w
	p.metrics.Workers.Set(float64(len(p.workers)))
	p.wg.Add(2)
	p.mu.Unlock()
	go p.resultLoop(w)
	go p.watchExit(w)
	p.logger.Info(
		"worker started",
		"worker", index,
		"pid", w.Pid(),
	)
	return w, nil
}

func (p *Pool) startWorker(ctx context.Context, index int) (*Worker, error) {
	proc, err := p.spawner.Spawn(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("spawn worker %d: %w", index, err)
	}
	w := &Worker{
		Index:    index,
		process:  proc,
		writer:   pipe.NewWriter(proc.Requests()),
		reader:   pipe.NewReader(proc.Results()),
		goneChan: make(chan struct{}),
	}
	fail := func(err error) (*Worker, error) {
		_ = proc.Terminate()
		_ = w.writer.Close()
		_ = w.reader.Close()
		return nil, fmt.Errorf("configure worker %d: %w", index, err)
	}
	var cfg worker.Config
	if err := copier.Copy(&cfg, &p.config); err != nil {
		return fail(err)
	}
	cfg.Index = index
	payload, err := worker.EncodeConfig(cfg)
	if err != nil {
		return fail(err)
	}
	if err := w.writer.WriteFrame(frame.MessageTypeConfig, payload); err != nil {
		return fail(err)
	}
	return w, nil
}

// SpawnAll runs a spawn cycle for every index without a live worker. Spawn
// failures are logged and the index is skipped. It returns the number of
// workers started.
func (p *Pool) SpawnAll(ctx context.Context) int {
	p.mu.Lock()
	clear(p.attempts)
	var missing []int
	for i := 0; i < p.config.Workers; i++ {
		if _, ok := p.workers[i]; !ok && !p.spawning[i] {
			missing = append(missing, i)
		}
	}
	p.mu.Unlock()
	started := 0
	for _, index := range missing {
		if _, err := p.Spawn(ctx, index); err != nil {
			if errors.Is(err, ErrPoolStopped) {
				break
			}
			p.logger.Warn(
				"failed to start worker",
				"worker", index,
				"error", err,
			)
			continue
		}
		started++
	}
	return started
}

// IdleWorkers returns the indexes of live workers without an outstanding
// request, in ascending order
func (p *Pool) IdleWorkers() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	ret := make([]int, 0, len(p.workers))
	for index, w := range p.workers {
		if !w.busy {
			ret = append(ret, index)
		}
	}
	sort.Ints(ret)
	return ret
}

// Dispatch marks the worker busy and sends it a get request for count
// heights starting at start. Workers fetch at most BatchLimit heights.
func (p *Pool) Dispatch(index int, start uint64, count int) error {
	if count < 1 || uint64(count) > math.MaxUint32 {
		return fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	p.mu.Lock()
	w, ok := p.workers[index]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrWorkerNotFound, index)
	}
	if w.busy {
		p.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrWorkerBusy, index)
	}
	w.busy = true
	w.pending = start
	p.updateBusyLocked()
	p.mu.Unlock()
	if err := w.writer.WriteFrame(frame.MessageTypeGet, frame.EncodeGet(start, uint32(count))); err != nil {
		p.setIdle(w)
		return fmt.Errorf("dispatch to worker %d: %w", index, err)
	}
	p.metrics.DispatchedRequests.Add(1)
	return nil
}

// Busy reports whether the worker at index has an outstanding request
func (p *Pool) Busy(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.workers[index]
	return ok && w.busy
}

// Pending returns the start height of the outstanding request of the worker
// at index
func (p *Pool) Pending(index int) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.workers[index]
	if !ok || !w.busy {
		return 0, false
	}
	return w.pending, true
}

// Len returns the number of live workers
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Stop asks every worker to disconnect, terminates them and waits for the
// per-worker loops to finish. The pool cannot be reused.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	workers := make([]*Worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()
	for _, w := range workers {
		// A worker in the middle of a batch only reads the disconnect later,
		// so don't wait for it here
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			_ = w.writer.WriteFrame(frame.MessageTypeDisconnect, nil)
		}(w)
	}
	p.cancel()
	for _, w := range workers {
		if err := w.process.Terminate(); err != nil {
			p.logger.Debug(
				"failed to terminate worker",
				"worker", w.Index,
				"error", err,
			)
		}
	}
	p.wg.Wait()
}

func (p *Pool) setIdle(w *Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w.busy = false
	p.updateBusyLocked()
}

func (p *Pool) updateBusyLocked() {
	busy := 0
	for _, w := range p.workers {
		if w.busy {
			busy++
		}
	}
	p.metrics.BusyWorkers.Set(float64(busy))
}

// resultLoop reads frames from a worker until it exits
func (p *Pool) resultLoop(w *Worker) {
	defer p.wg.Done()
	stop := context.AfterFunc(p.ctx, func() {
		_ = w.reader.Close()
	})
	defer stop()
	for {
		var msg *frame.Message
		var err error
		if w.reader == nil {
			err = frame.ErrRead
		} else {
			msg, err = frame.Read(w.reader)
		}
		if err != nil {
			if p.ctx.Err() != nil || w.process.Exited() {
				return
			}
			// The process is still alive, so try again after a pause
			select {
			case <-time.After(p.config.ReadRetryInterval):
			case <-w.goneChan:
				return
			case <-p.ctx.Done():
				return
			}
			continue
		}
		switch msg.Type {
		case frame.MessageTypeResult:
			height, block, err := frame.DecodeResult(msg.Payload)
			if err != nil {
				p.logger.Warn(
					"malformed result",
					"worker", w.Index,
					"error", err,
				)
				continue
			}
			p.sink.Set(height, block)
			p.metrics.Results.Add(1)
		case frame.MessageTypeDone:
			p.mu.Lock()
			w.busy = false
			// The worker did useful work, so it is no longer crash looping
			delete(p.attempts, w.Index)
			p.updateBusyLocked()
			p.mu.Unlock()
		default:
			p.logger.Debug(
				"ignoring unknown message",
				"worker", w.Index,
				"type", msg.Type,
			)
		}
	}
}

// watchExit waits for the worker process to exit and removes it from the
// registry
func (p *Pool) watchExit(w *Worker) {
	defer p.wg.Done()
	err := w.process.Wait()
	p.mu.Lock()
	if cur, ok := p.workers[w.Index]; ok && cur == w {
		delete(p.workers, w.Index)
	}
	pending, busy := w.pending, w.busy
	w.busy = false
	p.metrics.Workers.Set(float64(len(p.workers)))
	p.updateBusyLocked()
	stopped := p.stopped
	p.mu.Unlock()
	w.markGone()
	_ = w.writer.Close()
	_ = w.reader.Close()
	p.metrics.WorkerExits.Add(1)
	if stopped {
		p.logger.Debug(
			"worker stopped",
			"worker", w.Index,
			"pid", w.Pid(),
		)
		return
	}
	args := []any{
		"worker", w.Index,
		"pid", w.Pid(),
	}
	if busy {
		args = append(args, "lost_height", pending)
	}
	if err != nil {
		args = append(args, "error", err)
	}
	p.logger.Warn("worker exited", args...)
	p.respawn(w.Index)
}

// respawn restarts the worker at index, subject to the respawn policy
func (p *Pool) respawn(index int) {
	for {
		p.mu.Lock()
		attempts := p.attempts[index]
		if p.stopped || attempts >= p.config.RespawnAttempts {
			p.mu.Unlock()
			if p.config.RespawnAttempts > 0 && attempts >= p.config.RespawnAttempts {
				p.logger.Warn(
					"giving up on worker",
					"worker", index,
					"attempts", attempts,
				)
			}
			return
		}
		p.attempts[index] = attempts + 1
		p.mu.Unlock()
		select {
		case <-time.After(p.config.RespawnBackoff):
		case <-p.ctx.Done():
			return
		}
		_, err := p.Spawn(p.ctx, index)
		if err == nil ||
			errors.Is(err, ErrWorkerExists) ||
			errors.Is(err, ErrPoolStopped) {
			return
		}
		p.logger.Warn(
			"failed to restart worker",
			"worker", index,
			"error", err,
		)
	}
}
