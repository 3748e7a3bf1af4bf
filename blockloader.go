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

// Package blockloader prefetches blocks from a remote full node during deep
// historical synchronization. A watchdog starts a scheduler run whenever the
// node is far behind. The scheduler hands contiguous ranges of heights to a
// pool of worker processes, whose results land in a bounded cache for the
// consumer to process in order.
package blockloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/blockloader/cache"
	"github.com/blinklabs-io/blockloader/pool"
)

var (
	ErrNoNode         = errors.New("no node state configured")
	ErrAlreadyStarted = errors.New("block loader already started")
	ErrLoaderStopped  = errors.New("block loader stopped")
	ErrBatchLimit     = errors.New("pool batch limit differs from loader batch limit")
)

// Node reports the chain state the loader works against
type Node interface {
	// BestHeight returns the height of the remote node's best chain
	BestHeight() uint64
	// ProcessedHeight returns the highest height already consumed downstream
	ProcessedHeight() uint64
	// DeepSynchronization reports whether the consumer is far enough behind
	// for prefetching to be worthwhile
	DeepSynchronization() bool
}

// Cache is the downstream block cache
type Cache interface {
	Size() int
	Set(height uint64, block []byte)
	Remove(height uint64)
	Min() (uint64, bool)
}

// Dispatcher hands out work to workers
type Dispatcher interface {
	// SpawnAll starts a worker for every empty slot and returns how many started
	SpawnAll(ctx context.Context) int
	// IdleWorkers returns the indexes of live workers without a request
	IdleWorkers() []int
	// Dispatch asks a worker for count heights starting at start
	Dispatch(index int, start uint64, count int) error
	// Len returns the number of live workers
	Len() int
}

// Pool is a Dispatcher which can be shut down
type Pool interface {
	Dispatcher
	Stop()
}

// BlockLoader ties the watchdog, the scheduler and the worker pool together
type BlockLoader struct {
	config         Config
	node           Node
	cache          Cache
	pool           Pool
	spawner        pool.Spawner
	logger         *slog.Logger
	metrics        *Metrics
	poolMetrics    *pool.Metrics
	mu             sync.Mutex
	running        bool
	started        bool
	stopped        bool
	ctx            context.Context
	cancel         context.CancelFunc
	watchdogCancel context.CancelFunc
	waitGroup      sync.WaitGroup
	onceStop       sync.Once
}

// New returns a new BlockLoader. A node is required. Without WithCache a
// cache.Cache is used, and without WithPool a pool.Pool is built from the
// config, delivering into the cache.
func New(options ...OptionFunc) (*BlockLoader, error) {
	l := &BlockLoader{
		config: DefaultConfig(),
	}
	// Apply provided options functions
	for _, option := range options {
		option(l)
	}
	if l.node == nil {
		return nil, ErrNoNode
	}
	if err := l.config.validate(); err != nil {
		return nil, err
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	baseLogger := l.logger
	l.logger = l.logger.With("component", "blockloader")
	if l.metrics == nil {
		l.metrics = NopMetrics()
	}
	if l.cache == nil {
		l.cache = cache.New()
	}
	if l.pool == nil {
		poolConfig := l.config.Pool
		poolConfig.BatchLimit = l.config.BatchLimit
		poolOpts := []pool.OptionFunc{
			pool.WithConfig(poolConfig),
			pool.WithSink(l.cache),
			pool.WithLogger(baseLogger),
		}
		if l.spawner != nil {
			poolOpts = append(poolOpts, pool.WithSpawner(l.spawner))
		}
		if l.poolMetrics != nil {
			poolOpts = append(poolOpts, pool.WithMetrics(l.poolMetrics))
		}
		p, err := pool.New(poolOpts...)
		if err != nil {
			return nil, err
		}
		l.pool = p
	} else if cp, ok := l.pool.(interface{ Config() pool.Config }); ok {
		// Workers cap each request at the pool's limit, so a smaller pool
		// limit would leave gaps behind the cursor
		if limit := cp.Config().BatchLimit; limit != l.config.BatchLimit {
			return nil, fmt.Errorf(
				"%w: %d != %d",
				ErrBatchLimit,
				limit,
				l.config.BatchLimit,
			)
		}
	}
	return l, nil
}

// Cache returns the block cache
func (l *BlockLoader) Cache() Cache {
	return l.cache
}

// Start launches the watchdog. Cancelling ctx stops the watchdog from
// starting new scheduler runs, but a run already in progress continues until
// Stop is called.
func (l *BlockLoader) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return ErrLoaderStopped
	}
	if l.started {
		return ErrAlreadyStarted
	}
	l.started = true
	l.ctx, l.cancel = context.WithCancel(context.WithoutCancel(ctx))
	watchdogCtx, watchdogCancel := context.WithCancel(ctx)
	l.watchdogCancel = watchdogCancel
	l.waitGroup.Add(1)
	go l.watchdog(watchdogCtx)
	return nil
}

// StopWatchdog stops further scheduler runs from starting
func (l *BlockLoader) StopWatchdog() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watchdogCancel != nil {
		l.watchdogCancel()
	}
}

// Running reports whether a scheduler run is in progress
func (l *BlockLoader) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Stop cancels the watchdog and any scheduler run, then stops the worker
// pool. Requests still in flight are abandoned.
func (l *BlockLoader) Stop() {
	l.onceStop.Do(func() {
		l.mu.Lock()
		l.stopped = true
		if l.watchdogCancel != nil {
			l.watchdogCancel()
		}
		if l.cancel != nil {
			l.cancel()
		}
		l.mu.Unlock()
		l.waitGroup.Wait()
		l.pool.Stop()
		l.logger.Info("block loader stopped")
	})
}
