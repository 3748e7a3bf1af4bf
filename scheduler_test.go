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

package blockloader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/blockloader/cache"
	"github.com/go-kit/kit/metrics/generic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeDispatcher hands out fixed worker indexes. Workers stay busy until
// finish is called, unless autoIdle is set. SpawnAll brings the live worker
// count back up to slots.
type fakeDispatcher struct {
	mu         sync.Mutex
	workers    int
	slots      int
	autoIdle   bool
	busy       map[int]bool
	failing    map[int]bool
	dispatched []uint64
	counts     []int
	spawnCalls int
	stopped    bool
}

func newFakeDispatcher(workers int) *fakeDispatcher {
	return &fakeDispatcher{
		workers: workers,
		slots:   workers,
		busy:    make(map[int]bool),
		failing: make(map[int]bool),
	}
}

func (f *fakeDispatcher) SpawnAll(context.Context) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawnCalls++
	started := max(f.slots-f.workers, 0)
	f.workers += started
	return started
}

func (f *fakeDispatcher) IdleWorkers() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ret []int
	for i := 0; i < f.workers; i++ {
		if !f.busy[i] {
			ret = append(ret, i)
		}
	}
	return ret
}

func (f *fakeDispatcher) Dispatch(index int, start uint64, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[index] {
		return errors.New("write failed")
	}
	f.dispatched = append(f.dispatched, start)
	f.counts = append(f.counts, count)
	if !f.autoIdle {
		f.busy[index] = true
	}
	return nil
}

func (f *fakeDispatcher) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workers
}

// kill drops every live worker and sets how many SpawnAll can start again
func (f *fakeDispatcher) kill(slots int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workers = 0
	f.slots = slots
	clear(f.busy)
}

func (f *fakeDispatcher) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeDispatcher) finish(index int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.busy, index)
}

func (f *fakeDispatcher) heights() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.dispatched...)
}

func (f *fakeDispatcher) batchCounts() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.counts...)
}

func (f *fakeDispatcher) spawns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spawnCalls
}

type testMetrics struct {
	*Metrics
	stalls  *generic.Counter
	runs    *generic.Counter
	evicted *generic.Counter
	cursor  *generic.Gauge
	target  *generic.Gauge
}

func newTestMetrics() *testMetrics {
	m := &testMetrics{
		stalls:  generic.NewCounter("saturated_stalls"),
		runs:    generic.NewCounter("scheduler_runs"),
		evicted: generic.NewCounter("evicted_blocks"),
		cursor:  generic.NewGauge("cursor_height"),
		target:  generic.NewGauge("target_height"),
	}
	m.Metrics = &Metrics{
		CursorHeight:    m.cursor,
		TargetHeight:    m.target,
		SaturatedStalls: m.stalls,
		SchedulerRuns:   m.runs,
		EvictedBlocks:   m.evicted,
		CacheSizeBytes:  generic.NewGauge("cache_size_bytes"),
	}
	return m
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DeepSyncLag = 0
	cfg.BatchLimit = 3
	cfg.CacheLimit = 1 << 20
	cfg.WatchdogInterval = 10 * time.Millisecond
	cfg.SaturatedBackoff = 5 * time.Millisecond
	cfg.IdleBackoff = 5 * time.Millisecond
	return cfg
}

func newTestScheduler(
	cfg Config,
	node Node,
	c Cache,
	d Dispatcher,
) (*scheduler, *testMetrics) {
	m := newTestMetrics()
	s := &scheduler{
		config:  cfg,
		node:    node,
		cache:   c,
		pool:    d,
		logger:  discardLogger(),
		metrics: m.Metrics,
		cursor:  node.ProcessedHeight() + 1,
	}
	return s, m
}

func TestSchedulerDispatchesBatches(t *testing.T) {
	node := NewChainState(0)
	node.SetBestHeight(10)
	disp := newFakeDispatcher(3)
	s, m := newTestScheduler(testConfig(), node, cache.New(), disp)

	done, wait := s.iterate(context.Background())
	assert.False(t, done)
	assert.Zero(t, wait)
	assert.Equal(t, []uint64{1, 4, 7}, disp.heights())
	assert.Equal(t, float64(10), m.cursor.Value())
	assert.Equal(t, float64(10), m.target.Value())

	// Every worker is busy
	done, wait = s.iterate(context.Background())
	assert.False(t, done)
	assert.Equal(t, s.config.IdleBackoff, wait)
	assert.Equal(t, []uint64{1, 4, 7}, disp.heights())

	disp.finish(1)
	done, _ = s.iterate(context.Background())
	assert.False(t, done)
	assert.Equal(t, []uint64{1, 4, 7, 10}, disp.heights())
	// The last batch stops at the target
	assert.Equal(t, []int{3, 3, 3, 1}, disp.batchCounts())
	assert.Equal(t, uint64(11), s.cursor)

	done, _ = s.iterate(context.Background())
	assert.True(t, done)
	assert.Equal(t, []uint64{1, 4, 7, 10}, disp.heights())
}

func TestSchedulerNeverRequestsPastTarget(t *testing.T) {
	for _, batch := range []int{1, 2, 3, 7, 10, 64} {
		node := NewChainState(0)
		node.SetBestHeight(60)
		cfg := testConfig()
		cfg.DeepSyncLag = 5
		cfg.BatchLimit = batch
		disp := newFakeDispatcher(4)
		disp.autoIdle = true
		s, _ := newTestScheduler(cfg, node, cache.New(), disp)
		for i := 0; i < 1000; i++ {
			if done, _ := s.iterate(context.Background()); done {
				break
			}
		}
		// Every height up to the target is requested exactly once
		var requested []uint64
		for i, start := range disp.heights() {
			count := disp.batchCounts()[i]
			assert.LessOrEqual(t, count, batch)
			for h := start; h < start+uint64(count); h++ {
				requested = append(requested, h)
			}
		}
		require.Len(t, requested, 55, "batch %d", batch)
		for i, h := range requested {
			assert.Equal(t, uint64(i+1), h, "batch %d", batch)
		}
	}
}

func TestSchedulerRespawnsLostWorkers(t *testing.T) {
	node := NewChainState(0)
	node.SetBestHeight(100)
	disp := newFakeDispatcher(2)
	s, _ := newTestScheduler(testConfig(), node, cache.New(), disp)

	// Every worker died and respawning gave up
	disp.kill(2)
	done, _ := s.iterate(context.Background())
	assert.False(t, done)
	assert.Equal(t, 1, disp.spawns())
	assert.Equal(t, []uint64{1, 4}, disp.heights())

	// When nothing can be started the run ends instead of waiting forever
	disp.kill(0)
	done, _ = s.iterate(context.Background())
	assert.True(t, done)
	assert.Equal(t, []uint64{1, 4}, disp.heights())
}

func TestSchedulerTargetReached(t *testing.T) {
	tests := []struct {
		name   string
		best   uint64
		lag    uint64
		cursor uint64
		done   bool
	}{
		{name: "cursor at target", best: 30, lag: 20, cursor: 10, done: false},
		{name: "cursor past target", best: 30, lag: 20, cursor: 11, done: true},
		{name: "best below lag", best: 5, lag: 20, cursor: 1, done: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := NewChainState(0)
			node.SetBestHeight(tt.best)
			cfg := testConfig()
			cfg.DeepSyncLag = tt.lag
			disp := newFakeDispatcher(1)
			s, _ := newTestScheduler(cfg, node, cache.New(), disp)
			s.cursor = tt.cursor
			done, _ := s.iterate(context.Background())
			assert.Equal(t, tt.done, done)
			if tt.done {
				assert.Empty(t, disp.heights())
			}
		})
	}
}

func TestSchedulerSaturated(t *testing.T) {
	node := NewChainState(0)
	node.SetBestHeight(100)
	c := cache.New()
	c.Set(50, make([]byte, 64))
	cfg := testConfig()
	cfg.CacheLimit = 64
	disp := newFakeDispatcher(3)
	s, m := newTestScheduler(cfg, node, c, disp)

	done, wait := s.iterate(context.Background())
	assert.False(t, done)
	assert.Equal(t, cfg.SaturatedBackoff, wait)
	assert.Empty(t, disp.heights())
	assert.Equal(t, float64(1), m.stalls.Value())

	// Consuming the cached block relieves the pressure
	node.SetProcessedHeight(50)
	done, _ = s.iterate(context.Background())
	assert.False(t, done)
	assert.Equal(t, []uint64{51, 54, 57}, disp.heights())
	assert.Equal(t, float64(1), m.evicted.Value())
	assert.Zero(t, c.Len())
}

func TestSchedulerClampsToProcessed(t *testing.T) {
	node := NewChainState(0)
	node.SetBestHeight(100)
	disp := newFakeDispatcher(1)
	s, _ := newTestScheduler(testConfig(), node, cache.New(), disp)
	s.cursor = 5
	node.SetProcessedHeight(20)
	_, _ = s.iterate(context.Background())
	assert.Equal(t, []uint64{21}, disp.heights())
	assert.Equal(t, uint64(24), s.cursor)
}

func TestSchedulerDispatchFailure(t *testing.T) {
	node := NewChainState(0)
	node.SetBestHeight(100)
	disp := newFakeDispatcher(2)
	disp.failing[0] = true
	s, _ := newTestScheduler(testConfig(), node, cache.New(), disp)
	_, _ = s.iterate(context.Background())
	// The failed height goes to the next idle worker
	assert.Equal(t, []uint64{1}, disp.heights())
	assert.Equal(t, uint64(4), s.cursor)
}

type panickingNode struct {
	*ChainState
	panics int
}

func (n *panickingNode) BestHeight() uint64 {
	if n.panics > 0 {
		n.panics--
		panic("node unavailable")
	}
	return n.ChainState.BestHeight()
}

func TestSchedulerRecoversFromPanic(t *testing.T) {
	node := &panickingNode{ChainState: NewChainState(0), panics: 1}
	node.SetBestHeight(10)
	disp := newFakeDispatcher(3)
	s, _ := newTestScheduler(testConfig(), node, cache.New(), disp)

	done, wait := s.safeIterate(context.Background())
	assert.False(t, done)
	assert.Equal(t, s.config.IdleBackoff, wait)

	done, _ = s.safeIterate(context.Background())
	assert.False(t, done)
	assert.Equal(t, []uint64{1, 4, 7}, disp.heights())
}

func TestSchedulerRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	node := NewChainState(0)
	node.SetBestHeight(20)
	disp := newFakeDispatcher(2)
	disp.autoIdle = true
	s, m := newTestScheduler(testConfig(), node, cache.New(), disp)

	s.run(context.Background())
	assert.Equal(t, []uint64{1, 4, 7, 10, 13, 16, 19}, disp.heights())
	assert.Equal(t, []int{3, 3, 3, 3, 3, 3, 2}, disp.batchCounts())
	assert.Equal(t, 1, disp.spawns())
	assert.Equal(t, float64(1), m.runs.Value())
}

func TestSchedulerRunCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	node := NewChainState(0)
	node.SetBestHeight(1000)
	// The only worker stays busy, so the run would wait forever
	disp := newFakeDispatcher(1)
	s, _ := newTestScheduler(testConfig(), node, cache.New(), disp)

	ctx, cancel := context.WithCancel(context.Background())
	doneChan := make(chan struct{})
	go func() {
		s.run(ctx)
		close(doneChan)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-doneChan:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not return after cancel")
	}
}

func TestEvict(t *testing.T) {
	c := cache.New()
	for h := uint64(1); h <= 5; h++ {
		c.Set(h, []byte{byte(h)})
	}
	assert.Equal(t, 3, Evict(c, 3))
	lowest, ok := c.Min()
	require.True(t, ok)
	assert.Equal(t, uint64(4), lowest)
	assert.Equal(t, 0, Evict(c, 3))
	assert.Equal(t, 2, Evict(c, 100))
	assert.Equal(t, 0, c.Len())
}

// stuckCache never removes anything
type stuckCache struct {
	*cache.Cache
}

func (stuckCache) Remove(uint64) {}

func TestEvictStuckCache(t *testing.T) {
	c := stuckCache{Cache: cache.New()}
	c.Set(1, []byte{1})
	assert.Equal(t, 0, Evict(c, 10))
}
