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
	"fmt"
	"log/slog"
	"time"
)

// scheduler walks a height cursor from the processed height towards the
// node's best height, handing one batch start to each idle worker
type scheduler struct {
	config  Config
	node    Node
	cache   Cache
	pool    Dispatcher
	logger  *slog.Logger
	metrics *Metrics
	cursor  uint64
}

func newScheduler(l *BlockLoader) *scheduler {
	return &scheduler{
		config:  l.config,
		node:    l.node,
		cache:   l.cache,
		pool:    l.pool,
		logger:  l.logger,
		metrics: l.metrics,
	}
}

// run starts any missing workers and dispatches requests until the cursor
// passes the target height or ctx is cancelled. Outstanding requests are left
// to the pool.
func (s *scheduler) run(ctx context.Context) {
	s.metrics.SchedulerRuns.Add(1)
	started := s.pool.SpawnAll(ctx)
	s.cursor = s.node.ProcessedHeight() + 1
	s.logger.Info(
		"scheduler started",
		"cursor", s.cursor,
		"spawned", started,
	)
	timer := time.NewTimer(s.config.IdleBackoff)
	timer.Stop()
	for {
		if ctx.Err() != nil {
			s.logger.Debug("scheduler cancelled", "cursor", s.cursor)
			return
		}
		done, wait := s.safeIterate(ctx)
		if done {
			s.logger.Info("scheduler reached target", "cursor", s.cursor)
			return
		}
		if wait <= 0 {
			continue
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			s.logger.Debug("scheduler cancelled", "cursor", s.cursor)
			return
		case <-timer.C:
		}
	}
}

// safeIterate runs a single iteration, turning a panic into a logged error
// followed by the idle backoff
func (s *scheduler) safeIterate(ctx context.Context) (done bool, wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(
				"scheduler iteration failed",
				"error", fmt.Sprintf("%v", r),
			)
			done = false
			wait = s.config.IdleBackoff
		}
	}()
	return s.iterate(ctx)
}

// iterate evicts consumed blocks and dispatches to idle workers. It reports
// whether the run is over and how long to wait before the next iteration.
// A run is over once the cursor passes the target, or when no worker is
// alive and none can be started, in which case the watchdog's next check
// begins a new spawn cycle.
func (s *scheduler) iterate(ctx context.Context) (bool, time.Duration) {
	processed := s.node.ProcessedHeight()
	if evicted := Evict(s.cache, processed); evicted > 0 {
		s.metrics.EvictedBlocks.Add(float64(evicted))
	}
	s.metrics.CacheSizeBytes.Set(float64(s.cache.Size()))
	var target uint64
	if best := s.node.BestHeight(); best > s.config.DeepSyncLag {
		target = best - s.config.DeepSyncLag
	}
	s.metrics.TargetHeight.Set(float64(target))
	s.clamp(processed)
	if s.cursor > target {
		return true, 0
	}
	if s.cache.Size() >= s.config.CacheLimit {
		s.metrics.SaturatedStalls.Add(1)
		return false, s.config.SaturatedBackoff
	}
	if s.pool.Len() == 0 {
		if started := s.pool.SpawnAll(ctx); started == 0 {
			s.logger.Warn(
				"no live workers, ending scheduler run",
				"cursor", s.cursor,
			)
			return true, 0
		}
	}
	dispatched := 0
	for _, index := range s.pool.IdleWorkers() {
		s.clamp(s.node.ProcessedHeight())
		if s.cursor > target {
			break
		}
		// The last batch stops at the target
		count := uint64(s.config.BatchLimit)
		if remaining := target - s.cursor + 1; remaining < count {
			count = remaining
		}
		if err := s.pool.Dispatch(index, s.cursor, int(count)); err != nil {
			s.logger.Warn(
				"failed to dispatch request",
				"worker", index,
				"height", s.cursor,
				"error", err,
			)
			continue
		}
		s.logger.Debug(
			"dispatched request",
			"worker", index,
			"height", s.cursor,
			"count", count,
		)
		dispatched++
		s.cursor += count
	}
	s.metrics.CursorHeight.Set(float64(s.cursor))
	if dispatched == 0 {
		return false, s.config.IdleBackoff
	}
	return false, 0
}

// clamp moves the cursor forward past heights the consumer already has
func (s *scheduler) clamp(processed uint64) {
	if s.cursor < processed+1 {
		s.cursor = processed + 1
	}
}
