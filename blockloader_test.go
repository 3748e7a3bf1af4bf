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

package blockloader_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blinklabs-io/blockloader"
	"github.com/blinklabs-io/blockloader/cache"
	"github.com/blinklabs-io/blockloader/internal/test"
	"github.com/blinklabs-io/blockloader/pool"
	"github.com/blinklabs-io/blockloader/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoader(
	t *testing.T,
	node *test.Node,
	state blockloader.Node,
	c *cache.Cache,
	cacheLimit int,
) *blockloader.BlockLoader {
	logger := slog.New(slog.DiscardHandler)
	cfg := blockloader.DefaultConfig()
	cfg.DeepSyncLag = 5
	cfg.BatchLimit = 10
	cfg.CacheLimit = cacheLimit
	cfg.WatchdogInterval = 20 * time.Millisecond
	cfg.IdleBackoff = 5 * time.Millisecond
	cfg.SaturatedBackoff = 5 * time.Millisecond
	cfg.Pool.Workers = 2
	cfg.Pool.RPCURL = node.URL()
	cfg.Pool.RPCTimeout = 5 * time.Second
	cfg.Pool.RespawnAttempts = 0
	l, err := blockloader.New(
		blockloader.WithConfig(cfg),
		blockloader.WithNode(state),
		blockloader.WithCache(c),
		blockloader.WithSpawner(
			pool.NewLocalSpawner(
				pool.RuntimeRunFunc(worker.WithLogger(logger)),
			),
		),
		blockloader.WithLogger(logger),
	)
	require.NoError(t, err)
	return l
}

func TestLoaderPrefetchesToTarget(t *testing.T) {
	node := test.NewNode(t, 60)
	state := blockloader.NewChainState(5)
	state.SetBestHeight(node.Height())
	c := cache.New()
	l := newLoader(t, node, state, c, 1<<20)
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	// The target is the best height minus the lag
	require.Eventually(t, func() bool {
		return c.Len() == 55
	}, 5*time.Second, 10*time.Millisecond)
	for h := uint64(1); h <= 55; h++ {
		block, ok := c.Get(h)
		require.True(t, ok, "missing height %d", h)
		assert.Equal(t, node.Block(h), block)
	}
	_, ok := c.Get(56)
	assert.False(t, ok)
}

func TestLoaderWithConsumer(t *testing.T) {
	node := test.NewNode(t, 120)
	state := blockloader.NewChainState(5)
	state.SetBestHeight(node.Height())
	c := cache.New()
	// Room for only a handful of blocks at a time
	l := newLoader(t, node, state, c, 4*len(node.Block(1)))
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for state.ProcessedHeight() < 115 {
		next := state.ProcessedHeight() + 1
		block, ok := c.Get(next)
		if !ok {
			select {
			case <-ctx.Done():
				t.Fatalf("timed out waiting for height %d", next)
			case <-time.After(2 * time.Millisecond):
			}
			continue
		}
		require.Equal(t, node.Block(next), block)
		state.SetProcessedHeight(next)
	}
	assert.False(t, state.DeepSynchronization())
}
