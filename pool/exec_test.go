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

package pool_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"syscall"
	"testing"

	"github.com/blinklabs-io/blockloader/cache"
	"github.com/blinklabs-io/blockloader/frame"
	"github.com/blinklabs-io/blockloader/internal/test"
	"github.com/blinklabs-io/blockloader/pool"
	"github.com/blinklabs-io/blockloader/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helperEnv makes the test binary act as a worker process
const helperEnv = "BLOCKLOADER_TEST_WORKER"

func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		err := worker.Main(context.Background(), logger)
		if err != nil && !errors.Is(err, frame.ErrRead) {
			logger.Error("worker failed", "error", err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func newExecPool(t *testing.T, node *test.Node, c *cache.Cache) *pool.Pool {
	t.Helper()
	cfg := pool.DefaultConfig()
	cfg.Workers = 2
	cfg.BatchLimit = 4
	cfg.RPCURL = node.URL()
	cfg.RespawnAttempts = 0
	p, err := pool.New(
		pool.WithConfig(cfg),
		pool.WithSink(c),
		pool.WithSpawner(
			pool.NewExecSpawner(
				pool.WithPath(os.Args[0]),
				pool.WithArgs("-test.run=^$"),
				pool.WithEnv(helperEnv+"=1"),
			),
		),
	)
	require.NoError(t, err)
	return p
}

func TestExecWorkers(t *testing.T) {
	node := test.NewNode(t, 20)
	c := cache.New()
	p := newExecPool(t, node, c)
	defer p.Stop()

	require.Equal(t, 2, p.SpawnAll(context.Background()))
	require.NoError(t, p.Dispatch(0, 1, 4))
	require.NoError(t, p.Dispatch(1, 5, 4))
	require.Eventually(t, func() bool {
		return len(p.IdleWorkers()) == 2
	}, waitFor, tick)
	require.Equal(t, 8, c.Len())
	for h := uint64(1); h <= 8; h++ {
		block, ok := c.Get(h)
		require.True(t, ok)
		assert.Equal(t, node.Block(h), block)
	}
}

func TestExecWorkerKilled(t *testing.T) {
	node := test.NewNode(t, 20)
	p := newExecPool(t, node, cache.New())
	defer p.Stop()

	w, err := p.Spawn(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())
	require.NoError(t, syscall.Kill(w.Pid(), syscall.SIGKILL))
	require.Eventually(t, func() bool {
		return p.Len() == 0
	}, waitFor, tick)
	assert.ErrorIs(t, p.Dispatch(1, 1, 4), pool.ErrWorkerNotFound)
}

func TestExecStop(t *testing.T) {
	node := test.NewNode(t, 20)
	p := newExecPool(t, node, cache.New())
	require.Equal(t, 2, p.SpawnAll(context.Background()))
	p.Stop()
	assert.Equal(t, 0, p.Len())
}
