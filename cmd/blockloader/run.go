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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/blinklabs-io/blockloader"
	"github.com/blinklabs-io/blockloader/cache"
	"github.com/blinklabs-io/blockloader/pool"
	"github.com/blinklabs-io/blockloader/rpc"
	"github.com/blinklabs-io/blockloader/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const (
	rpcURLFlag           = "rpc-url"
	rpcTimeoutFlag       = "rpc-timeout"
	rpcBatchLimitFlag    = "rpc-batch-limit"
	workersFlag          = "workers"
	workerModeFlag       = "worker-mode"
	deepSyncLagFlag      = "deep-sync-lag"
	cacheLimitFlag       = "cache-limit"
	watchdogIntervalFlag = "watchdog-interval"
	respawnAttemptsFlag  = "respawn-attempts"
	respawnBackoffFlag   = "respawn-backoff"
	verifyHashFlag       = "verify-hash"
	metricsListenFlag    = "metrics-listen"
	startHeightFlag      = "start-height"
	pollIntervalFlag     = "poll-interval"

	workerModeProcess = "process"
	workerModeLocal   = "local"

	metricsNamespace = "blockloader"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch blocks from the node until the consumer catches up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(
				os.Stderr,
				v.GetString(logLevelFlag),
				v.GetString(logFormatFlag),
			)
			if err != nil {
				return err
			}
			return run(cmd.Context(), v, logger)
		},
	}
	defaults := blockloader.DefaultConfig()
	flags := cmd.Flags()
	flags.String(rpcURLFlag, "http://127.0.0.1:8332", "node RPC URL, credentials may be given as userinfo")
	flags.Duration(rpcTimeoutFlag, worker.DefaultRPCTimeout, "timeout for each RPC batch")
	flags.Int(rpcBatchLimitFlag, defaults.BatchLimit, "number of blocks requested from a worker at a time")
	flags.Int(workersFlag, defaults.Pool.Workers, "number of workers")
	flags.String(workerModeFlag, workerModeProcess, "run workers as child processes (process) or goroutines (local)")
	flags.Uint64(deepSyncLagFlag, defaults.DeepSyncLag, "stop prefetching this many blocks behind the node")
	flags.Int(cacheLimitFlag, defaults.CacheLimit, "cache size in bytes at which fetching pauses")
	flags.Duration(watchdogIntervalFlag, defaults.WatchdogInterval, "time between watchdog checks")
	flags.Int(respawnAttemptsFlag, defaults.Pool.RespawnAttempts, "attempts to restart an exited worker (0 disables)")
	flags.Duration(respawnBackoffFlag, defaults.Pool.RespawnBackoff, "pause before restarting an exited worker")
	flags.Bool(verifyHashFlag, false, "check every block hashes to the requested hash")
	flags.String(metricsListenFlag, "", "address to serve Prometheus metrics on (disabled if empty)")
	flags.Uint64(startHeightFlag, 0, "height already processed when starting")
	flags.Duration(pollIntervalFlag, 10*time.Second, "time between node height polls")
	return cmd
}

// loaderConfig builds the loader configuration from v
func loaderConfig(v *viper.Viper) blockloader.Config {
	cfg := blockloader.DefaultConfig()
	cfg.DeepSyncLag = v.GetUint64(deepSyncLagFlag)
	cfg.BatchLimit = v.GetInt(rpcBatchLimitFlag)
	cfg.CacheLimit = v.GetInt(cacheLimitFlag)
	cfg.WatchdogInterval = v.GetDuration(watchdogIntervalFlag)
	cfg.Pool.Workers = v.GetInt(workersFlag)
	cfg.Pool.RPCURL = v.GetString(rpcURLFlag)
	cfg.Pool.RPCTimeout = v.GetDuration(rpcTimeoutFlag)
	cfg.Pool.BatchLimit = cfg.BatchLimit
	cfg.Pool.VerifyHash = v.GetBool(verifyHashFlag)
	cfg.Pool.RespawnAttempts = v.GetInt(respawnAttemptsFlag)
	cfg.Pool.RespawnBackoff = v.GetDuration(respawnBackoffFlag)
	return cfg
}

// newSpawner returns the worker spawner for the configured mode
func newSpawner(v *viper.Viper, logger *slog.Logger) (pool.Spawner, error) {
	switch mode := v.GetString(workerModeFlag); mode {
	case workerModeProcess:
		return pool.NewExecSpawner(
			pool.WithArgs(
				"worker",
				"--"+logLevelFlag, v.GetString(logLevelFlag),
				"--"+logFormatFlag, v.GetString(logFormatFlag),
			),
		), nil
	case workerModeLocal:
		return pool.NewLocalSpawner(
			pool.RuntimeRunFunc(worker.WithLogger(logger)),
		), nil
	default:
		return nil, fmt.Errorf("invalid worker mode: %s", mode)
	}
}

func run(ctx context.Context, v *viper.Viper, logger *slog.Logger) error {
	cfg := loaderConfig(v)
	client, err := rpc.NewClient(
		cfg.Pool.RPCURL,
		rpc.WithTimeout(cfg.Pool.RPCTimeout),
		rpc.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer client.Close()
	spawner, err := newSpawner(v, logger)
	if err != nil {
		return err
	}
	state := blockloader.NewChainState(cfg.DeepSyncLag)
	state.SetProcessedHeight(v.GetUint64(startHeightFlag))
	poller := &heightPoller{
		client:   client,
		state:    state,
		interval: v.GetDuration(pollIntervalFlag),
		logger:   logger,
	}
	// Without a best height the first watchdog check would find nothing to do
	if err := poller.poll(ctx); err != nil {
		return fmt.Errorf("query node height: %w", err)
	}
	blockCache := cache.New()
	opts := []blockloader.OptionFunc{
		blockloader.WithConfig(cfg),
		blockloader.WithNode(state),
		blockloader.WithCache(blockCache),
		blockloader.WithSpawner(spawner),
		blockloader.WithLogger(logger),
	}
	metricsListen := v.GetString(metricsListenFlag)
	if metricsListen != "" {
		opts = append(
			opts,
			blockloader.WithMetrics(blockloader.PrometheusMetrics(metricsNamespace)),
			blockloader.WithPoolMetrics(pool.PrometheusMetrics(metricsNamespace)),
		)
	}
	loader, err := blockloader.New(opts...)
	if err != nil {
		return err
	}
	consumer := &blockConsumer{
		cache:    blockCache,
		state:    state,
		interval: 100 * time.Millisecond,
		logger:   logger,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.run(gctx)
	})
	g.Go(func() error {
		return consumer.run(gctx)
	})
	if metricsListen != "" {
		server := &http.Server{
			Addr:              metricsListen,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", "address", metricsListen)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}
	if err := loader.Start(gctx); err != nil {
		loader.Stop()
		return err
	}
	g.Go(func() error {
		<-gctx.Done()
		loader.Stop()
		return nil
	})
	logger.Info(
		"block loader started",
		"rpc_url", client.Address(),
		"workers", cfg.Pool.Workers,
		"best_height", state.BestHeight(),
		"processed_height", state.ProcessedHeight(),
	)
	return g.Wait()
}
