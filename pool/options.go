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
	"log/slog"
	"time"

	"github.com/blinklabs-io/blockloader/worker"
)

const (
	DefaultWorkers           = 4
	DefaultRespawnAttempts   = 3
	DefaultRespawnBackoff    = 5 * time.Second
	DefaultReadRetryInterval = time.Second
)

// Config holds the configuration for a Pool. Fields shared with
// worker.Config are copied into the config frame sent to each worker.
type Config struct {
	// Workers is the number of worker slots
	Workers int
	// RPCURL is the URL of the remote node, including any credentials
	RPCURL string
	// RPCTimeout bounds each remote call made by a worker
	RPCTimeout time.Duration
	// BatchLimit is the number of heights requested by a single get
	BatchLimit int
	// VerifyHash makes workers check each block against its hash
	VerifyHash bool
	// RespawnAttempts is the number of consecutive respawns tried after a
	// worker exits. Zero disables respawning.
	RespawnAttempts int
	// RespawnBackoff is the delay before each respawn
	RespawnBackoff time.Duration
	// ReadRetryInterval is the delay before reading again after a read error
	// from a worker which is still running
	ReadRetryInterval time.Duration
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Workers:           DefaultWorkers,
		RPCTimeout:        worker.DefaultRPCTimeout,
		BatchLimit:        worker.DefaultBatchLimit,
		RespawnAttempts:   DefaultRespawnAttempts,
		RespawnBackoff:    DefaultRespawnBackoff,
		ReadRetryInterval: DefaultReadRetryInterval,
	}
}

// OptionFunc is a type that represents functions that modify the Pool config
type OptionFunc func(*Pool)

// WithConfig specifies the pool config
func WithConfig(cfg Config) OptionFunc {
	return func(p *Pool) {
		p.config = cfg
	}
}

// WithWorkers specifies the number of worker slots
func WithWorkers(n int) OptionFunc {
	return func(p *Pool) {
		if n > 0 {
			p.config.Workers = n
		}
	}
}

// WithRespawn specifies the respawn policy
func WithRespawn(attempts int, backoff time.Duration) OptionFunc {
	return func(p *Pool) {
		p.config.RespawnAttempts = attempts
		p.config.RespawnBackoff = backoff
	}
}

// WithSpawner specifies how worker processes are started
func WithSpawner(spawner Spawner) OptionFunc {
	return func(p *Pool) {
		p.spawner = spawner
	}
}

// WithSink specifies where delivered blocks go
func WithSink(sink Sink) OptionFunc {
	return func(p *Pool) {
		p.sink = sink
	}
}

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) OptionFunc {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithMetrics specifies the metrics
func WithMetrics(metrics *Metrics) OptionFunc {
	return func(p *Pool) {
		p.metrics = metrics
	}
}
