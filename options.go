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
	"log/slog"

	"github.com/blinklabs-io/blockloader/pool"
)

// OptionFunc is a type that represents functions that modify the BlockLoader config
type OptionFunc func(*BlockLoader)

// WithConfig specifies the loader configuration
func WithConfig(cfg Config) OptionFunc {
	return func(l *BlockLoader) {
		l.config = cfg
	}
}

// WithNode specifies the source of the chain heights
func WithNode(node Node) OptionFunc {
	return func(l *BlockLoader) {
		l.node = node
	}
}

// WithCache specifies the cache which receives fetched blocks. It is ignored
// for delivery when a pool is provided with WithPool, since that pool already
// has its own sink.
func WithCache(cache Cache) OptionFunc {
	return func(l *BlockLoader) {
		l.cache = cache
	}
}

// WithPool specifies a pre-built worker pool. Its workers must accept
// requests of Config.BatchLimit heights; New rejects a pool.Pool configured
// with a different BatchLimit.
func WithPool(p Pool) OptionFunc {
	return func(l *BlockLoader) {
		l.pool = p
	}
}

// WithSpawner specifies how workers are started when the loader builds its own pool
func WithSpawner(spawner pool.Spawner) OptionFunc {
	return func(l *BlockLoader) {
		l.spawner = spawner
	}
}

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) OptionFunc {
	return func(l *BlockLoader) {
		l.logger = logger
	}
}

// WithMetrics specifies the loader metrics
func WithMetrics(metrics *Metrics) OptionFunc {
	return func(l *BlockLoader) {
		l.metrics = metrics
	}
}

// WithPoolMetrics specifies the metrics for the pool built by the loader
func WithPoolMetrics(metrics *pool.Metrics) OptionFunc {
	return func(l *BlockLoader) {
		l.poolMetrics = metrics
	}
}
