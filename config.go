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
	"fmt"
	"time"

	"github.com/blinklabs-io/blockloader/pool"
)

const (
	DefaultDeepSyncLag      = 20
	DefaultBatchLimit       = 50
	DefaultCacheLimit       = 256 << 20
	DefaultWatchdogInterval = 60 * time.Second
	DefaultSaturatedBackoff = time.Second
	DefaultIdleBackoff      = time.Second
)

// Config holds the BlockLoader configuration
type Config struct {
	// DeepSyncLag is how far behind the node's best height prefetching stops
	DeepSyncLag uint64
	// BatchLimit is the number of heights requested from a worker at a time
	BatchLimit int
	// CacheLimit is the cache size in bytes at which dispatching pauses
	CacheLimit int
	// WatchdogInterval is the time between watchdog checks
	WatchdogInterval time.Duration
	// SaturatedBackoff is the pause after finding the cache full
	SaturatedBackoff time.Duration
	// IdleBackoff is the pause after finding no idle worker
	IdleBackoff time.Duration
	// Pool is used to build the worker pool when none is supplied. Its
	// BatchLimit is overridden by BatchLimit above.
	Pool pool.Config
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		DeepSyncLag:      DefaultDeepSyncLag,
		BatchLimit:       DefaultBatchLimit,
		CacheLimit:       DefaultCacheLimit,
		WatchdogInterval: DefaultWatchdogInterval,
		SaturatedBackoff: DefaultSaturatedBackoff,
		IdleBackoff:      DefaultIdleBackoff,
		Pool:             pool.DefaultConfig(),
	}
}

func (c Config) validate() error {
	if c.BatchLimit < 1 {
		return fmt.Errorf("invalid batch limit %d", c.BatchLimit)
	}
	if c.CacheLimit < 1 {
		return fmt.Errorf("invalid cache limit %d", c.CacheLimit)
	}
	if c.WatchdogInterval <= 0 {
		return fmt.Errorf("invalid watchdog interval %s", c.WatchdogInterval)
	}
	return nil
}
