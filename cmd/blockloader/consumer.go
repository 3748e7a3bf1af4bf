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
	"log/slog"
	"time"

	"github.com/blinklabs-io/blockloader"
	"github.com/blinklabs-io/blockloader/cache"
	"github.com/btcsuite/btcd/btcutil"
)

// blockConsumer processes cached blocks in height order and advances the
// processed height
type blockConsumer struct {
	cache    *cache.Cache
	state    *blockloader.ChainState
	interval time.Duration
	logger   *slog.Logger
}

func (c *blockConsumer) run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		for c.consumeNext() {
			if ctx.Err() != nil {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// consumeNext processes the block following the processed height, if cached
func (c *blockConsumer) consumeNext() bool {
	height := c.state.ProcessedHeight() + 1
	raw, ok := c.cache.Get(height)
	if !ok {
		return false
	}
	block, err := btcutil.NewBlockFromBytes(raw)
	if err != nil {
		// Dropping it lets the next scheduler run fetch it again
		c.cache.Remove(height)
		c.logger.Error(
			"failed to decode block",
			"height", height,
			"error", err,
		)
		return false
	}
	block.SetHeight(int32(height)) // #nosec G115
	c.logger.Info(
		"processed block",
		"height", block.Height(),
		"hash", block.Hash().String(),
		"txs", len(block.Transactions()),
		"size", len(raw),
	)
	c.state.SetProcessedHeight(height)
	return true
}
