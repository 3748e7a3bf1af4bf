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

import "sync/atomic"

// ChainState is a Node backed by atomically updated heights. The best height
// is typically fed by a poller against the remote node, and the processed
// height by the block consumer.
type ChainState struct {
	bestHeight      atomic.Uint64
	processedHeight atomic.Uint64
	threshold       uint64
}

// NewChainState returns a ChainState which reports deep synchronization while
// the processed height trails the best height by more than threshold
func NewChainState(threshold uint64) *ChainState {
	return &ChainState{
		threshold: threshold,
	}
}

func (c *ChainState) BestHeight() uint64 {
	return c.bestHeight.Load()
}

func (c *ChainState) SetBestHeight(height uint64) {
	c.bestHeight.Store(height)
}

func (c *ChainState) ProcessedHeight() uint64 {
	return c.processedHeight.Load()
}

// SetProcessedHeight advances the processed height. It never moves backwards.
func (c *ChainState) SetProcessedHeight(height uint64) {
	for {
		cur := c.processedHeight.Load()
		if height <= cur {
			return
		}
		if c.processedHeight.CompareAndSwap(cur, height) {
			return
		}
	}
}

func (c *ChainState) DeepSynchronization() bool {
	best := c.BestHeight()
	processed := c.ProcessedHeight()
	return best > processed && best-processed > c.threshold
}
