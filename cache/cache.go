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

// Package cache holds prefetched blocks keyed by height until the consumer
// takes them. Capacity is tracked in bytes of stored blocks; enforcing a limit
// is up to the producer.
package cache

import (
	"sync"

	"github.com/google/btree"
)

const btreeDegree = 32

type entry struct {
	height uint64
	block  []byte
}

func (e entry) Less(than btree.Item) bool {
	return e.height < than.(entry).height
}

// Cache is an ordered block cache which is safe for concurrent use
type Cache struct {
	mu   sync.RWMutex
	tree *btree.BTree
	size int
}

// New returns an empty Cache
func New() *Cache {
	return &Cache{
		tree: btree.New(btreeDegree),
	}
}

// Set stores the block for height, replacing any previous block
func (c *Cache) Set(height uint64, block []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old := c.tree.ReplaceOrInsert(entry{height: height, block: block}); old != nil {
		c.size -= len(old.(entry).block)
	}
	c.size += len(block)
}

// Get returns the block for height
func (c *Cache) Get(height uint64) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item := c.tree.Get(entry{height: height})
	if item == nil {
		return nil, false
	}
	return item.(entry).block, true
}

// Remove drops the block for height, if present
func (c *Cache) Remove(height uint64) {
	c.Pop(height)
}

// Pop removes and returns the block for height
func (c *Cache) Pop(height uint64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item := c.tree.Delete(entry{height: height})
	if item == nil {
		return nil, false
	}
	block := item.(entry).block
	c.size -= len(block)
	return block, true
}

// Min returns the lowest height in the cache
func (c *Cache) Min() (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item := c.tree.Min()
	if item == nil {
		return 0, false
	}
	return item.(entry).height, true
}

// Heights returns the cached heights in ascending order
func (c *Cache) Heights() []uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ret := make([]uint64, 0, c.tree.Len())
	c.tree.Ascend(func(item btree.Item) bool {
		ret = append(ret, item.(entry).height)
		return true
	})
	return ret
}

// Size returns the total size in bytes of the cached blocks
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}

// Len returns the number of cached blocks
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tree.Len()
}
