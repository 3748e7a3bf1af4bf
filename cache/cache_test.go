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

package cache_test

import (
	"sync"
	"testing"

	"github.com/blinklabs-io/blockloader/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSetGet(t *testing.T) {
	c := cache.New()
	_, ok := c.Min()
	assert.False(t, ok)

	c.Set(10, []byte("ten"))
	c.Set(3, []byte("three"))
	c.Set(7, []byte("seven"))
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 13, c.Size())

	block, ok := c.Get(7)
	require.True(t, ok)
	assert.Equal(t, []byte("seven"), block)
	_, ok = c.Get(8)
	assert.False(t, ok)

	minHeight, ok := c.Min()
	require.True(t, ok)
	assert.Equal(t, uint64(3), minHeight)
	assert.Equal(t, []uint64{3, 7, 10}, c.Heights())
}

func TestReplace(t *testing.T) {
	c := cache.New()
	c.Set(1, []byte("aaaa"))
	c.Set(1, []byte("bb"))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 2, c.Size())
}

func TestRemovePop(t *testing.T) {
	c := cache.New()
	c.Set(1, []byte("a"))
	c.Set(2, []byte("bb"))
	c.Remove(1)
	c.Remove(1)
	assert.Equal(t, 2, c.Size())

	block, ok := c.Pop(2)
	require.True(t, ok)
	assert.Equal(t, []byte("bb"), block)
	_, ok = c.Pop(2)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, 0, c.Len())
}

func TestSizeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := cache.New()
		model := make(map[uint64]int)
		ops := rapid.IntRange(1, 100).Draw(t, "ops").(int)
		for i := 0; i < ops; i++ {
			height := rapid.Uint64Range(0, 20).Draw(t, "height").(uint64)
			if rapid.Bool().Draw(t, "set").(bool) {
				size := rapid.IntRange(0, 64).Draw(t, "size").(int)
				c.Set(height, make([]byte, size))
				model[height] = size
			} else {
				c.Remove(height)
				delete(model, height)
			}
		}
		want := 0
		for _, size := range model {
			want += size
		}
		if c.Size() != want {
			t.Fatalf("size %d, wanted %d", c.Size(), want)
		}
		if c.Len() != len(model) {
			t.Fatalf("len %d, wanted %d", c.Len(), len(model))
		}
	})
}

func TestConcurrentAccess(t *testing.T) {
	c := cache.New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(base uint64) {
			defer wg.Done()
			for h := base * 100; h < base*100+100; h++ {
				c.Set(h, []byte{0x01})
				_, _ = c.Min()
				_ = c.Size()
			}
		}(uint64(i))
	}
	wg.Wait()
	assert.Equal(t, 800, c.Len())
	assert.Equal(t, 800, c.Size())
}
