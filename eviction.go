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

// Evict removes every cached block at or below processed and returns the
// number of blocks removed. Blocks are removed in ascending order starting
// at the cache minimum.
func Evict(cache Cache, processed uint64) int {
	removed := 0
	for {
		height, ok := cache.Min()
		if !ok || height > processed {
			return removed
		}
		cache.Remove(height)
		// Stop if the cache did not let go of the entry
		if next, ok := cache.Min(); ok && next == height {
			return removed
		}
		removed++
	}
}
