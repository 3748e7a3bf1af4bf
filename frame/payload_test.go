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

package frame_test

import (
	"testing"

	"github.com/blinklabs-io/blockloader/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPayload(t *testing.T) {
	payload := frame.EncodeGet(0x0102030405060708, 50)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 50}, payload)
	start, count, err := frame.DecodeGet(payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), start)
	assert.Equal(t, uint32(50), count)

	// A bare height is not a valid get
	_, _, err = frame.DecodeGet([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	assert.ErrorIs(t, err, frame.ErrShortPayload)
	_, _, err = frame.DecodeGet([]byte{1, 2, 3})
	assert.ErrorIs(t, err, frame.ErrShortPayload)
}

func TestResultPayload(t *testing.T) {
	block := []byte("raw block bytes")
	payload := frame.EncodeResult(42, block)
	require.Len(t, payload, frame.HeightLength+len(block))

	height, decoded, err := frame.DecodeResult(payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), height)
	assert.Equal(t, block, decoded)

	// A result with an empty block is still well formed
	height, decoded, err = frame.DecodeResult(frame.EncodeResult(7, nil))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), height)
	assert.Empty(t, decoded)

	_, _, err = frame.DecodeResult([]byte{0x00})
	assert.ErrorIs(t, err, frame.ErrShortPayload)
}

func TestDonePayload(t *testing.T) {
	start, count, err := frame.DecodeDone(frame.EncodeDone(100, 3))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), start)
	assert.Equal(t, uint32(3), count)

	_, _, err = frame.DecodeDone([]byte{0, 0, 0, 0, 0, 0, 0, 100})
	assert.ErrorIs(t, err, frame.ErrShortPayload)
}
