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

package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeightLength is the width of an encoded block height
	HeightLength = 8
	// CountLength is the width of the count in a get or done payload
	CountLength = 4
)

// ErrShortPayload is returned when a payload is too small for its message type
var ErrShortPayload = errors.New("payload too short")

// EncodeResult builds the payload of a result message: the block height
// followed by the raw block bytes
func EncodeResult(height uint64, block []byte) []byte {
	buf := make([]byte, HeightLength+len(block))
	binary.BigEndian.PutUint64(buf, height)
	copy(buf[HeightLength:], block)
	return buf
}

// DecodeResult splits a result payload into its height and raw block. The
// returned block aliases the payload.
func DecodeResult(payload []byte) (uint64, []byte, error) {
	if len(payload) < HeightLength {
		return 0, nil, fmt.Errorf(
			"%w: result payload is %d bytes",
			ErrShortPayload,
			len(payload),
		)
	}
	return binary.BigEndian.Uint64(payload), payload[HeightLength:], nil
}

// EncodeGet builds the payload of a get message: the first height of the
// batch and the number of heights to fetch
func EncodeGet(start uint64, count uint32) []byte {
	return encodeRange(start, count)
}

// DecodeGet decodes the payload of a get message
func DecodeGet(payload []byte) (uint64, uint32, error) {
	return decodeRange("get", payload)
}

// EncodeDone builds the payload of a done message, which closes out the batch
// started at the given height
func EncodeDone(start uint64, count uint32) []byte {
	return encodeRange(start, count)
}

// DecodeDone decodes the payload of a done message
func DecodeDone(payload []byte) (uint64, uint32, error) {
	return decodeRange("done", payload)
}

func encodeRange(start uint64, count uint32) []byte {
	buf := make([]byte, HeightLength+CountLength)
	binary.BigEndian.PutUint64(buf, start)
	binary.BigEndian.PutUint32(buf[HeightLength:], count)
	return buf
}

func decodeRange(msgType string, payload []byte) (uint64, uint32, error) {
	if len(payload) != HeightLength+CountLength {
		return 0, 0, fmt.Errorf(
			"%w: %s payload is %d bytes",
			ErrShortPayload,
			msgType,
			len(payload),
		)
	}
	return binary.BigEndian.Uint64(payload),
		binary.BigEndian.Uint32(payload[HeightLength:]),
		nil
}
