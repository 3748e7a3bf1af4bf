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
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/blinklabs-io/blockloader/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"
)

// flushBuffer records Flush calls so we can check frames are flushed
type flushBuffer struct {
	bytes.Buffer
	flushes int
}

func (f *flushBuffer) Flush() error {
	f.flushes++
	return nil
}

func TestEncodeLayout(t *testing.T) {
	data := frame.Encode(frame.MessageTypeGet, []byte{0x01, 0x02})
	require.Len(t, data, frame.HeaderLength+frame.TypeLength+2)
	assert.Equal(t, []byte("ME"), data[:2])
	assert.Equal(
		t,
		uint32(frame.TypeLength+2),
		binary.LittleEndian.Uint32(data[2:6]),
	)
	assert.Equal(t, "get"+strings.Repeat(" ", 17), string(data[6:26]))
	assert.Equal(t, []byte{0x01, 0x02}, data[26:])
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		msgType  string
		payload  []byte
		wantType string
	}{
		{
			name:     "get",
			msgType:  frame.MessageTypeGet,
			payload:  frame.EncodeGet(812345, 50),
			wantType: frame.MessageTypeGet,
		},
		{
			name:     "empty payload",
			msgType:  frame.MessageTypeDisconnect,
			payload:  []byte{},
			wantType: frame.MessageTypeDisconnect,
		},
		{
			name:     "exact width type",
			msgType:  "abcdefghijklmnopqrst",
			payload:  []byte("x"),
			wantType: "abcdefghijklmnopqrst",
		},
		{
			name:     "over width type is truncated",
			msgType:  "abcdefghijklmnopqrstuvwxyz",
			payload:  []byte("x"),
			wantType: "abcdefghijklmnopqrst",
		},
		{
			name:     "large payload",
			msgType:  frame.MessageTypeResult,
			payload:  bytes.Repeat([]byte{0xab}, 1<<20),
			wantType: frame.MessageTypeResult,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &flushBuffer{}
			require.NoError(t, frame.Write(buf, tt.msgType, tt.payload))
			assert.Equal(t, 1, buf.flushes)
			msg, err := frame.Read(buf)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, msg.Type)
			assert.Equal(t, len(tt.payload), len(msg.Payload))
			assert.True(t, bytes.Equal(tt.payload, msg.Payload))
			assert.Equal(t, 0, buf.Len(), "frame should be consumed exactly")
		})
	}
}

func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		msgType := rapid.StringMatching(`[a-z_]{1,20}`).Draw(t, "type").(string)
		payload := rapid.SliceOf(rapid.Byte()).Draw(t, "payload").([]byte)
		msg, err := frame.Read(bytes.NewReader(frame.Encode(msgType, payload)))
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if msg.Type != msgType {
			t.Fatalf("type mismatch: got %q, wanted %q", msg.Type, msgType)
		}
		if !bytes.Equal(msg.Payload, payload) {
			t.Fatalf("payload mismatch")
		}
	})
}

func TestSequentialFrames(t *testing.T) {
	buf := &bytes.Buffer{}
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, frame.Write(buf, frame.MessageTypeGet, frame.EncodeGet(i, 10)))
	}
	for i := uint64(1); i <= 3; i++ {
		msg, err := frame.Read(buf)
		require.NoError(t, err)
		start, count, err := frame.DecodeGet(msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, i, start)
		assert.Equal(t, uint32(10), count)
	}
	_, err := frame.Read(buf)
	assert.ErrorIs(t, err, frame.ErrRead)
}

func TestReadErrors(t *testing.T) {
	valid := frame.Encode(frame.MessageTypeResult, []byte("block bytes"))
	badLength := frame.Encode(frame.MessageTypeGet, nil)
	binary.LittleEndian.PutUint32(badLength[2:6], 3)
	hugeLength := frame.Encode(frame.MessageTypeGet, nil)
	binary.LittleEndian.PutUint32(hugeLength[2:6], frame.MaxFrameLength+1)
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty stream", data: nil},
		{name: "garbage", data: []byte("XXgarbage-garbage-garbage")},
		{name: "bad second magic byte", data: []byte("MXgarbage")},
		{name: "only magic", data: []byte("ME")},
		{name: "short length", data: []byte{'M', 'E', 0x10, 0x00}},
		{name: "truncated body", data: valid[:len(valid)-3]},
		{name: "length below type width", data: badLength},
		{name: "length above limit", data: hugeLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := frame.Read(bytes.NewReader(tt.data))
			assert.Nil(t, msg)
			assert.ErrorIs(t, err, frame.ErrRead)
		})
	}
}

func TestReadNilReader(t *testing.T) {
	_, err := frame.Read(nil)
	assert.ErrorIs(t, err, frame.ErrRead)
}

func TestReadGarbageDoesNotBlock(t *testing.T) {
	defer goleak.VerifyNone(t)

	pr, pw := io.Pipe()
	defer pr.Close()
	go func() {
		// The writer keeps the pipe open after the garbage, so a decoder that
		// scanned forward for the marker would hang here
		_, _ = pw.Write([]byte("XX"))
		_, _ = pw.Write([]byte("more garbage"))
		_ = pw.Close()
	}()
	errChan := make(chan error, 1)
	go func() {
		_, err := frame.Read(pr)
		errChan <- err
	}()
	select {
	case err := <-errChan:
		assert.ErrorIs(t, err, frame.ErrRead)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for decode to fail")
	}
}

func TestReadPeerClosedMidFrame(t *testing.T) {
	defer goleak.VerifyNone(t)

	pr, pw := io.Pipe()
	data := frame.Encode(frame.MessageTypeResult, make([]byte, 64))
	go func() {
		_, _ = pw.Write(data[:30])
		_ = pw.Close()
	}()
	_, err := frame.Read(pr)
	assert.ErrorIs(t, err, frame.ErrRead)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, io.ErrClosedPipe
}

func TestWriteError(t *testing.T) {
	err := frame.Write(failingWriter{}, frame.MessageTypeGet, frame.EncodeGet(1, 1))
	assert.True(t, errors.Is(err, io.ErrClosedPipe))
	assert.Error(t, frame.Write(nil, frame.MessageTypeGet, nil))
}

func TestMessageMarshalBinary(t *testing.T) {
	msg := frame.NewMessage("a-very-long-message-type-name", []byte("p"))
	assert.Equal(t, "a-very-long-message-", msg.Type)
	data, err := msg.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, msg.Len())
}
