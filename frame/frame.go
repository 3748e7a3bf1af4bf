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

// Package frame implements the length-framed message format used on the
// pipes between the block loader and its worker processes.
//
// Each frame on the wire is laid out as:
//
//	+-------+------------------+------------------+-----------+
//	| 'M''E'| length (4, LE)   | type (20, padded)| payload   |
//	+-------+------------------+------------------+-----------+
//
// The length field covers the type and the payload. The decoder never tries
// to resynchronize: any unexpected byte or short read is reported as ErrRead
// and the peer is treated as dead.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	bpool "github.com/libp2p/go-buffer-pool"
)

const (
	// MagicLength is the size of the frame marker
	MagicLength = 2
	// LengthFieldLength is the size of the little-endian length field
	LengthFieldLength = 4
	// HeaderLength is the size of the marker plus the length field
	HeaderLength = MagicLength + LengthFieldLength
	// TypeLength is the fixed width of the message type tag
	TypeLength = 20
	// MaxFrameLength caps the declared length of a frame body. Anything
	// larger is treated as a corrupted stream.
	MaxFrameLength = 64 << 20
)

// Message types understood by the loader and its workers
const (
	MessageTypeGet        = "get"
	MessageTypeResult     = "result"
	MessageTypeDone       = "done"
	MessageTypeConfig     = "config"
	MessageTypeDisconnect = "disconnect"
)

// Magic is the two byte marker which starts every frame
var Magic = [MagicLength]byte{'M', 'E'}

// ErrRead is returned for every decode failure: closed pipe, short read or
// malformed framing all collapse into this one error.
var ErrRead = errors.New("pipe read error")

// Message is a single decoded frame
type Message struct {
	Type    string
	Payload []byte
}

// NewMessage returns a new Message. Types longer than TypeLength are truncated.
func NewMessage(msgType string, payload []byte) *Message {
	return &Message{
		Type:    normalizeType(msgType),
		Payload: payload,
	}
}

// Len returns the encoded size of the message
func (m *Message) Len() int {
	return HeaderLength + TypeLength + len(m.Payload)
}

// MarshalBinary returns the wire encoding of the message
func (m *Message) MarshalBinary() ([]byte, error) {
	return Encode(m.Type, m.Payload), nil
}

// Encode returns the wire encoding of a message with the given type and payload
func Encode(msgType string, payload []byte) []byte {
	buf := make([]byte, HeaderLength+TypeLength+len(payload))
	encodeInto(buf, msgType, payload)
	return buf
}

// Write encodes a message onto w as a single write. If w has a Flush method,
// it is called before returning, since the bytes are otherwise not guaranteed
// to reach the process on the other end of the pipe.
func Write(w io.Writer, msgType string, payload []byte) error {
	if w == nil {
		return errors.New("frame: nil writer")
	}
	size := HeaderLength + TypeLength + len(payload)
	buf := bpool.Get(size)
	defer bpool.Put(buf)
	encodeInto(buf, msgType, payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write %s frame: %w", normalizeType(msgType), err)
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush %s frame: %w", normalizeType(msgType), err)
		}
	}
	return nil
}

// Read decodes the next message from r. It reads exactly as many bytes as the
// frame declares and returns ErrRead (wrapping the cause) on any failure.
func Read(r io.Reader) (*Message, error) {
	if r == nil {
		return nil, ErrRead
	}
	var header [HeaderLength]byte
	// The marker is read a byte at a time so that garbage is rejected
	// before we wait on any more input
	if _, err := io.ReadFull(r, header[0:1]); err != nil {
		return nil, readError(err)
	}
	if header[0] != Magic[0] {
		return nil, fmt.Errorf("%w: unexpected byte 0x%02x", ErrRead, header[0])
	}
	if _, err := io.ReadFull(r, header[1:2]); err != nil {
		return nil, readError(err)
	}
	if header[1] != Magic[1] {
		return nil, fmt.Errorf("%w: unexpected byte 0x%02x", ErrRead, header[1])
	}
	if _, err := io.ReadFull(r, header[MagicLength:]); err != nil {
		return nil, readError(err)
	}
	length := binary.LittleEndian.Uint32(header[MagicLength:])
	if length < TypeLength || length > MaxFrameLength {
		return nil, fmt.Errorf("%w: invalid frame length %d", ErrRead, length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, readError(err)
	}
	return &Message{
		Type:    strings.TrimRight(string(body[:TypeLength]), " \x00"),
		Payload: body[TypeLength:],
	}, nil
}

func encodeInto(buf []byte, msgType string, payload []byte) {
	copy(buf, Magic[:])
	binary.LittleEndian.PutUint32(
		buf[MagicLength:HeaderLength],
		uint32(TypeLength+len(payload)),
	)
	typeField := buf[HeaderLength : HeaderLength+TypeLength]
	n := copy(typeField, normalizeType(msgType))
	for i := n; i < TypeLength; i++ {
		typeField[i] = ' '
	}
	copy(buf[HeaderLength+TypeLength:], payload)
}

func normalizeType(msgType string) string {
	if len(msgType) > TypeLength {
		msgType = msgType[:TypeLength]
	}
	return strings.TrimRight(msgType, " \x00")
}

func readError(err error) error {
	if errors.Is(err, ErrRead) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRead, err)
}
