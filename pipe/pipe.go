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

// Package pipe adapts the raw ends of a unidirectional pipe into a buffered
// reader with read-exactly semantics and a writer which flushes on every write.
// It is the only part of the loader which knows about the OS pipe primitive.
package pipe

import (
	"bufio"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/blinklabs-io/blockloader/frame"
)

const bufferSize = 64 * 1024

// ErrClosed is returned when writing to a closed Writer
var ErrClosed = errors.New("pipe closed")

// deadliner is implemented by pollable files (such as the ends of os.Pipe)
type deadliner interface {
	SetReadDeadline(time.Time) error
}

// Reader is a buffered reader over the read end of a pipe
type Reader struct {
	buf       *bufio.Reader
	closer    io.Closer
	closeOnce sync.Once
}

// NewReader wraps the read end of a pipe. It returns nil if the endpoint is
// nil or cannot be registered with the runtime poller, and callers must treat
// a nil Reader like an immediate read error.
func NewReader(r io.Reader) *Reader {
	if r == nil {
		return nil
	}
	if d, ok := r.(deadliner); ok {
		// Clearing the deadline fails for closed or non-pollable files
		if err := d.SetReadDeadline(time.Time{}); err != nil {
			return nil
		}
	}
	ret := &Reader{
		buf: bufio.NewReaderSize(r, bufferSize),
	}
	if c, ok := r.(io.Closer); ok {
		ret.closer = c
	}
	return ret
}

// Read implements io.Reader
func (r *Reader) Read(p []byte) (int, error) {
	return r.buf.Read(p)
}

// ReadExactly blocks until exactly n bytes are available or the pipe is
// closed. A short read returns io.ErrUnexpectedEOF (or io.EOF if no bytes
// were read at all).
func (r *Reader) ReadExactly(n int) ([]byte, error) {
	ret := make([]byte, n)
	if _, err := io.ReadFull(r.buf, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// Close closes the underlying endpoint, which unblocks any pending read
func (r *Reader) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	var err error
	r.closeOnce.Do(func() {
		err = r.closer.Close()
	})
	return err
}

// Writer writes to the write end of a pipe and flushes after every write.
// Writes are serialized, so a frame written in one call is never interleaved
// with another.
type Writer struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	closer io.Closer
	closed bool
}

// NewWriter wraps the write end of a pipe. It returns nil for a nil endpoint.
func NewWriter(w io.Writer) *Writer {
	if w == nil {
		return nil
	}
	ret := &Writer{
		buf: bufio.NewWriterSize(w, bufferSize),
	}
	if c, ok := w.(io.Closer); ok {
		ret.closer = c
	}
	return ret
}

// Write writes p and flushes it to the pipe
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}
	n, err := w.buf.Write(p)
	if err != nil {
		return n, err
	}
	return n, w.buf.Flush()
}

// WriteFrame encodes and writes a single frame
func (w *Writer) WriteFrame(msgType string, payload []byte) error {
	if w == nil {
		return ErrClosed
	}
	return frame.Write(w, msgType, payload)
}

// Flush flushes any buffered bytes to the pipe
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.buf.Flush()
}

// Seal flushes pending bytes and blocks every later write until the process
// exits. It is used right before an immediate exit so no frame is cut short.
func (w *Writer) Seal() {
	w.mu.Lock()
	if !w.closed {
		_ = w.buf.Flush()
	}
	// The lock is intentionally never released
}

// Close flushes and closes the underlying endpoint
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	flushErr := w.buf.Flush()
	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			return err
		}
	}
	return flushErr
}
