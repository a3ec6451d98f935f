/*
 * Copyright 2021 National Library of Norway.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *       http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package diskbuffer

// A buffer which holds data in memory until a defined size and overflows extra data to a temporary file.

import (
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	tmpFilePrefix = "tmp-diskbuffer-"
	unlimited     = math.MaxInt64
)

// Buffer is a read-only-after-fill spill-to-disk byte buffer: data written
// through ReadFrom accumulates in memory up to a configured size, then
// spills to a temp file. Only the surface DrainEntry/Bytes exercise is kept
// — write methods, byte-at-a-time access, and partial-range views are not
// needed by a WARC entry materialization step that always fills once, then
// reads back from the start once.
type Buffer interface {
	io.Reader
	io.ReaderFrom
	io.Seeker
	io.Closer
	Size() int64
}

// A buffer is a variable-sized buffer of bytes with Read and ReadFrom methods.
type buffer struct {
	opts    options
	memBuf  *memBuffer
	fileBuf *fileBuffer
	off     int64 // read at &buf[off]
	max     int64
}

// ErrTooLarge reports that a buffer could not grow to hold its data. No code
// path in this package returns or panics with it.
var ErrTooLarge = errors.New("diskbuffer.Buffer: too large")

// ErrMaxSizeExceeded is returned when the maximum allowed buffer size is reached when writing
type ErrMaxSizeExceeded int64

func (e ErrMaxSizeExceeded) Error() string {
	return fmt.Sprintf("diskbuffer.Buffer: maximum size %d exceeded", e)
}

var errNegativeRead = errors.New("diskbuffer.Buffer: reader returned negative count from Read")

// empty reports whether the unread portion of the buffer is empty.
func (b *buffer) empty() bool { return b.Size()-b.off <= 0 }

// Size returns the total number of bytes held in the buffer.
func (b *buffer) Size() int64 {
	return b.memBuf.size() + b.fileBuf.size()
}

// ReadFrom reads data from r until EOF and appends it to the buffer, growing
// the buffer as needed, spilling to a temp file once the memory portion is
// full. The return value n is the number of bytes read. Any error except
// io.EOF encountered during the read is also returned.
func (b *buffer) ReadFrom(r io.Reader) (n int64, err error) {
	var wrote int64
	if b.memBuf.hasSpace() {
		wrote, err = b.memBuf.readFrom(r)
		if err == io.EOF {
			return wrote, nil
		}
		if err != nil {
			return wrote, err
		}
		if b.memBuf.hasSpace() {
			// All was written to memory buffer
			return wrote, nil
		}

		// we can't write to memory any more, switch to file
		var err error
		if b.fileBuf, err = newFileBuffer(b.max - b.memBuf.cap()); err != nil {
			return wrote, err
		}
	}

	// There is more to write, add to file
	n, err = b.fileBuf.readFrom(r)
	wrote += n
	return wrote, err
}

// Read reads the next len(p) bytes from the buffer or until the buffer
// is drained. The return value n is the number of bytes read. If the
// buffer has no data to return, err is io.EOF (unless len(p) is zero);
// otherwise it is nil.
func (b *buffer) Read(p []byte) (n int, err error) {
	if b.empty() {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n, err = b.memBuf.read(b.off, p)
	b.off += int64(n)

	if err == io.EOF && len(p) > n && b.fileBuf != nil {
		// Memory buffer exhausted, read from file
		var m int
		m, err = b.fileBuf.read(b.off-b.memBuf.size(), p[n:])
		b.off += int64(m)
		n += m
	}
	return n, err
}

func (b *buffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		b.off = offset
	case io.SeekCurrent:
		b.off += offset
	case io.SeekEnd:
		b.off = b.Size() - offset
	}
	return b.off, nil
}

func (b *buffer) Close() error {
	return b.fileBuf.close()
}

// New creates and initializes a new Buffer, using the WithMemBufferSizeHint
// option as the initial size of the memory buffer
func New(opts ...Option) Buffer {
	b := &buffer{
		opts: defaultOptions(),
	}
	for _, opt := range opts {
		opt.apply(&b.opts)
	}

	if b.opts.maxTotalBytes > 0 && b.opts.maxMemBytes > b.opts.maxTotalBytes {
		b.opts.maxMemBytes = b.opts.maxTotalBytes
	}

	if b.opts.maxMemBytes > 0 {
		if b.opts.memBufferSizeHint > b.opts.maxMemBytes {
			b.opts.memBufferSizeHint = b.opts.maxMemBytes
		}
		b.memBuf = newMemBuffer(b.opts.maxMemBytes, b.opts.memBufferSizeHint)
	}

	if b.opts.maxTotalBytes == 0 {
		b.max = unlimited
	} else {
		b.max = b.opts.maxTotalBytes
	}
	return b
}
