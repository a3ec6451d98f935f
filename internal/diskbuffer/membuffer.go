package diskbuffer

import (
	"io"
)

// smallBufferSize is an initial allocation minimal capacity.
const smallBufferSize = 512

// A memBuffer is a variable-sized in-memory buffer of bytes with Read and
// ReadFrom methods.
type memBuffer struct {
	buf []byte // content
	len int64  // length of data.
	max int64  // max allowed size of buf
}

func newMemBuffer(maxSize int64, sizeHint int64) *memBuffer {
	if sizeHint < smallBufferSize {
		sizeHint = smallBufferSize
	}
	if sizeHint >= maxSize {
		sizeHint = maxSize - 1
	}
	return &memBuffer{
		buf: make([]byte, sizeHint),
		max: maxSize,
	}
}

// empty reports whether the buffer is empty.
func (b *memBuffer) empty() bool { return b.len == 0 }

// size returns the number of bytes in the buffer
func (b *memBuffer) size() int64 { return b.len }

// cap returns the number of bytes that can be stored in the buffer
func (b *memBuffer) cap() int64 { return b.max }

// free returns the number of bytes remaining before the buffer is full
func (b *memBuffer) free() int64 { return b.max - b.len }

// hasSpace returns true if buffer has space left
func (b *memBuffer) hasSpace() bool { return b.free() > 0 }

// grow grows the buffer to give space for n more bytes if capacity allows.
// It returns the index where bytes should be written and true if at least one byte can be written to buffer.
func (b *memBuffer) grow(n int64) (int64, bool) {
	c := int64(cap(b.buf))
	if (c - b.len) >= n {
		return b.len, true
	}
	if c >= b.max {
		return b.len, false
	}

	newSize := int64(2*len(b.buf)) + n
	if newSize > b.max {
		newSize = b.max
	}
	buf := make([]byte, newSize)
	copy(buf, b.buf)
	b.buf = buf

	return b.len, true
}

// MinRead is the minimum slice size passed to a Read call by
// Buffer.ReadFrom. As long as the Buffer has at least MinRead bytes beyond
// what is required to hold the contents of r, ReadFrom will not grow the
// underlying buffer.
const MinRead = 512

// readFrom reads data from r until EOF and appends it to the buffer, growing
// the buffer as needed. The return value n is the number of bytes read. Any
// error encountered during the read is also returned.
func (b *memBuffer) readFrom(r io.Reader) (n int64, err error) {
	for {
		if i, ok := b.grow(MinRead); ok {
			m, e := r.Read(b.buf[i:])
			if m < 0 {
				panic(errNegativeRead)
			}
			w := int64(m)
			b.len += w
			n += w
			if e != nil {
				return n, e
			}
		} else {
			return n, nil
		}
	}
}

// read reads len(p) bytes starting at off, from the buffer or until the buffer
// is drained. The return value n is the number of bytes read. If the
// buffer has no data to return, err is io.EOF (unless len(p) is zero);
// otherwise it is nil.
func (b *memBuffer) read(off int64, p []byte) (n int, err error) {
	if b.empty() || off >= b.len {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n = copy(p, b.buf[off:b.len])
	if len(p) > n {
		return n, io.EOF
	}
	return n, nil
}
