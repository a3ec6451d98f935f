package diskbuffer

import (
	"io"
	"os"
)

// A fileBuffer is a variable-sized on-disk buffer of bytes with Read and
// ReadFrom methods, backing a Buffer once its in-memory portion fills up.
type fileBuffer struct {
	diskFile *os.File // content
	len      int64    // length of data.
	max      int64    // max allowed size of buf
}

func newFileBuffer(maxSize int64) (*fileBuffer, error) {
	if maxSize <= 0 {
		maxSize = 0
	}
	b := &fileBuffer{
		max: maxSize,
	}
	f, err := os.CreateTemp("", tmpFilePrefix)
	if err != nil {
		return nil, err
	}
	b.diskFile = f
	return b, nil
}

func (b *fileBuffer) close() error {
	if b == nil || b.diskFile == nil {
		return nil
	}

	b.len = 0
	if err := b.diskFile.Close(); err != nil {
		return err
	}
	if err := os.Remove(b.diskFile.Name()); err != nil {
		return err
	}
	return nil
}

// empty reports whether the buffer is empty.
func (b *fileBuffer) empty() bool {
	if b == nil {
		return true
	}
	return b.len == 0
}

// size returns the number of bytes in the buffer
func (b *fileBuffer) size() int64 {
	if b == nil {
		return 0
	}
	return b.len
}

// cap returns the number of bytes that can be stored in the buffer
func (b *fileBuffer) cap() int64 {
	if b == nil {
		return 0
	}
	return b.max
}

// free returns the number of bytes remaining before the buffer is full
func (b *fileBuffer) free() int64 {
	if b == nil {
		return 0
	}
	return b.max - b.len
}

// hasSpace returns true if buffer has space left
func (b *fileBuffer) hasSpace() bool {
	if b == nil {
		return false
	}
	return b.free() > 0
}

// readFrom reads data from r until EOF and appends it to the buffer, growing
// the buffer as needed. The return value n is the number of bytes read. If r
// still has data once the buffer's capacity is exhausted, readFrom returns
// ErrMaxSizeExceeded rather than silently truncating.
func (b *fileBuffer) readFrom(r io.Reader) (n int64, err error) {
	if !b.hasSpace() {
		return 0, ErrMaxSizeExceeded(b.max)
	}
	if _, err = b.diskFile.Seek(0, io.SeekEnd); err != nil {
		return 0, err
	}
	limit := b.free()
	n, err = io.CopyN(b.diskFile, r, limit)
	b.len += n
	if err == io.EOF {
		return n, nil
	}
	if err != nil {
		return n, err
	}
	// io.CopyN copied exactly limit bytes without reaching EOF on r — probe
	// for one more byte to tell a perfectly-sized input from one that
	// overflowed the buffer.
	var probe [1]byte
	if m, _ := r.Read(probe[:]); m > 0 {
		return n, ErrMaxSizeExceeded(b.max)
	}
	return n, nil
}

// read reads len(p) bytes starting at off, from the buffer or until the buffer
// is drained. The return value n is the number of bytes read. If the
// buffer has no data to return, err is io.EOF (unless len(p) is zero);
// otherwise it is nil.
func (b *fileBuffer) read(off int64, p []byte) (n int, err error) {
	if b.empty() || off >= b.len {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n, err = b.diskFile.ReadAt(p, off)
	return n, err
}
