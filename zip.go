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

package wacz

import (
	"archive/zip"
	"hash"
	"hash/crc32"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/flate"
)

// container wraps the ZIP central directory of an opened WACZ file and the
// backing handle it was opened from.
type container struct {
	zr     *zip.Reader
	ra     io.ReaderAt // same reader zr was built from, reused for ranged reads
	closer io.Closer   // non-nil when Open owns the underlying os.File

	mu       sync.Mutex
	byPath   map[string]*zip.File
	pathList []string
}

func openContainer(ra io.ReaderAt, size int64, closer io.Closer) (*container, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, newContainerErrorf(err, "not a valid ZIP container")
	}

	c := &container{
		zr:     zr,
		ra:     ra,
		closer: closer,
		byPath: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue // directory entry, not a file
		}
		c.byPath[f.Name] = f
		c.pathList = append(c.pathList, f.Name)
	}
	return c, nil
}

func (c *container) close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// list returns every non-directory entry's path and uncompressed size, in
// ZIP central directory order.
func (c *container) list() []FileInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]FileInfo, 0, len(c.pathList))
	for _, p := range c.pathList {
		f := c.byPath[p]
		out = append(out, FileInfo{Path: p, Size: f.UncompressedSize64})
	}
	return out
}

func (c *container) has(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.byPath[path]
	return ok
}

// openStream opens a streaming reader over the named entry's inflated
// bytes. The caller owns the returned ReadCloser and must Close it.
//
// archive/zip registers its own Store and Deflate decompressors at package
// init and panics if RegisterDecompressor is asked to replace either one, so
// swapping in klauspost/compress/flate for speed can't go through that hook.
// Instead, a Deflate entry is opened raw (OpenRaw, bypassing the registered
// decompressor entirely) and inflated directly with klauspost's reader,
// with a crc32CheckReader verifying the central directory's checksum and
// uncompressed size the way archive/zip's own checksumReader would.
func (c *container) openStream(path string) (io.ReadCloser, error) {
	c.mu.Lock()
	f, ok := c.byPath[path]
	c.mu.Unlock()
	if !ok {
		return nil, newNotFoundError(path)
	}

	switch f.Method {
	case zip.Store:
		rc, err := f.Open()
		if err != nil {
			return nil, newContainerErrorf(err, "failed opening entry %q", path)
		}
		return rc, nil
	case zip.Deflate:
		raw, err := f.OpenRaw()
		if err != nil {
			return nil, newContainerErrorf(err, "failed opening raw entry %q", path)
		}
		fr := flate.NewReader(raw)
		return &crc32CheckReader{
			path: path,
			r:    fr,
			c:    fr,
			want: f.CRC32,
			size: f.UncompressedSize64,
			sum:  crc32.NewIEEE(),
		}, nil
	default:
		return nil, newContainerErrorf(nil, "unsupported ZIP compression method %d for entry %q", f.Method, path)
	}
}

// crc32CheckReader wraps a decompressed entry stream, tallying a running
// CRC32 and read count so that reaching EOF with a mismatch against the
// central directory's recorded checksum or uncompressed size surfaces as a
// ContainerError instead of silently handing back corrupt bytes.
type crc32CheckReader struct {
	path string
	r    io.Reader
	c    io.Closer
	want uint32
	size uint64
	sum  hash.Hash32
	n    uint64
}

func (r *crc32CheckReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.sum.Write(p[:n])
		r.n += uint64(n)
	}
	if err == io.EOF {
		if r.n != r.size {
			return n, newContainerErrorf(nil, "entry %q: got %d bytes, want %d", r.path, r.n, r.size)
		}
		if got := r.sum.Sum32(); got != r.want {
			return n, newContainerErrorf(nil, "entry %q: CRC32 mismatch: got %#x, want %#x", r.path, got, r.want)
		}
	}
	return n, err
}

func (r *crc32CheckReader) Close() error {
	return r.c.Close()
}

// size returns the entry's uncompressed size, used as a sizeHint for
// diskbuffer materialization.
func (c *container) size(path string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.byPath[path]; ok {
		return int64(f.UncompressedSize64)
	}
	return 0
}

// rangedStream attempts to open a direct byte-range read over path's raw
// entry data, bypassing a full per-entry decompress. It only succeeds when
// the entry is stored uncompressed (zip.Store) — the common case for a
// WACZ's archive/*.warc.gz entries, whose payload is already gzip-compressed
// and so is rarely deflated a second time at the ZIP level. ok is false
// (with a nil error) whenever the fast path does not apply, signaling the
// caller to fall back to the full drain-and-frame path; it is never an
// error on its own.
func (c *container) rangedStream(path string, offset, length int64) (r io.ReadCloser, ok bool, err error) {
	c.mu.Lock()
	f, found := c.byPath[path]
	c.mu.Unlock()
	if !found {
		return nil, false, newNotFoundError(path)
	}
	if f.Method != zip.Store {
		return nil, false, nil
	}
	dataOffset, err := f.DataOffset()
	if err != nil {
		return nil, false, nil
	}
	if offset < 0 || length <= 0 || offset+length > int64(f.UncompressedSize64) {
		return nil, false, nil
	}
	sr := io.NewSectionReader(c.ra, dataOffset+offset, length)
	return io.NopCloser(sr), true, nil
}
