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

// Package countingreader wraps an io.Reader to tally the bytes that pass
// through it, without altering what's read. It backs the inflated-byte-count
// a WARC entry materialization step logs at debug level.
package countingreader

import (
	"io"
	"sync/atomic"
)

// Reader counts the bytes read through it. Safe to read N concurrently with
// reads, since a materialization step may want to log progress from another
// goroutine.
type Reader struct {
	src   io.Reader
	count int64
}

// New wraps r, counting every byte Read returns.
func New(r io.Reader) *Reader {
	return &Reader{src: r}
}

func (r *Reader) Read(p []byte) (n int, err error) {
	n, err = r.src.Read(p)
	atomic.AddInt64(&r.count, int64(n))
	return n, err
}

// N reports the number of bytes read through r so far.
func (r *Reader) N() int64 {
	return atomic.LoadInt64(&r.count)
}
