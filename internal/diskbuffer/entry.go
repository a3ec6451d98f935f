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

import (
	"errors"
	"fmt"
	"io"
)

// ErrEntryTooLarge is returned by DrainEntry when the source produces more
// than maxTotalBytes, so a corrupt or hostile WARC entry can't exhaust the
// process's memory while it is materialized for framing.
var ErrEntryTooLarge = errors.New("diskbuffer: entry exceeds configured maximum size")

// DrainEntry reads r to completion into a Buffer capped at maxTotalBytes,
// using sizeHint as the initial size of the memory buffer and spilling to a
// temp file once the default memory limit (1 MiB) is full. It is the materialization step a WARC entry goes through on first
// touch: the result backs the byte-buffer scan the WARC framer runs over.
//
// A maxTotalBytes of 0 means unlimited.
func DrainEntry(r io.Reader, sizeHint, maxTotalBytes int64) (Buffer, error) {
	opts := []Option{WithMemBufferSizeHint(sizeHint)}
	if maxTotalBytes > 0 {
		opts = append(opts, WithMaxTotalBytes(maxTotalBytes))
	}
	buf := New(opts...)
	if _, err := buf.ReadFrom(r); err != nil {
		var tooLarge ErrMaxSizeExceeded
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: %v", ErrEntryTooLarge, err)
		}
		return nil, err
	}
	return buf, nil
}

// Bytes fully materializes buf as a single contiguous slice, the form the
// WARC framer's "WARC/" / "\r\n\r\n" scan operates on.
func Bytes(buf Buffer) ([]byte, error) {
	if _, err := buf.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(buf)
}
