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
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// maybeGunzip wraps r in a gzip reader when path names a .warc.gz entry,
// otherwise returns r unchanged. WACZ commonly concatenates multiple gzip
// members (one per WARC record) into a single .warc.gz entry; gzip.Reader's
// Multistream mode (the default) already decodes a concatenated stream as
// one continuous byte sequence, which is exactly the contiguous buffer the
// WARC framer in warc.go expects to scan.
func maybeGunzip(path string, r io.Reader) (io.Reader, error) {
	if !strings.HasSuffix(path, ".gz") {
		return r, nil
	}
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, newContainerErrorf(err, "failed reading gzip stream for %q", path)
	}
	return gr, nil
}
