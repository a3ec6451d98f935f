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

// PreferIndex selects which index file Open should read first.
type PreferIndex int8

const (
	// PreferCDXJ tries indexes/index.cdxj, then falls back to indexes/index.cdx.
	PreferCDXJ PreferIndex = iota
	// PreferCDX reads only indexes/index.cdx.
	PreferCDX
	// PreferNone is equivalent to PreferCDX: this library never falls back to
	// a full WARC scan, so "no index" still means reading indexes/index.cdx.
	PreferNone
)

type options struct {
	preferIndex       PreferIndex
	warcCacheSize     int
	maxWarcEntryBytes int64
	textEncoding      string
	strict            bool
}

// OpenOption configures an Archive opened with Open.
type OpenOption interface {
	apply(*options)
}

// funcOption wraps a function that modifies options into an implementation
// of the OpenOption interface.
type funcOption struct {
	f func(*options)
}

func (fo *funcOption) apply(o *options) {
	fo.f(o)
}

func newFuncOption(f func(*options)) *funcOption {
	return &funcOption{f: f}
}

func defaultOptions() options {
	return options{
		preferIndex:       PreferCDXJ,
		warcCacheSize:     32,
		maxWarcEntryBytes: 512 * 1024 * 1024,
		textEncoding:      "utf-8",
	}
}

// WithPreferIndex selects which index file to read. Defaults to PreferCDXJ.
func WithPreferIndex(p PreferIndex) OpenOption {
	return newFuncOption(func(o *options) {
		o.preferIndex = p
	})
}

// WithWarcCacheSize bounds the number of distinct parsed WARC entries kept
// in memory at once. Defaults to 32. Least recently used entries are
// evicted once the bound is reached.
func WithWarcCacheSize(n int) OpenOption {
	return newFuncOption(func(o *options) {
		if n > 0 {
			o.warcCacheSize = n
		}
	})
}

// WithMaxWarcEntrySize caps how many uncompressed bytes a single WARC entry
// may materialize to before it is rejected with a ContainerError, guarding
// against a corrupt or hostile entry exhausting memory. Defaults to 512 MiB.
// Zero means unlimited.
func WithMaxWarcEntrySize(n int64) OpenOption {
	return newFuncOption(func(o *options) {
		o.maxWarcEntryBytes = n
	})
}

// WithDefaultTextEncoding sets the encoding GetText assumes when its caller
// does not specify one. Defaults to "utf-8".
func WithDefaultTextEncoding(enc string) OpenOption {
	return newFuncOption(func(o *options) {
		if enc != "" {
			o.textEncoding = enc
		}
	})
}

// WithStrict rejects a WARC record whose declared Content-Length runs past
// the end of its entry, instead of clamping the payload to whatever bytes
// are actually available. Off by default: the teacher lineage's framer is
// tolerant of a truncated trailing record so that everything framed ahead
// of it still comes back. Turn this on when a corrupt or truncated WARC
// should surface as a *ContainerError rather than a best-effort partial
// capture.
func WithStrict(strict bool) OpenOption {
	return newFuncOption(func(o *options) {
		o.strict = strict
	})
}
