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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/extremeheat/wacz-parser/internal/diskbuffer"
	"github.com/extremeheat/wacz-parser/internal/timestamp"
	"github.com/extremeheat/wacz-parser/pkg/cdx"
	"github.com/extremeheat/wacz-parser/pkg/countingreader"
	"github.com/extremeheat/wacz-parser/pkg/query"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/ianaindex"
)

// Archive is a handle bound to one WACZ container. It is created by Open
// and released by Close; no method succeeds after Close.
type Archive struct {
	opts options
	c    *container
	wc   *warcCache

	indexOnce sync.Once
	index     []CaptureDescriptor
	indexErr  error

	closed   sync.Once
	isClosed bool
	mu       sync.Mutex
}

// Open reads path's ZIP central directory and returns an Archive. Opening
// does not read the CDX/CDXJ index or any WARC payload; those are read
// lazily on first use and memoized for the handle's lifetime.
func Open(ctx context.Context, path string, opts ...OpenOption) (*Archive, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, newIoError("failed opening archive file", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, newIoError("failed statting archive file", err)
	}

	c, err := openContainer(f, info.Size(), f)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Archive{
		opts: o,
		c:    c,
		wc:   newWarcCache(o.warcCacheSize),
	}, nil
}

// Close releases the underlying file handle and empties the parsed-WARC
// cache. The parsed index is not released; later calls fail before reading
// it. Idempotent.
func (a *Archive) Close() error {
	var err error
	a.closed.Do(func() {
		a.mu.Lock()
		a.isClosed = true
		a.mu.Unlock()
		a.wc.lru.Purge()
		err = a.c.close()
	})
	return err
}

func (a *Archive) checkOpen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.isClosed {
		return newContainerError("archive is closed")
	}
	return nil
}

// ListFiles returns every non-directory ZIP entry, in central-directory
// order.
func (a *Archive) ListFiles() ([]FileInfo, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	return a.c.list(), nil
}

// SearchFiles returns the files whose path matches m — a string (substring
// containment), *regexp.Regexp, func(string) bool, or an already-built
// query.Matcher. Substring containment for the string case is the
// file-search side of the intentional substring/exact asymmetry documented
// on query.Matcher's MatchExact.
func (a *Archive) SearchFiles(m interface{}) ([]FileInfo, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	matcher := matcherFromAny(m)
	all := a.c.list()
	out := make([]FileInfo, 0, len(all))
	for _, fi := range all {
		if matcher.MatchSubstring(fi.Path) {
			out = append(out, fi)
		}
	}
	return out, nil
}

// HasFile reports whether path exists in the container. path may be a plain
// string (exact path) or a *regexp.Regexp/func(string) bool/query.Matcher,
// in which case it reports whether any entry matches.
func (a *Archive) HasFile(path interface{}) (bool, error) {
	if err := a.checkOpen(); err != nil {
		return false, err
	}
	if s, ok := path.(string); ok {
		return a.c.has(s), nil
	}
	matcher := matcherFromAny(path)
	for _, fi := range a.c.list() {
		if matcher.MatchSubstring(fi.Path) {
			return true, nil
		}
	}
	return false, nil
}

// GetFile reads path fully into memory and returns its bytes.
func (a *Archive) GetFile(ctx context.Context, path string) ([]byte, error) {
	r, err := a.StreamFile(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, newIoError(fmt.Sprintf("failed reading %q", path), err)
	}
	return b, nil
}

// StreamFile opens a streaming reader over path's uncompressed bytes. The
// caller must Close the returned reader.
func (a *Archive) StreamFile(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	return a.c.openStream(path)
}

// GetText reads path and decodes it as text using enc (IANA encoding name;
// "" defaults to the Archive's configured default, itself defaulting to
// "utf-8").
func (a *Archive) GetText(ctx context.Context, path string, enc string) (string, error) {
	b, err := a.GetFile(ctx, path)
	if err != nil {
		return "", err
	}
	if enc == "" {
		enc = a.opts.textEncoding
	}
	if enc == "" || enc == "utf-8" || enc == "UTF-8" {
		return string(b), nil
	}

	e, err := ianaindex.IANA.Encoding(enc)
	if err != nil || e == nil {
		return "", newDecodeError(path, enc, fmt.Errorf("unrecognized encoding"))
	}
	decoded, err := e.NewDecoder().Bytes(b)
	if err != nil {
		return "", newDecodeError(path, enc, err)
	}
	return string(decoded), nil
}

// GetJSON reads path, decodes it as UTF-8 text, and parses it as JSON into
// v (a pointer), per encoding/json.Unmarshal's usual contract.
func (a *Archive) GetJSON(ctx context.Context, path string, v interface{}) error {
	text, err := a.GetText(ctx, path, "utf-8")
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return newParseError(path, err)
	}
	return nil
}

// Stat returns the FileInfo for path, or a *NotFoundError if it does not
// exist. Supplements the minimal contract with a single-entry lookup that
// does not require scanning ListFiles.
func (a *Archive) Stat(path string) (FileInfo, error) {
	if err := a.checkOpen(); err != nil {
		return FileInfo{}, err
	}
	if !a.c.has(path) {
		return FileInfo{}, newNotFoundError(path)
	}
	return FileInfo{Path: path, Size: uint64(a.c.size(path))}, nil
}

// Validate performs a shallow structural check of the container: a
// datapackage.json, at least one recognized index file, and at least one
// archive/ entry. It does not parse the index or any WARC entry.
func (a *Archive) Validate() error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	if !a.c.has("datapackage.json") {
		return newContainerError("missing datapackage.json")
	}
	if !a.c.has("indexes/index.cdxj") && !a.c.has("indexes/index.cdx") {
		return newContainerError(errNoIndex.Error())
	}
	hasArchiveEntry := false
	for _, fi := range a.c.list() {
		if strings.HasPrefix(fi.Path, "archive/") {
			hasArchiveEntry = true
			break
		}
	}
	if !hasArchiveEntry {
		return newContainerError("no archive/ entries present")
	}
	return nil
}

// loadIndex reads and parses the CDX/CDXJ index per the preferIndex policy,
// memoizing the result. Missing index ⇒ *ContainerError.
func (a *Archive) loadIndex(ctx context.Context) ([]CaptureDescriptor, error) {
	a.indexOnce.Do(func() {
		a.index, a.indexErr = a.doLoadIndex(ctx)
	})
	return a.index, a.indexErr
}

func (a *Archive) doLoadIndex(ctx context.Context) ([]CaptureDescriptor, error) {
	var path string
	var isCDXJ bool

	switch a.opts.preferIndex {
	case PreferCDXJ:
		if a.c.has("indexes/index.cdxj") {
			path, isCDXJ = "indexes/index.cdxj", true
		} else if a.c.has("indexes/index.cdx") {
			path, isCDXJ = "indexes/index.cdx", false
		}
	case PreferCDX, PreferNone:
		if a.c.has("indexes/index.cdx") {
			path, isCDXJ = "indexes/index.cdx", false
		}
	}

	if path == "" {
		return nil, newContainerErrorf(errNoIndex, "no usable index file present")
	}

	text, err := a.GetText(ctx, path, "utf-8")
	if err != nil {
		return nil, err
	}

	var rows []cdx.Descriptor
	if isCDXJ {
		rows = cdx.ParseCDXJ(text)
	} else {
		rows = cdx.ParseLegacyCDX(text)
	}

	out := make([]CaptureDescriptor, 0, len(rows))
	for _, r := range rows {
		if r.URL == "" || r.TS == "" {
			continue
		}
		out = append(out, CaptureDescriptor{
			URL:      r.URL,
			TS:       r.TS,
			Status:   r.Status,
			Mime:     r.Mime,
			Digest:   r.Digest,
			WarcPath: r.WarcPath(),
			Offset:   r.Offset,
			Length:   r.Length,
		})
	}
	return out, nil
}

func buildQueryRecords(descs []CaptureDescriptor) []query.Record {
	out := make([]query.Record, len(descs))
	for i, d := range descs {
		ms, _ := timestamp.ToMillis(d.TS)
		out[i] = query.Record{URL: d.URL, TSMillis: ms, Status: d.Status, Mime: d.Mime, Index: i}
	}
	return out
}

// matcherFromAny coerces a string, *regexp.Regexp, func(string) bool, or an
// already-built query.Matcher into a query.Matcher. Any other type is
// treated as its fmt.Sprint form. Shared by every public operation whose
// contract accepts "string | regex | predicate" — capture URL matching and
// file path matching alike.
func matcherFromAny(v interface{}) query.Matcher {
	switch v := v.(type) {
	case query.Matcher:
		return v
	case *regexp.Regexp:
		return query.NewRegexMatcher(v)
	case func(string) bool:
		return query.NewPredicateMatcher(v)
	case string:
		return query.NewStringMatcher(v)
	default:
		return query.NewStringMatcher(fmt.Sprint(v))
	}
}

// ensureBuffer materializes a WARC entry's fully-inflated bytes: open the
// ZIP stream, apply gzip if the path ends in .gz, then drain through
// diskbuffer (capped at opts.maxWarcEntryBytes) into the contiguous slice
// the WARC framer scans.
func (a *Archive) ensureBuffer(path string) ([]byte, error) {
	rc, err := a.c.openStream(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r, err := maybeGunzip(path, rc)
	if err != nil {
		return nil, err
	}

	counted := countingreader.New(r)

	buf, err := diskbuffer.DrainEntry(counted, a.c.size(path), a.opts.maxWarcEntryBytes)
	if err != nil {
		return nil, newContainerErrorf(err, "failed materializing WARC entry %q", path)
	}
	defer buf.Close()

	b, err := diskbuffer.Bytes(buf)
	if err != nil {
		return nil, newIoError(fmt.Sprintf("failed reading drained WARC entry %q", path), err)
	}
	log.WithFields(log.Fields{"path": path, "inflatedBytes": counted.N()}).Debug("wacz: materialized WARC entry")
	return b, nil
}

// loadWarc returns the memoized ParsedWarc for a WARC entry path.
func (a *Archive) loadWarc(path string) (*ParsedWarc, error) {
	return a.wc.getOrLoad(path, func() (*ParsedWarc, error) {
		buf, err := a.ensureBuffer(path)
		if err != nil {
			return nil, err
		}
		return parseWarc(buf, a.opts.strict)
	})
}

// rangedOpenResponse implements the ranged fast path: read exactly
// desc.Offset..desc.Offset+desc.Length from the ZIP entry's raw data
// (skipping the drain-and-frame of the whole WARC entry), gunzip that slice
// if the entry is gzipped, frame it as a one-record WARC, and look up
// desc's key within it. ok is false whenever the fast path isn't
// applicable or doesn't pan out, telling the caller to fall back.
func (a *Archive) rangedOpenResponse(path string, desc CaptureDescriptor) (resp ArchivedResponse, ok bool, err error) {
	rc, ok, err := a.c.rangedStream(path, desc.Offset, desc.Length)
	if err != nil || !ok {
		return ArchivedResponse{}, false, err
	}
	defer rc.Close()

	r, err := maybeGunzip(path, rc)
	if err != nil {
		return ArchivedResponse{}, false, nil
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return ArchivedResponse{}, false, nil
	}

	pw, err := parseWarc(b, a.opts.strict)
	if err != nil {
		return ArchivedResponse{}, false, nil
	}
	rec, found := pw.ByKey[desc.key()]
	if !found {
		return ArchivedResponse{}, false, nil
	}
	return parseHTTPResponse(rec.Payload), true, nil
}
