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
	"regexp"

	"github.com/extremeheat/wacz-parser/internal/timestamp"
	"github.com/extremeheat/wacz-parser/pkg/query"
)

// fallbackWarcPath is where a descriptor lacking WarcPath resolves.
// Descriptors produced by this package's cdx parsers always set WarcPath
// when a filename was present, so in practice this only fires for
// synthetic/hand-built descriptors. Kept for compatibility with archives
// carrying such descriptors.
const fallbackWarcPath = "archive/data.warc.gz"

// FindOptions narrows a FindCaptures/IterateCaptures query. The zero value
// applies no filters and no limit.
type FindOptions struct {
	// From and To are ISO-8601 (or 14/17-digit) date-like strings bounding
	// the capture timestamp, inclusive on both ends. Empty means unbounded.
	From, To string

	// Limit stops iteration after this many matches, in index order. Zero
	// means unlimited.
	Limit int

	// Status matches a single code, or (via StatusSet) any of a set.
	Status    int
	HasStatus bool
	StatusSet []int

	// Mime matches exactly, or (via MimeRegex) by pattern. MimeRegex takes
	// precedence when both are set.
	Mime      string
	HasMime   bool
	MimeRegex *regexp.Regexp
}

func (o FindOptions) toQueryOptions() (query.Options, error) {
	var qo query.Options
	if o.From != "" {
		ms, err := timestamp.ToMillisFlexible(o.From)
		if err != nil {
			return qo, newUsageError("findCaptures: invalid from: " + err.Error())
		}
		qo.FromMillis, qo.HasFrom = ms, true
	}
	if o.To != "" {
		ms, err := timestamp.ToMillisFlexible(o.To)
		if err != nil {
			return qo, newUsageError("findCaptures: invalid to: " + err.Error())
		}
		qo.ToMillis, qo.HasTo = ms, true
	}
	qo.Limit = o.Limit

	switch {
	case len(o.StatusSet) > 0:
		qo.Status = query.NewStatusFilterSet(o.StatusSet)
	case o.HasStatus:
		qo.Status = query.NewStatusFilterSingle(o.Status)
	}

	switch {
	case o.MimeRegex != nil:
		qo.Mime = query.NewMimeFilterRegex(o.MimeRegex)
	case o.HasMime:
		qo.Mime = query.NewMimeFilterString(o.Mime)
	}

	return qo, nil
}

// FindCaptures returns every capture whose URL matches url (a string,
// *regexp.Regexp, or func(string) bool — exact-equality matching for the
// plain-string case, per the capture-search side of the asymmetry
// documented on the query package's Matcher) and that satisfies opts.
// Results preserve index order. Fails with *ContainerError if no index is
// present.
func (a *Archive) FindCaptures(ctx context.Context, url interface{}, opts FindOptions) ([]CaptureDescriptor, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	descs, err := a.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	qo, err := opts.toQueryOptions()
	if err != nil {
		return nil, err
	}

	records := buildQueryRecords(descs)
	matched := query.FindCaptures(records, matcherFromAny(url), qo)

	out := make([]CaptureDescriptor, len(matched))
	for i, m := range matched {
		out[i] = descs[m.Index]
	}
	return out, nil
}

// IterateCaptures calls fn for each matching capture in index order,
// stopping early if fn returns false. It runs FindCaptures first, so the
// full result slice is built before fn is called; stopping early skips only
// the remaining calls to fn.
func (a *Archive) IterateCaptures(ctx context.Context, url interface{}, opts FindOptions, fn func(CaptureDescriptor) bool) error {
	matches, err := a.FindCaptures(ctx, url, opts)
	if err != nil {
		return err
	}
	for _, m := range matches {
		if !fn(m) {
			break
		}
	}
	return nil
}

// GetCaptureOptions configures GetCapture.
type GetCaptureOptions struct {
	// At is required: an ISO-8601 (or 14/17-digit) date-like string.
	At string
	// Strategy defaults to "closest" when empty.
	Strategy string
}

// GetCapture resolves the capture nearest to opts.At among those matching
// url, per opts.Strategy ("closest" (default), "before", "after"). Returns
// (zero, false, nil) when no candidate survives strategy filtering, and
// *UsageError if At is empty.
func (a *Archive) GetCapture(ctx context.Context, url interface{}, opts GetCaptureOptions) (CaptureDescriptor, bool, error) {
	if err := a.checkOpen(); err != nil {
		return CaptureDescriptor{}, false, err
	}
	if err := checkContext(ctx); err != nil {
		return CaptureDescriptor{}, false, err
	}
	if opts.At == "" {
		return CaptureDescriptor{}, false, newUsageError("getCapture: at is required")
	}

	atMillis, err := timestamp.ToMillisFlexible(opts.At)
	if err != nil {
		return CaptureDescriptor{}, false, newUsageError("getCapture: invalid at: " + err.Error())
	}

	var strategy query.Strategy
	switch opts.Strategy {
	case "", "closest":
		strategy = query.Closest
	case "before":
		strategy = query.Before
	case "after":
		strategy = query.After
	default:
		return CaptureDescriptor{}, false, newUsageError("getCapture: unrecognized strategy " + opts.Strategy)
	}

	// The candidate set ignores from/to filtering — all captures for the
	// URL, not a temporally pre-filtered subset.
	descs, err := a.loadIndex(ctx)
	if err != nil {
		return CaptureDescriptor{}, false, err
	}
	records := buildQueryRecords(descs)

	match, ok := query.GetCapture(records, matcherFromAny(url), atMillis, strategy)
	if !ok {
		return CaptureDescriptor{}, false, nil
	}
	return descs[match.Index], true, nil
}

// CaptureHandle is a lightweight handle returned by OpenCapture; its
// OpenResponse reads the captured HTTP response out of the underlying WARC.
type CaptureHandle struct {
	a    *Archive
	desc CaptureDescriptor
}

// OpenCapture returns a handle for desc. It performs no I/O; the WARC entry
// is only read when OpenResponse is called.
func (a *Archive) OpenCapture(desc CaptureDescriptor) *CaptureHandle {
	return &CaptureHandle{a: a, desc: desc}
}

// OpenResponse resolves the capture's WARC entry (C1→C2→C3), looks up the
// record by (url, ts) key, and parses its payload as an HTTP response (C4).
// Fails with *NotFoundError if the key is absent from the WARC.
//
// When the descriptor carries both Offset and Length, this first tries a
// ranged fast path: seek directly to that byte span instead of draining
// and framing the whole WARC entry. The keyed lookup inside that narrow
// slice must still succeed; any discrepancy (wrong method, offset pointing
// at the wrong record, descriptor/WARC drift) falls back to the full path
// rather than surfacing a different answer — the ranged path is strictly
// an optimization, never an alternate source of truth.
func (h *CaptureHandle) OpenResponse(ctx context.Context) (ArchivedResponse, error) {
	if err := h.a.checkOpen(); err != nil {
		return ArchivedResponse{}, err
	}
	if err := checkContext(ctx); err != nil {
		return ArchivedResponse{}, err
	}

	path := h.desc.WarcPath
	if path == "" {
		path = fallbackWarcPath
	}

	if h.desc.hasRange() {
		if resp, ok, err := h.a.rangedOpenResponse(path, h.desc); err != nil {
			return ArchivedResponse{}, err
		} else if ok {
			return resp, nil
		}
	}

	pw, err := h.a.loadWarc(path)
	if err != nil {
		return ArchivedResponse{}, err
	}

	key := h.desc.key()
	rec, ok := pw.ByKey[key]
	if !ok {
		return ArchivedResponse{}, newNotFoundError("capture " + key + " in " + path)
	}

	return parseHTTPResponse(rec.Payload), nil
}
