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

// Package query implements the capture query engine: matcher dispatch,
// time/status/mime filtering, deterministic limiting, and nearest-time
// resolution, all operating over the package's own Record shape so it has
// no dependency on the root package.
package query

import (
	"regexp"
	"strings"
)

// Record is the subset of a capture descriptor the query engine filters
// and orders over. TSMillis is the descriptor's timestamp pre-converted to
// milliseconds-since-epoch by the caller (archive.go), since this package
// has no ISO-8601 parser of its own.
type Record struct {
	URL      string
	TSMillis int64
	Status   int
	Mime     string
	Index    int // position in the original CaptureIndex, for tie-breaking
}

// Matcher is the tagged union of the three ways a URL or path may be
// matched: a compiled regex, an arbitrary predicate, or a literal string.
// Exactly one field is non-nil/non-empty at a time; String is the zero
// value so a Matcher built from a bare string round-trips through this
// struct without callers needing a constructor.
type Matcher struct {
	Regex     *regexp.Regexp
	Predicate func(string) bool
	String    string
}

// NewStringMatcher builds a Matcher that compares against s.
func NewStringMatcher(s string) Matcher { return Matcher{String: s} }

// NewRegexMatcher builds a Matcher that tests re.
func NewRegexMatcher(re *regexp.Regexp) Matcher { return Matcher{Regex: re} }

// NewPredicateMatcher builds a Matcher that calls fn.
func NewPredicateMatcher(fn func(string) bool) Matcher { return Matcher{Predicate: fn} }

// MatchSubstring applies m to s using substring containment for the
// string case — the rule file search uses.
func (m Matcher) MatchSubstring(s string) bool {
	switch {
	case m.Regex != nil:
		return m.Regex.MatchString(s)
	case m.Predicate != nil:
		return m.Predicate(s)
	default:
		return strings.Contains(s, m.String)
	}
}

// MatchExact applies m to s using exact equality for the string case — the
// rule capture search uses. Captures are keyed by URL; browsing files is
// not, hence the asymmetry is intentional and load-bearing, not an
// oversight.
func (m Matcher) MatchExact(s string) bool {
	switch {
	case m.Regex != nil:
		return m.Regex.MatchString(s)
	case m.Predicate != nil:
		return m.Predicate(s)
	default:
		return s == m.String
	}
}

// StatusFilter matches either a single status code or a set of codes.
type StatusFilter struct {
	single int
	set    map[int]struct{}
	active bool
}

// NewStatusFilterSingle builds a filter matching exactly one status code.
func NewStatusFilterSingle(code int) StatusFilter {
	return StatusFilter{single: code, active: true}
}

// NewStatusFilterSet builds a filter matching membership in codes.
func NewStatusFilterSet(codes []int) StatusFilter {
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return StatusFilter{set: set, active: true}
}

func (f StatusFilter) matches(status int) bool {
	if !f.active {
		return true
	}
	if f.set != nil {
		_, ok := f.set[status]
		return ok
	}
	return status == f.single
}

// MimeFilter matches either an exact MIME string or a regex.
type MimeFilter struct {
	regex  *regexp.Regexp
	value  string
	active bool
}

func NewMimeFilterString(s string) MimeFilter { return MimeFilter{value: s, active: true} }
func NewMimeFilterRegex(re *regexp.Regexp) MimeFilter {
	return MimeFilter{regex: re, active: true}
}

func (f MimeFilter) matches(mime string) bool {
	if !f.active {
		return true
	}
	if f.regex != nil {
		return f.regex.MatchString(mime)
	}
	return mime == f.value
}

// Options bundles the filters findCaptures applies, beyond the URL matcher
// itself (handled separately since it also governs whether the query is an
// exact-match capture search).
type Options struct {
	FromMillis int64 // used only when HasFrom is set
	ToMillis   int64 // used only when HasTo is set
	HasFrom    bool
	HasTo      bool
	Status     StatusFilter
	Mime       MimeFilter
	Limit      int // 0 means unlimited
}

// FindCaptures filters records by urlMatcher (exact-equality capture
// matching) and opts, preserving input order, and stops early once Limit
// matches have accumulated — deterministic prefix selection, not sampling.
func FindCaptures(records []Record, urlMatcher Matcher, opts Options) []Record {
	var out []Record
	for _, r := range records {
		if !urlMatcher.MatchExact(r.URL) {
			continue
		}
		if opts.HasFrom && r.TSMillis < opts.FromMillis {
			continue
		}
		if opts.HasTo && r.TSMillis > opts.ToMillis {
			continue
		}
		if !opts.Status.matches(r.Status) {
			continue
		}
		if !opts.Mime.matches(r.Mime) {
			continue
		}
		out = append(out, r)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out
}

// Strategy selects which side of at nearest-time lookup accepts.
type Strategy int

const (
	Closest Strategy = iota
	Before
	After
)

// GetCapture picks the record nearest to atMillis among those matching
// urlMatcher, after applying strategy, tie-breaking on original index
// order. Returns ok=false when no candidate survives strategy filtering.
func GetCapture(records []Record, urlMatcher Matcher, atMillis int64, strategy Strategy) (Record, bool) {
	best := Record{}
	bestDelta := int64(0)
	found := false

	for _, r := range records {
		if !urlMatcher.MatchExact(r.URL) {
			continue
		}
		delta := r.TSMillis - atMillis
		switch strategy {
		case Before:
			if delta > 0 {
				continue
			}
		case After:
			if delta < 0 {
				continue
			}
		}

		absDelta := delta
		if absDelta < 0 {
			absDelta = -absDelta
		}
		if !found || absDelta < bestDelta {
			best = r
			bestDelta = absDelta
			found = true
		}
	}

	return best, found
}
