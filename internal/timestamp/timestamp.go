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

// Package timestamp converts between the compact digit-run timestamps used by
// CDX/CDXJ index rows and WARC-Date headers, and the ISO-8601 form that
// CaptureDescriptor.ts and WarcRecord dates are compared by.
package timestamp

import (
	"fmt"
	"regexp"
	"time"
)

const (
	iso8601     = "2006-01-02T15:04:05Z"
	iso8601Milli = "2006-01-02T15:04:05.000Z"
	digits14    = "20060102150405"
	digits17    = "20060102150405.000"
)

var (
	re14 = regexp.MustCompile(`^\d{14}$`)
	re17 = regexp.MustCompile(`^\d{17}$`)
)

// To14 converts an ISO-8601 timestamp to the 14-digit form (YYYYMMDDhhmmss).
func To14(iso string) (string, error) {
	t, err := time.Parse(iso8601, iso)
	if err != nil {
		return "", fmt.Errorf("timestamp: %q is not a valid ISO-8601 date: %w", iso, err)
	}
	return UTC14(t), nil
}

// From14ToTime parses a 14-digit timestamp into a time.Time in UTC.
func From14ToTime(digits string) (time.Time, error) {
	if !re14.MatchString(digits) {
		return time.Time{}, fmt.Errorf("timestamp: %q is not a 14-digit timestamp", digits)
	}
	return time.ParseInLocation(digits14, digits, time.UTC)
}

// To17 converts an ISO-8601 (optionally millisecond-precision) timestamp to
// the 17-digit form (YYYYMMDDhhmmssSSS) used by CDXJ rows.
func To17(iso string) (string, error) {
	t, err := ParseISO(iso)
	if err != nil {
		return "", err
	}
	return UTC17(t), nil
}

// From17ToTime parses a 17-digit timestamp (YYYYMMDDhhmmssSSS) into a
// time.Time in UTC.
func From17ToTime(digits string) (time.Time, error) {
	if !re17.MatchString(digits) {
		return time.Time{}, fmt.Errorf("timestamp: %q is not a 17-digit timestamp", digits)
	}
	whole := digits[:14] + "." + digits[14:]
	return time.ParseInLocation(digits17, whole, time.UTC)
}

// ParseISO parses either the second- or millisecond-precision ISO-8601 form.
func ParseISO(iso string) (time.Time, error) {
	if t, err := time.Parse(iso8601Milli, iso); err == nil {
		return t, nil
	}
	t, err := time.Parse(iso8601, iso)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp: %q is not a valid ISO-8601 date: %w", iso, err)
	}
	return t, nil
}

// Is17Digit reports whether s is exactly 17 decimal digits, the
// YYYYMMDDhhmmssSSS form normalized into ISO-8601.
func Is17Digit(s string) bool {
	return re17.MatchString(s)
}

// NormalizeCDXTimestamp rewrites a CDX timestamp into normalized form: a
// 17-digit run becomes millisecond-precision ISO-8601; anything else passes
// through unchanged.
func NormalizeCDXTimestamp(s string) string {
	if !Is17Digit(s) {
		return s
	}
	t, err := From17ToTime(s)
	if err != nil {
		return s
	}
	return UTCW3cIso8601Milli(t)
}

// UTC returns t converted to UTC.
func UTC(t time.Time) time.Time {
	return t.UTC()
}

// UTC14 formats t as a 14-digit timestamp (YYYYMMDDhhmmss) in UTC.
func UTC14(t time.Time) string {
	return t.UTC().Format(digits14)
}

// UTC17 formats t as a 17-digit timestamp (YYYYMMDDhhmmssSSS) in UTC.
func UTC17(t time.Time) string {
	s := t.UTC().Format(digits17)
	// strip the decimal point digits14 doesn't have, leaving 17 plain digits
	return s[:14] + s[15:]
}

// UTCW3cIso8601 formats t as a second-precision ISO-8601 string in UTC.
func UTCW3cIso8601(t time.Time) string {
	return t.UTC().Format(iso8601)
}

// UTCW3cIso8601Milli formats t as a millisecond-precision ISO-8601 string in
// UTC, the form normalized CDX timestamps and WARC-Date headers are compared
// in.
func UTCW3cIso8601Milli(t time.Time) string {
	return t.UTC().Format(iso8601Milli)
}

// ToMillis converts an ISO-8601 (second- or millisecond-precision) timestamp
// to milliseconds since the Unix epoch, the unit time-range and nearest-time
// capture comparisons operate on.
func ToMillis(iso string) (int64, error) {
	t, err := ParseISO(iso)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

var flexibleLayouts = []string{
	iso8601Milli,
	iso8601,
	"2006-01-02T15:04:05",
	"2006-01-02Z",
	"2006-01-02",
	digits17,
	digits14,
}

// ParseFlexible parses any date-like string findCaptures/getCapture's
// from/to/at options accept: full ISO-8601 (with or without a trailing Z
// and with or without milliseconds), a bare date, or a 14/17-digit CDX
// timestamp. It is intentionally more permissive than ParseISO, which is
// reserved for the exact forms CaptureDescriptor.TS and WARC-Date take.
func ParseFlexible(s string) (time.Time, error) {
	if Is17Digit(s) {
		return From17ToTime(s)
	}
	if re14.MatchString(s) {
		return From14ToTime(s)
	}
	for _, layout := range flexibleLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp: %q does not match any recognized date format", s)
}

// ToMillisFlexible is ToMillis but accepting the same permissive input
// ParseFlexible does.
func ToMillisFlexible(s string) (int64, error) {
	t, err := ParseFlexible(s)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}
