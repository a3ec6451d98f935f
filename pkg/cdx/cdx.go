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

// Package cdx parses CDXJ and legacy plain-CDX index text into capture
// descriptors, field-naming grounded on the CDX conventions used throughout
// the web-archiving ecosystem (uri/status/mime/digest/filename/offset/length).
package cdx

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/extremeheat/wacz-parser/internal/timestamp"
	log "github.com/sirupsen/logrus"
)

// Descriptor is one parsed capture row, independent of the wacz package's
// CaptureDescriptor so this package has no import-cycle dependency back on
// the root package; archive.go adapts between the two.
type Descriptor struct {
	URL      string
	TS       string
	Status   int
	Mime     string
	Digest   string
	Filename string
	Offset   int64
	Length   int64
}

// WarcPath resolves the ZIP entry path for a descriptor's WARC entry, per
// the "archive/" + filename convention. Returns "" when Filename is absent.
func (d Descriptor) WarcPath() string {
	if d.Filename == "" {
		return ""
	}
	return "archive/" + d.Filename
}

type cdxjFields struct {
	URL      string `json:"url"`
	Status   int    `json:"status"`
	Mime     string `json:"mime"`
	Digest   string `json:"digest"`
	Filename string `json:"filename"`
	Offset   int64  `json:"offset"`
	Length   int64  `json:"length"`
}

// ParseCDXJ parses the CDXJ text format: one record per line, each
//
//	<searchable-key> SP <timestamp> SP <json-object>
//
// Lines with fewer than three space-separated fields, and lines whose
// trailing JSON object fails to parse, are skipped silently — malformed
// index lines are a documented, deliberate silent-skip (real-world archives
// accumulate them).
func ParseCDXJ(text string) []Descriptor {
	var out []Descriptor
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		if len(fields) < 3 {
			log.WithField("line", line).Debug("wacz/cdx: CDXJ line has fewer than 3 fields, skipping")
			continue
		}
		ts := fields[1]
		jsonPart := fields[2]

		f := cdxjFields{Offset: -1, Length: -1}
		if err := json.Unmarshal([]byte(jsonPart), &f); err != nil {
			log.WithError(err).WithField("line", line).Debug("wacz/cdx: CDXJ line has invalid JSON, skipping")
			continue
		}
		if f.URL == "" {
			continue
		}

		out = append(out, Descriptor{
			URL:      f.URL,
			TS:       timestamp.NormalizeCDXTimestamp(ts),
			Status:   f.Status,
			Mime:     f.Mime,
			Digest:   f.Digest,
			Filename: f.Filename,
			Offset:   f.Offset,
			Length:   f.Length,
		})
	}
	return out
}

// ParseLegacyCDX parses plain (non-JSON) CDX text: SURT-keyed, space
// separated 9- or 11-field rows, the format predating CDXJ. The field
// layout of an 11-field row (the "CDX N b a m s k r M S V g" convention) is:
//
//	0 urlkey  1 timestamp  2 original  3 mimetype  4 statuscode
//	5 digest  6 redirect   7 robotflags  8 length  9 offset  10 filename
//
// A 9-field row shares fields 0-5, then is read as 6 offset and 7 filename;
// its ninth field is ignored and its Length is absent.
//
// Only the 9-field and 11-field shapes recorded by pywb-family crawlers are
// recognized; any other field count is skipped.
func ParseLegacyCDX(text string) []Descriptor {
	var out []Descriptor
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "CDX ") || strings.HasPrefix(line, " CDX ") {
			continue
		}
		fields := strings.Fields(line)

		var d Descriptor
		switch len(fields) {
		case 9:
			// urlkey ts original mime status digest offset filename <one more>
			d = Descriptor{
				TS:     fields[1],
				URL:    fields[2],
				Mime:   fields[3],
				Digest: fields[5],
			}
			d.Status = atoiOr(fields[4], 0)
			d.Offset = atoi64Or(fields[6], -1)
			d.Length = -1
			d.Filename = fields[7]
		case 11:
			// urlkey ts original mime status digest redirect robotflags length offset filename
			d = Descriptor{
				TS:     fields[1],
				URL:    fields[2],
				Mime:   fields[3],
				Digest: fields[5],
			}
			d.Status = atoiOr(fields[4], 0)
			d.Length = atoi64Or(fields[8], -1)
			d.Offset = atoi64Or(fields[9], -1)
			d.Filename = fields[10]
		default:
			log.WithField("line", line).Debug("wacz/cdx: plain CDX line has unrecognized field count, skipping")
			continue
		}
		if d.URL == "" || d.URL == "-" {
			continue
		}
		if d.Mime == "-" {
			d.Mime = ""
		}
		if d.Digest == "-" {
			d.Digest = ""
		}
		d.TS = timestamp.NormalizeCDXTimestamp(d.TS)
		out = append(out, d)
	}
	return out
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func atoi64Or(s string, def int64) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return n
}
