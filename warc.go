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
	"bytes"
	"mime"
	"strconv"
	"strings"

	"github.com/extremeheat/wacz-parser/internal/timestamp"
	log "github.com/sirupsen/logrus"
)

var (
	warcMarker  = []byte("WARC/")
	headerSep   = []byte("\r\n\r\n")
	wordDecoder = new(mime.WordDecoder)
)

// parseWarc frames buf into WARC records per the byte-scan algorithm: scan
// for "WARC/", scan from there for "\r\n\r\n", split the header block on
// the first ":" of each line (last-wins on duplicate names), read
// Content-Length, slice the payload, then skip any trailing run of CR/LF
// before resuming the scan for the next record.
//
// A record whose declared Content-Length reaches past the end of buf is,
// by default, clamped to the remaining bytes rather than rejected, so a
// truncated trailing record does not discard everything already framed.
// With strict set (WithStrict), that same record instead fails framing
// with a *ContainerError, and nothing already framed is returned either -
// a corrupt archive should not silently hand back a partial capture set.
func parseWarc(buf []byte, strict bool) (*ParsedWarc, error) {
	pw := &ParsedWarc{ByKey: make(map[string]*WarcRecord)}

	pos := 0
	for {
		start := bytes.Index(buf[pos:], warcMarker)
		if start < 0 {
			break
		}
		start += pos

		sep := bytes.Index(buf[start:], headerSep)
		if sep < 0 {
			log.WithField("offset", start).Debug("wacz: trailing bytes after last WARC record have no header terminator, stopping framing")
			break
		}
		sep += start

		headers := parseWarcHeaders(buf[start:sep])

		bodyStart := sep + len(headerSep)
		contentLength := 0
		if cl := headers.Get("Content-Length"); cl != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(cl)); err == nil && n >= 0 {
				contentLength = n
			}
		}

		bodyEnd := bodyStart + contentLength
		truncated := false
		if bodyEnd > len(buf) {
			bodyEnd = len(buf)
			truncated = true
		}
		if bodyStart > len(buf) {
			bodyStart = len(buf)
		}
		if truncated && strict {
			return nil, newContainerErrorf(nil,
				"WARC record at offset %d declares Content-Length %d but only %d bytes remain",
				start, contentLength, bodyEnd-bodyStart)
		}
		payload := buf[bodyStart:bodyEnd]
		if truncated {
			log.WithFields(log.Fields{
				"declaredLength": contentLength,
				"available":      bodyEnd - bodyStart,
			}).Debug("wacz: WARC record payload truncated, clamping to end of buffer")
		}

		rec := WarcRecord{Headers: headers, Payload: payload}
		pw.Records = append(pw.Records, rec)

		key := recordKey(headers)
		if key != "" {
			if _, exists := pw.ByKey[key]; !exists {
				pw.ByKey[key] = &pw.Records[len(pw.Records)-1]
			}
		}

		pos = bodyEnd
		for pos < len(buf) && (buf[pos] == '\r' || buf[pos] == '\n') {
			pos++
		}
		if pos <= start {
			// Guard against a zero-length advance looping forever.
			pos = start + len(warcMarker)
		}
	}

	return pw, nil
}

// recordKey computes the url+"|"+ts lookup key for a response record, or ""
// if the record lacks WARC-Target-URI (and so cannot be looked up by key).
func recordKey(h WarcHeaders) string {
	url := h.Get("WARC-Target-URI")
	if url == "" {
		return ""
	}
	date := h.Get("WARC-Date")
	ts := timestamp.NormalizeCDXTimestamp(date)
	return url + "|" + ts
}

// parseWarcHeaders splits a WARC header block (the bytes between "WARC/"
// and "\r\n\r\n") into a header map. The first line is the version line and
// is discarded. Remaining lines split on the first ":"; both sides are
// trimmed. Duplicate names are last-wins. Header values may carry RFC 2047
// encoded words (seen in the wild for non-ASCII WARC-Target-URI values);
// those are decoded, falling back to the raw value on decode failure.
func parseWarcHeaders(block []byte) WarcHeaders {
	headers := make(WarcHeaders)
	lines := strings.Split(string(block), "\r\n")
	if len(lines) > 0 {
		lines = lines[1:] // drop "WARC/1.0" version line
	}
	for _, line := range lines {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		name := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if decoded, err := wordDecoder.DecodeHeader(value); err == nil {
			value = decoded
		}
		headers[name] = value
	}
	return headers
}
