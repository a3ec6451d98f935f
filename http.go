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
	"regexp"
	"strconv"
	"strings"
)

var statusLineRE = regexp.MustCompile(`^HTTP/\d\.\d\s+(\d+)`)

// parseHTTPResponse extracts the status, headers, and body out of a
// `response`-type WARC record's payload, which begins with a raw HTTP/1.x
// response as it appeared on the wire. The WARC record has already framed
// the payload's length, so the body here is returned verbatim: no
// transfer-encoding handling, no further content-length truncation.
func parseHTTPResponse(payload []byte) ArchivedResponse {
	sep := bytes.Index(payload, headerSep)
	if sep < 0 {
		return ArchivedResponse{Status: 0, Headers: map[string]string{}, Body: payload}
	}

	preamble := string(payload[:sep])
	lines := strings.Split(preamble, "\r\n")

	status := 0
	if len(lines) > 0 {
		if m := statusLineRE.FindStringSubmatch(lines[0]); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				status = n
			}
		}
	}

	headers := make(map[string]string)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		headers[name] = value
	}

	body := payload[sep+len(headerSep):]
	return ArchivedResponse{Status: status, Headers: headers, Body: body}
}
