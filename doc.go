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

/*
Package wacz is a read-only access library for Web Archive Collection Zipped
(WACZ) containers: a ZIP file carrying WARC payloads, a CDX/CDXJ index, and a
small metadata manifest.

# Open an archive

The [Archive] is the entry point. It is created with [Open] and released with
[Archive.Close]. Opening only reads the ZIP central directory; the CDX/CDXJ
index and any WARC payload are parsed lazily, on first use, and cached for
the lifetime of the handle.

	a, err := wacz.Open(ctx, "collection.wacz")
	if err != nil { ... }
	defer a.Close()

# Browse files

[Archive.ListFiles], [Archive.SearchFiles], [Archive.HasFile], [Archive.GetFile]
and [Archive.StreamFile] expose the ZIP's contents directly. [Archive.GetText]
and [Archive.GetJSON] add decoding for text and JSON manifests such as
datapackage.json.

# Find and read captures

[Archive.FindCaptures] and [Archive.IterateCaptures] query the CDX/CDXJ index
by URL, time range, status, and MIME type. [Archive.GetCapture] resolves a
single nearest-in-time capture. [Archive.OpenCapture] returns a handle whose
[CaptureHandle.OpenResponse] reads the captured HTTP response's status,
headers, and body out of the underlying WARC record.

# What this package does not do

It does not write or modify archives, fetch anything over the network, or
cache to disk beyond the bounded in-memory WARC cache. Command-line tooling,
configuration-file loading, and a replay/time-travel HTTP server are
collaborators this package is meant to be driven by, not things it provides.
*/
package wacz
