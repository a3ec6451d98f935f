package wacz

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itoa(n int) string { return strconv.Itoa(n) }

func gzipWriter(w io.Writer) *gzip.Writer { return gzip.NewWriter(w) }

// buildFixture writes a minimal WACZ to a temp file: datapackage.json, a
// plain-CDX index, one gzipped WARC entry carrying a single response
// record, and an extra file, mirroring the iana.wacz fixture described in
// the end-to-end scenarios this test suite is modeled on.
func buildFixture(t *testing.T) string {
	t.Helper()

	const targetURL = "https://www.iana.org/"
	const warcDate = "2025-12-16T08:54:25.000Z"
	httpPayload := "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\n<html>IANA</html>"
	warcRecord := "WARC/1.0\r\n" +
		"WARC-Type: response\r\n" +
		"WARC-Target-URI: " + targetURL + "\r\n" +
		"WARC-Date: " + warcDate + "\r\n" +
		"Content-Length: " + itoa(len(httpPayload)) + "\r\n" +
		"\r\n" + httpPayload + "\r\n\r\n"

	var gzBuf bytes.Buffer
	gw := gzipWriter(&gzBuf)
	_, err := gw.Write([]byte(warcRecord))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	dir := t.TempDir()
	path := filepath.Join(dir, "iana.wacz")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)

	writeEntry(t, zw, "datapackage.json", `{"resources":[{"name":"data"}],"created":"2025-12-16T00:00:00Z"}`)
	writeEntry(t, zw, "indexes/index.cdx",
		"com,iana,www)/ 20251216085425000 "+targetURL+" text/html 200 sha1:abc 0 data.warc.gz 1\n")
	writeEntryBytes(t, zw, "archive/data.warc.gz", gzBuf.Bytes())
	writeEntry(t, zw, "pages/pages.jsonl", `{"url":"`+targetURL+`"}`)

	require.NoError(t, zw.Close())
	return path
}

func writeEntry(t *testing.T, zw *zip.Writer, name, content string) {
	t.Helper()
	writeEntryBytes(t, zw, name, []byte(content))
}

func writeEntryBytes(t *testing.T, zw *zip.Writer, name string, content []byte) {
	t.Helper()
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write(content)
	require.NoError(t, err)
}

func TestEndToEndScenarios(t *testing.T) {
	ctx := context.Background()
	path := buildFixture(t)

	a, err := Open(ctx, path)
	require.NoError(t, err)
	defer a.Close()

	// 1. listFiles
	files, err := a.ListFiles()
	require.NoError(t, err)
	require.Len(t, files, 4)
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.Contains(t, paths, "datapackage.json")
	assert.Contains(t, paths, "indexes/index.cdx")
	assert.Contains(t, paths, "archive/data.warc.gz")

	// 2. getJSON
	var pkg struct {
		Resources []map[string]interface{} `json:"resources"`
		Created   string                    `json:"created"`
	}
	require.NoError(t, a.GetJSON(ctx, "datapackage.json", &pkg))
	assert.NotEmpty(t, pkg.Resources)
	assert.NotEmpty(t, pkg.Created)

	// 3. findCaptures
	caps, err := a.FindCaptures(ctx, "https://www.iana.org/", FindOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, caps)
	assert.Equal(t, 200, caps[0].Status)
	assert.Contains(t, caps[0].WarcPath, "data.warc.gz")

	// 4. getCapture
	desc, ok, err := a.GetCapture(ctx, "https://www.iana.org/", GetCaptureOptions{At: "2025-12-16T08:54:25Z"})
	require.NoError(t, err)
	require.True(t, ok)

	// 5. openCapture -> openResponse
	resp, err := a.OpenCapture(desc).OpenResponse(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Contains(t, string(resp.Body), "IANA")

	// 6. nearest-time strategies at the boundaries
	earliest, ok, err := a.GetCapture(ctx, "https://www.iana.org/", GetCaptureOptions{At: "1990-01-01Z", Strategy: "after"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, desc.TS, earliest.TS)

	latest, ok, err := a.GetCapture(ctx, "https://www.iana.org/", GetCaptureOptions{At: "2099-01-01Z", Strategy: "before"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, desc.TS, latest.TS)
}

func TestEmptyArchiveBoundaries(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.wacz")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	a, err := Open(ctx, path)
	require.NoError(t, err)
	defer a.Close()

	files, err := a.ListFiles()
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = a.FindCaptures(ctx, "https://x/", FindOptions{})
	assert.Error(t, err)
	var ce *ContainerError
	assert.ErrorAs(t, err, &ce)
}

func TestGetCaptureRequiresAt(t *testing.T) {
	ctx := context.Background()
	path := buildFixture(t)
	a, err := Open(ctx, path)
	require.NoError(t, err)
	defer a.Close()

	_, _, err = a.GetCapture(ctx, "https://www.iana.org/", GetCaptureOptions{})
	var ue *UsageError
	assert.ErrorAs(t, err, &ue)
}

func TestFindCapturesNoMatchingCaptures(t *testing.T) {
	ctx := context.Background()
	path := buildFixture(t)
	a, err := Open(ctx, path)
	require.NoError(t, err)
	defer a.Close()

	caps, err := a.FindCaptures(ctx, "https://nowhere.example/", FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, caps)

	_, ok, err := a.GetCapture(ctx, "https://nowhere.example/", GetCaptureOptions{At: "2025-01-01Z"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasFileAndStat(t *testing.T) {
	path := buildFixture(t)
	a, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer a.Close()

	ok, err := a.HasFile("datapackage.json")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = a.Stat("does/not/exist")
	var nfe *NotFoundError
	assert.ErrorAs(t, err, &nfe)
}

func TestSearchFilesAcceptsStringRegexAndPredicate(t *testing.T) {
	path := buildFixture(t)
	a, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer a.Close()

	byString, err := a.SearchFiles("warc")
	require.NoError(t, err)
	require.Len(t, byString, 1)
	assert.Equal(t, "archive/data.warc.gz", byString[0].Path)

	byRegex, err := a.SearchFiles(regexp.MustCompile(`^indexes/`))
	require.NoError(t, err)
	require.Len(t, byRegex, 1)
	assert.Equal(t, "indexes/index.cdx", byRegex[0].Path)

	byPredicate, err := a.SearchFiles(func(p string) bool { return p == "pages/pages.jsonl" })
	require.NoError(t, err)
	require.Len(t, byPredicate, 1)
	assert.Equal(t, "pages/pages.jsonl", byPredicate[0].Path)
}

func TestHasFileAcceptsRegex(t *testing.T) {
	path := buildFixture(t)
	a, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer a.Close()

	ok, err := a.HasFile(regexp.MustCompile(`\.cdx$`))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.HasFile(regexp.MustCompile(`\.nonexistent$`))
	require.NoError(t, err)
	assert.False(t, ok)
}

// buildTruncatedFixture writes a WACZ whose single WARC record declares a
// Content-Length longer than the bytes actually present, to exercise
// WithStrict's rejection path.
func buildTruncatedFixture(t *testing.T) string {
	t.Helper()

	const targetURL = "https://example.org/"
	const warcDate = "2025-12-16T08:54:25.000Z"
	httpPayload := "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\n<html>short</html>"
	warcRecord := "WARC/1.0\r\n" +
		"WARC-Type: response\r\n" +
		"WARC-Target-URI: " + targetURL + "\r\n" +
		"WARC-Date: " + warcDate + "\r\n" +
		"Content-Length: " + itoa(len(httpPayload)+1000) + "\r\n" +
		"\r\n" + httpPayload

	var gzBuf bytes.Buffer
	gw := gzipWriter(&gzBuf)
	_, err := gw.Write([]byte(warcRecord))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	dir := t.TempDir()
	path := filepath.Join(dir, "truncated.wacz")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	writeEntry(t, zw, "datapackage.json", `{"resources":[],"created":"2025-12-16T00:00:00Z"}`)
	writeEntry(t, zw, "indexes/index.cdx",
		"com,example)/ 20251216085425000 "+targetURL+" text/html 200 sha1:abc 0 data.warc.gz 1\n")
	writeEntryBytes(t, zw, "archive/data.warc.gz", gzBuf.Bytes())
	require.NoError(t, zw.Close())
	return path
}

func TestOpenResponseRejectsTruncatedWarcWhenStrict(t *testing.T) {
	ctx := context.Background()
	path := buildTruncatedFixture(t)

	a, err := Open(ctx, path, WithStrict(true))
	require.NoError(t, err)
	defer a.Close()

	caps, err := a.FindCaptures(ctx, "https://example.org/", FindOptions{})
	require.NoError(t, err)
	require.Len(t, caps, 1)

	_, err = a.OpenCapture(caps[0]).OpenResponse(ctx)
	var ce *ContainerError
	assert.ErrorAs(t, err, &ce)
}

func TestOpenResponseClampsTruncatedWarcByDefault(t *testing.T) {
	ctx := context.Background()
	path := buildTruncatedFixture(t)

	a, err := Open(ctx, path)
	require.NoError(t, err)
	defer a.Close()

	caps, err := a.FindCaptures(ctx, "https://example.org/", FindOptions{})
	require.NoError(t, err)
	require.Len(t, caps, 1)

	resp, err := a.OpenCapture(caps[0]).OpenResponse(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(resp.Body), "short")
}

func TestValidate(t *testing.T) {
	path := buildFixture(t)
	a, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer a.Close()

	assert.NoError(t, a.Validate())
}

// buildRangedFixture stores the WARC entry uncompressed at the ZIP level
// (zip.Store) so the ranged fast path is reachable, and publishes the
// record's offset/length via CDXJ.
func buildRangedFixture(t *testing.T) (path string, targetURL string) {
	t.Helper()

	targetURL = "https://example.org/"
	const warcDate = "2025-06-01T12:00:00.000Z"
	httpPayload := "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n\r\nranged-ok"
	warcRecord := "WARC/1.0\r\n" +
		"WARC-Type: response\r\n" +
		"WARC-Target-URI: " + targetURL + "\r\n" +
		"WARC-Date: " + warcDate + "\r\n" +
		"Content-Length: " + itoa(len(httpPayload)) + "\r\n" +
		"\r\n" + httpPayload + "\r\n\r\n"

	var gzBuf bytes.Buffer
	gw := gzipWriter(&gzBuf)
	_, err := gw.Write([]byte(warcRecord))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	gzBytes := gzBuf.Bytes()

	dir := t.TempDir()
	path = filepath.Join(dir, "ranged.wacz")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)

	writeEntry(t, zw, "datapackage.json", `{"resources":[],"created":"2025-06-01T00:00:00Z"}`)

	cdxjLine := `key 20250601120000000 {"url":"` + targetURL +
		`","status":200,"mime":"text/plain","filename":"data.warc.gz","offset":0,"length":` + itoa(len(gzBytes)) + `}` + "\n"
	writeEntry(t, zw, "indexes/index.cdxj", cdxjLine)

	w, err := zw.CreateHeader(&zip.FileHeader{Name: "archive/data.warc.gz", Method: zip.Store})
	require.NoError(t, err)
	_, err = w.Write(gzBytes)
	require.NoError(t, err)

	require.NoError(t, zw.Close())
	return path, targetURL
}

func TestRangedFastPath(t *testing.T) {
	ctx := context.Background()
	path, targetURL := buildRangedFixture(t)

	a, err := Open(ctx, path)
	require.NoError(t, err)
	defer a.Close()

	caps, err := a.FindCaptures(ctx, targetURL, FindOptions{})
	require.NoError(t, err)
	require.Len(t, caps, 1)
	require.True(t, caps[0].hasRange())

	resp, err := a.OpenCapture(caps[0]).OpenResponse(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "ranged-ok", string(resp.Body))
}
