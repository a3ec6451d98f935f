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

package diskbuffer

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createReaderOfSize(size int64) (reader io.Reader, hash string) {
	f, err := os.Open("/dev/urandom")
	if err != nil {
		panic(err)
	}
	defer f.Close()

	b := make([]byte, int(size))
	if _, err = io.ReadFull(f, b); err != nil {
		panic(err)
	}

	h := md5.New()
	h.Write(b)
	return bytes.NewReader(b), hex.EncodeToString(h.Sum(nil))
}

func hashOfReader(r io.Reader) string {
	h := md5.New()
	_, _ = io.Copy(h, r)
	return hex.EncodeToString(h.Sum(nil))
}

func TestReadFromSmallBufferStaysInMemory(t *testing.T) {
	r, hash := createReaderOfSize(1)
	bb := New()
	defer bb.Close()

	total, err := bb.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, hash, hashOfReader(bb))
}

func TestReadFromBigBufferSpillsPastMemoryLimit(t *testing.T) {
	size := int64(13631488)
	r, hash := createReaderOfSize(size)
	bb := New()
	defer bb.Close()

	total, err := bb.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(t, size, total)
	assert.Equal(t, hash, hashOfReader(bb))
}

func TestSeekRewindsToStart(t *testing.T) {
	tlen := int64(1057576)
	r, hash := createReaderOfSize(tlen)
	bb := New()
	defer bb.Close()

	_, err := bb.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(t, hash, hashOfReader(bb))
	assert.Equal(t, tlen, bb.Size())

	_, err = bb.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, hash, hashOfReader(bb))
	assert.Equal(t, tlen, bb.Size())
}

// TestSeekSpillsToDisk forces the memory portion to fill almost immediately
// (WithMaxMemBytes(1)) so most of the data is served from the spilled temp
// file, and checks a Seek-to-start still reads back identical bytes.
func TestSeekSpillsToDisk(t *testing.T) {
	tlen := int64(1057576)
	r, hash := createReaderOfSize(tlen)
	bb := New(WithMaxMemBytes(1))
	defer bb.Close()

	_, err := bb.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(t, hash, hashOfReader(bb))
	assert.Equal(t, tlen, bb.Size())

	_, err = bb.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, hash, hashOfReader(bb))
	assert.Equal(t, tlen, bb.Size())
}

func TestReadFromWithinTotalLimit(t *testing.T) {
	requestSize := int64(1057576)
	r, hash := createReaderOfSize(requestSize)
	bb := New(WithMaxMemBytes(1024), WithMaxTotalBytes(requestSize+1))
	defer bb.Close()

	total, err := bb.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(t, requestSize, total)
	assert.Equal(t, hash, hashOfReader(bb))
}

func TestReadFromExceedsTotalLimit(t *testing.T) {
	requestSize := int64(1057576)
	r, _ := createReaderOfSize(requestSize)
	bb := New(WithMaxMemBytes(1024), WithMaxTotalBytes(requestSize-1))
	defer bb.Close()

	_, err := bb.ReadFrom(r)
	assert.IsType(t, ErrMaxSizeExceeded(0), err)
}

func TestReadFromExceedsTotalLimitWhileStillInMemory(t *testing.T) {
	requestSize := int64(1057576)
	r, _ := createReaderOfSize(requestSize)
	bb := New(WithMaxMemBytes(requestSize+1), WithMaxTotalBytes(requestSize-1))
	defer bb.Close()

	_, err := bb.ReadFrom(r)
	assert.IsType(t, ErrMaxSizeExceeded(0), err)
}
