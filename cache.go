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
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// warcCache memoizes ParsedWarc by ZIP entry path, bounded by size so an
// archive with many distinct WARC entries can't grow the cache unbounded.
// Load-once is enforced per key with a sync.Once rather than a single
// archive-wide lock, so parsing two different WARC entries never blocks
// on each other.
type warcCache struct {
	lru *lru.Cache[string, *ParsedWarc]

	mu    sync.Mutex
	onces map[string]*sync.Once
}

func newWarcCache(size int) *warcCache {
	if size <= 0 {
		size = 1
	}
	c, _ := lru.New[string, *ParsedWarc](size)
	return &warcCache{lru: c, onces: make(map[string]*sync.Once)}
}

// getOrLoad returns the cached ParsedWarc for path, loading it with fn on
// first request. Concurrent callers for the same path block on the same
// load rather than racing to populate the cache twice; a failed load is not
// cached, so a later call may retry.
func (c *warcCache) getOrLoad(path string, fn func() (*ParsedWarc, error)) (*ParsedWarc, error) {
	c.mu.Lock()
	once, ok := c.onces[path]
	if !ok {
		once = new(sync.Once)
		c.onces[path] = once
	}
	c.mu.Unlock()

	var loadErr error
	once.Do(func() {
		pw, err := fn()
		if err != nil {
			loadErr = err
			c.mu.Lock()
			delete(c.onces, path) // allow retry on failure
			c.mu.Unlock()
			return
		}
		c.lru.Add(path, pw)
	})

	if pw, ok := c.lru.Get(path); ok {
		return pw, nil
	}
	if loadErr != nil {
		return nil, loadErr
	}
	// The entry was evicted after an earlier load, or the load this caller
	// waited on failed in another caller: drop the spent Once and load again.
	c.mu.Lock()
	if c.onces[path] == once {
		delete(c.onces, path)
	}
	c.mu.Unlock()
	return c.getOrLoad(path, fn)
}
