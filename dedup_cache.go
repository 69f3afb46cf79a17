// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// dedupCache lets the builder reuse a previously-written blob's bytes
// when two logical files carry identical content (a common case for
// patch archives layering unchanged assets). Keyed by content hash
// plus length as a cheap collision guard; the stored content itself is
// not compared, so two different blobs with the same length and hash
// would both get the first one's bytes.
type dedupCache struct {
	mu      sync.Mutex
	entries map[dedupKey]storedBlock
}

type dedupKey struct {
	hash uint64
	size int
}

// storedBlock records a previously-compiled blob so a later duplicate
// can reuse its bytes and block-table shape without recompressing;
// Build still writes those bytes again for the duplicate's own block.
type storedBlock struct {
	bytes    []byte
	fileSize uint32
	flags    uint32
}

func newDedupCache() *dedupCache {
	return &dedupCache{entries: make(map[dedupKey]storedBlock)}
}

func (c *dedupCache) lookup(data []byte) (storedBlock, bool) {
	key := dedupKey{hash: xxhash.Sum64(data), size: len(data)}
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.entries[key]
	return b, ok
}

func (c *dedupCache) store(data []byte, b storedBlock) {
	key := dedupKey{hash: xxhash.Sum64(data), size: len(data)}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = b
}
