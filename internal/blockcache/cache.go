// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package blockcache holds decoded archive blocks in a bounded LRU.
//
// A block moves through Absent -> Decoding -> Resident -> Evicted.  The
// Decoding state only exists inside GetOrDecode: concurrent callers for
// the same id share one call to the decode function, and a failed
// decode leaves nothing behind, so the next call starts from scratch.
package blockcache

import (
	"errors"
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"
)

var ErrInvalidConfig = errors.New("invalid block cache config")

// DefaultMaxEntries matches the historical fixed cache size.
const DefaultMaxEntries = 16

type Config struct {
	// MaxEntries bounds the number of resident blocks; 0 means no bound.
	MaxEntries int
	// MaxBytes bounds the summed length of resident blocks; 0 means no
	// bound.  A block larger than MaxBytes is returned to its caller
	// but not kept, and doesn't evict anything.
	MaxBytes int64
	// OnEvict, if set, is called with the cache lock held whenever a
	// block is dropped to respect the bounds.
	OnEvict func(id uint64, size int)
}

type Stats struct {
	Hits      uint64 // served from a resident block
	Misses    uint64 // had to decode or wait for a decode
	Decodes   uint64 // calls to a decode function
	Shared    uint64 // misses satisfied by another caller's decode
	Evictions uint64
	Entries   int
	Bytes     int64
}

type Cache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[uint64, []byte]
	bytes    int64
	maxBytes int64
	onEvict  func(id uint64, size int)
	purging  bool

	inflight singleflight.Group

	hits      atomic.Uint64
	misses    atomic.Uint64
	decodes   atomic.Uint64
	shared    atomic.Uint64
	evictions atomic.Uint64
}

func New(cfg Config) (*Cache, error) {
	if cfg.MaxEntries < 0 || cfg.MaxBytes < 0 {
		return nil, ErrInvalidConfig
	}
	maxEntries := cfg.MaxEntries
	if maxEntries == 0 {
		maxEntries = math.MaxInt
	}

	c := &Cache{
		maxBytes: cfg.MaxBytes,
		onEvict:  cfg.OnEvict,
	}
	lru, err := simplelru.NewLRU[uint64, []byte](maxEntries, c.evicted)
	if err != nil {
		return nil, err
	}
	c.lru = lru
	return c, nil
}

// evicted runs under c.mu, from inside simplelru.
func (c *Cache) evicted(id uint64, b []byte) {
	c.bytes -= int64(len(b))
	if c.purging {
		return
	}
	c.evictions.Add(1)
	if c.onEvict != nil {
		c.onEvict(id, len(b))
	}
}

// Get returns a resident block and marks it most recently used.
func (c *Cache) Get(id uint64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(id)
}

// Contains reports residency without touching recency.
func (c *Cache) Contains(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(id)
}

func (c *Cache) insert(id uint64, b []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.lru.Get(id); ok {
		return existing
	}
	// too big to ever fit: hand it back without disturbing residents
	if c.maxBytes > 0 && int64(len(b)) > c.maxBytes {
		return b
	}

	c.lru.Add(id, b)
	c.bytes += int64(len(b))
	for c.maxBytes > 0 && c.bytes > c.maxBytes && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
	return b
}

// GetOrDecode returns the block for id, calling decode on a miss.  At
// most one decode per id is in flight: other callers asking for the
// same id wait for it and share its result or error.  Errors are never
// cached.
//
// The returned slice is shared with the cache and other callers; it
// must not be modified.
func (c *Cache) GetOrDecode(id uint64, decode func() ([]byte, error)) ([]byte, error) {
	if b, ok := c.Get(id); ok {
		c.hits.Add(1)
		return b, nil
	}
	c.misses.Add(1)

	v, err, shared := c.inflight.Do(strconv.FormatUint(id, 10), func() (any, error) {
		// someone may have finished decoding id between our Get and Do
		if b, ok := c.Get(id); ok {
			return b, nil
		}
		c.decodes.Add(1)
		b, err := decode()
		if err != nil {
			return nil, err
		}
		return c.insert(id, b), nil
	})
	if shared {
		c.shared.Add(1)
	}
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Keys returns resident ids from least to most recently used.
func (c *Cache) Keys() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Purge drops every resident block.  It doesn't count as eviction.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purging = true
	c.lru.Purge()
	c.purging = false
	c.bytes = 0
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries, bytes := c.lru.Len(), c.bytes
	c.mu.Unlock()

	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Decodes:   c.decodes.Load(),
		Shared:    c.shared.Load(),
		Evictions: c.evictions.Load(),
		Entries:   entries,
		Bytes:     bytes,
	}
}
