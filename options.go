// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package docpack

import (
	"github.com/sirupsen/logrus"

	"github.com/bpowers/docpack/internal/blockcache"
	"github.com/bpowers/docpack/internal/codec"
)

// DefaultMaxBlockSize caps how large a single decoded page may be.
const DefaultMaxBlockSize = 256 << 20

// Option configures an Archive.
type Option func(*config)

type config struct {
	cacheEntries int
	cacheBytes   int64
	maxBlockSize uint64
	codecs       codec.Set
	logger       logrus.FieldLogger
	mmap         bool
}

func newConfig(opts []Option) config {
	cfg := config{
		cacheEntries: blockcache.DefaultMaxEntries,
		maxBlockSize: DefaultMaxBlockSize,
		codecs:       codec.Builtin(),
		logger:       logrus.StandardLogger(),
		mmap:         true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logrus.StandardLogger()
	}
	return cfg
}

// WithCacheEntries bounds the number of decoded pages kept in memory.
// Zero removes the bound; the default is 16.
func WithCacheEntries(n int) Option {
	return func(cfg *config) {
		cfg.cacheEntries = n
	}
}

// WithCacheBytes bounds the total size of decoded pages kept in
// memory.  Zero, the default, removes the bound.
func WithCacheBytes(n int64) Option {
	return func(cfg *config) {
		cfg.cacheBytes = n
	}
}

// WithMaxBlockSize sets the largest raw length Fetch will decode.
// Larger entries fail with ErrBlockTooLarge.  Zero removes the limit;
// a raw length the stored block can't possibly decode to still fails
// with ErrLengthMismatch before anything is allocated.
func WithMaxBlockSize(n uint64) Option {
	return func(cfg *config) {
		cfg.maxBlockSize = n
	}
}

// WithCodecs restricts decoding to the given codecs.  Codecs that
// weren't compiled in stay unavailable.
func WithCodecs(codecs ...Codec) Option {
	return func(cfg *config) {
		cfg.codecs = codec.Builtin().Intersect(codec.NewSet(codecs...))
	}
}

// WithLogger sets the logger for debug and warning output.  The
// default is logrus.StandardLogger().
func WithLogger(logger logrus.FieldLogger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithMmap controls whether OpenFile maps the file into memory.  It is
// on by default; platforms without mmap always use positional reads.
func WithMmap(enabled bool) Option {
	return func(cfg *config) {
		cfg.mmap = enabled
	}
}
