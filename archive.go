// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package docpack

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bpowers/docpack/internal/blockcache"
	"github.com/bpowers/docpack/internal/codec"
	"github.com/bpowers/docpack/internal/cursor"
	"github.com/bpowers/docpack/internal/source"
	"github.com/bpowers/docpack/internal/toc"
)

// Codec identifies the compression used for one block.
type Codec = codec.Codec

const (
	Store   = codec.Store
	Deflate = codec.Deflate
	LZ4     = codec.LZ4
	Zstd    = codec.Zstd
)

// Entry describes one page's block.  Offset is relative to the start
// of the data region.
type Entry = toc.Entry

// MetadataEntry is one item from a v2 archive's metadata list.
type MetadataEntry = toc.MetadataEntry

// TOCNode is a page's position in the table of contents.
type TOCNode = toc.Node

// Stats reports block cache activity.
type Stats = blockcache.Stats

// initialIndexRead is how much of a non-memory source is read to find
// the index.  Larger indexes are read in growing prefixes.
const initialIndexRead = 64 << 10

// Archive is an open archive.  All methods are safe for concurrent
// use.
type Archive struct {
	mu     sync.RWMutex
	closed bool

	name   string
	src    source.Source
	dir    *toc.Directory
	cache  *blockcache.Cache
	codecs codec.Set
	max    uint64
	log    logrus.FieldLogger
}

// Open reads an archive held in memory.  b must not be modified while
// the archive is open.
func Open(b []byte, opts ...Option) (*Archive, error) {
	return open(source.FromBytes(b), "<bytes>", newConfig(opts))
}

// OpenFile opens the archive at path, memory-mapping it where
// possible.
func OpenFile(path string, opts ...Option) (*Archive, error) {
	cfg := newConfig(opts)

	var src source.Source
	if cfg.mmap {
		m, err := source.OpenMmap(path, cfg.logger)
		switch {
		case err == nil:
			src = m
		case errors.Is(err, source.ErrMmapUnsupported):
			cfg.logger.WithField("path", path).Debug("mmap unavailable, using positional reads")
		default:
			return nil, &OpenError{Source: path, Err: err}
		}
	}
	if src == nil {
		f, err := source.OpenFile(path)
		if err != nil {
			return nil, &OpenError{Source: path, Err: err}
		}
		src = f
	}

	a, err := open(src, path, cfg)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	return a, nil
}

// OpenReaderAt opens an archive of size bytes read through r.  r must
// allow concurrent ReadAt calls.  Close doesn't close r.
func OpenReaderAt(r io.ReaderAt, size int64, opts ...Option) (*Archive, error) {
	if size < 0 {
		return nil, &OpenError{Source: "<reader>", Err: fmt.Errorf("negative size %d", size)}
	}
	return open(source.FromReaderAt(r, size), "<reader>", newConfig(opts))
}

// OpenReadSeeker opens an archive read through a single seekable
// handle.  Block reads are serialized so they don't fight over the
// handle's position.  Close doesn't close rs.
func OpenReadSeeker(rs io.ReadSeeker, opts ...Option) (*Archive, error) {
	src, err := source.FromReadSeeker(rs)
	if err != nil {
		return nil, &OpenError{Source: "<reader>", Err: err}
	}
	return open(src, "<reader>", newConfig(opts))
}

func open(src source.Source, name string, cfg config) (*Archive, error) {
	dir, err := readDirectory(src)
	if err != nil {
		return nil, &OpenError{Source: name, Err: err}
	}

	log := cfg.logger.WithField("archive", name)
	cache, err := blockcache.New(blockcache.Config{
		MaxEntries: cfg.cacheEntries,
		MaxBytes:   cfg.cacheBytes,
		OnEvict: func(id uint64, size int) {
			log.WithFields(logrus.Fields{"id": id, "size": size}).Debug("evicted block")
		},
	})
	if err != nil {
		return nil, &OpenError{Source: name, Err: fmt.Errorf("cache: %w", err)}
	}

	log.WithFields(logrus.Fields{
		"version":  dir.Version(),
		"entries":  dir.Len(),
		"dataBase": dir.DataBase(),
		"size":     dir.Size(),
	}).Debug("opened archive")

	return &Archive{
		name:   name,
		src:    src,
		dir:    dir,
		cache:  cache,
		codecs: cfg.codecs,
		max:    cfg.maxBlockSize,
		log:    log,
	}, nil
}

// readDirectory decodes the index.  Sources that aren't already in
// memory are read in growing prefixes until the index fits.
func readDirectory(src source.Source) (*toc.Directory, error) {
	size := src.Size()
	if m, ok := src.(source.Mapped); ok {
		return toc.Decode(m.Data(), uint64(size))
	}

	n := min(size, initialIndexRead)
	for {
		buf, err := source.ReadRange(src, 0, n)
		if err != nil {
			return nil, fmt.Errorf("reading index: %w", err)
		}
		dir, err := toc.Decode(buf, uint64(size))
		if err != nil && errors.Is(err, cursor.ErrTruncated) && n < size {
			n = min(size, n*4)
			continue
		}
		return dir, err
	}
}

// Fetch returns the decoded page with the given id.  The result is
// shared with the cache and other callers and must not be modified.
func (a *Archive) Fetch(id uint64) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, &FetchError{ID: id, Stage: FetchLookup, Err: ErrClosed}
	}
	e, ok := a.dir.Lookup(id)
	if !ok {
		return nil, &FetchError{ID: id, Stage: FetchLookup, Err: ErrNoSuchEntry}
	}
	if (a.max > 0 && e.RawLen > a.max) || e.RawLen > math.MaxInt {
		return nil, &FetchError{ID: id, Stage: FetchLookup, Err: fmt.Errorf("raw_len %d: %w", e.RawLen, ErrBlockTooLarge)}
	}
	if !a.codecs.Has(e.Codec) {
		return nil, &FetchError{ID: id, Stage: FetchDecode, Err: fmt.Errorf("%s: %w", e.Codec, ErrUnsupportedCodec)}
	}

	return a.cache.GetOrDecode(id, func() ([]byte, error) {
		return a.decode(e)
	})
}

func (a *Archive) decode(e Entry) ([]byte, error) {
	start, end := a.dir.BlockRange(e)
	stored, err := source.ReadRange(a.src, int64(start), int64(end-start))
	if err != nil {
		return nil, &FetchError{ID: e.ID, Stage: FetchRead, Err: err}
	}
	out, err := codec.Decode(e.Codec, stored, int(e.RawLen))
	if err != nil {
		return nil, &FetchError{ID: e.ID, Stage: FetchDecode, Err: err}
	}

	a.log.WithFields(logrus.Fields{
		"id":     e.ID,
		"codec":  e.Codec,
		"stored": e.StoredLen,
		"raw":    e.RawLen,
	}).Debug("decoded block")
	return out, nil
}

// Close releases the archive's source and drops all cached pages.
// Fetch calls after Close fail with ErrClosed.  Close is idempotent.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	a.cache.Purge()
	if err := a.src.Close(); err != nil {
		return fmt.Errorf("docpack: close %s: %w", a.name, err)
	}
	return nil
}

// Version is the archive's format version.
func (a *Archive) Version() uint16 {
	return a.dir.Version()
}

// Len is the number of entries in the directory.
func (a *Archive) Len() int {
	return a.dir.Len()
}

// Lookup returns the directory entry for id without reading its block.
func (a *Archive) Lookup(id uint64) (Entry, bool) {
	return a.dir.Lookup(id)
}

// Entries returns every directory entry in ascending id order.
func (a *Archive) Entries() []Entry {
	return a.dir.Entries()
}

// Metadata returns the archive's metadata list.  It is empty for v1
// archives.
func (a *Archive) Metadata() []MetadataEntry {
	return a.dir.Metadata()
}

// TOC returns the top-level table-of-contents nodes.  The nodes are
// shared and must not be modified.
func (a *Archive) TOC() []*TOCNode {
	return a.dir.Tree()
}

// Stats reports cache activity since the archive was opened.
func (a *Archive) Stats() Stats {
	return a.cache.Stats()
}

// WalkTOC calls fn for every node under nodes, parents before
// children, stopping at the first error.
func WalkTOC(nodes []*TOCNode, fn func(*TOCNode) error) error {
	return toc.Walk(nodes, fn)
}
