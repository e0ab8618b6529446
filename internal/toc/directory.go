// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package toc decodes the index at the front of a docpack archive: the
// header, the directory of entries, and (for version 2) the metadata
// list and table-of-contents tree.
//
// An archive looks like:
//
//	┌────────────────────────────┐
//	│ magic  0x89 'D' 'P' 'K'    │
//	│ version       u16 LE       │
//	│ entry_count   varint       │
//	├────────────────────────────┤
//	│ entry_count entries        │
//	├────────────────────────────┤
//	│ metadata list       (v2)   │
//	│ farm fingerprint32  (v2)   │
//	├────────────────────────────┤
//	│ data region: blocks        │
//	│ addressed by offset and    │
//	│ stored_len                 │
//	└────────────────────────────┘
//
// Entries are a run of varints followed by a codec byte:
//
//	v1: id, offset, stored_len, raw_len, codec
//	v2: id, parent, offset, stored_len, raw_len, codec
//
// Block offsets are relative to the start of the data region, which
// begins right after the index.
package toc

import (
	"fmt"
	"sort"

	"github.com/dgryski/go-farm"

	"github.com/bpowers/docpack/internal/codec"
	"github.com/bpowers/docpack/internal/cursor"
)

const checksumSize = 4

// Entry locates one page's block in the data region.
type Entry struct {
	ID        uint64
	Parent    uint64 // 0 for top-level pages and in v1 archives
	Offset    uint64 // relative to the data region
	StoredLen uint64
	RawLen    uint64
	Codec     codec.Codec
}

// Directory is the decoded, read-only index of an archive.
type Directory struct {
	version  uint16
	size     uint64
	dataBase uint64
	entries  []Entry // sorted by id
	byID     map[uint64]int
	metadata []MetadataEntry
	tree     []*Node
}

func (d *Directory) Version() uint16 {
	return d.version
}

// Size is the total archive length the directory was validated against.
func (d *Directory) Size() uint64 {
	return d.size
}

// DataBase is the absolute offset of the data region.
func (d *Directory) DataBase() uint64 {
	return d.dataBase
}

func (d *Directory) Len() int {
	return len(d.entries)
}

func (d *Directory) Lookup(id uint64) (Entry, bool) {
	i, ok := d.byID[id]
	if !ok {
		return Entry{}, false
	}
	return d.entries[i], true
}

// Entries returns a copy of the directory in ascending id order.
func (d *Directory) Entries() []Entry {
	return append([]Entry(nil), d.entries...)
}

func (d *Directory) Metadata() []MetadataEntry {
	return append([]MetadataEntry(nil), d.metadata...)
}

// Tree returns the top-level table-of-contents nodes.  Nodes are shared
// and must not be modified.
func (d *Directory) Tree() []*Node {
	return append([]*Node(nil), d.tree...)
}

// BlockRange returns the absolute [start, end) byte range of e's block.
// The range was checked against the archive size when the directory
// was decoded.
func (d *Directory) BlockRange(e Entry) (start, end uint64) {
	start = d.dataBase + e.Offset
	return start, start + e.StoredLen
}

func addUint64(a, b uint64) (uint64, bool) {
	s := a + b
	return s, s >= a
}

func decodeEntry(c *cursor.Cursor, version uint16) (e Entry, err error) {
	if e.ID, err = c.Uvarint(); err != nil {
		return e, fmt.Errorf("id: %w", err)
	}
	if version >= Version2 {
		if e.Parent, err = c.Uvarint(); err != nil {
			return e, fmt.Errorf("parent: %w", err)
		}
	}
	if e.Offset, err = c.Uvarint(); err != nil {
		return e, fmt.Errorf("offset: %w", err)
	}
	if e.StoredLen, err = c.Uvarint(); err != nil {
		return e, fmt.Errorf("stored_len: %w", err)
	}
	if e.RawLen, err = c.Uvarint(); err != nil {
		return e, fmt.Errorf("raw_len: %w", err)
	}
	tag, err := c.Uint8()
	if err != nil {
		return e, fmt.Errorf("codec: %w", err)
	}
	e.Codec = codec.Codec(tag)
	if !e.Codec.Valid() {
		return e, fmt.Errorf("tag %d: %w", tag, codec.ErrUnknownCodec)
	}
	return e, nil
}

// Decode parses the index at the start of buf.  buf may be a prefix of
// the archive; size is the length of the whole archive and is used to
// bounds check every entry.  If buf ends before the index does, the
// error wraps cursor.ErrTruncated and callers holding more of the
// archive can retry with a longer prefix.
//
// Decode validates everything a later fetch depends on: ids are unique
// (and non-zero in v2), codec tags are known, every block lies inside
// the archive, parents exist and form a tree.
func Decode(buf []byte, size uint64) (*Directory, error) {
	if uint64(len(buf)) > size {
		buf = buf[:size]
	}
	c := cursor.New(buf)

	var h header
	if err := h.decode(c); err != nil {
		return nil, stageErr(StageHeader, err)
	}

	// every entry takes at least 5 bytes; don't let a garbage count
	// size the allocation
	minEntryLen := uint64(5)
	if h.version >= Version2 {
		minEntryLen = 6
	}
	capacity := h.entryCount
	if limit := uint64(c.Len()) / minEntryLen; capacity > limit {
		capacity = limit
	}

	d := &Directory{
		version: h.version,
		size:    size,
		entries: make([]Entry, 0, capacity),
		byID:    make(map[uint64]int, capacity),
	}

	for i := 0; uint64(i) < h.entryCount; i++ {
		e, err := decodeEntry(c, h.version)
		if err != nil {
			return nil, entryErr(StageEntry, i, err)
		}
		if h.version >= Version2 && e.ID == 0 {
			return nil, idErr(StageEntry, i, e.ID, ErrZeroID)
		}
		if _, dup := d.byID[e.ID]; dup {
			return nil, idErr(StageDuplicate, i, e.ID, ErrDuplicateID)
		}
		d.byID[e.ID] = i
		d.entries = append(d.entries, e)
	}

	if h.version >= Version2 {
		md, err := decodeMetadata(c)
		if err != nil {
			return nil, err
		}
		d.metadata = md

		indexBytes := c.Consumed()
		sum, err := c.Uint32(byteOrder)
		if err != nil {
			return nil, stageErr(StageChecksum, err)
		}
		if expected := farm.Fingerprint32(indexBytes); sum != expected {
			return nil, stageErr(StageChecksum, fmt.Errorf("stored %08x, computed %08x: %w", sum, expected, ErrChecksum))
		}
	}

	d.dataBase = uint64(c.Pos())

	for i, e := range d.entries {
		end, ok := addUint64(d.dataBase, e.Offset)
		if ok {
			end, ok = addUint64(end, e.StoredLen)
		}
		if !ok || end > size {
			return nil, idErr(StageBounds, i, e.ID, fmt.Errorf("block [%d+%d, +%d) in %d byte archive: %w",
				d.dataBase, e.Offset, e.StoredLen, size, ErrEntryBounds))
		}
	}

	for i, e := range d.entries {
		if e.Parent == 0 {
			continue
		}
		if _, ok := d.byID[e.Parent]; !ok {
			return nil, idErr(StageParent, i, e.ID, fmt.Errorf("parent %d: %w", e.Parent, ErrInvalidParent))
		}
	}

	sort.Slice(d.entries, func(i, j int) bool {
		return d.entries[i].ID < d.entries[j].ID
	})
	for i, e := range d.entries {
		d.byID[e.ID] = i
	}

	tree, err := buildTree(d.entries)
	if err != nil {
		return nil, err
	}
	d.tree = tree

	return d, nil
}
