// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package toc

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/docpack/internal/codec"
	"github.com/bpowers/docpack/internal/cursor"
)

func archive(t testing.TB, idx Index, data []byte) []byte {
	t.Helper()
	b, err := AppendIndex(nil, idx)
	require.NoError(t, err)
	return append(b, data...)
}

func formatErr(t testing.TB, err error) *FormatError {
	t.Helper()
	var fe *FormatError
	require.True(t, errors.As(err, &fe), "expected *FormatError, got %v", err)
	return fe
}

func TestDecode_Fixture(t *testing.T) {
	// hand-assembled v1 archive: the same bytes must decode the same
	// way on every host
	buf := []byte{
		0x89, 'D', 'P', 'K', // magic
		0x01, 0x00, // version 1, little-endian
		0x02,                         // entry_count
		0x01, 0x00, 0x05, 0x05, 0x00, // id 1, offset 0, stored 5, raw 5, store
		0x02, 0x05, 0x03, 0x03, 0x00, // id 2, offset 5, stored 3, raw 3, store
		'h', 'e', 'l', 'l', 'o',
		'a', 'b', 'c',
	}

	d, err := Decode(buf, uint64(len(buf)))
	require.NoError(t, err)
	assert.Equal(t, uint16(Version1), d.Version())
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, uint64(17), d.DataBase())
	assert.Equal(t, uint64(len(buf)), d.Size())

	e, ok := d.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, Entry{ID: 2, Offset: 5, StoredLen: 3, RawLen: 3, Codec: codec.Store}, e)
	start, end := d.BlockRange(e)
	assert.Equal(t, "abc", string(buf[start:end]))

	_, ok = d.Lookup(3)
	assert.False(t, ok)

	assert.Empty(t, d.Metadata())
	// v1 has no parents, so every page is top-level
	tree := d.Tree()
	require.Len(t, tree, 2)
	assert.Equal(t, []int{1}, tree[0].Section)
	assert.Equal(t, []int{2}, tree[1].Section)
}

func TestDecode_V2(t *testing.T) {
	md := []MetadataEntry{
		{Tag: TagTitle, Value: "Theory Example"},
		{Tag: TagDate, Date: 1234},
		{Tag: TagKeyword, Value: "go"},
		{Tag: TagKeyword, Value: "archives"},
		{Tag: TagUser, Key: "generator", Value: "docpack"},
	}
	idx := Index{
		Version: Version2,
		// deliberately not in id order
		Entries: []Entry{
			{ID: 7, Parent: 2, Offset: 0, StoredLen: 1, RawLen: 1},
			{ID: 1, Offset: 1, StoredLen: 1, RawLen: 1},
			{ID: 2, Offset: 2, StoredLen: 1, RawLen: 1},
			{ID: 3, Parent: 1, Offset: 3, StoredLen: 1, RawLen: 1},
			{ID: 4, Parent: 1, Offset: 4, StoredLen: 1, RawLen: 1},
			{ID: 9, Parent: 7, Offset: 5, StoredLen: 1, RawLen: 1, Codec: codec.Zstd},
		},
		Metadata: md,
	}
	buf := archive(t, idx, []byte("abcdef"))

	d, err := Decode(buf, uint64(len(buf)))
	require.NoError(t, err)
	assert.Equal(t, uint16(Version2), d.Version())
	assert.Equal(t, md, d.Metadata())
	assert.Equal(t, "1970-01-01T00:20:34Z", d.Metadata()[1].Time().Format("2006-01-02T15:04:05Z07:00"))

	var ids []uint64
	for _, e := range d.Entries() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []uint64{1, 2, 3, 4, 7, 9}, ids)

	e, ok := d.Lookup(9)
	require.True(t, ok)
	assert.Equal(t, codec.Zstd, e.Codec)
	start, end := d.BlockRange(e)
	assert.Equal(t, "f", string(buf[start:end]))

	sections := make(map[uint64][]int)
	err = Walk(d.Tree(), func(n *Node) error {
		sections[n.ID] = n.Section
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[uint64][]int{
		1: {1},
		3: {1, 1},
		4: {1, 2},
		2: {2},
		7: {2, 1},
		9: {2, 1, 1},
	}, sections)
}

func TestDecode_Truncated(t *testing.T) {
	idx := Index{
		Version: Version1,
		Entries: []Entry{
			{ID: 1, Offset: 0, StoredLen: 5, RawLen: 5},
			{ID: 300, Offset: 5, StoredLen: 200, RawLen: 100000, Codec: codec.Deflate},
		},
	}
	data := make([]byte, 205)
	buf := archive(t, idx, data)
	indexLen := len(buf) - len(data)
	headerLen := 4 + 2 + 1

	for n := 0; n < len(buf); n++ {
		_, err := Decode(buf[:n], uint64(n))
		require.Error(t, err, "prefix %d", n)
		fe := formatErr(t, err)

		switch {
		case n < headerLen:
			assert.Equal(t, StageHeader, fe.Stage, "prefix %d", n)
			assert.ErrorIs(t, err, cursor.ErrTruncated)
		case n < indexLen:
			assert.Equal(t, StageEntry, fe.Stage, "prefix %d", n)
			assert.ErrorIs(t, err, cursor.ErrTruncated)
			assert.True(t, fe.Index == 0 || fe.Index == 1)
		default:
			assert.Equal(t, StageBounds, fe.Stage, "prefix %d", n)
			assert.ErrorIs(t, err, ErrEntryBounds)
		}
	}

	// a short prefix of a longer archive is also a truncation, which
	// lets callers retry with more bytes
	_, err := Decode(buf[:indexLen-1], uint64(len(buf)))
	assert.ErrorIs(t, err, cursor.ErrTruncated)
	d, err := Decode(buf[:indexLen], uint64(len(buf)))
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())
}

func TestDecode_TruncatedV2(t *testing.T) {
	idx := Index{
		Version:  Version2,
		Entries:  []Entry{{ID: 1, StoredLen: 1, RawLen: 1}},
		Metadata: []MetadataEntry{{Tag: TagTitle, Value: "title"}},
	}
	buf := archive(t, idx, []byte("x"))
	indexLen := len(buf) - 1
	for n := 0; n < indexLen; n++ {
		_, err := Decode(buf[:n], uint64(n))
		assert.ErrorIs(t, err, cursor.ErrTruncated, "prefix %d", n)
	}
	// the checksum is the last thing in the index
	_, err := Decode(buf[:indexLen-2], uint64(indexLen-2))
	assert.Equal(t, StageChecksum, formatErr(t, err).Stage)
}

func TestDecode_FormatErrors(t *testing.T) {
	for _, tc := range []struct {
		name  string
		idx   Index
		data  []byte
		stage Stage
		want  error
		id    uint64
	}{
		{
			name: "duplicate id",
			idx: Index{Version: Version1, Entries: []Entry{
				{ID: 4, StoredLen: 1, RawLen: 1},
				{ID: 4, Offset: 1, StoredLen: 1, RawLen: 1},
			}},
			data:  []byte("ab"),
			stage: StageDuplicate,
			want:  ErrDuplicateID,
			id:    4,
		},
		{
			name: "block past end",
			idx: Index{Version: Version1, Entries: []Entry{
				{ID: 1, Offset: 1, StoredLen: 2, RawLen: 2},
			}},
			data:  []byte("ab"),
			stage: StageBounds,
			want:  ErrEntryBounds,
			id:    1,
		},
		{
			name: "offset overflow",
			idx: Index{Version: Version1, Entries: []Entry{
				{ID: 1, Offset: math.MaxUint64, StoredLen: 2, RawLen: 2},
			}},
			data:  []byte("ab"),
			stage: StageBounds,
			want:  ErrEntryBounds,
			id:    1,
		},
		{
			name: "zero id in v2",
			idx: Index{Version: Version2, Entries: []Entry{
				{ID: 0, StoredLen: 1, RawLen: 1},
			}},
			data:  []byte("a"),
			stage: StageEntry,
			want:  ErrZeroID,
			id:    0,
		},
		{
			name: "missing parent",
			idx: Index{Version: Version2, Entries: []Entry{
				{ID: 1, Parent: 5, StoredLen: 1, RawLen: 1},
			}},
			data:  []byte("a"),
			stage: StageParent,
			want:  ErrInvalidParent,
			id:    1,
		},
		{
			name: "cycle",
			idx: Index{Version: Version2, Entries: []Entry{
				{ID: 1, StoredLen: 1, RawLen: 1},
				{ID: 2, Parent: 3, StoredLen: 1, RawLen: 1},
				{ID: 3, Parent: 2, StoredLen: 1, RawLen: 1},
			}},
			data:  []byte("a"),
			stage: StageTree,
			want:  ErrTOCCycle,
			id:    2,
		},
		{
			name: "self parent",
			idx: Index{Version: Version2, Entries: []Entry{
				{ID: 8, Parent: 8, StoredLen: 1, RawLen: 1},
			}},
			data:  []byte("a"),
			stage: StageTree,
			want:  ErrTOCCycle,
			id:    8,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			buf := archive(t, tc.idx, tc.data)
			_, err := Decode(buf, uint64(len(buf)))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			fe := formatErr(t, err)
			assert.Equal(t, tc.stage, fe.Stage)
			assert.True(t, fe.HasID)
			assert.Equal(t, tc.id, fe.ID)
		})
	}
}

func TestDecode_TooDeep(t *testing.T) {
	var entries []Entry
	for id := uint64(1); id <= MaxDepth+1; id++ {
		entries = append(entries, Entry{ID: id, Parent: id - 1})
	}
	buf := archive(t, Index{Version: Version2, Entries: entries}, nil)
	_, err := Decode(buf, uint64(len(buf)))
	assert.ErrorIs(t, err, ErrTOCTooDeep)
	assert.Equal(t, StageTree, formatErr(t, err).Stage)

	// exactly MaxDepth levels is fine
	buf = archive(t, Index{Version: Version2, Entries: entries[:MaxDepth]}, nil)
	d, err := Decode(buf, uint64(len(buf)))
	require.NoError(t, err)
	assert.Len(t, d.Tree(), 1)
}

func TestDecode_UnknownCodec(t *testing.T) {
	buf := archive(t, Index{Version: Version1, Entries: []Entry{{ID: 1, StoredLen: 1, RawLen: 1}}}, []byte("a"))
	// the codec byte is the last byte of the index
	buf[len(buf)-2] = 9
	_, err := Decode(buf, uint64(len(buf)))
	assert.ErrorIs(t, err, codec.ErrUnknownCodec)
	fe := formatErr(t, err)
	assert.Equal(t, StageEntry, fe.Stage)
	assert.Equal(t, 0, fe.Index)
}

func TestDecode_Checksum(t *testing.T) {
	idx := Index{
		Version:  Version2,
		Entries:  []Entry{{ID: 1, StoredLen: 1, RawLen: 1}},
		Metadata: []MetadataEntry{{Tag: TagAuthor, Value: "abc"}},
	}
	buf := archive(t, idx, []byte("x"))
	// flip a metadata byte; the structure stays valid
	for i := range buf {
		if buf[i] == 'b' {
			buf[i] = 'B'
			break
		}
	}
	_, err := Decode(buf, uint64(len(buf)))
	assert.ErrorIs(t, err, ErrChecksum)
	assert.Equal(t, StageChecksum, formatErr(t, err).Stage)
}

func TestDecode_BadMetadata(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  []byte
	}{
		{"unknown tag", []byte{42, 1, 'x', 0}},
		{"short date", []byte{byte(TagDate), 2, 0, 1, 0}},
		{"invalid utf8", []byte{byte(TagTitle), 2, 0xff, 0xfe, 0}},
		{"user key too long", []byte{byte(TagUser), 2, 5, 'k', 0}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := cursor.New(tc.raw)
			_, err := decodeMetadata(c)
			assert.ErrorIs(t, err, ErrInvalidMetadata)
			assert.Equal(t, StageMetadata, formatErr(t, err).Stage)
		})
	}
}

func TestAppendIndex_Errors(t *testing.T) {
	_, err := AppendIndex(nil, Index{Version: 3})
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = AppendIndex(nil, Index{Version: Version1, Entries: []Entry{{ID: 1, Parent: 2}}})
	assert.ErrorIs(t, err, errNotInV1)

	_, err = AppendIndex(nil, Index{Version: Version1, Metadata: []MetadataEntry{{Tag: TagTitle}}})
	assert.ErrorIs(t, err, errNotInV1)

	_, err = AppendIndex(nil, Index{Version: Version2, Metadata: []MetadataEntry{{Tag: 50}}})
	assert.ErrorIs(t, err, ErrInvalidMetadata)
}

func TestDecode_V1AllowsZeroID(t *testing.T) {
	buf := archive(t, Index{Version: Version1, Entries: []Entry{
		{ID: 0, StoredLen: 1, RawLen: 1},
		{ID: 1, Offset: 1, StoredLen: 1, RawLen: 1},
	}}, []byte("ab"))
	d, err := Decode(buf, uint64(len(buf)))
	require.NoError(t, err)
	_, ok := d.Lookup(0)
	assert.True(t, ok)
	assert.Len(t, d.Tree(), 2)
}
