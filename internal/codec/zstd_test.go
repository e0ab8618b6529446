// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !docpack_nozstd

package codec

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamed encodes src through the streaming writer, which doesn't
// know the content size up front.
func streamed(t *testing.T, src []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(src)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestZstd_OutputCappedAtRawLen(t *testing.T) {
	src := make([]byte, 4<<20)
	enc := streamed(t, src)
	// a few MiB of zeros squeeze into a handful of RLE blocks
	require.Less(t, len(enc), 64<<10)

	_, err := Decode(Zstd, enc, 1000)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	out, err := Decode(Zstd, enc, len(src))
	require.NoError(t, err)
	assert.Equal(t, len(src), len(out))
}

func TestZstd_FrameContentSize(t *testing.T) {
	enc, err := Encode(Zstd, compressible(4096))
	require.NoError(t, err)

	var h zstd.Header
	require.NoError(t, h.Decode(enc))
	require.True(t, h.HasFCS)

	_, err = Decode(Zstd, enc, 4095)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}
