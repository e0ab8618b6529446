// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !docpack_nolz4

package codec

import (
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

const (
	lz4Enabled = true

	lz4RetrySlack = 64 << 10
)

// LZ4 blocks use the raw block format (no frame header), so the
// directory's raw_len is the only record of the decoded size.
func decodeLZ4(src []byte, rawLen int) ([]byte, error) {
	if len(src) == 0 {
		if rawLen == 0 {
			return []byte{}, nil
		}
		return nil, ErrUnexpectedEnd
	}

	// one spare byte lets us notice blocks that decode to more than rawLen
	dst := make([]byte, rawLen+1)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, lz4Err(src, rawLen, err)
	}
	if n != rawLen {
		return nil, fmt.Errorf("decoded %d bytes, expected %d: %w", n, rawLen, ErrLengthMismatch)
	}
	return dst[:n:n], nil
}

// lz4Err tells an overlong block apart from a corrupt one.  lz4 reports
// both as ErrInvalidSourceShortBuffer, so the block is decoded again
// into a larger buffer: if that works, the directory's raw_len is
// wrong.
func lz4Err(src []byte, rawLen int, err error) error {
	if !errors.Is(err, lz4.ErrInvalidSourceShortBuffer) {
		return fmt.Errorf("lz4.UncompressBlock: %v: %w", err, ErrCorruptBlock)
	}
	retry := min(maxDecodedLen(LZ4, len(src)), 2*uint64(rawLen)+lz4RetrySlack)
	if n, rerr := lz4.UncompressBlock(src, make([]byte, retry)); rerr == nil && n > rawLen {
		return fmt.Errorf("decoded at least %d bytes, expected %d: %w", n, rawLen, ErrLengthMismatch)
	}
	return fmt.Errorf("lz4.UncompressBlock: %v: %w", err, ErrCorruptBlock)
}

func encodeLZ4(src []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4.CompressBlock: %w", err)
	}
	// CompressBlock reports 0 for input it can't shrink
	if n == 0 || n >= len(src) {
		return nil, ErrIncompressible
	}
	return dst[:n], nil
}
