// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !docpack_nozstd

package codec

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	zstdEnabled = true

	maxDecoderMemory = 256 << 20
)

// zstd encoders and decoders are safe for concurrent use, so one of
// each is shared by the whole process.
var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdInitErr error
)

func initZstd() {
	zstdEncoder, zstdInitErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if zstdInitErr != nil {
		return
	}
	zstdDecoder, zstdInitErr = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(maxDecoderMemory),
		zstd.WithDecodeAllCapLimit(true),
	)
}

func decodeZstd(src []byte, rawLen int) ([]byte, error) {
	zstdOnce.Do(initZstd)
	if zstdInitErr != nil {
		return nil, fmt.Errorf("zstd init: %w", zstdInitErr)
	}

	var h zstd.Header
	if err := h.Decode(src); err == nil && h.HasFCS && h.FrameContentSize > uint64(rawLen) {
		return nil, fmt.Errorf("frame holds %d bytes, expected %d: %w", h.FrameContentSize, rawLen, ErrLengthMismatch)
	}

	// DecodeAll stops at cap(dst), so the spare byte is the most an
	// overlong stream can produce
	out, err := zstdDecoder.DecodeAll(src, make([]byte, 0, rawLen+1))
	if err != nil {
		switch {
		case errors.Is(err, zstd.ErrDecoderSizeExceeded):
			return nil, fmt.Errorf("stream longer than %d bytes: %w", rawLen, ErrLengthMismatch)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, ErrUnexpectedEnd
		}
		return nil, fmt.Errorf("zstd.DecodeAll: %v: %w", err, ErrCorruptBlock)
	}
	if len(out) != rawLen {
		return nil, fmt.Errorf("decoded %d bytes, expected %d: %w", len(out), rawLen, ErrLengthMismatch)
	}
	return out, nil
}

func encodeZstd(src []byte) ([]byte, error) {
	zstdOnce.Do(initZstd)
	if zstdInitErr != nil {
		return nil, fmt.Errorf("zstd init: %w", zstdInitErr)
	}
	return zstdEncoder.EncodeAll(src, nil), nil
}
