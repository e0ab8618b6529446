// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package codec decompresses (and, for the packer, compresses) archive
// blocks.  The set of codecs is closed and matches the one-byte tag
// stored in each directory entry.  Deflate, LZ4 and Zstd can each be
// removed at build time with the docpack_nodeflate, docpack_nolz4 and
// docpack_nozstd tags; decoding a block tagged with a removed codec
// fails with ErrUnsupportedCodec.
package codec

import (
	"errors"
	"fmt"
)

// Codec is the on-disk codec tag.
type Codec uint8

const (
	Store   Codec = 0
	Deflate Codec = 1
	LZ4     Codec = 2
	Zstd    Codec = 3

	numCodecs = 4
)

var (
	ErrUnknownCodec     = errors.New("unknown codec tag")
	ErrUnsupportedCodec = errors.New("codec not supported by this build")
	ErrCorruptBlock     = errors.New("corrupt compressed block")
	ErrUnexpectedEnd    = errors.New("unexpected end of compressed block")
	ErrLengthMismatch   = errors.New("decoded length does not match directory")
	ErrIncompressible   = errors.New("data is incompressible")
)

func (c Codec) String() string {
	switch c {
	case Store:
		return "store"
	case Deflate:
		return "deflate"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// Parse maps a codec name (as printed by String) back to its tag.
func Parse(name string) (Codec, error) {
	for c := Codec(0); c < numCodecs; c++ {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, ErrUnknownCodec)
}

// Valid reports whether c is a tag the format defines, whether or not
// this build can decode it.
func (c Codec) Valid() bool {
	return c < numCodecs
}

// Available reports whether this build was compiled with support for c.
func (c Codec) Available() bool {
	switch c {
	case Store:
		return true
	case Deflate:
		return deflateEnabled
	case LZ4:
		return lz4Enabled
	case Zstd:
		return zstdEnabled
	default:
		return false
	}
}

// Set is a bitmask of codecs.
type Set uint8

func NewSet(codecs ...Codec) Set {
	var s Set
	for _, c := range codecs {
		if c.Valid() {
			s |= 1 << c
		}
	}
	return s
}

// Builtin is the set of codecs compiled into this binary.
func Builtin() Set {
	var s Set
	for c := Codec(0); c < numCodecs; c++ {
		if c.Available() {
			s |= 1 << c
		}
	}
	return s
}

func (s Set) Has(c Codec) bool {
	return c.Valid() && s&(1<<c) != 0
}

func (s Set) Intersect(o Set) Set {
	return s & o
}

func (s Set) Codecs() []Codec {
	var out []Codec
	for c := Codec(0); c < numCodecs; c++ {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Decode decompresses src, which was stored with codec c, and returns
// exactly rawLen bytes.  Output that is longer or shorter than rawLen
// is ErrLengthMismatch.  The result never aliases src.
func Decode(c Codec, src []byte, rawLen int) ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("tag %d: %w", uint8(c), ErrUnknownCodec)
	}
	if !c.Available() {
		return nil, fmt.Errorf("%s: %w", c, ErrUnsupportedCodec)
	}
	if rawLen < 0 {
		return nil, fmt.Errorf("%s: negative length %d: %w", c, rawLen, ErrLengthMismatch)
	}
	if limit := maxDecodedLen(c, len(src)); uint64(rawLen) > limit {
		return nil, fmt.Errorf("%s: %d stored bytes can't decode to %d: %w", c, len(src), rawLen, ErrLengthMismatch)
	}

	var (
		out []byte
		err error
	)
	switch c {
	case Store:
		out, err = decodeStore(src, rawLen)
	case Deflate:
		out, err = decodeDeflate(src, rawLen)
	case LZ4:
		out, err = decodeLZ4(src, rawLen)
	case Zstd:
		out, err = decodeZstd(src, rawLen)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c, err)
	}
	return out, nil
}

// Encode compresses src with codec c.  Compressing codecs return
// ErrIncompressible when they can't shrink the input; the caller is
// expected to fall back to Store.
func Encode(c Codec, src []byte) ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("tag %d: %w", uint8(c), ErrUnknownCodec)
	}
	if !c.Available() {
		return nil, fmt.Errorf("%s: %w", c, ErrUnsupportedCodec)
	}

	var (
		out []byte
		err error
	)
	switch c {
	case Store:
		out = append([]byte(nil), src...)
	case Deflate:
		out, err = encodeDeflate(src)
	case LZ4:
		out, err = encodeLZ4(src)
	case Zstd:
		out, err = encodeZstd(src)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c, err)
	}
	return out, nil
}

// Worst-case expansion ratios.  A deflate length code emits at most
// 258 bytes from 2 bits, an LZ4 sequence 255 bytes per extra length
// byte, and a zstd RLE block 128 KiB from 4 bytes.
const (
	deflateMaxRatio = 1032
	lz4MaxRatio     = 255
	zstdMaxRatio    = 32 << 10

	ratioSlack = 1 << 10
)

// maxDecodedLen bounds the output n stored bytes of codec c can
// produce, so raw lengths that can't be right are rejected before
// anything is allocated for them.
func maxDecodedLen(c Codec, n int) uint64 {
	var ratio uint64
	switch c {
	case Store:
		return uint64(n)
	case Deflate:
		ratio = deflateMaxRatio
	case LZ4:
		ratio = lz4MaxRatio
	case Zstd:
		ratio = zstdMaxRatio
	default:
		return 0
	}
	return uint64(n)*ratio + ratioSlack
}

func decodeStore(src []byte, rawLen int) ([]byte, error) {
	if len(src) != rawLen {
		return nil, fmt.Errorf("stored %d bytes, expected %d: %w", len(src), rawLen, ErrLengthMismatch)
	}
	out := make([]byte, rawLen)
	copy(out, src)
	return out, nil
}
