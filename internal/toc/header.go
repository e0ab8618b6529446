// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package toc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/bpowers/docpack/internal/cursor"
)

const (
	magicSize = 4

	// Version1 is the minimal layout: header, entries, data.
	Version1 uint16 = 1
	// Version2 adds parent links, a metadata list and a checksum of
	// the whole index region.
	Version2 uint16 = 2
)

// 0x89 marks the file as binary, the same trick PNG uses.
var magic = [magicSize]byte{0x89, 'D', 'P', 'K'}

// all fixed-width fields are little-endian, independent of the host
var byteOrder = binary.LittleEndian

type header struct {
	magic      [magicSize]byte
	version    uint16
	entryCount uint64
}

func newHeader(version uint16, entryCount int) header {
	return header{
		magic:      magic,
		version:    version,
		entryCount: uint64(entryCount),
	}
}

func supportedVersion(v uint16) bool {
	return v == Version1 || v == Version2
}

func (h *header) AppendTo(dst []byte) []byte {
	dst = append(dst, h.magic[:]...)
	dst = byteOrder.AppendUint16(dst, h.version)
	return binary.AppendUvarint(dst, h.entryCount)
}

// decode reads and validates the header.  Magic and version are
// checked before entry_count is even looked at.
func (h *header) decode(c *cursor.Cursor) error {
	m, err := c.Bytes(magicSize)
	if err != nil {
		return fmt.Errorf("magic: %w", err)
	}
	copy(h.magic[:], m)
	if !bytes.Equal(h.magic[:], magic[:]) {
		return fmt.Errorf("%x: %w", h.magic, ErrBadMagic)
	}

	if h.version, err = c.Uint16(byteOrder); err != nil {
		return fmt.Errorf("version: %w", err)
	}
	if !supportedVersion(h.version) {
		return fmt.Errorf("this version of docpack can only read v%d-v%d archives; found v%d: %w",
			Version1, Version2, h.version, ErrUnsupportedVersion)
	}

	if h.entryCount, err = c.Uvarint(); err != nil {
		return fmt.Errorf("entry count: %w", err)
	}
	return nil
}
