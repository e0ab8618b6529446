// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package cursor decodes fixed-width integers, varints and byte runs
// from a borrowed byte slice.  Every read is bounds checked: running
// off the end of the slice is reported as ErrTruncated and leaves the
// position unchanged.
package cursor

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxVarintLen is the longest encoding of a 64-bit varint.
const MaxVarintLen = binary.MaxVarintLen64

var (
	ErrTruncated     = errors.New("truncated input")
	ErrInvalidVarint = errors.New("invalid varint encoding")
)

type Cursor struct {
	buf []byte
	pos int
}

func New(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Pos is the number of bytes consumed so far.
func (c *Cursor) Pos() int {
	return c.pos
}

// Len is the number of unread bytes.
func (c *Cursor) Len() int {
	return len(c.buf) - c.pos
}

// Consumed returns the bytes read so far.  The result aliases the
// underlying buffer.
func (c *Cursor) Consumed() []byte {
	return c.buf[:c.pos]
}

func (c *Cursor) need(n int) error {
	if n < 0 || n > len(c.buf)-c.pos {
		return fmt.Errorf("need %d bytes at offset %d, have %d: %w", n, c.pos, len(c.buf)-c.pos, ErrTruncated)
	}
	return nil
}

func (c *Cursor) Uint8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

func (c *Cursor) Uint16(order binary.ByteOrder) (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := order.Uint16(c.buf[c.pos : c.pos+2])
	c.pos += 2
	return v, nil
}

func (c *Cursor) Uint32(order binary.ByteOrder) (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := order.Uint32(c.buf[c.pos : c.pos+4])
	c.pos += 4
	return v, nil
}

func (c *Cursor) Uint64(order binary.ByteOrder) (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := order.Uint64(c.buf[c.pos : c.pos+8])
	c.pos += 8
	return v, nil
}

func (c *Cursor) Int16(order binary.ByteOrder) (int16, error) {
	v, err := c.Uint16(order)
	return int16(v), err
}

func (c *Cursor) Int32(order binary.ByteOrder) (int32, error) {
	v, err := c.Uint32(order)
	return int32(v), err
}

func (c *Cursor) Int64(order binary.ByteOrder) (int64, error) {
	v, err := c.Uint64(order)
	return int64(v), err
}

// Uvarint reads an unsigned LEB128 varint.  Encodings longer than
// MaxVarintLen bytes, or that overflow 64 bits, are ErrInvalidVarint.
func (c *Cursor) Uvarint() (uint64, error) {
	v, n := binary.Uvarint(c.buf[c.pos:])
	switch {
	case n == 0 && c.Len() >= MaxVarintLen:
		// ten continuation bytes in a row
		return 0, fmt.Errorf("varint at offset %d: %w", c.pos, ErrInvalidVarint)
	case n == 0:
		return 0, fmt.Errorf("varint at offset %d: %w", c.pos, ErrTruncated)
	case n < 0:
		return 0, fmt.Errorf("varint at offset %d: %w", c.pos, ErrInvalidVarint)
	}
	c.pos += n
	return v, nil
}

// Bytes returns the next n bytes without copying.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.buf[c.pos : c.pos+n : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *Cursor) Skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}
	c.pos += n
	return nil
}
